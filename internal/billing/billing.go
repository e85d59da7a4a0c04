package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"watchgate/internal/models"
)

// Package billing holds the authorization gate: the single boundary through
// which every metered charge passes. The gate serializes check-and-debit per
// subscriber so that concurrent charges can never overdraw a balance, and it
// writes the balance debit and the usage-ledger append as one logical unit.

// BalanceStore is the narrow balance primitive the gate builds on. The debit
// must itself be atomic: it either subtracts the full amount or reports
// insufficient funds without mutating anything.
type BalanceStore interface {
	Balance(ctx context.Context, subscriberID string) (decimal.Decimal, error)
	Debit(ctx context.Context, subscriberID string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, subscriberID string, amount decimal.Decimal) (decimal.Decimal, error)
}

// LedgerStore is the append-only usage ledger.
type LedgerStore interface {
	Append(ctx context.Context, record *models.UsageRecord) error
	Summary(ctx context.Context, subscriberID, topicID string) (*models.UsageSummary, error)
}

// SubscriptionStore provides the lifecycle state the gate checks before
// touching a balance, plus the listings the scheduler and controller need.
type SubscriptionStore interface {
	Get(ctx context.Context, subscriberID, topicID string) (*models.Subscription, error)
	Create(ctx context.Context, sub *models.Subscription) error
	SetState(ctx context.Context, subscriberID, topicID string, state models.SubscriptionState, at time.Time) error
	SetLastCharged(ctx context.Context, subscriberID, topicID string, at time.Time) error
	ListActiveByTopic(ctx context.Context, topicID string) ([]*models.Subscription, error)
	ActiveTopicIDs(ctx context.Context) ([]string, error)
}
