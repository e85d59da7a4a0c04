package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationKind classifies a balance event sent to a subscriber.
type NotificationKind string

const (
	// KindPausedInsufficientFunds is sent exactly once when a subscription is
	// paused because a charge could not be covered.
	KindPausedInsufficientFunds NotificationKind = "paused_insufficient_funds"
	// KindLowBalanceWarning is sent after a successful recurring charge when
	// the post-charge balance crosses a warning threshold.
	KindLowBalanceWarning NotificationKind = "low_balance_warning"
	// KindRecurringChargeSucceeded confirms a recurring fee was charged.
	KindRecurringChargeSucceeded NotificationKind = "recurring_charge_succeeded"
)

// WarningSeverity distinguishes the two low-balance thresholds.
type WarningSeverity string

const (
	SeverityStandard WarningSeverity = "standard"
	SeverityCritical WarningSeverity = "critical"
)

// Notification is a one-way balance-event message for a subscriber.
type Notification struct {
	ID           uuid.UUID        `json:"id"`
	SubscriberID string           `json:"subscriber_id"`
	TopicID      string           `json:"topic_id"`
	Kind         NotificationKind `json:"kind"`
	Severity     WarningSeverity  `json:"severity,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	Shortfall    decimal.Decimal  `json:"shortfall"`
	Balance      decimal.Decimal  `json:"balance"`
	// EstimatedDaysLeft is a rough runway at the current daily burn rate.
	EstimatedDaysLeft int       `json:"estimated_days_left,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
