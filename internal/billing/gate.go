package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"watchgate/internal/models"
	"watchgate/internal/storage"
	"watchgate/internal/utils"
)

// Config carries the pricing knobs the gate needs.
type Config struct {
	// FeeHeadroom is added on top of a recurring fee when checking funds, so
	// a balance that covers only the bare fee is still denied. Only the fee
	// itself is debited.
	FeeHeadroom decimal.Decimal
	// MaxAttempts bounds the retries when the debit-plus-append unit fails on
	// a persistence error.
	MaxAttempts int
}

// Gate authorizes charges against subscriber balances. Every metered call and
// every recurring fee goes through Authorize.
type Gate struct {
	balances BalanceStore
	ledger   LedgerStore
	subs     SubscriptionStore
	locks    *subscriberLocks
	cfg      Config
	logger   *utils.Logger
	now      func() time.Time
}

func NewGate(balances BalanceStore, ledger LedgerStore, subs SubscriptionStore, cfg Config) *Gate {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Gate{
		balances: balances,
		ledger:   ledger,
		subs:     subs,
		locks:    newSubscriberLocks(),
		cfg:      cfg,
		logger:   utils.NewLogger("gate"),
		now:      time.Now,
	}
}

// SetClock overrides the gate's clock. Tests only.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// Authorize runs the atomic check-and-debit for one charge. It returns a
// Decision for both grants and denials; an error means the request was
// invalid or persistence failed beyond the retry bound, and in either case
// the balance was left unchanged.
func (g *Gate) Authorize(ctx context.Context, subscriberID, topicID string, kind models.OperationKind, unitCost decimal.Decimal) (*Decision, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown operation kind %q", ErrInvalidOperation, kind)
	}
	if unitCost.Sign() <= 0 {
		return nil, fmt.Errorf("%w: cost must be positive, got %s", ErrInvalidOperation, unitCost)
	}

	sub, err := g.subs.Get(ctx, subscriberID, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if !sub.IsActive() {
		return nil, fmt.Errorf("%w: subscription is %s", ErrSubscriptionInactive, sub.State)
	}

	// A recurring fee must leave a little headroom behind; the headroom is
	// only checked, never debited.
	required := unitCost
	if kind == models.OpRecurringFee {
		required = unitCost.Add(g.cfg.FeeHeadroom)
	}

	unlock := g.locks.Lock(subscriberID)
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		decision, err := g.chargeOnce(ctx, subscriberID, topicID, kind, unitCost, required)
		if err == nil {
			return decision, nil
		}
		// Retrying is only safe while every failed attempt left the balance
		// untouched. A failed rollback means a debit is stranded; running the
		// charge again would stack a second one on top of it.
		if errors.Is(err, ErrChargeUnreconciled) {
			return nil, err
		}
		lastErr = err
		g.logger.Warning("charge attempt failed",
			"subscriber", subscriberID,
			"topic", topicID,
			"attempt", attempt,
			"error", err)
	}
	return nil, fmt.Errorf("charge did not commit after %d attempts: %w", g.cfg.MaxAttempts, lastErr)
}

func (g *Gate) chargeOnce(ctx context.Context, subscriberID, topicID string, kind models.OperationKind, unitCost, required decimal.Decimal) (*Decision, error) {
	balance, err := g.balances.Balance(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance.LessThan(required) {
		return &Decision{
			Authorized: false,
			Reason:     ReasonInsufficientFunds,
			Required:   required,
			Shortfall:  required.Sub(balance),
			Balance:    balance,
		}, nil
	}

	newBalance, err := g.balances.Debit(ctx, subscriberID, unitCost)
	if errors.Is(err, storage.ErrInsufficientBalance) {
		// A withdrawal raced the check. Re-read and deny.
		balance, rerr := g.balances.Balance(ctx, subscriberID)
		if rerr != nil {
			return nil, fmt.Errorf("failed to re-read balance after lost debit: %w", rerr)
		}
		return &Decision{
			Authorized: false,
			Reason:     ReasonInsufficientFunds,
			Required:   required,
			Shortfall:  required.Sub(balance),
			Balance:    balance,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	record := &models.UsageRecord{
		ID:           uuid.New(),
		SubscriberID: subscriberID,
		TopicID:      topicID,
		Kind:         kind,
		UnitCost:     unitCost,
		CreatedAt:    g.now().UTC(),
	}
	if err := g.ledger.Append(ctx, record); err != nil {
		// The debit and the append commit together or not at all. Undo the
		// debit with a compensating credit before surfacing the failure.
		if _, cerr := g.balances.Credit(ctx, subscriberID, unitCost); cerr != nil {
			g.logger.Critical("debit rollback failed, balance and ledger have diverged",
				"subscriber", subscriberID,
				"amount", unitCost,
				"append_error", err,
				"credit_error", cerr)
			return nil, fmt.Errorf("%w: append failed (%v), rollback failed (%v)", ErrChargeUnreconciled, err, cerr)
		}
		return nil, fmt.Errorf("failed to append usage record: %w", err)
	}

	return &Decision{
		Authorized: true,
		RecordID:   record.ID,
		Required:   required,
		Shortfall:  decimal.Zero,
		Balance:    newBalance,
	}, nil
}
