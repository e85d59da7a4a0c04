package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"watchgate/internal/billing"
	"watchgate/internal/models"
	"watchgate/internal/notify"
	"watchgate/internal/storage"
	"watchgate/internal/utils"
)

// TopicStore is the slice of topic persistence the controller needs.
type TopicStore interface {
	Ensure(ctx context.Context, topic *models.Topic) error
}

// Config carries the lifecycle thresholds.
type Config struct {
	// MinStartBalance is the smallest balance that allows starting or
	// resuming a watch.
	MinStartBalance decimal.Decimal
	// EstimatedDailyBurn is the rough per-day spend used for the runway
	// estimate included in pause notices.
	EstimatedDailyBurn decimal.Decimal
}

// Controller owns every subscription state transition. The gate and the
// scheduler hand their denials here so that pausing and notifying happen in
// exactly one place, exactly once.
type Controller struct {
	balances billing.BalanceStore
	subs     billing.SubscriptionStore
	topics   TopicStore
	notifier notify.Notifier
	cfg      Config
	logger   *utils.Logger
	mu       sync.Mutex
	now      func() time.Time
}

func NewController(balances billing.BalanceStore, subs billing.SubscriptionStore, topics TopicStore, notifier notify.Notifier, cfg Config) *Controller {
	return &Controller{
		balances: balances,
		subs:     subs,
		topics:   topics,
		notifier: notifier,
		cfg:      cfg,
		logger:   utils.NewLogger("lifecycle"),
		now:      time.Now,
	}
}

// SetClock overrides the controller's clock. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Subscribe starts watching a topic. The subscriber must hold at least the
// minimum start balance; a removed watch on the same topic is recreated.
func (c *Controller) Subscribe(ctx context.Context, subscriberID, topicID, question string) (*models.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkStartBalance(ctx, subscriberID); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	if err := c.topics.Ensure(ctx, &models.Topic{ID: topicID, Question: question, CreatedAt: now}); err != nil {
		return nil, fmt.Errorf("failed to ensure topic: %w", err)
	}

	sub, err := c.subs.Get(ctx, subscriberID, topicID)
	if errors.Is(err, storage.ErrSubscriptionNotFound) {
		sub = &models.Subscription{
			SubscriberID:  subscriberID,
			TopicID:       topicID,
			State:         models.StateActive,
			LastChargedAt: now,
			CreatedAt:     now,
		}
		if err := c.subs.Create(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
		c.logger.Info("watch started", "subscriber", subscriberID, "topic", topicID)
		return sub, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if sub.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWatching, topicID)
	}

	// Paused or removed: bring it back. Reactivation resets the charge clock
	// so the subscriber is not billed for the gap.
	if err := c.subs.SetState(ctx, subscriberID, topicID, models.StateActive, now); err != nil {
		return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
	}
	c.logger.Info("watch reactivated", "subscriber", subscriberID, "topic", topicID)
	return c.subs.Get(ctx, subscriberID, topicID)
}

// Resume reactivates a paused watch after the subscriber has topped up. The
// minimum start balance applies again.
func (c *Controller) Resume(ctx context.Context, subscriberID, topicID string) (*models.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.subs.Get(ctx, subscriberID, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	switch sub.State {
	case models.StateActive:
		return sub, nil
	case models.StateRemoved:
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionRemoved, topicID)
	}

	if err := c.checkStartBalance(ctx, subscriberID); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	if err := c.subs.SetState(ctx, subscriberID, topicID, models.StateActive, now); err != nil {
		return nil, fmt.Errorf("failed to resume subscription: %w", err)
	}
	c.logger.Info("watch resumed", "subscriber", subscriberID, "topic", topicID)
	return c.subs.Get(ctx, subscriberID, topicID)
}

// Remove stops watching a topic. The subscription row stays behind as a
// tombstone so usage history keeps its foreign keys.
func (c *Controller) Remove(ctx context.Context, subscriberID, topicID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.subs.Get(ctx, subscriberID, topicID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.State == models.StateRemoved {
		return nil
	}
	if err := c.subs.SetState(ctx, subscriberID, topicID, models.StateRemoved, c.now().UTC()); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	c.logger.Info("watch removed", "subscriber", subscriberID, "topic", topicID)
	return nil
}

// HandleDenied pauses a watch after the gate denied a charge and tells the
// subscriber why. Calling it again for an already paused watch is a no-op,
// so concurrent denials produce exactly one pause and one notice.
func (c *Controller) HandleDenied(ctx context.Context, subscriberID, topicID string, decision *billing.Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.subs.Get(ctx, subscriberID, topicID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.State != models.StateActive {
		return nil
	}

	if err := c.subs.SetState(ctx, subscriberID, topicID, models.StatePaused, c.now().UTC()); err != nil {
		return fmt.Errorf("failed to pause subscription: %w", err)
	}

	c.logger.Warning("watch paused on insufficient funds",
		"subscriber", subscriberID,
		"topic", topicID,
		"shortfall", decision.Shortfall,
		"balance", decision.Balance)

	c.notifier.Notify(ctx, &models.Notification{
		SubscriberID:      subscriberID,
		TopicID:           topicID,
		Kind:              models.KindPausedInsufficientFunds,
		Reason:            decision.Reason,
		Amount:            decision.Required,
		Shortfall:         decision.Shortfall,
		Balance:           decision.Balance,
		EstimatedDaysLeft: c.RunwayDays(decision.Balance),
	})
	return nil
}

// RunwayDays estimates how many days a balance lasts at the configured burn
// rate.
func (c *Controller) RunwayDays(balance decimal.Decimal) int {
	if c.cfg.EstimatedDailyBurn.Sign() <= 0 {
		return 0
	}
	days := balance.Div(c.cfg.EstimatedDailyBurn).IntPart()
	if days < 0 {
		return 0
	}
	return int(days)
}

func (c *Controller) checkStartBalance(ctx context.Context, subscriberID string) error {
	balance, err := c.balances.Balance(ctx, subscriberID)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance.LessThan(c.cfg.MinStartBalance) {
		return fmt.Errorf("%w: have %s, need %s",
			ErrInsufficientStartBalance, balance, c.cfg.MinStartBalance)
	}
	return nil
}
