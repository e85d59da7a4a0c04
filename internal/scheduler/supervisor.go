package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"watchgate/internal/billing"
	"watchgate/internal/lifecycle"
	"watchgate/internal/models"
	"watchgate/internal/notify"
	"watchgate/internal/utils"
)

// Config carries the recurring-fee schedule and warning thresholds.
type Config struct {
	// Fee is the flat charge applied once per period per watched topic.
	Fee decimal.Decimal
	// FeePeriod is how often the fee recurs.
	FeePeriod time.Duration
	// CheckInterval is how often each topic task looks for due charges. It
	// should be much shorter than FeePeriod.
	CheckInterval time.Duration
	// WarnStandardBelow and WarnCriticalBelow are the balance thresholds
	// that trigger a low-balance warning after a successful charge.
	WarnStandardBelow decimal.Decimal
	WarnCriticalBelow decimal.Decimal
}

// Supervisor runs one task per topic with active watchers. Each task charges
// the recurring fee when a watcher's period has elapsed and retires itself
// when the topic has no active watchers left.
type Supervisor struct {
	gate       *billing.Gate
	subs       billing.SubscriptionStore
	controller *lifecycle.Controller
	notifier   notify.Notifier
	cfg        Config
	logger     *utils.Logger
	now        func() time.Time

	mu    sync.Mutex
	tasks map[string]*topicTask
}

type topicTask struct {
	topicID     string
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewSupervisor(gate *billing.Gate, subs billing.SubscriptionStore, controller *lifecycle.Controller, notifier notify.Notifier, cfg Config) *Supervisor {
	return &Supervisor{
		gate:       gate,
		subs:       subs,
		controller: controller,
		notifier:   notifier,
		cfg:        cfg,
		logger:     utils.NewLogger("scheduler"),
		now:        time.Now,
		tasks:      make(map[string]*topicTask),
	}
}

// SetClock overrides the supervisor's clock. Tests only.
func (s *Supervisor) SetClock(now func() time.Time) {
	s.now = now
}

// Start spawns a task for every topic that currently has active watchers.
// Topics watched later are picked up through StartTopic.
func (s *Supervisor) Start(ctx context.Context) error {
	topicIDs, err := s.subs.ActiveTopicIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active topics: %w", err)
	}
	for _, id := range topicIDs {
		s.StartTopic(ctx, id)
	}
	s.logger.Info("scheduler started", "topics", len(topicIDs), "fee", s.cfg.Fee, "period", s.cfg.FeePeriod)
	return nil
}

// StartTopic ensures a fee task is running for the topic. Safe to call for a
// topic that already has one.
func (s *Supervisor) StartTopic(ctx context.Context, topicID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[topicID]; ok {
		return
	}
	task := &topicTask{
		topicID:     topicID,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
	s.tasks[topicID] = task
	go s.run(ctx, task)
	s.logger.Debug("fee task started", "topic", topicID)
}

// Topics returns the topics that currently have a running fee task.
func (s *Supervisor) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stop shuts down every task and waits for them to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	tasks := make([]*topicTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*topicTask)
	s.mu.Unlock()

	for _, t := range tasks {
		close(t.stopChan)
	}
	for _, t := range tasks {
		<-t.stoppedChan
	}
	s.logger.Info("scheduler stopped")
}

func (s *Supervisor) run(ctx context.Context, task *topicTask) {
	defer close(task.stoppedChan)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-task.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if retired := s.tick(ctx, task.topicID); retired {
				return
			}
		}
	}
}

// tick charges every watcher whose period has elapsed. It reports true when
// the topic has no active watchers left and the task should retire.
func (s *Supervisor) tick(ctx context.Context, topicID string) bool {
	watchers, err := s.subs.ListActiveByTopic(ctx, topicID)
	if err != nil {
		s.logger.Error("failed to list watchers", "topic", topicID, "error", err)
		return false
	}
	if len(watchers) == 0 {
		s.retire(topicID)
		return true
	}

	now := s.now().UTC()
	for _, sub := range watchers {
		if now.Sub(sub.LastChargedAt) < s.cfg.FeePeriod {
			continue
		}
		s.charge(ctx, sub, now)
	}

	// Denials during the loop may have paused the last watcher; re-check so
	// the task retires with this tick instead of surviving for another one.
	remaining, err := s.subs.ListActiveByTopic(ctx, topicID)
	if err != nil {
		s.logger.Error("failed to re-list watchers", "topic", topicID, "error", err)
		return false
	}
	if len(remaining) == 0 {
		s.retire(topicID)
		return true
	}
	return false
}

func (s *Supervisor) charge(ctx context.Context, sub *models.Subscription, now time.Time) {
	decision, err := s.gate.Authorize(ctx, sub.SubscriberID, sub.TopicID, models.OpRecurringFee, s.cfg.Fee)
	if errors.Is(err, billing.ErrSubscriptionInactive) {
		// Paused between the listing and the charge. Nothing to do.
		return
	}
	if err != nil {
		s.logger.Error("recurring charge failed",
			"subscriber", sub.SubscriberID,
			"topic", sub.TopicID,
			"error", err)
		return
	}

	if !decision.Authorized {
		if err := s.controller.HandleDenied(ctx, sub.SubscriberID, sub.TopicID, decision); err != nil {
			s.logger.Error("failed to pause watch after denial",
				"subscriber", sub.SubscriberID,
				"topic", sub.TopicID,
				"error", err)
		}
		return
	}

	// Stamping the charge time at now, not at the period boundary, means a
	// watcher that was unreachable for several periods pays once, not once
	// per missed period.
	if err := s.subs.SetLastCharged(ctx, sub.SubscriberID, sub.TopicID, now); err != nil {
		s.logger.Error("failed to record charge time",
			"subscriber", sub.SubscriberID,
			"topic", sub.TopicID,
			"error", err)
	}

	s.logger.Debug("recurring fee charged",
		"subscriber", sub.SubscriberID,
		"topic", sub.TopicID,
		"fee", s.cfg.Fee,
		"balance", decision.Balance)

	s.notifier.Notify(ctx, &models.Notification{
		SubscriberID: sub.SubscriberID,
		TopicID:      sub.TopicID,
		Kind:         models.KindRecurringChargeSucceeded,
		Amount:       s.cfg.Fee,
		Balance:      decision.Balance,
	})
	s.warnIfLow(ctx, sub, decision.Balance)
}

func (s *Supervisor) warnIfLow(ctx context.Context, sub *models.Subscription, balance decimal.Decimal) {
	severity := models.WarningSeverity("")
	switch {
	case balance.LessThan(s.cfg.WarnCriticalBelow):
		severity = models.SeverityCritical
	case balance.LessThan(s.cfg.WarnStandardBelow):
		severity = models.SeverityStandard
	default:
		return
	}
	s.notifier.Notify(ctx, &models.Notification{
		SubscriberID:      sub.SubscriberID,
		TopicID:           sub.TopicID,
		Kind:              models.KindLowBalanceWarning,
		Severity:          severity,
		Balance:           balance,
		EstimatedDaysLeft: s.controller.RunwayDays(balance),
	})
}

func (s *Supervisor) retire(topicID string) {
	s.mu.Lock()
	delete(s.tasks, topicID)
	s.mu.Unlock()
	s.logger.Info("fee task retired, no active watchers", "topic", topicID)
}
