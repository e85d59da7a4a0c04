package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"watchgate/internal/billing"
	"watchgate/internal/lifecycle"
	"watchgate/internal/models"
	"watchgate/internal/notify"
	"watchgate/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type schedulerFixture struct {
	supervisor *Supervisor
	balances   *storage.MemoryBalanceStore
	ledger     *storage.MemoryLedgerStore
	subs       *storage.MemorySubscriptionStore
	notifier   *notify.MemoryNotifier
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		balances: storage.NewMemoryBalanceStore(),
		ledger:   storage.NewMemoryLedgerStore(),
		subs:     storage.NewMemorySubscriptionStore(),
		notifier: notify.NewMemoryNotifier(),
	}
	gate := billing.NewGate(f.balances, f.ledger, f.subs, billing.Config{
		FeeHeadroom: dec("0.01"),
	})
	controller := lifecycle.NewController(f.balances, f.subs, storage.NewMemoryTopicStore(), f.notifier, lifecycle.Config{
		MinStartBalance:    dec("5.00"),
		EstimatedDailyBurn: dec("2.50"),
	})
	f.supervisor = NewSupervisor(gate, f.subs, controller, f.notifier, Config{
		Fee:               dec("2.00"),
		FeePeriod:         time.Hour,
		CheckInterval:     5 * time.Millisecond,
		WarnStandardBelow: dec("10.00"),
		WarnCriticalBelow: dec("5.00"),
	})
	return f
}

// watch seeds an active subscription whose last charge lies periodsAgo fee
// periods in the past.
func (f *schedulerFixture) watch(t *testing.T, subscriberID, topicID, balance string, periodsAgo int) {
	t.Helper()
	ctx := context.Background()
	if balance != "" {
		if _, err := f.balances.Credit(ctx, subscriberID, dec(balance)); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	now := time.Now().UTC()
	err := f.subs.Create(ctx, &models.Subscription{
		SubscriberID:  subscriberID,
		TopicID:       topicID,
		State:         models.StateActive,
		LastChargedAt: now.Add(-time.Duration(periodsAgo) * time.Hour),
		CreatedAt:     now.Add(-time.Duration(periodsAgo) * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSupervisorChargesDueWatcher(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.watch(t, "alice", "topic-1", "10.00", 2)

	f.supervisor.StartTopic(ctx, "topic-1")
	defer f.supervisor.Stop()

	waitFor(t, "recurring charge", func() bool {
		s, err := f.ledger.Summary(ctx, "alice", "topic-1")
		return err == nil && s.RecordCount >= 1
	})
	f.supervisor.Stop()

	summary, err := f.ledger.Summary(ctx, "alice", "topic-1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.RecordCount != 1 {
		t.Fatalf("expected exactly 1 charge, got %d", summary.RecordCount)
	}
	balance, err := f.balances.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Equal(dec("8.00")) {
		t.Errorf("expected balance 8.00 after one fee, got %s", balance)
	}

	var charged *models.Notification
	for _, n := range f.notifier.SentTo("alice") {
		if n.Kind == models.KindRecurringChargeSucceeded {
			charged = n
		}
	}
	if charged == nil {
		t.Fatal("expected a charge-succeeded notification")
	}
	if !charged.Amount.Equal(dec("2.00")) {
		t.Errorf("expected charged amount 2.00, got %s", charged.Amount)
	}
}

func TestSupervisorChargesOnceForMissedPeriods(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	// Ten periods overdue still costs a single fee.
	f.watch(t, "alice", "topic-1", "10.00", 10)

	f.supervisor.StartTopic(ctx, "topic-1")

	waitFor(t, "recurring charge", func() bool {
		s, err := f.ledger.Summary(ctx, "alice", "topic-1")
		return err == nil && s.RecordCount >= 1
	})
	// Let a few more ticks pass, then make sure nothing else was charged.
	time.Sleep(50 * time.Millisecond)
	f.supervisor.Stop()

	summary, err := f.ledger.Summary(ctx, "alice", "topic-1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.RecordCount != 1 {
		t.Errorf("expected exactly 1 charge for 10 missed periods, got %d", summary.RecordCount)
	}
	balance, err := f.balances.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Equal(dec("8.00")) {
		t.Errorf("expected balance 8.00, got %s", balance)
	}
}

func TestSupervisorPausesWatcherOnDenial(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.watch(t, "alice", "topic-1", "1.00", 2)

	f.supervisor.StartTopic(ctx, "topic-1")
	defer f.supervisor.Stop()

	waitFor(t, "watch paused", func() bool {
		sub, err := f.subs.Get(ctx, "alice", "topic-1")
		return err == nil && sub.State == models.StatePaused
	})

	// The pause empties the active set, so the task retires on its own.
	waitFor(t, "task retired", func() bool {
		return len(f.supervisor.Topics()) == 0
	})

	balance, err := f.balances.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if !balance.Equal(dec("1.00")) {
		t.Errorf("expected balance untouched at 1.00, got %s", balance)
	}

	paused := 0
	for _, n := range f.notifier.SentTo("alice") {
		if n.Kind == models.KindPausedInsufficientFunds {
			paused++
			if !n.Shortfall.Equal(dec("1.01")) {
				t.Errorf("expected shortfall 1.01 against fee plus headroom, got %s", n.Shortfall)
			}
		}
	}
	if paused != 1 {
		t.Errorf("expected exactly 1 pause notification, got %d", paused)
	}
}

func TestTickRetiresWhenDenialPausesLastWatcher(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.watch(t, "alice", "topic-1", "1.00", 2)

	// The only watcher cannot cover the fee; the denial pauses it during
	// this tick, and the same tick must report retirement.
	if !f.supervisor.tick(ctx, "topic-1") {
		t.Fatal("expected the tick that paused the last watcher to retire the task")
	}

	sub, err := f.subs.Get(ctx, "alice", "topic-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sub.State != models.StatePaused {
		t.Fatalf("expected paused subscription, got %s", sub.State)
	}
}

func TestSupervisorRetiresWhenLastWatcherLeaves(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	// Not due for an hour, so no charges interfere.
	f.watch(t, "alice", "topic-1", "10.00", 0)

	f.supervisor.StartTopic(ctx, "topic-1")
	defer f.supervisor.Stop()

	if got := f.supervisor.Topics(); len(got) != 1 || got[0] != "topic-1" {
		t.Fatalf("expected running task for topic-1, got %v", got)
	}

	if err := f.subs.SetState(ctx, "alice", "topic-1", models.StateRemoved, time.Now().UTC()); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	waitFor(t, "task retired", func() bool {
		return len(f.supervisor.Topics()) == 0
	})
}

func TestSupervisorWarnsOnLowBalance(t *testing.T) {
	tests := []struct {
		name         string
		balance      string
		wantSeverity models.WarningSeverity
	}{
		{"comfortable balance, no warning", "20.00", ""},
		{"below standard threshold", "11.00", models.SeverityStandard},
		{"below critical threshold", "6.50", models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSchedulerFixture(t)
			ctx := context.Background()
			f.watch(t, "alice", "topic-1", tt.balance, 2)

			f.supervisor.StartTopic(ctx, "topic-1")

			waitFor(t, "recurring charge", func() bool {
				s, err := f.ledger.Summary(ctx, "alice", "topic-1")
				return err == nil && s.RecordCount >= 1
			})
			f.supervisor.Stop()

			var warnings []*models.Notification
			for _, n := range f.notifier.SentTo("alice") {
				if n.Kind == models.KindLowBalanceWarning {
					warnings = append(warnings, n)
				}
			}
			if tt.wantSeverity == "" {
				if len(warnings) != 0 {
					t.Fatalf("expected no warning, got %d", len(warnings))
				}
				return
			}
			if len(warnings) != 1 {
				t.Fatalf("expected exactly 1 warning, got %d", len(warnings))
			}
			if warnings[0].Severity != tt.wantSeverity {
				t.Errorf("expected severity %s, got %s", tt.wantSeverity, warnings[0].Severity)
			}
		})
	}
}

func TestSupervisorStartBootstrapsActiveTopics(t *testing.T) {
	f := newSchedulerFixture(t)
	ctx := context.Background()
	f.watch(t, "alice", "topic-1", "10.00", 0)
	f.watch(t, "bob", "topic-2", "10.00", 0)

	if err := f.supervisor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.supervisor.Stop()

	got := f.supervisor.Topics()
	if len(got) != 2 || got[0] != "topic-1" || got[1] != "topic-2" {
		t.Fatalf("expected tasks for topic-1 and topic-2, got %v", got)
	}
}
