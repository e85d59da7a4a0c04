package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"watchgate/internal/models"
)

// In-memory implementations of the repository method sets, for standalone
// deployments and tests. They mirror the Postgres repositories' semantics,
// including the conditional debit and the ledger total verification.

type pairKey struct {
	subscriberID string
	topicID      string
}

// MemoryBalanceStore keeps balances in a map guarded by a mutex
type MemoryBalanceStore struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewMemoryBalanceStore creates an empty in-memory balance store
func NewMemoryBalanceStore() *MemoryBalanceStore {
	return &MemoryBalanceStore{balances: make(map[string]decimal.Decimal)}
}

// Balance returns the subscriber's balance; unknown subscribers have zero
func (s *MemoryBalanceStore) Balance(ctx context.Context, subscriberID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount, ok := s.balances[subscriberID]; ok {
		return amount, nil
	}
	return decimal.Zero, nil
}

// Debit atomically subtracts amount; never drives a balance negative
func (s *MemoryBalanceStore) Debit(ctx context.Context, subscriberID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.balances[subscriberID]
	if current.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}

	newBalance := current.Sub(amount)
	s.balances[subscriberID] = newBalance
	return newBalance, nil
}

// Credit adds amount, creating the entry if needed
func (s *MemoryBalanceStore) Credit(ctx context.Context, subscriberID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newBalance := s.balances[subscriberID].Add(amount)
	s.balances[subscriberID] = newBalance
	return newBalance, nil
}

// MemoryLedgerStore keeps usage records and cached summaries in memory
type MemoryLedgerStore struct {
	mu        sync.Mutex
	records   map[pairKey][]*models.UsageRecord
	summaries map[pairKey]*models.UsageSummary

	// failAppends makes the next n appends fail; test hook for the gate's
	// rollback path
	failAppends int
}

// NewMemoryLedgerStore creates an empty in-memory ledger
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		records:   make(map[pairKey][]*models.UsageRecord),
		summaries: make(map[pairKey]*models.UsageSummary),
	}
}

// FailNextAppends makes the next n Append calls return an error
func (s *MemoryLedgerStore) FailNextAppends(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppends = n
}

// Append adds a usage record and rolls it into the pair's cached summary,
// verifying the cached total against the record sum.
func (s *MemoryLedgerStore) Append(ctx context.Context, record *models.UsageRecord) error {
	if record.UnitCost.Sign() <= 0 {
		return fmt.Errorf("unit cost must be positive, got %s", record.UnitCost)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppends > 0 {
		s.failAppends--
		return fmt.Errorf("simulated append failure")
	}

	key := pairKey{record.SubscriberID, record.TopicID}
	s.records[key] = append(s.records[key], record)

	summary, ok := s.summaries[key]
	if !ok {
		summary = &models.UsageSummary{
			SubscriberID: record.SubscriberID,
			TopicID:      record.TopicID,
			TotalCost:    decimal.Zero,
			FirstSeen:    record.CreatedAt,
		}
		s.summaries[key] = summary
	}
	summary.TotalCost = summary.TotalCost.Add(record.UnitCost)
	summary.RecordCount++
	summary.LastSeen = record.CreatedAt

	// Cached total must equal the sum of the sequence.
	sum := decimal.Zero
	for _, rec := range s.records[key] {
		sum = sum.Add(rec.UnitCost)
	}
	if !summary.TotalCost.Equal(sum) {
		// Undo the append before reporting.
		s.records[key] = s.records[key][:len(s.records[key])-1]
		summary.TotalCost = summary.TotalCost.Sub(record.UnitCost)
		summary.RecordCount--
		return ErrLedgerInconsistent
	}

	return nil
}

// Summary returns a copy of the cached rollup for the pair
func (s *MemoryLedgerStore) Summary(ctx context.Context, subscriberID, topicID string) (*models.UsageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.summaries[pairKey{subscriberID, topicID}]
	if !ok {
		return &models.UsageSummary{
			SubscriberID: subscriberID,
			TopicID:      topicID,
			TotalCost:    decimal.Zero,
		}, nil
	}

	copied := *summary
	return &copied, nil
}

// SubscriberTotals aggregates a subscriber's spend across all topics
func (s *MemoryLedgerStore) SubscriberTotals(ctx context.Context, subscriberID string) (*models.SubscriberUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := &models.SubscriberUsage{
		SubscriberID: subscriberID,
		TotalCost:    decimal.Zero,
	}
	for key, summary := range s.summaries {
		if key.subscriberID != subscriberID {
			continue
		}
		totals.TopicCount++
		totals.TotalCost = totals.TotalCost.Add(summary.TotalCost)
		totals.RecordCount += summary.RecordCount
	}
	return totals, nil
}

// CountsByKind returns per-kind record counts for the pair
func (s *MemoryLedgerStore) CountsByKind(ctx context.Context, subscriberID, topicID string) (map[models.OperationKind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.OperationKind]int64)
	for _, rec := range s.records[pairKey{subscriberID, topicID}] {
		counts[rec.Kind]++
	}
	return counts, nil
}

// MemorySubscriptionStore keeps subscriptions in memory
type MemorySubscriptionStore struct {
	mu   sync.Mutex
	subs map[pairKey]*models.Subscription
}

// NewMemorySubscriptionStore creates an empty in-memory subscription store
func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[pairKey]*models.Subscription)}
}

// Get retrieves the subscription for a (subscriber, topic) pair
func (s *MemorySubscriptionStore) Get(ctx context.Context, subscriberID, topicID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[pairKey{subscriberID, topicID}]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

// Create inserts a new subscription
func (s *MemorySubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{sub.SubscriberID, sub.TopicID}
	if _, exists := s.subs[key]; exists {
		return ErrSubscriptionExists
	}
	copied := *sub
	s.subs[key] = &copied
	return nil
}

// SetState updates the lifecycle state and stamps the transition time
func (s *MemorySubscriptionStore) SetState(ctx context.Context, subscriberID, topicID string, state models.SubscriptionState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[pairKey{subscriberID, topicID}]
	if !ok {
		return ErrSubscriptionNotFound
	}

	sub.State = state
	switch state {
	case models.StatePaused:
		t := at
		sub.PausedAt = &t
	case models.StateRemoved:
		t := at
		sub.RemovedAt = &t
	case models.StateActive:
		sub.PausedAt = nil
		sub.RemovedAt = nil
		sub.LastChargedAt = at
	}
	return nil
}

// SetLastCharged updates the recurring-charge marker for the pair
func (s *MemorySubscriptionStore) SetLastCharged(ctx context.Context, subscriberID, topicID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[pairKey{subscriberID, topicID}]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.LastChargedAt = at
	return nil
}

// ListActiveByTopic returns a snapshot of the topic's ACTIVE subscriptions
func (s *MemorySubscriptionStore) ListActiveByTopic(ctx context.Context, topicID string) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*models.Subscription
	for key, sub := range s.subs {
		if key.topicID == topicID && sub.State == models.StateActive {
			copied := *sub
			active = append(active, &copied)
		}
	}
	return active, nil
}

// ListBySubscriber returns all subscriptions a subscriber has, any state
func (s *MemorySubscriptionStore) ListBySubscriber(ctx context.Context, subscriberID string) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []*models.Subscription
	for key, sub := range s.subs {
		if key.subscriberID == subscriberID {
			copied := *sub
			subs = append(subs, &copied)
		}
	}
	return subs, nil
}

// ActiveTopicIDs returns the ids of topics with at least one ACTIVE subscriber
func (s *MemorySubscriptionStore) ActiveTopicIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for key, sub := range s.subs {
		if sub.State == models.StateActive && !seen[key.topicID] {
			seen[key.topicID] = true
			ids = append(ids, key.topicID)
		}
	}
	return ids, nil
}

// MemoryTopicStore keeps topics in memory
type MemoryTopicStore struct {
	mu     sync.Mutex
	topics map[string]*models.Topic
}

// NewMemoryTopicStore creates an empty in-memory topic store
func NewMemoryTopicStore() *MemoryTopicStore {
	return &MemoryTopicStore{topics: make(map[string]*models.Topic)}
}

// Ensure inserts the topic if it does not exist yet
func (s *MemoryTopicStore) Ensure(ctx context.Context, topic *models.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.topics[topic.ID]; exists {
		return nil
	}
	copied := *topic
	s.topics[topic.ID] = &copied
	return nil
}

// Get retrieves a topic by id
func (s *MemoryTopicStore) Get(ctx context.Context, id string) (*models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topic, ok := s.topics[id]
	if !ok {
		return nil, ErrTopicNotFound
	}
	copied := *topic
	return &copied, nil
}

// List returns all topics
func (s *MemoryTopicStore) List(ctx context.Context) ([]*models.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]*models.Topic, 0, len(s.topics))
	for _, topic := range s.topics {
		copied := *topic
		topics = append(topics, &copied)
	}
	return topics, nil
}
