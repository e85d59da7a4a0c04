package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"watchgate/internal/models"
)

// SubscriptionRepository handles subscription database operations
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Get retrieves the subscription for a (subscriber, topic) pair
func (r *SubscriptionRepository) Get(ctx context.Context, subscriberID, topicID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := `
		SELECT subscriber_id, topic_id, state, last_charged_at, created_at, paused_at, removed_at
		FROM subscriptions
		WHERE subscriber_id = $1 AND topic_id = $2
	`

	err := r.db.conn.GetContext(ctx, &sub, query, subscriberID, topicID)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// Create inserts a new subscription. Returns ErrSubscriptionExists when the
// pair already has one (including tombstoned pairs).
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (subscriber_id, topic_id, state, last_charged_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		sub.SubscriberID, sub.TopicID, sub.State, sub.LastChargedAt, sub.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// SetState updates the lifecycle state of a subscription and stamps the
// matching transition timestamp.
func (r *SubscriptionRepository) SetState(ctx context.Context, subscriberID, topicID string, state models.SubscriptionState, at time.Time) error {
	var query string
	switch state {
	case models.StatePaused:
		query = `UPDATE subscriptions SET state = $3, paused_at = $4 WHERE subscriber_id = $1 AND topic_id = $2`
	case models.StateRemoved:
		query = `UPDATE subscriptions SET state = $3, removed_at = $4 WHERE subscriber_id = $1 AND topic_id = $2`
	case models.StateActive:
		query = `UPDATE subscriptions SET state = $3, paused_at = NULL, removed_at = NULL, last_charged_at = $4 WHERE subscriber_id = $1 AND topic_id = $2`
	default:
		return fmt.Errorf("invalid subscription state %q", state)
	}

	result, err := r.db.conn.ExecContext(ctx, query, subscriberID, topicID, state, at)
	if err != nil {
		return fmt.Errorf("failed to set subscription state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check state update: %w", err)
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

// SetLastCharged updates the recurring-charge marker for the pair
func (r *SubscriptionRepository) SetLastCharged(ctx context.Context, subscriberID, topicID string, at time.Time) error {
	query := `UPDATE subscriptions SET last_charged_at = $3 WHERE subscriber_id = $1 AND topic_id = $2`

	result, err := r.db.conn.ExecContext(ctx, query, subscriberID, topicID, at)
	if err != nil {
		return fmt.Errorf("failed to set last charged: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check last charged update: %w", err)
	}
	if affected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

// ListActiveByTopic returns a snapshot of the topic's ACTIVE subscriptions
func (r *SubscriptionRepository) ListActiveByTopic(ctx context.Context, topicID string) ([]*models.Subscription, error) {
	query := `
		SELECT subscriber_id, topic_id, state, last_charged_at, created_at, paused_at, removed_at
		FROM subscriptions
		WHERE topic_id = $1 AND state = $2
		ORDER BY subscriber_id
	`

	var subs []*models.Subscription
	if err := r.db.conn.SelectContext(ctx, &subs, query, topicID, models.StateActive); err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	return subs, nil
}

// ListBySubscriber returns all subscriptions a subscriber has, any state
func (r *SubscriptionRepository) ListBySubscriber(ctx context.Context, subscriberID string) ([]*models.Subscription, error) {
	query := `
		SELECT subscriber_id, topic_id, state, last_charged_at, created_at, paused_at, removed_at
		FROM subscriptions
		WHERE subscriber_id = $1
		ORDER BY topic_id
	`

	var subs []*models.Subscription
	if err := r.db.conn.SelectContext(ctx, &subs, query, subscriberID); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}

// ActiveTopicIDs returns the ids of topics that have at least one ACTIVE
// subscriber. Used to restart scheduler tasks after a crash.
func (r *SubscriptionRepository) ActiveTopicIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT topic_id FROM subscriptions WHERE state = $1 ORDER BY topic_id`

	var ids []string
	if err := r.db.conn.SelectContext(ctx, &ids, query, models.StateActive); err != nil {
		return nil, fmt.Errorf("failed to list active topics: %w", err)
	}

	return ids, nil
}
