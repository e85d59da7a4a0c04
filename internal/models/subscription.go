package models

import (
	"time"
)

// SubscriptionState is the lifecycle state of a (subscriber, topic) pair.
type SubscriptionState string

const (
	// StateActive means the subscriber is billed and receives monitoring output.
	StateActive SubscriptionState = "active"
	// StatePaused means billing was denied; the subscriber is excluded from
	// metered calls and recurring fees until an explicit resume.
	StatePaused SubscriptionState = "paused"
	// StateRemoved is a tombstone. The subscription row and its usage ledger
	// are kept for audit, but the pair can never be billed again.
	StateRemoved SubscriptionState = "removed"
)

// Valid reports whether s is a known state.
func (s SubscriptionState) Valid() bool {
	switch s {
	case StateActive, StatePaused, StateRemoved:
		return true
	}
	return false
}

// Subscription is the relationship between a subscriber and a monitored topic.
// Exactly one row exists per (subscriber, topic) pair.
type Subscription struct {
	SubscriberID  string            `db:"subscriber_id" json:"subscriber_id"`
	TopicID       string            `db:"topic_id" json:"topic_id"`
	State         SubscriptionState `db:"state" json:"state"`
	LastChargedAt time.Time         `db:"last_charged_at" json:"last_charged_at"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	PausedAt      *time.Time        `db:"paused_at" json:"paused_at,omitempty"`
	RemovedAt     *time.Time        `db:"removed_at" json:"removed_at,omitempty"`
}

// IsActive reports whether the subscription is currently billable.
func (s *Subscription) IsActive() bool {
	return s.State == StateActive
}
