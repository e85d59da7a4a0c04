package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationKind identifies a billable unit of work.
type OperationKind string

const (
	// OpAnalyze is a single inbound-event analysis call.
	OpAnalyze OperationKind = "analyze"
	// OpDigest is a periodic digest synthesis call.
	OpDigest OperationKind = "digest"
	// OpRefine is a ruleset refinement call.
	OpRefine OperationKind = "refine"
	// OpRecurringFee is the flat per-period fee for keeping a topic monitored.
	OpRecurringFee OperationKind = "recurring_fee"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpAnalyze, OpDigest, OpRefine, OpRecurringFee:
		return true
	}
	return false
}

// UsageRecord is one immutable entry in the usage ledger. Records are
// append-only; a record exists iff a matching debit succeeded.
type UsageRecord struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	SubscriberID string          `db:"subscriber_id" json:"subscriber_id"`
	TopicID      string          `db:"topic_id" json:"topic_id"`
	Kind         OperationKind   `db:"kind" json:"kind"`
	UnitCost     decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// UsageSummary is the cached rollup for one (subscriber, topic) pair. The
// total must always equal the sum of the pair's usage records.
type UsageSummary struct {
	SubscriberID string          `db:"subscriber_id" json:"subscriber_id"`
	TopicID      string          `db:"topic_id" json:"topic_id"`
	TotalCost    decimal.Decimal `db:"total_cost" json:"total_cost"`
	RecordCount  int64           `db:"record_count" json:"record_count"`
	FirstSeen    time.Time       `db:"first_seen" json:"first_seen"`
	LastSeen     time.Time       `db:"last_seen" json:"last_seen"`
}

// SubscriberUsage aggregates a subscriber's spend across all topics.
type SubscriberUsage struct {
	SubscriberID string          `json:"subscriber_id"`
	TopicCount   int64           `json:"topic_count"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	RecordCount  int64           `json:"record_count"`
}
