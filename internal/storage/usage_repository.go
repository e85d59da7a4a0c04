package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"watchgate/internal/models"
)

// UsageRepository handles the append-only usage ledger and its cached
// per-pair summaries. The append and the summary update happen in one
// transaction, and the cached total is verified against the record sum on
// every append.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Append inserts a usage record and rolls it into the pair's summary.
// Returns ErrLedgerInconsistent (and rolls back) if the updated cached total
// does not equal the sum of the pair's records.
func (r *UsageRepository) Append(ctx context.Context, record *models.UsageRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertRecord := `
		INSERT INTO usage_records (id, subscriber_id, topic_id, kind, unit_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insertRecord,
		record.ID, record.SubscriberID, record.TopicID, record.Kind, record.UnitCost, record.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	var cachedTotal decimal.Decimal
	upsertSummary := `
		INSERT INTO usage_summaries (subscriber_id, topic_id, total_cost, record_count, first_seen, last_seen)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (subscriber_id, topic_id)
		DO UPDATE SET
			total_cost   = usage_summaries.total_cost + EXCLUDED.total_cost,
			record_count = usage_summaries.record_count + 1,
			last_seen    = EXCLUDED.last_seen
		RETURNING total_cost
	`
	if err := tx.GetContext(ctx, &cachedTotal, upsertSummary,
		record.SubscriberID, record.TopicID, record.UnitCost, record.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to update usage summary: %w", err)
	}

	// Cached total must equal the sum of the sequence.
	var recordSum decimal.Decimal
	sumQuery := `
		SELECT COALESCE(SUM(unit_cost), 0)
		FROM usage_records
		WHERE subscriber_id = $1 AND topic_id = $2
	`
	if err := tx.GetContext(ctx, &recordSum, sumQuery, record.SubscriberID, record.TopicID); err != nil {
		return fmt.Errorf("failed to verify ledger total: %w", err)
	}
	if !cachedTotal.Equal(recordSum) {
		return ErrLedgerInconsistent
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger append: %w", err)
	}
	return nil
}

// Summary returns the cached rollup for one (subscriber, topic) pair.
// A pair with no records yet gets an empty summary.
func (r *UsageRepository) Summary(ctx context.Context, subscriberID, topicID string) (*models.UsageSummary, error) {
	var summary models.UsageSummary
	query := `
		SELECT subscriber_id, topic_id, total_cost, record_count, first_seen, last_seen
		FROM usage_summaries
		WHERE subscriber_id = $1 AND topic_id = $2
	`

	err := r.db.conn.GetContext(ctx, &summary, query, subscriberID, topicID)
	if err == sql.ErrNoRows {
		return &models.UsageSummary{
			SubscriberID: subscriberID,
			TopicID:      topicID,
			TotalCost:    decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage summary: %w", err)
	}

	return &summary, nil
}

// SubscriberTotals aggregates a subscriber's spend across all topics.
func (r *UsageRepository) SubscriberTotals(ctx context.Context, subscriberID string) (*models.SubscriberUsage, error) {
	var totals struct {
		TopicCount  int64           `db:"topic_count"`
		TotalCost   decimal.Decimal `db:"total_cost"`
		RecordCount int64           `db:"record_count"`
	}
	query := `
		SELECT COUNT(*) AS topic_count,
		       COALESCE(SUM(total_cost), 0) AS total_cost,
		       COALESCE(SUM(record_count), 0) AS record_count
		FROM usage_summaries
		WHERE subscriber_id = $1
	`

	if err := r.db.conn.GetContext(ctx, &totals, query, subscriberID); err != nil {
		return nil, fmt.Errorf("failed to get subscriber totals: %w", err)
	}

	return &models.SubscriberUsage{
		SubscriberID: subscriberID,
		TopicCount:   totals.TopicCount,
		TotalCost:    totals.TotalCost,
		RecordCount:  totals.RecordCount,
	}, nil
}

// CountsByKind returns how many records of each operation kind a pair has.
func (r *UsageRepository) CountsByKind(ctx context.Context, subscriberID, topicID string) (map[models.OperationKind]int64, error) {
	rows := []struct {
		Kind  models.OperationKind `db:"kind"`
		Count int64                `db:"count"`
	}{}
	query := `
		SELECT kind, COUNT(*) AS count
		FROM usage_records
		WHERE subscriber_id = $1 AND topic_id = $2
		GROUP BY kind
	`

	if err := r.db.conn.SelectContext(ctx, &rows, query, subscriberID, topicID); err != nil {
		return nil, fmt.Errorf("failed to count usage by kind: %w", err)
	}

	counts := make(map[models.OperationKind]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}
