package storage

import (
	"context"
	"database/sql"
	"fmt"

	"watchgate/internal/models"
)

// TopicRepository handles topic database operations
type TopicRepository struct {
	db *DB
}

// NewTopicRepository creates a new topic repository
func NewTopicRepository(db *DB) *TopicRepository {
	return &TopicRepository{db: db}
}

// Ensure inserts the topic if it does not exist yet
func (r *TopicRepository) Ensure(ctx context.Context, topic *models.Topic) error {
	query := `
		INSERT INTO topics (id, question, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.conn.ExecContext(ctx, query, topic.ID, topic.Question, topic.CreatedAt); err != nil {
		return fmt.Errorf("failed to ensure topic: %w", err)
	}
	return nil
}

// Get retrieves a topic by id
func (r *TopicRepository) Get(ctx context.Context, id string) (*models.Topic, error) {
	var topic models.Topic
	query := `SELECT id, question, created_at FROM topics WHERE id = $1`

	err := r.db.conn.GetContext(ctx, &topic, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}

	return &topic, nil
}

// List returns all topics
func (r *TopicRepository) List(ctx context.Context) ([]*models.Topic, error) {
	query := `SELECT id, question, created_at FROM topics ORDER BY id`

	var topics []*models.Topic
	if err := r.db.conn.SelectContext(ctx, &topics, query); err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	return topics, nil
}
