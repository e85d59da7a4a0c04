package queue

import (
	"context"
	"time"

	"watchgate/internal/models"
)

// Package queue provides buffered delivery for balance notifications with two
// backends:
//
//  1. Memory queue (channel-based): no persistence, no external dependencies,
//     suitable for standalone deployments and tests.
//  2. Redis queue (list-based): persistent across restarts, supports multiple
//     delivery workers.
//
// Notifications are fire-and-forget for the caller: the notifier enqueues and
// returns, a worker dequeues batches and hands them to a sender, and items
// that keep failing end up in the dead-letter queue for inspection.

// Queue defines the interface for buffering notifications.
type Queue interface {
	// Enqueue adds a notification to the queue
	Enqueue(ctx context.Context, n *models.Notification) error

	// Dequeue retrieves notifications from the queue (up to maxItems).
	// Blocks until at least one item is available or context is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]*models.Notification, error)

	// DequeueWithTimeout retrieves notifications with a timeout.
	// Returns items if available before timeout, empty slice otherwise
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.Notification, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue defines the interface for handling undeliverable notifications.
type DeadLetterQueue interface {
	// Add adds a failed notification with error info
	Add(ctx context.Context, n *models.Notification, err error) error

	// List retrieves items from the dead letter queue
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents a notification that could not be delivered.
type DeadLetterItem struct {
	ID           string               `json:"id"`
	Notification *models.Notification `json:"notification"`
	Error        string               `json:"error"`
	Timestamp    time.Time            `json:"timestamp"`
	Retries      int                  `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of notifications delivered per batch
	BatchSize int

	// BatchTimeout is how long to wait before delivering a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of delivery attempts per batch
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// RedisAddr is the Redis server address (Redis backend only)
	RedisAddr string

	// RedisPassword is the Redis password (Redis backend only)
	RedisPassword string

	// RedisDB is the Redis database number (Redis backend only)
	RedisDB int

	// QueueName namespaces the queue and dead-letter keys
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}
