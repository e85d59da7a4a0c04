package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"watchgate/internal/models"
)

// MemoryQueue implements Queue using an in-memory channel
type MemoryQueue struct {
	items  chan *models.Notification
	mu     sync.RWMutex
	closed bool
	config *Config
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(config *Config) *MemoryQueue {
	if config == nil {
		config = DefaultConfig("memory")
	}

	return &MemoryQueue{
		items:  make(chan *models.Notification, config.BatchSize*10), // Buffer for 10 batches
		config: config,
	}
}

// Enqueue adds a notification to the queue
func (q *MemoryQueue) Enqueue(ctx context.Context, n *models.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue retrieves notifications from the queue
func (q *MemoryQueue) Dequeue(ctx context.Context, maxItems int) ([]*models.Notification, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []*models.Notification

	// Block until we get at least one item
	select {
	case n := <-q.items:
		items = append(items, n)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Try to get more items without blocking
	for len(items) < maxItems {
		select {
		case n := <-q.items:
			items = append(items, n)
		default:
			return items, nil
		}
	}

	return items, nil
}

// DequeueWithTimeout retrieves notifications with a timeout
func (q *MemoryQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.Notification, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []*models.Notification
	deadline := time.After(timeout)

	// Try to get first item with timeout
	select {
	case n := <-q.items:
		items = append(items, n)
	case <-deadline:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Try to get more items without blocking
	for len(items) < maxItems {
		select {
		case n := <-q.items:
			items = append(items, n)
		default:
			return items, nil
		}
	}

	return items, nil
}

// Length returns the current queue length
func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	return len(q.items), nil
}

// Close shuts down the queue
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.items)
	return nil
}

// MemoryDeadLetterQueue implements DeadLetterQueue using in-memory storage
type MemoryDeadLetterQueue struct {
	items  []DeadLetterItem
	mu     sync.RWMutex
	closed bool
}

// NewMemoryDeadLetterQueue creates a new in-memory dead letter queue
func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{
		items: make([]DeadLetterItem, 0),
	}
}

// Add adds a failed notification to the dead letter queue
func (q *MemoryDeadLetterQueue) Add(ctx context.Context, n *models.Notification, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, DeadLetterItem{
		ID:           uuid.NewString(),
		Notification: n,
		Error:        err.Error(),
		Timestamp:    time.Now(),
	})
	return nil
}

// List retrieves items from the dead letter queue
func (q *MemoryDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if maxItems <= 0 || maxItems > len(q.items) {
		maxItems = len(q.items)
	}

	result := make([]DeadLetterItem, maxItems)
	copy(result, q.items[:maxItems])
	return result, nil
}

// Remove removes an item from the dead letter queue
func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}

	return ErrItemNotFound
}

// Close shuts down the dead letter queue
func (q *MemoryDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	return nil
}
