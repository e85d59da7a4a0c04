package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"watchgate/internal/models"
)

// RedisQueue implements Queue using Redis lists
type RedisQueue struct {
	client *redis.Client
	config *Config
	qKey   string
	// ownsClient is set when the queue created the client and must close it
	ownsClient bool
}

// NewRedisQueue creates a new Redis-backed queue, dialing Redis from config
func NewRedisQueue(config *Config) (*RedisQueue, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := newRedisQueue(client, config)
	q.ownsClient = true
	return q, nil
}

// NewRedisQueueWithClient creates a Redis-backed queue on an existing client
func NewRedisQueueWithClient(client *redis.Client, config *Config) *RedisQueue {
	if config == nil {
		config = DefaultConfig("notifications")
	}
	return newRedisQueue(client, config)
}

func newRedisQueue(client *redis.Client, config *Config) *RedisQueue {
	return &RedisQueue{
		client: client,
		config: config,
		qKey:   fmt.Sprintf("queue:%s", config.QueueName),
	}
}

// Enqueue adds a notification to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}

	return nil
}

// Dequeue retrieves notifications from the queue
func (q *RedisQueue) Dequeue(ctx context.Context, maxItems int) ([]*models.Notification, error) {
	// Block until at least one item is available
	result, err := q.client.BLPop(ctx, 0, q.qKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the key, result[1] is the value
	items, err := decodeOne(result[1])
	if err != nil {
		return nil, err
	}

	return q.drainInto(ctx, items, maxItems), nil
}

// DequeueWithTimeout retrieves notifications with a timeout
func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.Notification, error) {
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if err == redis.Nil {
		return []*models.Notification{}, nil // Timeout, no items
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	items, err := decodeOne(result[1])
	if err != nil {
		return nil, err
	}

	return q.drainInto(ctx, items, maxItems), nil
}

// drainInto pops more items without blocking, up to maxItems total
func (q *RedisQueue) drainInto(ctx context.Context, items []*models.Notification, maxItems int) []*models.Notification {
	for len(items) < maxItems {
		result, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			return items // redis.Nil or transient error; return what we have
		}
		var n models.Notification
		if err := json.Unmarshal([]byte(result), &n); err != nil {
			continue // Skip malformed items
		}
		items = append(items, &n)
	}
	return items
}

func decodeOne(data string) ([]*models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	return []*models.Notification{&n}, nil
}

// Length returns the current queue length
func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close shuts down the queue
func (q *RedisQueue) Close() error {
	if q.ownsClient {
		return q.client.Close()
	}
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue using Redis hashes
type RedisDeadLetterQueue struct {
	client     *redis.Client
	dlKey      string
	ownsClient bool
}

// NewRedisDeadLetterQueue creates a new Redis-backed dead letter queue
func NewRedisDeadLetterQueue(config *Config) (*RedisDeadLetterQueue, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDeadLetterQueue{
		client:     client,
		dlKey:      fmt.Sprintf("dlq:%s", config.QueueName),
		ownsClient: true,
	}, nil
}

// NewRedisDeadLetterQueueWithClient creates a dead letter queue on an existing client
func NewRedisDeadLetterQueueWithClient(client *redis.Client, config *Config) *RedisDeadLetterQueue {
	if config == nil {
		config = DefaultConfig("notifications")
	}
	return &RedisDeadLetterQueue{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", config.QueueName),
	}
}

// Add adds a failed notification to the dead letter queue
func (q *RedisDeadLetterQueue) Add(ctx context.Context, n *models.Notification, cause error) error {
	dlItem := DeadLetterItem{
		ID:           uuid.NewString(),
		Notification: n,
		Error:        cause.Error(),
		Timestamp:    time.Now(),
	}

	data, err := json.Marshal(dlItem)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", err)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// List retrieves items from the dead letter queue
func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue // Skip malformed items
		}
		items = append(items, dlItem)

		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}

	return items, nil
}

// Remove removes an item from the dead letter queue
func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	if err := q.client.HDel(ctx, q.dlKey, id).Err(); err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	return nil
}

// Close shuts down the dead letter queue
func (q *RedisDeadLetterQueue) Close() error {
	if q.ownsClient {
		return q.client.Close()
	}
	return nil
}
