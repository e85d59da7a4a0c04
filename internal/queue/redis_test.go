package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewRedisQueueWithClient(client, DefaultConfig("test"))
	ctx := context.Background()

	n := testNotification("sub-1")
	require.NoError(t, q.Enqueue(ctx, n))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	items, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, n.ID, items[0].ID)
	assert.Equal(t, n.SubscriberID, items[0].SubscriberID)
	assert.Equal(t, n.Kind, items[0].Kind)
}

func TestRedisQueue_Batching(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewRedisQueueWithClient(client, DefaultConfig("test"))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, q.Enqueue(ctx, testNotification("sub-1")))
	}

	items, err := q.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	items, err = q.Dequeue(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, length)
}

func TestRedisQueue_DequeueWithTimeout_Empty(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewRedisQueueWithClient(client, DefaultConfig("test"))
	ctx := context.Background()

	items, err := q.DequeueWithTimeout(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRedisQueue_SkipsMalformedItems(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewRedisQueueWithClient(client, DefaultConfig("test"))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testNotification("sub-1")))
	require.NoError(t, client.RPush(ctx, "queue:test", "not-json").Err())
	require.NoError(t, q.Enqueue(ctx, testNotification("sub-2")))

	items, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRedisDeadLetterQueue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	dlq := NewRedisDeadLetterQueueWithClient(client, DefaultConfig("test"))
	ctx := context.Background()

	n := testNotification("sub-1")
	require.NoError(t, dlq.Add(ctx, n, ErrMaxRetriesExceeded))

	items, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, n.ID, items[0].Notification.ID)
	assert.Equal(t, ErrMaxRetriesExceeded.Error(), items[0].Error)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))

	items, err = dlq.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}
