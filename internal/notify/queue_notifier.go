package notify

import (
	"context"

	"watchgate/internal/models"
	"watchgate/internal/queue"
	"watchgate/internal/utils"
)

// QueueNotifier hands notifications to a delivery queue so a worker can push
// them out asynchronously. Enqueue failures are logged and dropped; billing
// never waits on delivery.
type QueueNotifier struct {
	queue  queue.Queue
	logger *utils.Logger
}

func NewQueueNotifier(q queue.Queue) *QueueNotifier {
	return &QueueNotifier{
		queue:  q,
		logger: utils.NewLogger("notify"),
	}
}

func (q *QueueNotifier) Notify(ctx context.Context, n *models.Notification) {
	stamp(n)
	if err := q.queue.Enqueue(ctx, n); err != nil {
		q.logger.Error("failed to enqueue notification",
			"kind", n.Kind,
			"subscriber", n.SubscriberID,
			"topic", n.TopicID,
			"error", err)
	}
}
