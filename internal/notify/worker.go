package notify

import (
	"context"
	"time"

	"watchgate/internal/models"
	"watchgate/internal/queue"
	"watchgate/internal/utils"
)

// Sender pushes a single notification to the outside world (a chat message,
// a webhook, an email). The worker retries failed sends with backoff before
// dead-lettering them.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, n *models.Notification) error

func (f SenderFunc) Send(ctx context.Context, n *models.Notification) error {
	return f(ctx, n)
}

// Worker drains the notification queue in batches and delivers each item
// through the configured sender.
type Worker struct {
	queue       queue.Queue
	deadLetter  queue.DeadLetterQueue
	sender      Sender
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

func NewWorker(q queue.Queue, dlq queue.DeadLetterQueue, sender Sender, config *queue.Config) *Worker {
	if config == nil {
		config = queue.DefaultConfig("notifications")
	}
	return &Worker{
		queue:       q,
		deadLetter:  dlq,
		sender:      sender,
		config:      config,
		logger:      utils.NewLogger("notify-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start runs the delivery loop until Stop is called or the context ends.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the loop and waits for it to drain its current batch.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.stoppedChan
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	w.logger.Info("delivery worker started",
		"batch_size", w.config.BatchSize,
		"batch_timeout", w.config.BatchTimeout)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("delivery worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("delivery worker context cancelled")
			return
		default:
		}

		batch, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
		if err != nil {
			if err == queue.ErrQueueClosed || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to dequeue batch", "error", err)
			time.Sleep(w.config.RetryBackoff)
			continue
		}
		if len(batch) == 0 {
			continue
		}

		for _, n := range batch {
			w.deliver(ctx, n)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, n *models.Notification) {
	var lastErr error
	backoff := w.config.RetryBackoff

	for attempt := 1; attempt <= w.config.MaxRetries; attempt++ {
		lastErr = w.sender.Send(ctx, n)
		if lastErr == nil {
			w.logger.Debug("notification delivered",
				"kind", n.Kind,
				"subscriber", n.SubscriberID,
				"topic", n.TopicID)
			return
		}
		w.logger.Warning("notification delivery failed",
			"kind", n.Kind,
			"subscriber", n.SubscriberID,
			"attempt", attempt,
			"error", lastErr)
		if attempt < w.config.MaxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
		}
	}

	if w.deadLetter == nil {
		w.logger.Error("dropping undeliverable notification, no dead-letter queue",
			"kind", n.Kind,
			"subscriber", n.SubscriberID,
			"error", lastErr)
		return
	}
	if err := w.deadLetter.Add(ctx, n, lastErr); err != nil {
		w.logger.Error("failed to dead-letter notification",
			"kind", n.Kind,
			"subscriber", n.SubscriberID,
			"error", err)
	}
}
