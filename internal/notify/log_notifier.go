package notify

import (
	"context"
	"time"

	"watchgate/internal/models"
	"watchgate/internal/utils"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// LogNotifier writes notifications to the process log. It is the default
// backend and the fallback when no delivery channel is configured.
type LogNotifier struct {
	logger *utils.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: utils.NewLogger("notify")}
}

func (l *LogNotifier) Notify(ctx context.Context, n *models.Notification) {
	stamp(n)
	l.logger.Info("notification",
		"kind", n.Kind,
		"subscriber", n.SubscriberID,
		"topic", n.TopicID,
		"severity", n.Severity,
		"amount", n.Amount,
		"shortfall", n.Shortfall,
		"balance", n.Balance,
		"reason", n.Reason)
}
