package notify

import (
	"context"
	"sync"

	"watchgate/internal/models"

	"github.com/google/uuid"
)

// Notifier delivers subscriber-facing notices. Delivery is fire-and-forget:
// implementations log failures instead of propagating them, so a broken
// delivery channel can never block or fail a billing decision.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
}

// stamp fills in the fields every notification carries.
func stamp(n *models.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = nowUTC()
	}
}

// MemoryNotifier records notifications in order. Used by the memory backend
// and by tests.
type MemoryNotifier struct {
	mu    sync.Mutex
	items []*models.Notification
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (m *MemoryNotifier) Notify(ctx context.Context, n *models.Notification) {
	stamp(n)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, n)
}

// Sent returns a copy of everything notified so far.
func (m *MemoryNotifier) Sent() []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Notification, len(m.items))
	copy(out, m.items)
	return out
}

// SentTo filters Sent by subscriber.
func (m *MemoryNotifier) SentTo(subscriberID string) []*models.Notification {
	var out []*models.Notification
	for _, n := range m.Sent() {
		if n.SubscriberID == subscriberID {
			out = append(out, n)
		}
	}
	return out
}
