package mocks

import (
	"sync"

	"github.com/davicafu/doorbell/internal/event/domain"
)

// RecordingPublisher guarda cada notificación publicada.
type RecordingPublisher struct {
	mu            sync.Mutex
	Notifications []domain.Notification
	Reject        bool
}

var _ domain.NotificationPublisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) Publish(n domain.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Reject {
		return false
	}
	p.Notifications = append(p.Notifications, n)
	return true
}

func (p *RecordingPublisher) Published() []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Notification(nil), p.Notifications...)
}
