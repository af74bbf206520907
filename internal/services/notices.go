package services

import (
	"context"
	"sync"
	"time"
)

const defaultNoticeCapacity = 50

// NoticeLog collects notices per session until the next response drains them. Notices raised by
// background work land here too and surface on the following request.
type NoticeLog struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int
	clock    func() time.Time
}

var _ Notifier = (*NoticeLog)(nil)

// NewNoticeLog returns a log keeping at most capacity notices; older ones are dropped first.
func NewNoticeLog(capacity int, clock func() time.Time) *NoticeLog {
	if capacity <= 0 {
		capacity = defaultNoticeCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &NoticeLog{capacity: capacity, clock: clock}
}

// Notify appends notice, stamping it when At is zero.
func (l *NoticeLog) Notify(_ context.Context, notice Notice) {
	if notice.At.IsZero() {
		notice.At = l.clock().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, notice)
	if over := len(l.notices) - l.capacity; over > 0 {
		l.notices = append([]Notice(nil), l.notices[over:]...)
	}
}

// Drain returns and clears the collected notices.
func (l *NoticeLog) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}

// Peek returns a copy without clearing.
func (l *NoticeLog) Peek() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notice) {}
