// Package notify queues user-facing notifications (toasts) for a cart session.
// Producers post; the view layer drains.
package notify

import (
	"sync"
	"time"
)

// Level is the notification severity, mapped by clients to toast styles.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Level   Level     `json:"level"`
	Code    string    `json:"code,omitempty"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier accepts notifications.
type Notifier interface {
	Notify(n Notification)
}

// DefaultCapacity bounds a queue; older entries are dropped first.
const DefaultCapacity = 50

// Queue is a bounded FIFO of notifications. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	now      func() time.Time
}

// NewQueue returns a queue holding at most capacity entries.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity, now: time.Now}
}

// Notify appends n, stamping the time if unset.
func (q *Queue) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = q.now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
	if over := len(q.items) - q.capacity; over > 0 {
		q.items = append([]Notification(nil), q.items[over:]...)
	}
}

// Drain returns and clears the pending notifications, oldest first.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Pending returns the queued notifications without clearing them.
func (q *Queue) Pending() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification{}, q.items...)
}

// Discard drops everything posted to it.
type Discard struct{}

func (Discard) Notify(Notification) {}

var (
	_ Notifier = (*Queue)(nil)
	_ Notifier = Discard{}
)
