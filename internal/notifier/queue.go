package notifier

import (
	"context"
	"log/slog"
)

// Queue hands notifications to a background goroutine that delivers them to Notifier, in order. Notify and Dismiss
// never wait for the delivery. When the queue is full, the notification is dropped.
type Queue struct {
	Notifier Notifier
	logger   *slog.Logger
	queue    chan func()
}

var (
	_ Notifier  = &Queue{}
	_ Dismisser = &Queue{}
)

func NewQueue(n Notifier, size int, logger *slog.Logger) *Queue {
	return &Queue{
		Notifier: n,
		logger:   logger,
		queue:    make(chan func(), size),
	}
}

func (q *Queue) Notify(n Notification) {
	q.enqueue("notify", n.ID, func() { q.Notifier.Notify(n) })
}

func (q *Queue) Dismiss(id string) {
	d, ok := q.Notifier.(Dismisser)
	if !ok {
		return
	}
	q.enqueue("dismiss", id, func() { d.Dismiss(id) })
}

func (q *Queue) enqueue(op, id string, f func()) {
	select {
	case q.queue <- f:
	default:
		q.logger.Warn("notification queue full. dropping", "op", op, "id", id)
	}
}

// Run delivers the queued notifications until ctx is canceled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-q.queue:
			f()
		}
	}
}
