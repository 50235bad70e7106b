// Package notifier delivers human-readable alerts. Delivery is best effort: a Notifier never returns an error to
// its caller.
package notifier

import "log/slog"

// A Notification is an alert. Notifications with the same ID replace each other, where the sink supports it.
type Notification struct {
	ID      string
	Title   string
	Message string
}

func (n Notification) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", n.ID),
		slog.String("title", n.Title),
		slog.String("message", n.Message),
	)
}

type Notifier interface {
	Notify(Notification)
}

// A Dismisser can withdraw a previously sent Notification.
type Dismisser interface {
	Dismiss(id string)
}

// Notifiers sends each Notification to all its Notifiers.
type Notifiers []Notifier

var _ Dismisser = Notifiers{}

func (n Notifiers) Notify(notification Notification) {
	for _, l := range n {
		l.Notify(notification)
	}
}

// Dismiss withdraws the notification from all Notifiers that support it.
func (n Notifiers) Dismiss(id string) {
	for _, l := range n {
		if d, ok := l.(Dismisser); ok {
			d.Dismiss(id)
		}
	}
}
