package notifier

import (
	"log/slog"
)

type SLogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = &SLogNotifier{}

func (s SLogNotifier) Notify(n Notification) {
	s.Logger.Info(n.Title, "message", n.Message, "id", n.ID)
}

func (s SLogNotifier) Dismiss(id string) {
	s.Logger.Info("notification dismissed", "id", id)
}
