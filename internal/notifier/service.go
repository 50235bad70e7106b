package notifier

import (
	"context"
	"github.com/clambin/home-controller/internal/host"
	"log/slog"
	"time"
)

// ServiceNotifier delivers notifications through the host: as a persistent notification, and to each of the
// configured notify Targets (e.g. "mobile_app_phone").
type ServiceNotifier struct {
	Invoker host.Invoker
	Targets []string
	Logger  *slog.Logger
	Timeout time.Duration
}

var (
	_ Notifier  = &ServiceNotifier{}
	_ Dismisser = &ServiceNotifier{}
)

func (s *ServiceNotifier) Notify(n Notification) {
	ctx, cancel := s.context()
	defer cancel()

	args := host.Args{"title": n.Title, "message": n.Message}
	if n.ID != "" {
		args["notification_id"] = n.ID
	}
	if err := s.Invoker.Invoke(ctx, "persistent_notification", "create", args); err != nil {
		s.Logger.Warn("failed to create persistent notification", "err", err)
	}
	for _, target := range s.Targets {
		if err := s.Invoker.Invoke(ctx, "notify", target, host.Args{"title": n.Title, "message": n.Message}); err != nil {
			s.Logger.Warn("failed to send notification", "target", target, "err", err)
		}
	}
}

func (s *ServiceNotifier) Dismiss(id string) {
	ctx, cancel := s.context()
	defer cancel()
	if err := s.Invoker.Invoke(ctx, "persistent_notification", "dismiss", host.Args{"notification_id": id}); err != nil {
		s.Logger.Warn("failed to dismiss notification", "id", id, "err", err)
	}
}

func (s *ServiceNotifier) context() (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
