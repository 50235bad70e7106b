// Package health serves the controller's status. The status is only reported once the first state change arrived
// from the host: until then, the controller is working from incomplete state.
package health

import (
	"context"
	"encoding/json"
	"github.com/clambin/home-controller/internal/home"
	"log/slog"
	"net/http"
	"sync/atomic"
)

type Controller interface {
	Status() home.Status
}

type Health struct {
	home.EventSource
	controller Controller
	logger     *slog.Logger
	updated    atomic.Bool
}

func New(events home.EventSource, c Controller, logger *slog.Logger) *Health {
	return &Health{
		EventSource: events,
		controller:  c,
		logger:      logger,
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")

	ch := h.EventSource.Subscribe()
	defer h.EventSource.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			h.updated.Store(true)
		}
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if !h.updated.Load() {
		http.Error(w, "no update yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.controller.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
