package ramp

import (
	"context"
	"errors"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/google/uuid"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultCadence     = 30 * time.Second
	DefaultHardTimeout = 6 * time.Hour
)

// A Supervisor owns the running ramps, one per Family. Starting a ramp first cancels the active ramp of the same
// Family and waits until that ramp can no longer write to its Output.
type Supervisor struct {
	clock  clock.Clock
	logger *slog.Logger
	ramps  map[Family]*Handle
	lock   sync.Mutex
}

func NewSupervisor(c clock.Clock, logger *slog.Logger) *Supervisor {
	if c == nil {
		c = clock.Real{}
	}
	return &Supervisor{
		clock:  c,
		logger: logger,
		ramps:  make(map[Family]*Handle),
	}
}

// Start cancels any active ramp of the same Family as spec and starts a new one.
func (s *Supervisor) Start(spec Spec) *Handle {
	if spec.Cadence <= 0 {
		spec.Cadence = DefaultCadence
	}
	if spec.HardTimeout <= 0 {
		spec.HardTimeout = DefaultHardTimeout
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	family := spec.Kind.Family()
	if current, ok := s.ramps[family]; ok {
		current.stop()
		s.logger.Debug("ramp replaced", "old", current.ID, "kind", current.Spec.Kind, "new", spec.Kind)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:     uuid.New(),
		Spec:   spec,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.ramps[family] = h
	s.logger.Info("ramp started",
		"id", h.ID,
		"kind", spec.Kind,
		slog.Time("start", spec.Start),
		slog.Time("end", spec.End),
	)
	go s.run(ctx, h)
	return h
}

// Cancel stops the active ramp of the family. It returns false if no ramp was active.
func (s *Supervisor) Cancel(family Family) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	h, ok := s.ramps[family]
	if ok {
		h.stop()
		delete(s.ramps, family)
		s.logger.Info("ramp canceled", "id", h.ID, "kind", h.Spec.Kind)
	}
	return ok
}

// CancelAll stops all active ramps.
func (s *Supervisor) CancelAll() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for family, h := range s.ramps {
		h.stop()
		delete(s.ramps, family)
	}
}

// Active returns the active ramp of the family, if any.
func (s *Supervisor) Active(family Family) (*Handle, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	h, ok := s.ramps[family]
	return h, ok
}

func (s *Supervisor) release(h *Handle) {
	s.lock.Lock()
	defer s.lock.Unlock()
	family := h.Spec.Kind.Family()
	if s.ramps[family] == h {
		delete(s.ramps, family)
	}
}

func (s *Supervisor) run(ctx context.Context, h *Handle) {
	defer close(h.done)
	l := s.logger.With("id", h.ID, "kind", h.Spec.Kind)

	var timedOut bool
	deadline := h.Spec.Start.Add(h.Spec.HardTimeout)
	for {
		now := s.clock.Now()
		if !now.Before(h.Spec.End) {
			break
		}
		if !now.Before(deadline) {
			l.Error("ramp exceeded its hard timeout. forcing completion", "timeout", h.Spec.HardTimeout)
			timedOut = true
			break
		}
		err := h.write(ctx, h.Spec.sample(now))
		if errors.Is(err, ErrCanceled) {
			return
		}
		if errors.Is(err, ErrStop) {
			l.Debug("output requested early stop")
			break
		}
		if err != nil {
			l.Warn("failed to write ramp values", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.Spec.Cadence):
		}
	}

	final := h.Spec.final(timedOut)
	if err := h.write(ctx, final); err != nil {
		if errors.Is(err, ErrCanceled) {
			return
		}
		if !errors.Is(err, ErrStop) {
			l.Warn("failed to write final ramp values", "err", err)
		}
	}
	s.release(h)
	l.Info("ramp completed", "final", final)
	if h.Spec.OnComplete != nil {
		h.Spec.OnComplete(h, final)
	}
}

// A Handle represents a started ramp.
type Handle struct {
	ID      uuid.UUID
	Spec    Spec
	cancel  context.CancelFunc
	done    chan struct{}
	writing sync.Mutex
	stopped bool
}

// stop cancels the ramp. Once stop returns, the ramp will not write to its Output again.
func (h *Handle) stop() {
	h.cancel()
	h.writing.Lock()
	defer h.writing.Unlock()
	h.stopped = true
}

func (h *Handle) write(ctx context.Context, sample Sample) error {
	h.writing.Lock()
	defer h.writing.Unlock()
	if h.stopped {
		return ErrCanceled
	}
	if h.Spec.Output == nil {
		return nil
	}
	return h.Spec.Output.Write(ctx, sample)
}

// Canceled returns true if the ramp was canceled.
func (h *Handle) Canceled() bool {
	h.writing.Lock()
	defer h.writing.Unlock()
	return h.stopped
}

// Done is closed when the ramp's loop has ended.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
