// Package home implements the home state machine. A Controller moves the home between the modes Early Morning, Day,
// Evening, Night and Away, driven by motion, presence, sun position and the time of day, and runs the light ramps
// that go with each mode.
package home

import (
	"context"
	"errors"
	"fmt"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/debounce"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/notifier"
	"github.com/clambin/home-controller/internal/ramp"
	"github.com/clambin/home-controller/pkg/scheduler"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// ContractCache publishes the Early-Morning contract to a durable, best-effort cache.
type ContractCache interface {
	Publish(topic string, payload []byte) error
}

// TeachingSource returns a learned brightness target for a room and condition.
type TeachingSource interface {
	Target(ctx context.Context, room, condition string) (int, error)
}

// EventSource delivers state changes from the host.
type EventSource interface {
	Subscribe() chan host.Event
	Unsubscribe(chan host.Event)
}

// A Controller owns all state of the home state machine. All operations are serialised: only one handler runs at
// any time. Ramps run in the background and report back to the Controller when they complete.
type Controller struct {
	cfg           Configuration
	host          host.Host
	clock         clock.Clock
	notifier      notifier.Notifier
	helpers       *notifier.HelperAlerts
	contractCache ContractCache
	teaching      TeachingSource
	metrics       *Metrics
	ramps         *ramp.Supervisor
	logger        *slog.Logger

	lock           sync.Mutex
	ctx            context.Context
	classification *Classification
	dayReady       *debounce.Gate
	current        map[ramp.Family]*ramp.Handle
	constants      dailyConstants
	displayJob     *scheduler.Job
	nightWait      *scheduler.Job
	history        []string
}

type Option func(*Controller)

// WithClock sets the clock used by the Controller. The default is the wall clock.
func WithClock(c clock.Clock) Option {
	return func(controller *Controller) {
		controller.clock = c
	}
}

// WithContractCache publishes the Early-Morning contract to c.
func WithContractCache(c ContractCache) Option {
	return func(controller *Controller) {
		controller.contractCache = c
	}
}

// WithTeachingSource adds a learned brightness as the highest priority Day target brightness.
func WithTeachingSource(t TeachingSource) Option {
	return func(controller *Controller) {
		controller.teaching = t
	}
}

// WithMetrics records the Controller's activity in m.
func WithMetrics(m *Metrics) Option {
	return func(controller *Controller) {
		controller.metrics = m
	}
}

// New returns a new Controller.
func New(cfg Configuration, h host.Host, n notifier.Notifier, l *slog.Logger, options ...Option) *Controller {
	c := Controller{
		cfg:      cfg,
		host:     h,
		clock:    clock.Real{},
		notifier: n,
		helpers:  notifier.NewHelperAlerts(n),
		logger:   l,
		ctx:      context.Background(),
		dayReady: debounce.New(cfg.Day.Debounce, false),
		current:  make(map[ramp.Family]*ramp.Handle),
	}
	for _, option := range options {
		option(&c)
	}
	c.ramps = ramp.NewSupervisor(c.clock, l.With("component", "ramps"))
	return &c
}

// Run handles the host's state changes until ctx is canceled. On exit, all ramps and timers are stopped.
func (c *Controller) Run(ctx context.Context, events EventSource) error {
	c.logger.Debug("controller starting")
	defer c.logger.Debug("controller stopping")

	// subscribe first: changes during startup are handled once it completes
	ch := events.Subscribe()
	defer events.Unsubscribe(ch)

	c.lock.Lock()
	c.ctx = ctx
	c.trigger("startup", func() error { return c.startup(ctx) })
	c.lock.Unlock()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-ch:
			c.HandleEvent(ctx, ev)
		}
	}
}

// shutdown stops all ramps and timers, and waits for them to exit.
func (c *Controller) shutdown() {
	c.lock.Lock()
	c.ramps.CancelAll()
	handles := make([]*ramp.Handle, 0, len(c.current))
	for family, h := range c.current {
		handles = append(handles, h)
		delete(c.current, family)
	}
	var jobs []*scheduler.Job
	for _, job := range []*scheduler.Job{c.displayJob, c.nightWait} {
		if job != nil {
			job.Cancel()
			jobs = append(jobs, job)
		}
	}
	c.lock.Unlock()

	// a completing ramp, or a job that already started, may be waiting for c.lock
	for _, h := range handles {
		<-h.Done()
	}
	for _, job := range jobs {
		<-job.Done()
	}
}

// startRamp starts spec as the current ramp of its family. Must be called with c.lock held.
func (c *Controller) startRamp(spec ramp.Spec) *ramp.Handle {
	h := c.ramps.Start(spec)
	c.current[spec.Kind.Family()] = h
	return h
}

// cancelRamp stops the current ramp of family. Must be called with c.lock held.
func (c *Controller) cancelRamp(family ramp.Family) {
	c.ramps.Cancel(family)
	delete(c.current, family)
}

// completed returns true if h is still the current ramp of its family, and forgets it. A ramp that reaches its end
// while it is being canceled or replaced is not current anymore. Must be called with c.lock held.
func (c *Controller) completed(h *ramp.Handle) bool {
	family := h.Spec.Kind.Family()
	if c.current[family] != h || h.Canceled() {
		return false
	}
	delete(c.current, family)
	return true
}

func (c *Controller) now() time.Time {
	return c.clock.Now()
}

func (c *Controller) get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	return c.host.Get(key)
}

func (c *Controller) flag(key string) bool {
	v, ok := c.get(key)
	return ok && strings.EqualFold(v, "on")
}

func (c *Controller) set(ctx context.Context, key string, value any, attrs host.Attributes) error {
	if err := c.host.Set(ctx, key, value, attrs); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *Controller) setFlag(ctx context.Context, key string, on bool) error {
	return c.set(ctx, key, on, nil)
}

func (c *Controller) invoke(ctx context.Context, domain, action string, args host.Args) error {
	if err := c.host.Invoke(ctx, domain, action, args); err != nil {
		return fmt.Errorf("%s.%s: %w", domain, action, err)
	}
	return nil
}

// enabled returns false if the controller's enable switch is explicitly off.
func (c *Controller) enabled() bool {
	v, ok := c.get(c.cfg.Entities.Enabled)
	return !ok || !strings.EqualFold(v, "off")
}

func (c *Controller) mode() Mode {
	v, ok := c.get(keyMode)
	if !ok {
		return Day
	}
	m, err := ParseMode(v)
	if err != nil {
		return Day
	}
	return m
}

func (c *Controller) setMode(ctx context.Context, m Mode, reason string) error {
	old := c.mode()
	err := c.set(ctx, keyMode, m.String(), host.Attributes{
		"options":      modeOptions(),
		"previous":     old.String(),
		"reason":       reason,
		"last_updated": c.now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if sel := c.cfg.Entities.ModeSelect; sel != "" {
		if current, ok := c.get(sel); ok && current != m.String() {
			if err = c.invoke(ctx, "input_select", "select_option", host.Args{"entity_id": sel, "option": m.String()}); err != nil {
				c.logger.Warn("failed to update mode selector", "err", err)
			}
		}
	}
	if old != m {
		c.logger.Info("mode changed", "from", old, "to", m, "reason", reason)
		c.metrics.transition(old, m)
	}
	c.metrics.setMode(m)
	return nil
}

func (c *Controller) recordAction(ctx context.Context, action string) error {
	entry := c.now().Format(time.TimeOnly) + " " + action
	c.history = append([]string{entry}, c.history...)
	if size := max(c.cfg.History, 1); len(c.history) > size {
		c.history = c.history[:size]
	}
	return c.set(ctx, keyLastAction, action, host.Attributes{"history": slices.Clone(c.history)})
}

func (c *Controller) presence() map[string]string {
	snapshot := make(map[string]string, len(c.cfg.Entities.Presence))
	for _, tracker := range c.cfg.Entities.Presence {
		v, ok := c.get(tracker)
		if !ok {
			v = "unknown"
		}
		snapshot[tracker] = v
	}
	return snapshot
}

func (c *Controller) allHome() bool {
	for _, state := range c.presence() {
		if !strings.EqualFold(state, c.cfg.Entities.HomeValue) {
			return false
		}
	}
	return true
}

func (c *Controller) secondaryActive() bool {
	v, _ := c.get(c.cfg.Entities.SecondaryDisplay)
	return host.Active(v)
}

// lightsOn returns the lights that are currently on.
func (c *Controller) lightsOn(candidates []string) []string {
	var on []string
	for _, light := range candidates {
		if v, ok := c.get(light); ok && strings.EqualFold(v, "on") {
			on = append(on, light)
		}
	}
	return on
}

func (c *Controller) turnOff(ctx context.Context, lights []string) error {
	var err error
	for _, light := range lights {
		err = errors.Join(err, c.invoke(ctx, "light", "turn_off", host.Args{"entity_id": light}))
	}
	return err
}

// HandleEvent dispatches a state change of the host to the matching handler.
func (c *Controller) HandleEvent(ctx context.Context, ev host.Event) {
	e := c.cfg.Entities
	switch {
	case slices.Contains(e.Motion, ev.Key):
		if strings.EqualFold(ev.New, "on") {
			c.lock.Lock()
			c.trigger("motion", func() error { return c.onMotion(ctx, ev.Key) })
			c.lock.Unlock()
		}
	case slices.Contains(e.Presence, ev.Key):
		c.lock.Lock()
		c.trigger("presence", func() error { return c.onPresence(ctx, ev.Key) })
		c.lock.Unlock()
	case ev.Key == e.BedroomDisplay:
		if host.Active(ev.New) {
			c.lock.Lock()
			c.trigger("bedroom_display", func() error { return c.onBedroomDisplay(ev.New) })
			c.lock.Unlock()
		}
	case ev.Key == e.ModeSelect:
		if ev.New != ev.Old {
			c.lock.Lock()
			c.trigger("mode_select", func() error { return c.selectMode(ctx, ev.New, "manual_select") })
			c.lock.Unlock()
		}
	case ev.Key == e.Sun:
		c.lock.Lock()
		c.trigger("sun", func() error { return c.publishSunSchedule(ctx) })
		c.lock.Unlock()
	case ev.Key == keySunriseToday || ev.Key == keySunsetToday || ev.Key == e.ElevationOverride ||
		slices.Contains(e.Cutoff, ev.Key) || slices.Contains(e.DayFloor, ev.Key):
		c.lock.Lock()
		c.trigger("constants", func() error { return c.refreshConstants(ctx) })
		c.lock.Unlock()
	case slices.Contains(e.LearnedStart, ev.Key) || slices.Contains(e.Brightness, ev.Key):
		c.lock.Lock()
		c.trigger("day_targets", func() error { return c.publishDayTargets(ctx) })
		c.lock.Unlock()
	}
}
