package home

import (
	"context"
	"errors"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/pkg/scheduler"
	"strings"
	"time"
)

// enterNight switches to Night. With runCutover set, all lights (except the exempt ones) are turned off. Otherwise the
// sweep is deferred until the bedroom display turns on, or until the night wait expires, whichever comes first. The
// sweep is only deferred if Evening started today.
func (c *Controller) enterNight(ctx context.Context, runCutover bool, reason string) error {
	now := c.now()
	eveningStarted := c.eveningStartedToday(now)

	err := errors.Join(
		c.endEvening(ctx, reason, true),
		c.cancelEveningRamps(ctx),
		c.setMode(ctx, Night, reason),
		c.set(ctx, keyNightStartedOn, now.Format(dateLayout), nil),
		c.set(ctx, keyNightReason, reason, host.Attributes{"timestamp": now.Format(time.RFC3339)}),
		c.recordAction(ctx, "night_set:"+reason),
	)
	if err != nil {
		return err
	}

	if !runCutover && !eveningStarted {
		runCutover = true
	}
	if runCutover {
		return errors.Join(c.clearCutoverPending(ctx), c.nightSweep(ctx))
	}
	return c.deferCutover(ctx)
}

// deferCutover marks the sweep as pending and starts the night wait. When the wait expires, the sweep runs anyway.
func (c *Controller) deferCutover(ctx context.Context) error {
	if err := c.setFlag(ctx, keyCutoverPending, true); err != nil {
		return err
	}
	if c.nightWait != nil {
		c.nightWait.Cancel()
	}
	wait := c.cfg.Night.Wait
	c.logger.Info("night sweep deferred: secondary display active", "wait", wait)
	c.nightWait = scheduler.Schedule(ctx, scheduler.RunFunc(func(ctx context.Context) {
		c.lock.Lock()
		defer c.lock.Unlock()
		c.trigger("night_wait", func() error { return c.resolveCutover(ctx, "night_wait_expired") })
	}), wait)
	return c.recordAction(ctx, "night_cutover_deferred")
}

// resolveCutover runs the deferred sweep. If the sweep is no longer pending, it does nothing: the first of the bedroom
// display and the night wait to resolve the sweep wins.
func (c *Controller) resolveCutover(ctx context.Context, reason string) error {
	if !c.flag(keyCutoverPending) {
		return nil
	}
	if c.nightWait != nil {
		c.nightWait.Cancel()
		c.nightWait = nil
	}
	c.logger.Info("resolving deferred night sweep", "reason", reason)
	return errors.Join(
		c.clearCutoverPending(ctx),
		c.nightSweep(ctx),
		c.recordAction(ctx, "night_cutover_resolved:"+reason),
	)
}

func (c *Controller) clearCutoverPending(ctx context.Context) error {
	if !c.flag(keyCutoverPending) {
		return nil
	}
	if c.nightWait != nil {
		c.nightWait.Cancel()
		c.nightWait = nil
	}
	return c.setFlag(ctx, keyCutoverPending, false)
}

// nightSweep turns off every light that is on, except the exempt ones.
func (c *Controller) nightSweep(ctx context.Context) error {
	var lights []string
	for _, light := range c.lightsOn(c.host.Keys("light")) {
		if !c.exempt(light) {
			lights = append(lights, light)
		}
	}
	if len(lights) == 0 {
		c.logger.Info("night sweep: no lights on")
	} else {
		c.logger.Info("night sweep", "lights", lights)
	}
	return errors.Join(c.turnOff(ctx, lights), c.recordAction(ctx, "night_cutover_run"))
}

func (c *Controller) exempt(light string) bool {
	for _, pattern := range c.cfg.Night.Exempt {
		if strings.Contains(strings.ToLower(light), strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// onBedroomDisplay waits for the display to settle, then either resolves a deferred sweep or enters Night.
func (c *Controller) onBedroomDisplay(value string) error {
	if !c.enabled() {
		return ErrDisabled
	}
	if c.displayJob != nil {
		c.displayJob.Cancel()
	}
	c.logger.Debug("bedroom display on. waiting for it to settle", "state", value, "debounce", c.cfg.Night.DisplayDebounce)
	c.displayJob = scheduler.Schedule(c.ctx, scheduler.RunFunc(func(ctx context.Context) {
		c.lock.Lock()
		defer c.lock.Unlock()
		c.trigger("bedroom_display", func() error { return c.bedroomDisplaySettled(ctx) })
	}), c.cfg.Night.DisplayDebounce)
	return nil
}

func (c *Controller) bedroomDisplaySettled(ctx context.Context) error {
	state, _ := c.get(c.cfg.Entities.BedroomDisplay)
	if !host.Active(state) {
		c.logger.Debug("bedroom display turned off again. ignoring")
		return nil
	}
	if c.flag(keyCutoverPending) {
		return c.resolveCutover(ctx, "bedroom_display")
	}
	return c.enterNight(ctx, true, "bedroom_display:"+strings.ToLower(state))
}

// nightFailsafe enters Night at the cutoff, unless Night already started today. An active secondary display defers
// the sweep.
func (c *Controller) nightFailsafe(ctx context.Context) error {
	if !c.enabled() {
		return ErrDisabled
	}
	now := c.now()
	if c.mode() == Away {
		return nil
	}
	if v, _ := c.get(keyNightStartedOn); v == now.Format(dateLayout) {
		return nil
	}
	if c.secondaryActive() {
		return c.enterNight(ctx, false, "failsafe_secondary_display_on")
	}
	return c.enterNight(ctx, true, "failsafe")
}
