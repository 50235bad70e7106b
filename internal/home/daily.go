package home

import (
	"context"
	"errors"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/schedule"
	"time"
)

// Jobs returns the Controller's scheduled entry points.
func (c *Controller) Jobs() []schedule.Job {
	return []schedule.Job{
		{Name: "tick", Spec: "0 * * * * *", Run: c.Tick},
		{Name: "morning_reset", Spec: c.cfg.Morning.Reset.Cron(), Run: c.MorningReset},
		{Name: "midnight_reset", Spec: c.cfg.Evening.Reset.Cron(), Run: c.MidnightReset},
		{Name: "constants", Spec: c.cfg.Day.ConstantsRefresh.Cron(), Run: c.RefreshConstants},
		{Name: "sun_schedule", Spec: c.cfg.Day.SunSchedule.Cron(), Run: c.SunSchedule},
		{Name: "night_failsafe", Spec: c.cfg.Evening.Cutoff.Cron(), Run: c.NightFailsafe},
		{Name: "evening_preramp", Spec: c.cfg.Evening.PreRamp.Start.Cron(), Run: c.EveningPreRamp},
		{Name: "evening_ramp", Spec: c.cfg.Evening.ColorRamp.Start.Cron(), Run: c.EveningRamp},
	}
}

// Tick re-evaluates the evening window and Day readiness, and performs the transitions that depend on them.
func (c *Controller) Tick(ctx context.Context) {
	c.scheduled("tick", func() error { return c.tick(ctx) })
}

// MorningReset clears the day's classification and morning ramp.
func (c *Controller) MorningReset(ctx context.Context) {
	c.scheduled("morning_reset", func() error { return c.morningReset(ctx, "daily_reset") })
}

// MidnightReset clears the day's evening flags and any pending night sweep.
func (c *Controller) MidnightReset(ctx context.Context) {
	c.scheduled("midnight_reset", func() error { return c.midnightReset(ctx) })
}

// RefreshConstants recomputes the daily constants.
func (c *Controller) RefreshConstants(ctx context.Context) {
	c.scheduled("constants", func() error { return c.refreshConstants(ctx) })
}

// SunSchedule republishes today's sunrise and sunset.
func (c *Controller) SunSchedule(ctx context.Context) {
	c.scheduled("sun_schedule", func() error { return c.publishSunSchedule(ctx) })
}

// NightFailsafe enters Night at the evening cutoff, if it has not started yet.
func (c *Controller) NightFailsafe(ctx context.Context) {
	c.scheduled("night_failsafe", func() error { return c.nightFailsafe(ctx) })
}

// EveningPreRamp starts the evening brightness pre-ramp.
func (c *Controller) EveningPreRamp(ctx context.Context) {
	c.scheduled("evening_preramp", func() error {
		if !c.enabled() {
			return ErrDisabled
		}
		if mode := c.mode(); mode == Away || mode == Night {
			return nil
		}
		return c.startPreRamp(ctx, false)
	})
}

// EveningRamp starts the evening colour-temperature ramp.
func (c *Controller) EveningRamp(ctx context.Context) {
	c.scheduled("evening_ramp", func() error {
		if !c.enabled() {
			return ErrDisabled
		}
		return c.startEveningRampIfNeeded(ctx)
	})
}

func (c *Controller) scheduled(op string, f func() error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.trigger(op, f)
}

func (c *Controller) tick(ctx context.Context) error {
	if !c.enabled() {
		return ErrDisabled
	}
	if c.mode() == Away {
		return nil
	}
	now := c.now()
	if err := c.enforceWorkRampEnd(ctx, now); err != nil {
		return err
	}
	in, err := c.updateEveningWindow(ctx, now)
	if err != nil {
		return err
	}
	ready, err := c.updateDayReady(ctx, now, in)
	if err != nil {
		return err
	}
	if err = c.maybeTransitionToDay(ctx, ready, in); err != nil {
		return err
	}
	if c.mode() != Night {
		if err = c.clearCutoverPending(ctx); err != nil {
			return err
		}
	}
	if nightStarted, _ := c.get(keyNightStartedOn); c.mode() == Day && in && nightStarted != now.Format(dateLayout) && !c.flag(keyEveningDone) {
		if _, err = c.enterEvening(ctx, "auto_day_to_evening", false); err != nil {
			return err
		}
	}
	if c.mode() == Evening {
		return c.startEveningRampIfNeeded(ctx)
	}
	return nil
}

// enforceWorkRampEnd re-mirrors the work ramp's end time when it drifted from its configured value.
func (c *Controller) enforceWorkRampEnd(ctx context.Context, now time.Time) error {
	if !c.flag(keyRampActive) || !c.flag(keyWorkdayDetected) {
		return nil
	}
	end := c.cfg.Morning.WorkRamp.End.On(now)
	if !now.Before(end) {
		return nil
	}
	if current, err := c.timeSource(keyWorkRampEnd, now).Get(); err == nil {
		if drift := current.Sub(end); drift >= -30*time.Second && drift <= 30*time.Second {
			return nil
		}
	}
	c.logger.Debug("work ramp end drifted. restoring", "end", end)
	return c.set(ctx, keyWorkRampEnd, end, nil)
}

// morningReset clears today's classification, in memory and on the host, so the next motion classifies again.
func (c *Controller) morningReset(ctx context.Context, reason string) error {
	c.classification = nil
	err := errors.Join(
		c.cancelMorningRamp(ctx),
		c.setFlag(ctx, keyWorkdayDetected, false),
		c.set(ctx, keyProfile, string(Unknown), host.Attributes{"source": "reset", "reason": reason}),
		c.set(ctx, keyClassifiedAt, "", host.Attributes{"reason": reason}),
		c.setFlag(ctx, keyMotionLock, false),
		c.setFlag(ctx, keyEMActive, false),
		c.set(ctx, keyEMRoute, "", nil),
		c.set(ctx, keyEMStart, "", nil),
		c.set(ctx, keyEMUntil, "", nil),
		c.recordAction(ctx, "morning_reset"),
	)
	c.publishContract()
	return err
}

func (c *Controller) midnightReset(ctx context.Context) error {
	return errors.Join(
		c.setFlag(ctx, keyEveningRampStarted, false),
		c.setFlag(ctx, keyEveningDone, false),
		c.setFlag(ctx, keyEveningActive, false),
		c.clearCutoverPending(ctx),
		c.recordAction(ctx, "midnight_reset"),
	)
}

// startup determines the mode after a (re)start, and resumes any ramp that was interrupted.
func (c *Controller) startup(ctx context.Context) error {
	if !c.enabled() {
		return ErrDisabled
	}
	if !c.allHome() {
		return errors.Join(c.setMode(ctx, Away, "startup"), c.recordAction(ctx, "startup:away"))
	}
	if err := c.publishSunSchedule(ctx); err != nil {
		return err
	}
	if err := c.refreshConstants(ctx); err != nil {
		return err
	}

	now := c.now()
	if !now.Before(c.today(now).cutoff) {
		if v, _ := c.get(keyNightStartedOn); v == now.Format(dateLayout) {
			return errors.Join(c.setMode(ctx, Night, "startup"), c.recordAction(ctx, "startup:keep_Night"))
		}
		return c.enterNight(ctx, !c.secondaryActive(), "startup_after_cutoff")
	}

	in, err := c.updateEveningWindow(ctx, now)
	if err != nil {
		return err
	}
	// carry the readiness recorded before the restart, rather than debouncing it again from scratch
	c.dayReady.Reset(c.flag(keyDayReady))
	ready, err := c.updateDayReady(ctx, now, in)
	if err != nil {
		return err
	}

	nightStarted, _ := c.get(keyNightStartedOn)
	switch {
	case c.resumableEarlyMorning(now):
		err = c.rehydrateEarlyMorning(ctx, now)
	case c.flag(keyPreRampActive) && now.Before(c.cfg.Evening.PreRamp.End.On(now)):
		c.logger.Info("resuming evening pre-ramp")
		err = c.startPreRamp(ctx, true)
	case in && nightStarted != now.Format(dateLayout):
		if _, err = c.enterEvening(ctx, "startup_evening_window", c.mode() == Away); err == nil {
			err = c.startEveningRampIfNeeded(ctx)
		}
	case ready:
		err = errors.Join(c.setMode(ctx, Day, "startup_day_ready"), c.recordAction(ctx, "startup:day_ready→Day"))
	default:
		err = c.setMode(ctx, c.mode(), "startup")
	}
	c.publishContract()
	return errors.Join(err, c.recordAction(ctx, "startup_complete"))
}

func (c *Controller) resumableEarlyMorning(now time.Time) bool {
	if !c.flag(keyEMActive) {
		return false
	}
	route, _ := c.get(keyEMRoute)
	if p, ok := parseProfile(route); !ok || p == Unknown {
		return false
	}
	start, err := c.timeSource(keyEMStart, now).Get()
	return err == nil && clock.SameDay(start, now)
}

// rehydrateEarlyMorning restores today's Early-Morning route and resumes its ramp from the stored start time, if the
// ramp has not ended yet.
func (c *Controller) rehydrateEarlyMorning(ctx context.Context, now time.Time) error {
	route, _ := c.get(keyEMRoute)
	profile, _ := parseProfile(route)
	start, _ := c.timeSource(keyEMStart, now).Get()
	c.classification = &Classification{Date: start, Profile: profile, ClassifiedAt: start, Source: "rehydrate"}
	c.logger.Info("rehydrating early morning", "profile", profile, "start", start)

	err := errors.Join(
		c.set(ctx, keyProfile, string(profile), host.Attributes{"source": "rehydrate", "reason": "startup_" + string(profile)}),
		c.setFlag(ctx, keyWorkdayDetected, profile == Work),
		c.setFlag(ctx, keyMotionLock, true),
		c.setMode(ctx, EarlyMorning, "startup"),
		c.recordAction(ctx, "startup:keep_Early_Morning"),
	)
	if err != nil {
		return err
	}

	resume := c.flag(keyRampActive)
	switch profile {
	case Work:
		resume = resume || now.Before(c.cfg.Morning.WorkRamp.End.On(now))
	case DayOff:
		commit, _ := c.dayCommit(now)
		resume = resume || now.Before(commit)
	}
	if !resume {
		return nil
	}
	return c.startMorningRamp(ctx, profile, start)
}
