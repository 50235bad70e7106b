package home

import (
	"context"
	"errors"
	"fmt"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/ramp"
	"log/slog"
	"time"
)

// Classification is the outcome of the first qualifying motion of the day.
type Classification struct {
	Date         time.Time
	Profile      Profile
	ClassifiedAt time.Time
	Source       string
	Prework      bool
	Override     bool
}

// Classify returns the profile for a motion at time t. inWindow is false if t falls outside the morning window.
// A motion during the prework hold (before the workday start) classifies as Work, with prework set.
func (m MorningConfiguration) Classify(t time.Time) (profile Profile, prework bool, inWindow bool) {
	tod := Of(t)
	if tod.Before(m.PreworkStart) || !tod.Before(m.WindowEnd) {
		return Unknown, false, false
	}
	switch {
	case tod.Before(m.WorkdayStart):
		return Work, true, true
	case tod.Before(m.WorkdayEnd):
		return Work, false, true
	default:
		return DayOff, false, true
	}
}

// onMotion classifies the morning on the first qualifying motion of the day, switches to Early Morning and starts
// the morning ramp for the profile. Must be called with c.lock held: the lock guarantees that two simultaneous
// motion events result in one classification.
func (c *Controller) onMotion(ctx context.Context, source string) error {
	if !c.enabled() {
		return ErrDisabled
	}
	now := c.now()
	l := c.logger.With("source", source, slog.Time("time", now))

	if c.mode() == Away {
		l.Debug("motion ignored: away")
		return nil
	}
	if c.flag(keyMotionLock) {
		l.Debug("motion ignored: daily motion lock active")
		return nil
	}
	if c.classification != nil && clock.SameDay(c.classification.Date, now) {
		l.Debug("motion ignored: already classified today", "profile", c.classification.Profile)
		return nil
	}
	if restored, ok := c.persistedClassification(now); ok {
		c.classification = restored
		l.Debug("motion ignored: classification already recorded today", "profile", restored.Profile)
		return nil
	}

	profile, prework, inWindow := c.cfg.Morning.Classify(now)
	if !inWindow {
		l.Debug("motion ignored: outside morning window")
		return nil
	}
	var override bool
	if v, ok := c.get(c.cfg.Entities.DayTypeOverride); ok {
		if p, ok := parseProfile(v); ok {
			override = true
			profile = p
			prework = prework && p == Work
		}
	}

	return c.classify(ctx, Classification{
		Date:         now,
		Profile:      profile,
		ClassifiedAt: now,
		Source:       source,
		Prework:      prework,
		Override:     override,
	})
}

// classify records the classification, switches to Early Morning and starts the matching ramp.
func (c *Controller) classify(ctx context.Context, cl Classification) error {
	c.classification = &cl
	c.logger.Info("morning classified", "profile", cl.Profile, "source", cl.Source, "prework", cl.Prework, "override", cl.Override)

	reason := "motion@" + cl.ClassifiedAt.Format("15:04")
	switch {
	case cl.Override:
		reason = "override_" + string(cl.Profile)
	case cl.Prework:
		reason = "prework_hold"
	}

	err := errors.Join(
		c.set(ctx, keyProfile, string(cl.Profile), host.Attributes{"source": cl.Source, "reason": reason}),
		c.set(ctx, keyClassifiedAt, cl.ClassifiedAt, nil),
		c.set(ctx, keyClassifiedBy, cl.Source+" @ "+reason, nil),
		c.setFlag(ctx, keyWorkdayDetected, cl.Profile == Work),
		c.setFlag(ctx, keyMotionLock, true),
	)
	if err != nil {
		return err
	}

	start := cl.ClassifiedAt
	if cl.Prework {
		start = c.cfg.Morning.WorkdayStart.On(cl.ClassifiedAt)
	}
	if err = c.setMode(ctx, EarlyMorning, "motion_"+string(cl.Profile)); err != nil {
		return err
	}
	if err = c.recordAction(ctx, "motion_"+string(cl.Profile)+"→Early_Morning"); err != nil {
		return err
	}
	return c.startMorningRamp(ctx, cl.Profile, start)
}

// persistedClassification returns today's classification, if one was recorded before a restart.
func (c *Controller) persistedClassification(now time.Time) (*Classification, bool) {
	at, ok := c.get(keyClassifiedAt)
	if !ok {
		return nil, false
	}
	classifiedAt, err := clock.Parse(at, now)
	if err != nil || !clock.SameDay(classifiedAt, now) {
		return nil, false
	}
	v, _ := c.get(keyProfile)
	profile, _ := parseProfile(v)
	return &Classification{Date: classifiedAt, Profile: profile, ClassifiedAt: classifiedAt}, true
}

// startMorningRamp starts the work or nonwork ramp, from start. start may lie in the past, to resume a ramp.
func (c *Controller) startMorningRamp(ctx context.Context, profile Profile, start time.Time) error {
	var spec ramp.Spec
	var until time.Time
	switch profile {
	case Work:
		rc := c.cfg.Morning.WorkRamp
		until = rc.End.On(start)
		if until.Before(start) {
			c.logger.Warn("work ramp starts after its end time", slog.Time("start", start), slog.Time("end", until))
			until = start
		}
		spec = ramp.Spec{
			Kind:  ramp.Work,
			Start: start,
			End:   until,
			Channels: []ramp.Channel{
				{Name: ramp.Brightness, From: rc.BrightnessFrom, To: rc.BrightnessTo},
				{Name: ramp.Kelvin, From: rc.KelvinFrom, To: rc.KelvinTo},
			},
			Cadence:     rc.Cadence,
			HardTimeout: rc.HardTimeout,
			OnComplete:  c.onMorningRampComplete,
		}
	case DayOff:
		rc := c.cfg.Morning.NonWorkRamp
		until = c.dayCommitTime(start)
		target, _ := c.dayTargetBrightness(ctx)
		spec = ramp.Spec{
			Kind:  ramp.NonWork,
			Start: start,
			End:   until,
			Channels: []ramp.Channel{
				{Name: ramp.Brightness, From: rc.BrightnessFrom, To: target},
				{Name: ramp.Kelvin, From: rc.KelvinFrom, To: rc.KelvinTo},
			},
			Cadence:     rc.Cadence,
			HardTimeout: rc.HardTimeout,
			OnComplete:  c.onMorningRampComplete,
		}
	default:
		return fmt.Errorf("no morning ramp for profile %q", profile)
	}
	spec.Output = c.morningOutput()

	err := errors.Join(
		c.setFlag(ctx, keyRampActive, true),
		c.setFlag(ctx, keyEMActive, true),
		c.set(ctx, keyEMRoute, string(profile), nil),
		c.set(ctx, keyEMStart, start, nil),
		c.set(ctx, keyEMUntil, until, nil),
	)
	if profile == Work {
		err = errors.Join(err, c.set(ctx, keyWorkRampEnd, until, nil))
	}
	if err != nil {
		return err
	}
	c.startRamp(spec)
	c.publishContract()
	return nil
}

// morningOutput writes the morning ramp's values to its sensors. It does not take c.lock.
func (c *Controller) morningOutput() ramp.Output {
	return ramp.OutputFunc(func(ctx context.Context, s ramp.Sample) error {
		attrs := host.Attributes{
			"kind":  string(s.Kind),
			"start": s.Start.Format(time.RFC3339),
			"end":   s.End.Format(time.RFC3339),
		}
		if s.Final {
			attrs["final"] = true
		}
		c.metrics.rampTick(s.Kind)
		return errors.Join(
			c.set(ctx, keyRampBrightness, s.Values[ramp.Brightness], withUnit(attrs, "%")),
			c.set(ctx, keyRampKelvin, s.Values[ramp.Kelvin], withUnit(attrs, "K")),
			c.set(ctx, keyRampProgress, s.Progress, withUnit(attrs, "%")),
		)
	})
}

func withUnit(attrs host.Attributes, unit string) host.Attributes {
	a := make(host.Attributes, len(attrs)+1)
	for k, v := range attrs {
		a[k] = v
	}
	a["unit_of_measurement"] = unit
	return a
}

// onMorningRampComplete runs when a morning ramp reaches its end. A completed nonwork ramp ends Early Morning.
// A completed work ramp holds its final values: the home stays in Early Morning until another transition fires.
func (c *Controller) onMorningRampComplete(h *ramp.Handle, final ramp.Sample) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.completed(h) {
		c.logger.Debug("morning ramp completed after it was stopped. ignoring", "id", h.ID)
		return
	}
	ctx := c.ctx
	c.trigger("morning_ramp_complete", func() error {
		if err := c.setFlag(ctx, keyRampActive, false); err != nil {
			return err
		}
		if h.Spec.Kind != ramp.NonWork {
			return c.recordAction(ctx, "work_ramp_complete")
		}
		if mode := c.mode(); mode != EarlyMorning {
			c.logger.Info("nonwork ramp completed outside Early Morning. mode unchanged", "mode", mode)
			return nil
		}
		err := errors.Join(
			c.setMode(ctx, Day, "nonwork_ramp_complete"),
			c.set(ctx, keyDayTarget, final.Values[ramp.Brightness], host.Attributes{"unit_of_measurement": "%", "source": "nonwork_ramp"}),
			c.markEarlyMorningEnded(ctx, "nonwork_ramp_complete"),
			c.recordAction(ctx, "nonwork_ramp_complete→Day"),
		)
		return err
	})
}

// cancelMorningRamp stops the morning ramp, if any, and clears its active flag.
func (c *Controller) cancelMorningRamp(ctx context.Context) error {
	c.cancelRamp(ramp.Morning)
	return c.setFlag(ctx, keyRampActive, false)
}

// morningRampActive returns true if a morning ramp is running.
func (c *Controller) morningRampActive() bool {
	_, ok := c.ramps.Active(ramp.Morning)
	return ok
}

// markEarlyMorningEnded records that the Early-Morning route ended.
func (c *Controller) markEarlyMorningEnded(ctx context.Context, reason string) error {
	err := errors.Join(
		c.setFlag(ctx, keyEMActive, false),
		c.set(ctx, keyEMEndedAt, c.now(), nil),
		c.set(ctx, keyEMEndReason, reason, nil),
	)
	c.publishContract()
	return err
}
