package home

import (
	"context"
	"errors"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/ramp"
	"log/slog"
	"math"
	"strconv"
	"time"
)

// enterEvening switches to Evening. Unless forced, it only does so inside the evening window, when not Away and when
// Evening has not already ended today.
func (c *Controller) enterEvening(ctx context.Context, reason string, force bool) (bool, error) {
	if !force {
		if c.mode() == Away || !c.flag(keyInEvening) || c.flag(keyEveningDone) {
			return false, nil
		}
	}
	err := errors.Join(
		c.setMode(ctx, Evening, reason),
		c.setFlag(ctx, keyEveningActive, true),
		c.set(ctx, keyEveningReason, reason, host.Attributes{"timestamp": c.now().Format(time.RFC3339)}),
		c.recordAction(ctx, "evening_mode_started:"+reason),
	)
	return err == nil, err
}

// endEvening clears the Evening lock. If markDone is set, Evening is not entered again today.
func (c *Controller) endEvening(ctx context.Context, reason string, markDone bool) error {
	var err error
	if c.flag(keyEveningActive) {
		err = c.setFlag(ctx, keyEveningActive, false)
	}
	if markDone {
		err = errors.Join(err, c.setFlag(ctx, keyEveningDone, true))
	}
	if reason != "" {
		err = errors.Join(err, c.set(ctx, keyEveningReason, "ended:"+reason, host.Attributes{"timestamp": c.now().Format(time.RFC3339)}))
	}
	return err
}

// eveningStartedToday returns true if Evening was entered (or ended) today.
func (c *Controller) eveningStartedToday(now time.Time) bool {
	if !c.flag(keyEveningActive) && !c.flag(keyEveningDone) {
		v, ok := c.host.Attribute(keyEveningReason, "timestamp")
		if !ok {
			return false
		}
		ts, err := clock.Parse(host.Format(v), now)
		return err == nil && clock.SameDay(ts, now)
	}
	return true
}

// cancelEveningRamps stops both evening ramps and clears the pre-ramp's active flag.
func (c *Controller) cancelEveningRamps(ctx context.Context) error {
	c.cancelRamp(ramp.EveningBrightness)
	c.cancelRamp(ramp.EveningColor)
	if c.flag(keyPreRampActive) {
		return c.setFlag(ctx, keyPreRampActive, false)
	}
	return nil
}

// startEveningRampIfNeeded starts the colour-temperature ramp, once per day, while in Evening inside its time window.
func (c *Controller) startEveningRampIfNeeded(ctx context.Context) error {
	if c.mode() != Evening || !c.flag(keyInEvening) || c.flag(keyEveningRampStarted) {
		return nil
	}
	now := c.now()
	rc := c.cfg.Evening.ColorRamp
	start, end := rc.Start.On(now), rc.End.On(now)
	if now.Before(start) || end.Sub(now) < 5*time.Second {
		return nil
	}
	lights := c.lightsOn(c.cfg.Entities.ColorLights)
	if len(lights) == 0 {
		c.logger.Info("evening ramp skipped: no colour lights are on")
		return nil
	}

	c.startRamp(ramp.Spec{
		Kind:  ramp.EveningColorTemp,
		Start: start,
		End:   end,
		Channels: []ramp.Channel{
			{Name: ramp.Brightness, From: rc.BrightnessFrom, To: rc.BrightnessTo},
			{Name: ramp.Kelvin, From: rc.KelvinFrom, To: rc.KelvinTo},
		},
		Cadence:     rc.Cadence,
		HardTimeout: rc.HardTimeout,
		Output:      c.lightOutput(),
	})
	return errors.Join(
		c.setFlag(ctx, keyEveningRampStarted, true),
		c.set(ctx, keyEveningRampAt, now, host.Attributes{
			"target_end":     end.Format(time.RFC3339),
			"start_kelvin":   rc.KelvinFrom,
			"end_kelvin":     rc.KelvinTo,
			"brightness_pct": rc.BrightnessTo,
		}),
		c.recordAction(ctx, "evening_ramp_started"),
	)
}

// lightOutput writes a ramp's values to the colour lights that are on. Once all lights are off, the ramp stops.
// It does not take c.lock.
func (c *Controller) lightOutput() ramp.Output {
	return ramp.OutputFunc(func(ctx context.Context, s ramp.Sample) error {
		lights := c.lightsOn(c.cfg.Entities.ColorLights)
		if len(lights) == 0 {
			return ramp.ErrStop
		}
		c.metrics.rampTick(s.Kind)
		args := host.Args{"entity_id": lights}
		if v, ok := s.Values[ramp.Brightness]; ok {
			args["brightness_pct"] = v
		}
		if v, ok := s.Values[ramp.Kelvin]; ok {
			args["kelvin"] = v
		}
		return c.invoke(ctx, "light", "turn_on", args)
	})
}

// startPreRamp glides the brightness of the colour lights that are on towards the evening brightness. If resume is
// set, the pre-ramp continues from its stored start time and start brightness.
func (c *Controller) startPreRamp(ctx context.Context, resume bool) error {
	now := c.now()
	rc := c.cfg.Evening.PreRamp
	end := rc.End.On(now)
	lights := c.lightsOn(c.cfg.Entities.ColorLights)
	if len(lights) == 0 {
		c.logger.Info("evening pre-ramp skipped: no colour lights are on")
		return nil
	}

	start, from := now, c.currentBrightness(lights)
	if resume {
		if t, err := c.timeSource(keyPreRampStart, now).Get(); err == nil {
			start = t
		}
		if v, ok := c.get(keyPreRampStartBright); ok {
			if b, err := parseBrightness(v); err == nil {
				from = b
			}
		}
	}
	if !now.Before(end) {
		return nil
	}

	err := errors.Join(
		c.setFlag(ctx, keyPreRampActive, true),
		c.set(ctx, keyPreRampStart, start, nil),
		c.set(ctx, keyPreRampStartBright, from, host.Attributes{"unit_of_measurement": "%"}),
	)
	if err != nil {
		return err
	}
	c.logger.Info("evening pre-ramp starting", "from", from, "to", rc.BrightnessTo, "resume", resume, slog.Time("start", start))
	c.startRamp(ramp.Spec{
		Kind:        ramp.EveningPreBrightness,
		Start:       start,
		End:         end,
		Channels:    []ramp.Channel{{Name: ramp.Brightness, From: from, To: rc.BrightnessTo}},
		Cadence:     rc.Cadence,
		HardTimeout: rc.HardTimeout,
		Output:      c.lightOutput(),
		OnComplete:  c.onPreRampComplete,
	})
	return nil
}

// currentBrightness returns the brightness of the first light that reports one, as a percentage.
func (c *Controller) currentBrightness(lights []string) int {
	for _, light := range lights {
		if v, ok := c.host.Attribute(light, "brightness"); ok {
			if b, ok := host.Float(v); ok {
				return int(math.Round(b / 255 * 100))
			}
		}
	}
	c.logger.Debug("no light reports its brightness. pre-ramp starts at 0%")
	return 0
}

func (c *Controller) onPreRampComplete(h *ramp.Handle, final ramp.Sample) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.completed(h) {
		return
	}
	ctx := c.ctx
	c.trigger("preramp_complete", func() error {
		return errors.Join(
			c.setFlag(ctx, keyPreRampActive, false),
			c.set(ctx, keyPreRampStartBright, strconv.Itoa(final.Values[ramp.Brightness]), host.Attributes{"unit_of_measurement": "%"}),
		)
	})
}
