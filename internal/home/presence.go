package home

import (
	"context"
	"errors"
	"github.com/clambin/home-controller/internal/host"
)

// onPresence moves the home to Away when any tracker leaves, and out of Away when all trackers are home again.
func (c *Controller) onPresence(ctx context.Context, tracker string) error {
	if !c.enabled() {
		return ErrDisabled
	}
	if c.allHome() {
		if c.mode() != Away {
			return nil
		}
		return c.returnHome(ctx, tracker)
	}
	if c.mode() == Away {
		return nil
	}
	return c.goAway(ctx, tracker)
}

// returnHome picks the mode that matches the time of day when everyone returns.
func (c *Controller) returnHome(ctx context.Context, tracker string) error {
	const reason = "presence_return_after_away"
	now := c.now()
	cons := c.today(now)
	in, err := c.updateEveningWindow(ctx, now)
	if err != nil {
		return err
	}
	l := c.logger.With("tracker", tracker)

	switch {
	case !now.Before(cons.cutoff) || Of(now).Before(c.cfg.Morning.PreworkStart):
		l.Info("returned home during night hours")
		return c.enterNight(ctx, !c.secondaryActive(), reason)
	case in:
		l.Info("returned home during evening window")
		if v, _ := c.get(keyNightStartedOn); v == now.Format(dateLayout) {
			if err = c.set(ctx, keyNightStartedOn, "", host.Attributes{"cleared_due_to": "evening_return_before_cutoff"}); err != nil {
				return err
			}
		}
		if _, err = c.enterEvening(ctx, reason, true); err != nil {
			return err
		}
		return c.startEveningRampIfNeeded(ctx)
	default:
		l.Info("returned home")
		return errors.Join(
			c.setMode(ctx, Day, reason),
			c.recordAction(ctx, "returned_home:"+tracker+"→Day"),
		)
	}
}

// goAway ends Early Morning (after the work ramp) and Evening, switches to Away and turns off all lights.
func (c *Controller) goAway(ctx context.Context, tracker string) error {
	now := c.now()
	var err error
	if c.mode() == EarlyMorning && c.flag(keyWorkdayDetected) && !now.Before(c.cfg.Morning.WorkRamp.End.On(now)) {
		err = errors.Join(
			c.markEarlyMorningEnded(ctx, "workday_presence_away"),
			c.cancelMorningRamp(ctx),
		)
	}
	if c.mode() == Evening || c.flag(keyEveningActive) {
		err = errors.Join(err, c.endEvening(ctx, "presence_away", false))
	}
	err = errors.Join(err,
		c.cancelEveningRamps(ctx),
		c.setMode(ctx, Away, "presence_away:"+tracker),
		c.clearCutoverPending(ctx),
	)
	if lights := c.lightsOn(c.host.Keys("light")); len(lights) > 0 {
		c.logger.Info("turning off lights for Away", "lights", lights)
		err = errors.Join(err, c.turnOff(ctx, lights))
	}
	return errors.Join(err, c.recordAction(ctx, "went_away:"+tracker))
}

// selectMode applies a manually selected mode. Selecting the current mode does nothing: the Controller mirrors its own
// mode changes to the selector.
func (c *Controller) selectMode(ctx context.Context, value, reason string) error {
	if !c.enabled() {
		return ErrDisabled
	}
	m, err := ParseMode(value)
	if err != nil {
		return err
	}
	current := c.mode()
	if m == current {
		return nil
	}
	c.logger.Info("mode selected", "mode", m, "reason", reason)

	switch m {
	case Night:
		return c.enterNight(ctx, true, reason)
	case Evening:
		if _, err = c.enterEvening(ctx, reason, true); err != nil {
			return err
		}
		return c.startEveningRampIfNeeded(ctx)
	case Away, Day:
		if current == Evening || c.flag(keyEveningActive) {
			err = c.endEvening(ctx, reason, false)
		}
		return errors.Join(err, c.setMode(ctx, m, reason), c.recordAction(ctx, reason+"→"+m.String()))
	default:
		return errors.Join(c.setMode(ctx, m, reason), c.recordAction(ctx, reason+"→"+m.String()))
	}
}
