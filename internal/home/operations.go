package home

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SelectMode switches the home to the named mode, as if it was selected manually.
func (c *Controller) SelectMode(ctx context.Context, mode string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.guard("select_mode", []any{mode}, func() error {
		return c.selectMode(ctx, mode, "manual_select")
	})
}

// OnMotion handles motion reported by source.
func (c *Controller) OnMotion(ctx context.Context, source string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.guard("motion", []any{source}, func() error {
		return c.onMotion(ctx, source)
	})
}

// ForceClassification classifies today's morning as profile ("work" or "day_off"), regardless of the time of day and
// any earlier classification, and starts the matching ramp.
func (c *Controller) ForceClassification(ctx context.Context, profile string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.guard("force_classification", []any{profile}, func() error {
		p, err := forcedProfile(profile)
		if err != nil {
			return err
		}
		now := c.now()
		return c.classify(ctx, Classification{Date: now, Profile: p, ClassifiedAt: now, Source: "forced", Override: true})
	})
}

// ForceEndMorningRamp stops the morning ramp and ends Early Morning. The mode does not change.
func (c *Controller) ForceEndMorningRamp(ctx context.Context, reason string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if reason == "" {
		reason = "manual_force_end"
	}
	return c.guard("force_end_morning_ramp", []any{reason}, func() error {
		var err error
		if c.flag(keyRampActive) || c.morningRampActive() {
			err = errors.Join(
				c.cancelMorningRamp(ctx),
				c.markEarlyMorningEnded(ctx, reason),
				c.recordAction(ctx, "morning_ramp_force_end:"+reason),
			)
		}
		return errors.Join(err, c.setFlag(ctx, keyMotionLock, false))
	})
}

// ResetMorning clears today's morning guards, so the next motion classifies the morning again.
func (c *Controller) ResetMorning(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.guard("reset_morning", nil, func() error {
		return c.morningReset(ctx, "manual_reset")
	})
}

// TestMorningTrigger forces a classification and starts its ramp from start. With prework set, a work ramp starts at
// the workday start instead. A zero start uses the current time.
func (c *Controller) TestMorningTrigger(ctx context.Context, profile string, start time.Time, prework bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.guard("test_morning_trigger", []any{profile, start, prework}, func() error {
		p, err := forcedProfile(profile)
		if err != nil {
			return err
		}
		now := c.now()
		if start.IsZero() {
			start = now
		}
		return c.classify(ctx, Classification{
			Date:         now,
			Profile:      p,
			ClassifiedAt: start,
			Source:       "test",
			Prework:      prework && p == Work,
			Override:     true,
		})
	})
}

func forcedProfile(profile string) (Profile, error) {
	p, ok := parseProfile(profile)
	if !ok {
		return Unknown, fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}
	return p, nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.mode()
}
