package home

import (
	"context"
	"errors"
	"fmt"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/resolver"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// dailyConstants are the values derived once per day (and whenever their inputs change).
type dailyConstants struct {
	date         time.Time
	cutoff       time.Time
	eveningStart time.Time
	dayMinStart  time.Time
	elevation    float64
}

// noElevation is used when the sun's elevation is not known. It never satisfies the Day readiness threshold.
const noElevation = -90

func (c *Controller) timeSource(key string, now time.Time) resolver.Source[time.Time] {
	return resolver.FromState(c.get, key, func(s string) (time.Time, error) {
		return clock.Parse(s, now)
	})
}

func (c *Controller) timeSources(keys []string, now time.Time) []resolver.Source[time.Time] {
	sources := make([]resolver.Source[time.Time], 0, len(keys))
	for _, key := range keys {
		sources = append(sources, c.timeSource(key, now))
	}
	return sources
}

// timeOfDay returns the first configured time of day in keys, placed on today. If none is present, it notifies that
// the input is missing and returns fallback.
func (c *Controller) timeOfDay(name string, keys []string, fallback Timestamp, now time.Time) (time.Time, string) {
	t, source, failures := resolver.FirstPresent(c.timeSources(keys, now)...)
	if source == "" {
		if len(keys) > 0 {
			c.logger.Debug("no valid input. using fallback", "input", name, "fallback", fallback, "failures", resolver.Describe(failures))
			c.helpers.Missing(name, fallback.String())
		}
		return fallback.On(now), "default"
	}
	c.helpers.Restored(name)
	return Of(t).On(now), source
}

// computeConstants derives today's constants from the host's state.
func (c *Controller) computeConstants(now time.Time) dailyConstants {
	cons := dailyConstants{date: now}
	cons.cutoff, _ = c.timeOfDay("evening cutoff", c.cfg.Entities.Cutoff, c.cfg.Evening.Cutoff, now)

	if sunset, err := c.timeSource(keySunsetToday, now).Get(); err == nil {
		cons.eveningStart = Of(sunset.Add(-c.cfg.Evening.StartOffset)).On(now)
		c.helpers.Restored("sunset")
	} else if last, err := c.timeSource(keyEveningStartLocal, now).Get(); err == nil {
		cons.eveningStart = Of(last).On(now)
		c.helpers.Missing("sunset", "evening start of "+last.Format("15:04"))
	} else {
		c.logger.Warn("no sunset time available. evening window disabled")
		c.helpers.Missing("sunset", "evening window disabled")
	}

	if sunrise, err := c.timeSource(keySunriseToday, now).Get(); err == nil {
		cons.dayMinStart = Of(sunrise.Add(c.cfg.Day.SunriseOffset)).On(now)
		c.helpers.Restored("sunrise")
	} else {
		cons.dayMinStart = c.cfg.Day.Floor.On(now)
		c.helpers.Missing("sunrise", c.cfg.Day.Floor.String())
	}

	cons.elevation = c.cfg.Day.ElevationTargets[int(now.Month())]
	if v, ok := c.get(c.cfg.Entities.ElevationOverride); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cons.elevation = f
		}
	}
	return cons
}

// today returns today's constants, computing them if they were not refreshed yet today.
func (c *Controller) today(now time.Time) dailyConstants {
	if c.constants.date.IsZero() || !clock.SameDay(c.constants.date, now) {
		c.constants = c.computeConstants(now)
	}
	return c.constants
}

// refreshConstants recomputes today's constants, writes them to their sensors and republishes the Day targets.
func (c *Controller) refreshConstants(ctx context.Context) error {
	if !c.enabled() {
		return ErrDisabled
	}
	now := c.now()
	c.constants = c.computeConstants(now)
	cons := c.constants
	c.logger.Debug("daily constants refreshed",
		slog.Time("cutoff", cons.cutoff),
		slog.Time("eveningStart", cons.eveningStart),
		slog.Time("dayMinStart", cons.dayMinStart),
		slog.Float64("elevation", cons.elevation),
	)

	err := errors.Join(
		c.set(ctx, keyDayMinStart, cons.dayMinStart, host.Attributes{"sunrise_offset": c.cfg.Day.SunriseOffset.String()}),
		c.set(ctx, keyDayElevTarget, cons.elevation, host.Attributes{"unit_of_measurement": "°", "month": int(now.Month())}),
		c.set(ctx, keyDailyConstant, now.Format(dateLayout), host.Attributes{
			"cutoff":        cons.cutoff.Format(time.RFC3339),
			"evening_start": host.Format(cons.eveningStart),
			"day_min_start": cons.dayMinStart.Format(time.RFC3339),
			"elevation":     cons.elevation,
		}),
	)
	if !cons.eveningStart.IsZero() {
		err = errors.Join(err, c.set(ctx, keyEveningStartLocal, cons.eveningStart.Format("15:04:05"), nil))
	}
	return errors.Join(err, c.publishDayTargets(ctx))
}

// dayFloor returns the earliest time of day that Day may start.
func (c *Controller) dayFloor(now time.Time) time.Time {
	floor, _ := c.timeOfDay("day floor", c.cfg.Entities.DayFloor, c.cfg.Day.Floor, now)
	return floor
}

// dayCommit returns the time the nonwork ramp ends and Day starts: the latest of the day floor, the minimum Day start
// and the learned Day start. A commit time in the past returns now.
func (c *Controller) dayCommit(now time.Time) (time.Time, string) {
	cons := c.today(now)
	learned := make([]resolver.Source[time.Time], 0, len(c.cfg.Entities.LearnedStart))
	for _, key := range c.cfg.Entities.LearnedStart {
		learned = append(learned, resolver.FromState(c.get, key, func(s string) (time.Time, error) {
			t, err := clock.Parse(s, now)
			return Of(t).On(now), err
		}))
	}
	commit, source, failures := resolver.MaxTime(
		resolver.Value("day_floor", c.dayFloor(now)),
		resolver.Value("day_min_start", cons.dayMinStart),
		resolver.First("learned_start", learned...),
	)
	if len(failures) > 0 {
		c.logger.Debug("day commit: sources skipped", "failures", resolver.Describe(failures))
	}
	if commit.Before(now) {
		commit = now
	}
	return commit, source
}

// dayCommitTime returns the end time of a nonwork ramp starting at start.
func (c *Controller) dayCommitTime(start time.Time) time.Time {
	commit, _ := c.dayCommit(start)
	return commit
}

// dayTargetBrightness returns the brightness that the nonwork ramp glides to, and its source.
func (c *Controller) dayTargetBrightness(ctx context.Context) (int, string) {
	sources := make([]resolver.Source[int], 0, len(c.cfg.Entities.Brightness)+1)
	if c.teaching != nil {
		sources = append(sources, resolver.Source[int]{
			Name: "teaching",
			Get: func() (int, error) {
				target, err := c.teaching.Target(ctx, c.cfg.Day.Learning.Room, c.cfg.Day.Learning.Condition)
				return clampBrightness(float64(target)), err
			},
		})
	}
	for _, key := range c.cfg.Entities.Brightness {
		sources = append(sources, resolver.FromState(c.get, key, parseBrightness))
	}
	target, source, failures := resolver.FirstPresent(sources...)
	if source == "" {
		fallback := c.cfg.Day.FallbackBrightness
		c.logger.Debug("no day target brightness. using fallback", "fallback", fallback, "failures", resolver.Describe(failures))
		c.helpers.Missing("day target brightness", strconv.Itoa(fallback)+"%")
		return fallback, "fallback"
	}
	c.helpers.Restored("day target brightness")
	return target, source
}

func parseBrightness(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, err
	}
	return clampBrightness(f), nil
}

func clampBrightness(f float64) int {
	return int(math.Round(min(max(f, 0), 100)))
}

// publishDayTargets writes the Day commit time and target brightness.
func (c *Controller) publishDayTargets(ctx context.Context) error {
	if !c.enabled() {
		return ErrDisabled
	}
	now := c.now()
	commit, commitSource := c.dayCommit(now)
	target, targetSource := c.dayTargetBrightness(ctx)
	return errors.Join(
		c.set(ctx, keyDayCommit, commit, host.Attributes{"source": commitSource}),
		c.set(ctx, keyDayTarget, target, host.Attributes{"unit_of_measurement": "%", "source": targetSource}),
	)
}

// updateEveningWindow evaluates whether now falls inside the evening window and writes the result.
func (c *Controller) updateEveningWindow(ctx context.Context, now time.Time) (bool, error) {
	cons := c.today(now)
	in := !cons.eveningStart.IsZero() &&
		!now.Before(cons.eveningStart) &&
		now.Before(cons.cutoff) &&
		now.Hour() >= c.cfg.Evening.EarliestHour
	return in, c.setFlag(ctx, keyInEvening, in)
}

func (c *Controller) sunElevation() float64 {
	v, ok := c.host.Attribute(c.cfg.Entities.Sun, "elevation")
	if !ok {
		return noElevation
	}
	elevation, ok := host.Float(v)
	if !ok {
		return noElevation
	}
	return elevation
}

// updateDayReady feeds the Day readiness condition into its debounce gate and writes the stable result. Once Day is
// ready, the elevation threshold drops by the hysteresis, so a sun hovering around the threshold does not flap.
func (c *Controller) updateDayReady(ctx context.Context, now time.Time, inEvening bool) (bool, error) {
	cons := c.today(now)
	earliest := cons.dayMinStart
	if floor := c.dayFloor(now); floor.After(earliest) {
		earliest = floor
	}
	timeOK := !now.Before(earliest)
	elevation := c.sunElevation()
	threshold := cons.elevation
	if c.dayReady.Stable() {
		threshold -= c.cfg.Day.Hysteresis
	}
	condition := timeOK && elevation >= threshold && !inEvening
	ready := c.dayReady.Update(now, condition)

	reason := fmt.Sprintf("time_ok=%t (after %s) elevation=%.1f threshold=%.1f in_evening=%t",
		timeOK, earliest.Format("15:04"), elevation, threshold, inEvening)
	if remaining, ok := c.dayReady.Remaining(now); ok {
		reason += fmt.Sprintf(" debounce=%ds", int(remaining.Seconds()))
	}
	return ready, errors.Join(
		c.set(ctx, keyDayReady, ready, host.Attributes{"reason": reason}),
		c.set(ctx, keyDayReadyReason, reason, nil),
	)
}

// maybeTransitionToDay moves Night or Early Morning to Day once Day is ready. Early Morning waits for its ramp.
func (c *Controller) maybeTransitionToDay(ctx context.Context, ready, inEvening bool) error {
	if !ready || inEvening {
		return nil
	}
	switch c.mode() {
	case Night:
		return errors.Join(
			c.setFlag(ctx, keyCutoverPending, false),
			c.setMode(ctx, Day, "day_ready"),
			c.recordAction(ctx, "day_ready: Night→Day"),
		)
	case EarlyMorning:
		if c.morningRampActive() {
			return nil
		}
		return errors.Join(
			c.setMode(ctx, Day, "day_ready"),
			c.markEarlyMorningEnded(ctx, "day_ready"),
			c.recordAction(ctx, "day_ready: Early_Morning→Day"),
		)
	}
	return nil
}
