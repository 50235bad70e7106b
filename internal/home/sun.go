package home

import (
	"context"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/host"
	"time"
)

// publishSunSchedule derives today's sunrise and sunset from the sun's next rising and setting. Once an event has
// passed, the next one is tomorrow's: today's is approximated by subtracting a day. Changed values refresh the daily
// constants.
func (c *Controller) publishSunSchedule(ctx context.Context) error {
	if !c.enabled() {
		return ErrDisabled
	}
	now := c.now()
	var changed bool
	for _, event := range []struct {
		attribute string
		key       string
	}{
		{attribute: "next_rising", key: keySunriseToday},
		{attribute: "next_setting", key: keySunsetToday},
	} {
		v, ok := c.host.Attribute(c.cfg.Entities.Sun, event.attribute)
		if !ok {
			continue
		}
		next, err := clock.Parse(host.Format(v), now)
		if err != nil {
			c.logger.Warn("invalid sun event", "attribute", event.attribute, "value", v, "err", err)
			continue
		}
		today := eventToday(next, now).Format(time.RFC3339)
		if current, _ := c.get(event.key); current == today {
			continue
		}
		if err = c.set(ctx, event.key, today, host.Attributes{"source": c.cfg.Entities.Sun + "." + event.attribute}); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return c.refreshConstants(ctx)
}

func eventToday(next, now time.Time) time.Time {
	next = next.In(now.Location())
	if clock.SameDay(next, now) {
		return next
	}
	return next.AddDate(0, 0, -1)
}
