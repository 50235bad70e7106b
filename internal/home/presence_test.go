package home

import (
	"context"
	"github.com/clambin/home-controller/internal/host"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestController_GoAway(t *testing.T) {
	ctx := context.Background()
	cfg := testConfiguration()
	f := newFixture(t, day(21, 0), cfg)
	seedEvening(f)

	f.host.Seed(cfg.Entities.Presence[1], "not_home", nil)
	f.controller.HandleEvent(ctx, host.Event{Key: cfg.Entities.Presence[1], Old: "home", New: "not_home"})

	assert.Equal(t, Away, f.controller.Mode())
	assert.Equal(t, "off", f.host.Value(keyEveningActive))
	assert.NotEqual(t, "on", f.host.Value(keyEveningDone))
	for _, light := range []string{"light.lamp_1", "light.kitchen", "light.wled_tv"} {
		assert.Equal(t, "off", f.host.Value(light), light)
	}
	assert.Empty(t, f.notifier.errors())
}

func TestController_GoAway_EndsWorkdayEarlyMorning(t *testing.T) {
	ctx := context.Background()
	cfg := testConfiguration()
	f := newFixture(t, day(4, 55), cfg)
	assert.NoError(t, f.controller.OnMotion(ctx, cfg.Entities.Motion[0]))
	assert.Equal(t, "work", f.host.Value(keyProfile))

	f.clock.Set(day(5, 45))
	f.host.Seed(cfg.Entities.Presence[0], "not_home", nil)
	f.controller.HandleEvent(ctx, host.Event{Key: cfg.Entities.Presence[0], Old: "home", New: "not_home"})

	assert.Equal(t, Away, f.controller.Mode())
	assert.Equal(t, "off", f.host.Value(keyEMActive))
	assert.Equal(t, "workday_presence_away", f.host.Value(keyEMEndReason))
	assert.Equal(t, "off", f.host.Value(keyRampActive))
}

func TestController_ReturnHome(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		secondary string
		want      Mode
		wantSweep bool
	}{
		{name: "afternoon", now: day(14, 0), want: Day},
		{name: "evening", now: day(21, 0), want: Evening},
		{name: "after cutoff", now: day(23, 30), want: Night, wantSweep: true},
		{name: "early hours", now: day(3, 0), want: Night, wantSweep: true},
		{name: "after cutoff, secondary display on", now: day(23, 30), secondary: "playing", want: Night},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfiguration()
			f := newFixture(t, tt.now, cfg)
			f.host.Seed(keyMode, Away.String(), nil)
			f.host.Seed(keyNightStartedOn, tt.now.Format(dateLayout), nil)
			f.host.Seed(keyEveningActive, "on", nil)
			f.host.Seed("light.kitchen", "on", nil)
			if tt.secondary != "" {
				f.host.Seed(cfg.Entities.SecondaryDisplay, tt.secondary, nil)
			}

			f.controller.HandleEvent(ctx, host.Event{Key: cfg.Entities.Presence[0], Old: "not_home", New: "home"})

			assert.Equal(t, tt.want, f.controller.Mode())
			assert.Equal(t, tt.wantSweep, f.host.Value("light.kitchen") == "off")
			if tt.want == Evening {
				assert.Empty(t, f.host.Value(keyNightStartedOn))
				assert.Equal(t, "presence_return_after_away", f.host.Value(keyEveningReason))
			}
			assert.Empty(t, f.notifier.errors())
		})
	}
}

func TestController_ReturnHome_NotAllHome(t *testing.T) {
	ctx := context.Background()
	cfg := testConfiguration()
	f := newFixture(t, day(14, 0), cfg)
	f.host.Seed(keyMode, Away.String(), nil)
	f.host.Seed(cfg.Entities.Presence[1], "not_home", nil)

	f.controller.HandleEvent(ctx, host.Event{Key: cfg.Entities.Presence[0], Old: "not_home", New: "home"})
	assert.Equal(t, Away, f.controller.Mode())
}
