package home

import (
	"context"
	"errors"
	"github.com/clambin/home-controller/internal/clock"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/host/memory"
	"github.com/clambin/home-controller/internal/notifier"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	notifications []notifier.Notification
	dismissed     []string
	lock          sync.Mutex
}

func (r *recorder) Notify(n notifier.Notification) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) Dismiss(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.dismissed = append(r.dismissed, id)
}

func (r *recorder) errors() []notifier.Notification {
	r.lock.Lock()
	defer r.lock.Unlock()
	var errs []notifier.Notification
	for _, n := range r.notifications {
		if strings.HasPrefix(n.ID, "hc_error_") {
			errs = append(errs, n)
		}
	}
	return errs
}

type fixture struct {
	controller *Controller
	host       *memory.Host
	clock      *clock.Fake
	notifier   *recorder
	metrics    *Metrics
}

func day(hour, minute int) time.Time {
	return time.Date(2024, time.October, 16, hour, minute, 0, 0, time.UTC)
}

func testConfiguration() Configuration {
	cfg := DefaultConfiguration()
	for _, r := range []*RampConfiguration{&cfg.Morning.WorkRamp, &cfg.Morning.NonWorkRamp, &cfg.Evening.PreRamp, &cfg.Evening.ColorRamp} {
		r.Cadence = 10 * time.Millisecond
	}
	cfg.Night.DisplayDebounce = 10 * time.Millisecond
	cfg.Night.Wait = time.Hour
	return cfg
}

func newFixture(t *testing.T, now time.Time, cfg Configuration) *fixture {
	t.Helper()
	f := fixture{
		host:     memory.New(),
		clock:    clock.NewFake(now),
		notifier: &recorder{},
		metrics:  NewMetrics("home", "controller", nil),
	}
	for _, tracker := range cfg.Entities.Presence {
		f.host.Seed(tracker, "home", nil)
	}
	f.host.Seed(keySunriseToday, day(7, 10).Format(time.RFC3339), nil)
	f.host.Seed(keySunsetToday, day(18, 45).Format(time.RFC3339), nil)
	f.host.Seed(cfg.Entities.Sun, "above_horizon", host.Attributes{"elevation": 20.0})
	f.host.Seed(cfg.Entities.ModeSelect, Day.String(), nil)
	f.host.Seed(cfg.Entities.Brightness[1], "80", nil)

	f.controller = New(cfg, f.host, f.notifier, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(f.clock),
		WithMetrics(f.metrics),
	)
	t.Cleanup(f.controller.shutdown)
	return &f
}

func TestController_Morning_DayOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(6, 3), testConfiguration())

	require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))

	assert.Equal(t, EarlyMorning, f.controller.Mode())
	assert.Equal(t, "day_off", f.host.Value(keyProfile))
	assert.Equal(t, "on", f.host.Value(keyMotionLock))
	assert.Equal(t, "off", f.host.Value(keyWorkdayDetected))
	assert.Equal(t, "on", f.host.Value(keyRampActive))
	assert.Equal(t, "on", f.host.Value(keyEMActive))
	assert.Equal(t, day(6, 3).Format(time.RFC3339), f.host.Value(keyEMStart))
	// sunrise 07:10 + 30 min is later than the 07:30 floor
	assert.Equal(t, day(7, 40).Format(time.RFC3339), f.host.Value(keyEMUntil))
	assert.Equal(t, "Early Morning", f.host.Value(f.controller.cfg.Entities.ModeSelect))

	assert.Eventually(t, func() bool { return f.host.Value(keyRampBrightness) != "" }, time.Second, 10*time.Millisecond)

	f.clock.Set(day(7, 41))
	assert.Eventually(t, func() bool { return f.controller.Mode() == Day }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "off", f.host.Value(keyRampActive))
	assert.Equal(t, "off", f.host.Value(keyEMActive))
	assert.Equal(t, "nonwork_ramp_complete", f.host.Value(keyEMEndReason))
	assert.Equal(t, "80", f.host.Value(keyRampBrightness))
	assert.Equal(t, "5000", f.host.Value(keyRampKelvin))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.transitions.WithLabelValues("Early Morning", "Day")))
}

func TestController_Morning_Prework(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(4, 47), testConfiguration())

	require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.aqara_motion_sensor_p1_occupancy"))
	assert.Equal(t, EarlyMorning, f.controller.Mode())
	assert.Equal(t, "work", f.host.Value(keyProfile))
	assert.Equal(t, "on", f.host.Value(keyWorkdayDetected))
	assert.Equal(t, day(4, 50).Format(time.RFC3339), f.host.Value(keyEMStart))
	assert.Equal(t, day(5, 40).Format(time.RFC3339), f.host.Value(keyEMUntil))

	// before its start, the ramp holds its start values
	assert.Eventually(t, func() bool { return f.host.Value(keyRampBrightness) == "10" }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "0", f.host.Value(keyRampProgress))

	// a completed work ramp does not end Early Morning
	f.clock.Set(day(5, 41))
	assert.Eventually(t, func() bool { return f.host.Value(keyRampActive) == "off" }, time.Second, 10*time.Millisecond)
	assert.Equal(t, EarlyMorning, f.controller.Mode())
	assert.Equal(t, "50", f.host.Value(keyRampBrightness))
}

func TestController_Morning_Override(t *testing.T) {
	ctx := context.Background()
	cfg := testConfiguration()
	f := newFixture(t, day(4, 47), cfg)
	f.host.Seed(cfg.Entities.DayTypeOverride, "day_off", nil)

	require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.aqara_motion_sensor_p1_occupancy"))
	assert.Equal(t, "day_off", f.host.Value(keyProfile))
	assert.Equal(t, day(4, 47).Format(time.RFC3339), f.host.Value(keyEMStart))
}

func TestController_Morning_Ignored(t *testing.T) {
	tests := []struct {
		name  string
		now   time.Time
		setup func(f *fixture)
	}{
		{name: "before window", now: day(4, 44)},
		{name: "after window", now: day(10, 0)},
		{name: "away", now: day(6, 0), setup: func(f *fixture) { f.host.Seed(keyMode, "Away", nil) }},
		{name: "locked", now: day(6, 0), setup: func(f *fixture) { f.host.Seed(keyMotionLock, "on", nil) }},
		{name: "classified before restart", now: day(6, 0), setup: func(f *fixture) {
			f.host.Seed(keyClassifiedAt, day(5, 10).Format(time.RFC3339), nil)
			f.host.Seed(keyProfile, "day_off", nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.now, testConfiguration())
			if tt.setup != nil {
				tt.setup(f)
			}
			mode := f.controller.Mode()
			require.NoError(t, f.controller.OnMotion(context.Background(), "binary_sensor.aqara_motion_sensor_p1_occupancy"))
			assert.Equal(t, mode, f.controller.Mode())
			assert.Empty(t, f.host.Value(keyRampActive))
		})
	}
}

func TestController_Morning_ClassifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(6, 3), testConfiguration())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))
		}()
	}
	wg.Wait()

	var classifications int
	for _, action := range f.controller.Status().LastActions {
		if strings.HasSuffix(action, "motion_day_off→Early_Morning") {
			classifications++
		}
	}
	assert.Equal(t, 1, classifications)

	// the next morning classifies again, once the morning reset cleared the lock
	f.clock.Set(day(6, 3).AddDate(0, 0, 1).Add(-90 * time.Minute))
	f.controller.MorningReset(ctx)
	assert.Equal(t, "off", f.host.Value(keyMotionLock))
	f.clock.Advance(90 * time.Minute)
	require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))
	assert.Equal(t, f.clock.Now().Format(time.RFC3339), f.host.Value(keyClassifiedAt))
}

func TestController_Disabled(t *testing.T) {
	cfg := testConfiguration()
	f := newFixture(t, day(6, 3), cfg)
	f.host.Seed(cfg.Entities.Enabled, "off", nil)

	err := f.controller.OnMotion(context.Background(), "binary_sensor.kitchen_iris_frig_occupancy")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, Day, f.controller.Mode())
	assert.Empty(t, f.notifier.errors())
}

func TestController_ErrorBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(6, 3), testConfiguration())
	f.host.FailOn(keyMode, errors.New("host unavailable"))

	err := f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy")
	require.Error(t, err)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "motion", opErr.Op)
	assert.Equal(t, map[string]string{"device_tracker.iphone15": "home", "device_tracker.work_iphone": "home"}, opErr.Presence)

	errs := f.notifier.errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "host unavailable")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.errors.WithLabelValues("motion")))

	// scheduled entry points alert, but do not return the error
	f.host.FailOn(keyInEvening, errors.New("host unavailable"))
	f.controller.Tick(ctx)
	assert.Len(t, f.notifier.errors(), 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.errors.WithLabelValues("tick")))
}

func TestController_SelectMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(21, 30), testConfiguration())
	f.host.Seed("light.kitchen", "on", nil)
	f.host.Seed("light.wled_strip", "on", nil)

	err := f.controller.SelectMode(ctx, "Bedtime")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Empty(t, f.notifier.errors())

	require.NoError(t, f.controller.SelectMode(ctx, "evening"))
	assert.Equal(t, Evening, f.controller.Mode())
	assert.Equal(t, "on", f.host.Value(keyEveningActive))

	require.NoError(t, f.controller.SelectMode(ctx, "Night"))
	assert.Equal(t, Night, f.controller.Mode())
	assert.Equal(t, "off", f.host.Value("light.kitchen"))
	assert.Equal(t, "on", f.host.Value("light.wled_strip"))
	assert.Equal(t, "on", f.host.Value(keyEveningDone))
	assert.Equal(t, "2024-10-16", f.host.Value(keyNightStartedOn))

	require.NoError(t, f.controller.SelectMode(ctx, "Day"))
	assert.Equal(t, Day, f.controller.Mode())
}

func TestController_HandleEvent_ModeSelect(t *testing.T) {
	ctx := context.Background()
	cfg := testConfiguration()
	f := newFixture(t, day(12, 0), cfg)

	f.host.Seed(cfg.Entities.ModeSelect, "Away", nil)
	f.controller.HandleEvent(ctx, host.Event{Key: cfg.Entities.ModeSelect, Old: "Day", New: "Away"})
	assert.Equal(t, Away, f.controller.Mode())

	// echo of our own change
	f.controller.HandleEvent(ctx, host.Event{Key: cfg.Entities.ModeSelect, Old: "Day", New: "Away"})
	assert.Equal(t, Away, f.controller.Mode())
	assert.Empty(t, f.notifier.errors())
}
