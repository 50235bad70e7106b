package home

import (
	"context"
	"encoding/json"
	"github.com/clambin/home-controller/internal/host"
	"github.com/clambin/home-controller/internal/ramp"
	"github.com/clambin/home-controller/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type contractCache struct {
	published map[string][]byte
	lock      sync.Mutex
}

func (c *contractCache) Publish(topic string, payload []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.published == nil {
		c.published = make(map[string][]byte)
	}
	c.published[topic] = payload
	return nil
}

func (c *contractCache) get(topic string) (Contract, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	payload, ok := c.published[topic]
	if !ok {
		return Contract{}, false
	}
	var contract Contract
	return contract, json.Unmarshal(payload, &contract) == nil
}

func TestMorningConfiguration_Classify(t *testing.T) {
	m := DefaultConfiguration().Morning
	tests := []struct {
		now         time.Time
		wantProfile Profile
		wantPrework bool
		wantWindow  bool
	}{
		{now: day(4, 44), wantProfile: Unknown},
		{now: day(4, 45), wantProfile: Work, wantPrework: true, wantWindow: true},
		{now: day(4, 49), wantProfile: Work, wantPrework: true, wantWindow: true},
		{now: day(4, 50), wantProfile: Work, wantWindow: true},
		{now: day(4, 59), wantProfile: Work, wantWindow: true},
		{now: day(5, 0), wantProfile: DayOff, wantWindow: true},
		{now: day(6, 3), wantProfile: DayOff, wantWindow: true},
		{now: day(9, 59), wantProfile: DayOff, wantWindow: true},
		{now: day(10, 0), wantProfile: Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.now.Format("15:04"), func(t *testing.T) {
			profile, prework, inWindow := m.Classify(tt.now)
			assert.Equal(t, tt.wantProfile, profile)
			assert.Equal(t, tt.wantPrework, prework)
			assert.Equal(t, tt.wantWindow, inWindow)
		})
	}
}

func TestController_Contract(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(6, 3), testConfiguration())
	cache := contractCache{}
	f.controller.contractCache = &cache

	require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))
	contract, ok := cache.get("home/controller/em/contract")
	require.True(t, ok)
	assert.Equal(t, Contract{
		Route:     "day_off",
		Start:     day(6, 3).Format(time.RFC3339),
		Until:     day(7, 40).Format(time.RFC3339),
		Active:    true,
		UpdatedAt: day(6, 3).Format(time.RFC3339),
		Version:   1,
	}, contract)

	require.NoError(t, f.controller.ForceEndMorningRamp(ctx, ""))
	contract, _ = cache.get("home/controller/em/contract")
	assert.False(t, contract.Active)
	assert.Equal(t, "manual_force_end", f.host.Value(keyEMEndReason))
	assert.Equal(t, "off", f.host.Value(keyMotionLock))
	assert.Equal(t, EarlyMorning, f.controller.Mode())
}

func TestController_Startup(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		setup    func(f *fixture)
		wantMode Mode
		wantRamp bool
	}{
		{
			name:     "someone away",
			now:      day(12, 0),
			setup:    func(f *fixture) { f.host.Seed("device_tracker.work_iphone", "not_home", nil) },
			wantMode: Away,
		},
		{
			name:     "after cutoff",
			now:      day(23, 15),
			wantMode: Night,
		},
		{
			name: "after cutoff, night started",
			now:  day(23, 15),
			setup: func(f *fixture) {
				f.host.Seed(keyNightStartedOn, "2024-10-16", nil)
				f.host.Seed("light.kitchen", "on", nil)
			},
			wantMode: Night,
		},
		{
			name: "early morning in progress",
			now:  day(5, 10),
			setup: func(f *fixture) {
				f.host.Seed(keyEMActive, "on", nil)
				f.host.Seed(keyEMRoute, "work", nil)
				f.host.Seed(keyEMStart, day(4, 52).Format(time.RFC3339), nil)
				f.host.Seed(keyRampActive, "on", nil)
			},
			wantMode: EarlyMorning,
			wantRamp: true,
		},
		{
			name: "early morning from yesterday",
			now:  day(5, 10),
			setup: func(f *fixture) {
				f.host.Seed(keyEMActive, "on", nil)
				f.host.Seed(keyEMRoute, "work", nil)
				f.host.Seed(keyEMStart, day(4, 52).AddDate(0, 0, -1).Format(time.RFC3339), nil)
				f.host.Seed(keyMode, Night.String(), nil)
			},
			wantMode: Night,
		},
		{
			name:     "evening window",
			now:      day(19, 0),
			wantMode: Evening,
		},
		{
			name:     "evening window, night started",
			now:      day(19, 0),
			setup:    func(f *fixture) { f.host.Seed(keyNightStartedOn, "2024-10-16", nil) },
			wantMode: Day,
		},
		{
			name: "pre-ramp in progress",
			now:  day(19, 55),
			setup: func(f *fixture) {
				f.host.Seed(keyMode, Evening.String(), nil)
				f.host.Seed(keyPreRampActive, "on", nil)
				f.host.Seed(keyPreRampStart, day(19, 50).Format(time.RFC3339), nil)
				f.host.Seed(keyPreRampStartBright, "90", nil)
				f.host.Seed("light.lamp_1", "on", nil)
			},
			wantMode: Evening,
			wantRamp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.now, testConfiguration())
			if tt.setup != nil {
				tt.setup(f)
			}
			f.controller.lock.Lock()
			f.controller.trigger("startup", func() error { return f.controller.startup(context.Background()) })
			f.controller.lock.Unlock()

			assert.Equal(t, tt.wantMode, f.controller.Mode())
			assert.Equal(t, tt.wantRamp, len(f.controller.Status().Ramps) > 0)
			assert.Empty(t, f.notifier.errors())
		})
	}
}

func TestController_Startup_ResumesMorningRamp(t *testing.T) {
	f := newFixture(t, day(5, 15), testConfiguration())
	f.host.Seed(keyEMActive, "on", nil)
	f.host.Seed(keyEMRoute, "work", nil)
	f.host.Seed(keyEMStart, day(4, 50).Format(time.RFC3339), nil)

	f.controller.lock.Lock()
	require.NoError(t, f.controller.startup(context.Background()))
	f.controller.lock.Unlock()

	// halfway through the 04:50-05:40 ramp
	assert.Eventually(t, func() bool { return f.host.Value(keyRampBrightness) == "30" }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "50", f.host.Value(keyRampProgress))

	// the classification survived the restart
	require.NoError(t, f.controller.OnMotion(context.Background(), "binary_sensor.kitchen_iris_frig_occupancy"))
	assert.Equal(t, "work", f.host.Value(keyProfile))
}

func TestController_Run(t *testing.T) {
	cfg := testConfiguration()
	f := newFixture(t, day(6, 3), cfg)
	events := pubsub.New[host.Event](slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() { errCh <- f.controller.Run(ctx, events) }()

	assert.Eventually(t, func() bool { return f.host.Value(keyLastAction) == "startup_complete" }, time.Second, 10*time.Millisecond)

	events.Publish(host.Event{Key: cfg.Entities.Motion[1], Old: "off", New: "on"})
	assert.Eventually(t, func() bool { return f.controller.Mode() == EarlyMorning }, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
	assert.Nil(t, f.controller.Status().Ramps)
	// flags survive shutdown, so a restart can resume the ramp
	assert.Equal(t, "on", f.host.Value(keyRampActive))
}

func TestController_Jobs(t *testing.T) {
	f := newFixture(t, day(12, 0), testConfiguration())
	specs := make(map[string]string)
	for _, job := range f.controller.Jobs() {
		specs[job.Name] = job.Spec
	}
	assert.Equal(t, map[string]string{
		"tick":            "0 * * * * *",
		"morning_reset":   "0 30 4 * * *",
		"midnight_reset":  "0 5 0 * * *",
		"constants":       "0 2 0 * * *",
		"sun_schedule":    "0 1 0 * * *",
		"night_failsafe":  "0 0 23 * * *",
		"evening_preramp": "0 50 19 * * *",
		"evening_ramp":    "0 0 20 * * *",
	}, specs)
}

func TestController_MorningReset_ClearsClassification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(2, 0), testConfiguration())
	require.NoError(t, f.controller.ForceClassification(ctx, "day_off"))
	require.Equal(t, "day_off", f.host.Value(keyProfile))

	f.clock.Set(day(4, 30))
	f.controller.MorningReset(ctx)
	assert.Equal(t, "unknown", f.host.Value(keyProfile))
	assert.Empty(t, f.host.Value(keyClassifiedAt))

	// the first motion after the reset classifies the morning
	f.clock.Set(day(4, 55))
	require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))
	assert.Equal(t, "work", f.host.Value(keyProfile))
	assert.Equal(t, day(4, 55).Format(time.RFC3339), f.host.Value(keyClassifiedAt))
	assert.Equal(t, EarlyMorning, f.controller.Mode())
	assert.Empty(t, f.notifier.errors())
}

func TestController_Startup_DayReady(t *testing.T) {
	tests := []struct {
		name       string
		recorded   string
		wantReady  string
		wantAction bool
	}{
		{name: "ready before restart", recorded: "on", wantReady: "on", wantAction: true},
		{name: "not ready before restart", recorded: "off", wantReady: "off"},
		{name: "unknown", wantReady: "off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, day(11, 0), testConfiguration())
			if tt.recorded != "" {
				f.host.Seed(keyDayReady, tt.recorded, nil)
			}

			f.controller.lock.Lock()
			require.NoError(t, f.controller.startup(context.Background()))
			f.controller.lock.Unlock()

			assert.Equal(t, tt.wantReady, f.host.Value(keyDayReady))
			assert.Equal(t, Day, f.controller.Mode())
			if tt.wantAction {
				assert.Contains(t, f.controller.Status().LastActions, "11:00:00 startup:day_ready→Day")
			} else {
				assert.Contains(t, f.host.Value(keyDayReadyReason), "debounce=")
			}
		})
	}
}

func TestController_MorningRampComplete(t *testing.T) {
	ctx := context.Background()
	final := ramp.Sample{Kind: ramp.NonWork, Values: map[string]int{ramp.Brightness: 80, ramp.Kelvin: 4000}, Final: true}

	t.Run("current ramp", func(t *testing.T) {
		f := newFixture(t, day(6, 3), testConfiguration())
		require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))
		f.controller.lock.Lock()
		h := f.controller.current[ramp.Morning]
		f.controller.lock.Unlock()
		require.NotNil(t, h)

		f.controller.onMorningRampComplete(h, final)
		assert.Equal(t, Day, f.controller.Mode())
		assert.Equal(t, "80", f.host.Value(keyDayTarget))

		// a second completion of the same ramp is ignored
		f.host.Seed(keyMode, EarlyMorning.String(), nil)
		f.controller.onMorningRampComplete(h, final)
		assert.Equal(t, EarlyMorning, f.controller.Mode())
	})

	t.Run("ended manually while completing", func(t *testing.T) {
		f := newFixture(t, day(6, 3), testConfiguration())
		require.NoError(t, f.controller.OnMotion(ctx, "binary_sensor.kitchen_iris_frig_occupancy"))

		// the supervisor already released this ramp, so ending it manually can't cancel it
		released := &ramp.Handle{Spec: ramp.Spec{Kind: ramp.NonWork}}
		f.controller.lock.Lock()
		f.controller.current[ramp.Morning] = released
		f.controller.lock.Unlock()

		require.NoError(t, f.controller.ForceEndMorningRamp(ctx, ""))
		f.controller.onMorningRampComplete(released, final)
		assert.Equal(t, EarlyMorning, f.controller.Mode())
		assert.Equal(t, "manual_force_end", f.host.Value(keyEMEndReason))
		assert.Empty(t, f.host.Value(keyDayTarget))
	})
}
