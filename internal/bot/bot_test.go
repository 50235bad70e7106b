package bot

import (
	"context"
	"errors"
	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/home-controller/internal/home"
	"github.com/clambin/home-controller/internal/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"testing"
	"time"
)

type slackBot struct {
	commands map[string]slackbot.CommandFunc
}

func (s *slackBot) Register(name string, command slackbot.CommandFunc) {
	if s.commands == nil {
		s.commands = make(map[string]slackbot.CommandFunc)
	}
	s.commands[name] = command
}

type controller struct {
	mock.Mock
}

func (c *controller) Status() home.Status {
	return c.Called().Get(0).(home.Status)
}

func (c *controller) SelectMode(ctx context.Context, mode string) error {
	return c.Called(ctx, mode).Error(0)
}

func (c *controller) ForceClassification(ctx context.Context, profile string) error {
	return c.Called(ctx, profile).Error(0)
}

func (c *controller) ForceEndMorningRamp(ctx context.Context, reason string) error {
	return c.Called(ctx, reason).Error(0)
}

func (c *controller) ResetMorning(ctx context.Context) error {
	return c.Called(ctx).Error(0)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew(t *testing.T) {
	var b slackBot
	New(&b, &controller{}, nil, nil, discard)
	assert.Len(t, b.commands, 5)
	assert.NotContains(t, b.commands, "teach")

	s, err := learning.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	New(&b, &controller{}, s, nil, discard)
	assert.Contains(t, b.commands, "teach")
	assert.NotContains(t, b.commands, "schedule")

	New(&b, &controller{}, nil, fakeSchedule{}, discard)
	assert.Contains(t, b.commands, "schedule")
}

type fakeSchedule map[string]time.Time

func (s fakeSchedule) Next() map[string]time.Time { return s }

func TestBot_ReportSchedule(t *testing.T) {
	b := New(&slackBot{}, &controller{}, nil, fakeSchedule{}, discard)
	assert.Equal(t, "scheduler not running", b.ReportSchedule(context.Background())[0].Text)

	b = New(&slackBot{}, &controller{}, nil, fakeSchedule{
		"night_failsafe": time.Date(2024, time.October, 16, 23, 0, 0, 0, time.Local),
		"morning_reset":  time.Date(2024, time.October, 17, 4, 30, 0, 0, time.Local),
		"tick":           time.Date(2024, time.October, 16, 22, 15, 0, 0, time.Local),
	}, discard)
	attachments := b.ReportSchedule(context.Background())
	require.Len(t, attachments, 1)
	assert.Equal(t, "Wed 22:15:00  tick\nWed 23:00:00  night_failsafe\nThu 04:30:00  morning_reset", attachments[0].Text)
}

func TestBot_ReportStatus(t *testing.T) {
	c := controller{}
	c.On("Status").Return(home.Status{
		Enabled:        true,
		Mode:           "Early Morning",
		Presence:       map[string]string{"person.b": "not_home", "person.a": "home"},
		Profile:        "work",
		DayReadyReason: "time_ok=false",
		EarlyMorning:   home.Contract{Route: "work", Until: "2024-10-16T05:40:00Z", Active: true},
		Ramps: []home.RampStatus{{
			Kind:  "morning_work",
			Start: time.Date(2024, time.October, 16, 5, 0, 0, 0, time.UTC),
			End:   time.Date(2024, time.October, 16, 5, 40, 0, 0, time.UTC),
		}},
		MissingInputs: []string{"sunset"},
		LastActions:   []string{"06:03 motion_work→Early_Morning"},
	}).Once()

	b := New(&slackBot{}, &c, nil, nil, discard)
	attachments := b.ReportStatus(context.Background())
	require.Len(t, attachments, 3)
	assert.Equal(t, "good", attachments[0].Color)
	assert.Equal(t, `mode: Early Morning
presence: away: person.b
profile: work
day ready: false (time_ok=false)
evening: active=false done=false
early morning: work until 2024-10-16T05:40:00Z
ramp morning_work: 05:00 - 05:40`, attachments[0].Text)
	assert.Equal(t, "sunset", attachments[1].Text)
	assert.Equal(t, "06:03 motion_work→Early_Morning", attachments[2].Text)
	c.AssertExpectations(t)
}

func TestBot_SetMode(t *testing.T) {
	ctx := context.Background()
	c := controller{}
	c.On("SelectMode", ctx, "early morning").Return(nil).Once()
	c.On("SelectMode", ctx, "party").Return(home.ErrInvalidMode).Once()

	b := New(&slackBot{}, &c, nil, nil, discard)
	assert.Equal(t, "mode set to early morning", b.SetMode(ctx, "early", "morning")[0].Text)
	assert.Equal(t, "bad", b.SetMode(ctx, "party")[0].Color)
	assert.Contains(t, b.SetMode(ctx)[0].Text, "Usage")
	c.AssertExpectations(t)
}

func TestBot_Classify(t *testing.T) {
	ctx := context.Background()
	c := controller{}
	c.On("ForceClassification", ctx, "work").Return(nil).Once()

	b := New(&slackBot{}, &c, nil, nil, discard)
	assert.Equal(t, "today classified as work", b.Classify(ctx, "work")[0].Text)
	assert.Contains(t, b.Classify(ctx)[0].Text, "Usage")
	c.AssertExpectations(t)
}

func TestBot_ResetMorning_EndRamp(t *testing.T) {
	ctx := context.Background()
	c := controller{}
	c.On("ResetMorning", ctx).Return(errors.New("host unavailable")).Once()
	c.On("ForceEndMorningRamp", ctx, "").Return(nil).Once()
	c.On("ForceEndMorningRamp", ctx, "up_early").Return(nil).Once()

	b := New(&slackBot{}, &c, nil, nil, discard)
	assert.Equal(t, "failed: host unavailable", b.ResetMorning(ctx)[0].Text)
	assert.Equal(t, "morning ramp ended", b.EndRamp(ctx)[0].Text)
	assert.Equal(t, "morning ramp ended", b.EndRamp(ctx, "up", "early")[0].Text)
	c.AssertExpectations(t)
}

func TestBot_Teach(t *testing.T) {
	ctx := context.Background()
	s, err := learning.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	b := New(&slackBot{}, &controller{}, s, nil, discard)
	assert.Equal(t, "living/overcast brightness is now 60%", b.Teach(ctx, "living", "overcast", "60%")[0].Text)
	assert.Equal(t, "living/overcast brightness is now 70%", b.Teach(ctx, "living", "overcast", "80")[0].Text)
	assert.Equal(t, "bad", b.Teach(ctx, "living", "overcast", "bright")[0].Color)
	assert.Equal(t, "bad", b.Teach(ctx, "living", "overcast", "120")[0].Color)
	assert.Contains(t, b.Teach(ctx, "living")[0].Text, "Usage")
}
