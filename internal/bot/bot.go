// Package bot offers the controller's manual operations as Slack commands.
package bot

import (
	"context"
	"fmt"
	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/home-controller/internal/home"
	"github.com/clambin/home-controller/internal/learning"
	"github.com/slack-go/slack"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type SlackBot interface {
	Register(name string, command slackbot.CommandFunc)
}

type Controller interface {
	Status() home.Status
	SelectMode(ctx context.Context, mode string) error
	ForceClassification(ctx context.Context, profile string) error
	ForceEndMorningRamp(ctx context.Context, reason string) error
	ResetMorning(ctx context.Context) error
}

// Teacher records a brightness sample. Its Target is used as the Day brightness.
type Teacher interface {
	Add(ctx context.Context, sample learning.Sample) (learning.Sample, error)
	Target(ctx context.Context, room, condition string) (int, error)
}

// Schedule returns the next run of each scheduled job.
type Schedule interface {
	Next() map[string]time.Time
}

type Bot struct {
	controller Controller
	teacher    Teacher
	schedule   Schedule
	logger     *slog.Logger
}

// New registers the bot's commands. If teacher or schedule is nil, their commands are not offered.
func New(b SlackBot, controller Controller, teacher Teacher, schedule Schedule, logger *slog.Logger) *Bot {
	bot := Bot{
		controller: controller,
		teacher:    teacher,
		schedule:   schedule,
		logger:     logger,
	}
	b.Register("status", bot.ReportStatus)
	b.Register("mode", bot.SetMode)
	b.Register("classify", bot.Classify)
	b.Register("reset", bot.ResetMorning)
	b.Register("end-ramp", bot.EndRamp)
	if teacher != nil {
		b.Register("teach", bot.Teach)
	}
	if schedule != nil {
		b.Register("schedule", bot.ReportSchedule)
	}
	return &bot
}

func (b *Bot) ReportStatus(_ context.Context, _ ...string) []slack.Attachment {
	s := b.controller.Status()

	color := "good"
	if !s.Enabled {
		color = "warning"
	}
	text := []string{
		"mode: " + s.Mode,
		"presence: " + presence(s),
		"profile: " + orNone(s.Profile),
		fmt.Sprintf("day ready: %t (%s)", s.DayReady, orNone(s.DayReadyReason)),
		fmt.Sprintf("evening: active=%t done=%t", s.InEvening, s.EveningDone),
	}
	if s.EarlyMorning.Active {
		text = append(text, fmt.Sprintf("early morning: %s until %s", s.EarlyMorning.Route, s.EarlyMorning.Until))
	}
	if s.CutoverPending {
		line := "night cutover pending"
		if s.NightSweepDue != nil {
			line += " until " + s.NightSweepDue.Local().Format("15:04")
		}
		text = append(text, line)
	}
	for _, r := range s.Ramps {
		text = append(text, fmt.Sprintf("ramp %s: %s - %s", r.Kind, r.Start.Format("15:04"), r.End.Format("15:04")))
	}
	attachments := []slack.Attachment{{
		Color: color,
		Title: "home:",
		Text:  strings.Join(text, "\n"),
	}}
	if len(s.MissingInputs) > 0 {
		attachments = append(attachments, slack.Attachment{
			Color: "warning",
			Title: "missing inputs:",
			Text:  strings.Join(s.MissingInputs, "\n"),
		})
	}
	if len(s.LastActions) > 0 {
		attachments = append(attachments, slack.Attachment{
			Title: "last actions:",
			Text:  strings.Join(s.LastActions, "\n"),
		})
	}
	return attachments
}

func (b *Bot) ReportSchedule(_ context.Context, _ ...string) []slack.Attachment {
	next := b.schedule.Next()
	if len(next) == 0 {
		return []slack.Attachment{{Color: "warning", Text: "scheduler not running"}}
	}
	names := make([]string, 0, len(next))
	for name := range next {
		names = append(names, name)
	}
	slices.SortFunc(names, func(x, y string) int { return next[x].Compare(next[y]) })
	text := make([]string, 0, len(names))
	for _, name := range names {
		text = append(text, next[name].Local().Format("Mon 15:04:05")+"  "+name)
	}
	return []slack.Attachment{{Title: "next runs:", Text: strings.Join(text, "\n")}}
}

func presence(s home.Status) string {
	if s.AllHome {
		return "all home"
	}
	var away []string
	for tracker, state := range s.Presence {
		if state != "home" {
			away = append(away, tracker)
		}
	}
	if len(away) == 0 {
		return "unknown"
	}
	slices.Sort(away)
	return "away: " + strings.Join(away, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func (b *Bot) SetMode(ctx context.Context, args ...string) []slack.Attachment {
	if len(args) == 0 {
		return usage("mode <early morning|day|evening|night|away>")
	}
	mode := strings.Join(args, " ")
	if err := b.controller.SelectMode(ctx, mode); err != nil {
		return failed(err)
	}
	return done("mode set to " + mode)
}

func (b *Bot) Classify(ctx context.Context, args ...string) []slack.Attachment {
	if len(args) != 1 {
		return usage("classify <work|day_off>")
	}
	if err := b.controller.ForceClassification(ctx, args[0]); err != nil {
		return failed(err)
	}
	return done("today classified as " + args[0])
}

func (b *Bot) ResetMorning(ctx context.Context, _ ...string) []slack.Attachment {
	if err := b.controller.ResetMorning(ctx); err != nil {
		return failed(err)
	}
	return done("morning reset")
}

func (b *Bot) EndRamp(ctx context.Context, args ...string) []slack.Attachment {
	if err := b.controller.ForceEndMorningRamp(ctx, strings.Join(args, "_")); err != nil {
		return failed(err)
	}
	return done("morning ramp ended")
}

func (b *Bot) Teach(ctx context.Context, args ...string) []slack.Attachment {
	if len(args) != 3 {
		return usage("teach <room> <condition> <brightness>")
	}
	brightness, err := strconv.Atoi(strings.TrimSuffix(args[2], "%"))
	if err != nil {
		return failed(fmt.Errorf("invalid brightness: %q", args[2]))
	}
	if _, err = b.teacher.Add(ctx, learning.Sample{Room: args[0], Condition: args[1], Brightness: brightness}); err != nil {
		return failed(err)
	}
	target, err := b.teacher.Target(ctx, args[0], args[1])
	if err != nil {
		return failed(err)
	}
	b.logger.Info("brightness taught", "room", args[0], "condition", args[1], "brightness", brightness, "target", target)
	return done(fmt.Sprintf("%s/%s brightness is now %d%%", args[0], args[1], target))
}

func usage(text string) []slack.Attachment {
	return []slack.Attachment{{Color: "bad", Text: "invalid command\nUsage: " + text}}
}

func failed(err error) []slack.Attachment {
	return []slack.Attachment{{Color: "bad", Text: "failed: " + err.Error()}}
}

func done(text string) []slack.Attachment {
	return []slack.Attachment{{Color: "good", Text: text}}
}
