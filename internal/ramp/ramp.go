// Package ramp runs timed linear glides of one or more output channels (brightness, colour temperature) and
// supervises them so that at most one ramp per Family is active at any time.
package ramp

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Kind identifies the purpose of a ramp.
type Kind string

const (
	Work                 Kind = "work"
	NonWork              Kind = "nonwork"
	EveningPreBrightness Kind = "evening_prebrightness"
	EveningColorTemp     Kind = "evening_colortemp"
)

// Family groups the Kinds that write to the same output. Starting a ramp cancels any active ramp of the same Family.
type Family string

const (
	Morning           Family = "morning"
	EveningBrightness Family = "evening_brightness"
	EveningColor      Family = "evening_color"
)

func (k Kind) Family() Family {
	switch k {
	case Work, NonWork:
		return Morning
	case EveningPreBrightness:
		return EveningBrightness
	case EveningColorTemp:
		return EveningColor
	default:
		return Family(k)
	}
}

// Channel names, used as keys in Sample.Values.
const (
	Brightness = "brightness"
	Kelvin     = "kelvin"
)

// A Channel is one output value that glides from From to To.
type Channel struct {
	Name string
	From int
	To   int
}

var (
	// ErrCanceled is returned when a canceled ramp tries to write to its Output.
	ErrCanceled = errors.New("ramp canceled")
	// ErrStop may be returned by an Output to end the ramp early. The ramp then completes as if it reached its end.
	ErrStop = errors.New("stop ramp")
)

// A Sample is what a ramp writes to its Output on each tick.
type Sample struct {
	Kind     Kind
	Start    time.Time
	End      time.Time
	Values   map[string]int
	Progress int
	Final    bool
	TimedOut bool
}

func (s Sample) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(s.Kind)),
		slog.Int("progress", s.Progress),
	}
	for name, value := range s.Values {
		attrs = append(attrs, slog.Int(name, value))
	}
	return slog.GroupValue(attrs...)
}

// An Output receives the interpolated values of a ramp.
type Output interface {
	Write(ctx context.Context, sample Sample) error
}

// OutputFunc is an adapter that allows an ordinary function to be used as an Output.
type OutputFunc func(ctx context.Context, sample Sample) error

func (f OutputFunc) Write(ctx context.Context, sample Sample) error {
	return f(ctx, sample)
}

// Spec describes a ramp. Start may lie in the past, to resume a ramp that was interrupted.
type Spec struct {
	Kind        Kind
	Start       time.Time
	End         time.Time
	Channels    []Channel
	Cadence     time.Duration
	HardTimeout time.Duration
	Output      Output
	// OnComplete is called once the ramp has written its final values. It is not called for canceled ramps.
	OnComplete func(h *Handle, final Sample)
}

func (s Spec) sample(now time.Time) Sample {
	values := make(map[string]int, len(s.Channels))
	for _, c := range s.Channels {
		values[c.Name] = Interpolate(now, s.Start, s.End, c.From, c.To)
	}
	return Sample{
		Kind:     s.Kind,
		Start:    s.Start,
		End:      s.End,
		Values:   values,
		Progress: Progress(now, s.Start, s.End),
	}
}

func (s Spec) final(timedOut bool) Sample {
	values := make(map[string]int, len(s.Channels))
	for _, c := range s.Channels {
		values[c.Name] = c.To
	}
	return Sample{
		Kind:     s.Kind,
		Start:    s.Start,
		End:      s.End,
		Values:   values,
		Progress: 100,
		Final:    true,
		TimedOut: timedOut,
	}
}
