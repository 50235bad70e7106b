// Package clock provides the time source used by the controller. A Simulated clock returns an operator-supplied
// timestamp while its freeze flag is on, so the whole state machine can be replayed at an arbitrary time of day.
package clock

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// A Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real returns the wall-clock time.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// StateReader returns the current value of a named key.
type StateReader interface {
	Get(key string) (string, bool)
}

// Simulated returns the timestamp held in OverrideKey when FreezeKey is on. Otherwise, it returns the wall-clock time.
type Simulated struct {
	State       StateReader
	FreezeKey   string
	OverrideKey string
	Logger      *slog.Logger
	now         func() time.Time
}

var _ Clock = &Simulated{}

func (s *Simulated) Now() time.Time {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	wall := now()
	if s.State == nil || s.FreezeKey == "" {
		return wall
	}
	if frozen, ok := s.State.Get(s.FreezeKey); !ok || !strings.EqualFold(frozen, "on") {
		return wall
	}
	override, ok := s.State.Get(s.OverrideKey)
	if !ok {
		return wall
	}
	t, err := Parse(override, wall)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("invalid time override. using real time", "override", override, "err", err)
		}
		return wall
	}
	return t
}

var (
	dateTimeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
	timeLayouts = []string{"15:04:05", "15:04"}
)

// Parse interprets value as either a full datetime or a bare time of day. A bare time of day is placed on the date
// of today, in today's location.
func Parse(value string, today time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.ContainsAny(value, "T ") || strings.Count(value, "-") >= 2 {
		for _, layout := range dateTimeLayouts {
			if t, err := time.ParseInLocation(layout, value, today.Location()); err == nil {
				return t.In(today.Location()), nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid datetime %q", value)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return At(today, t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

// At returns the time on the same day as day, at the given time of day.
func At(day time.Time, hour, minute, second int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, day.Location())
}

// SameDay returns true if a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Fake is a Clock whose time only changes when told to.
type Fake struct {
	now  time.Time
	lock sync.RWMutex
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.now
}

func (f *Fake) Set(now time.Time) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = now
}

func (f *Fake) Advance(d time.Duration) time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = f.now.Add(d)
	return f.now
}
