package home

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"time"
)

// Timestamp is a time of day.
type Timestamp struct {
	Hour    int
	Minutes int
	Seconds int
}

func At(hour, minutes int) Timestamp {
	return Timestamp{Hour: hour, Minutes: minutes}
}

func ParseTimestamp(value string) (Timestamp, error) {
	timestamp, err := time.Parse("15:04:05", value)
	if err != nil {
		timestamp, err = time.Parse("15:04", value)
	}
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return Timestamp{Hour: timestamp.Hour(), Minutes: timestamp.Minute(), Seconds: timestamp.Second()}, nil
}

func (t *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	ts, err := ParseTimestamp(value.Value)
	if err == nil {
		*t = ts
	}
	return err
}

func (t Timestamp) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minutes, t.Seconds)
}

// On returns the Timestamp on the day of day.
func (t Timestamp) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minutes, t.Seconds, 0, day.Location())
}

// Of returns the time of day of t.
func Of(t time.Time) Timestamp {
	return Timestamp{Hour: t.Hour(), Minutes: t.Minute(), Seconds: t.Second()}
}

// Before returns true if t comes before other.
func (t Timestamp) Before(other Timestamp) bool {
	return t.seconds() < other.seconds()
}

func (t Timestamp) seconds() int {
	return t.Hour*3600 + t.Minutes*60 + t.Seconds
}

// Cron returns a cron specification (with seconds) that fires daily at t.
func (t Timestamp) Cron() string {
	return fmt.Sprintf("%d %d %d * * *", t.Seconds, t.Minutes, t.Hour)
}
