package home

import (
	"fmt"
	"strings"
)

// Mode is the current state of the home.
type Mode int

const (
	Day Mode = iota
	EarlyMorning
	Evening
	Night
	Away
)

var modeNames = map[Mode]string{
	Day:          "Day",
	EarlyMorning: "Early Morning",
	Evening:      "Evening",
	Night:        "Night",
	Away:         "Away",
}

// Modes lists all modes, in the order they are offered to the user.
var Modes = []Mode{EarlyMorning, Day, Evening, Night, Away}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode returns the Mode with the given name. Matching ignores case, spaces and underscores, so "Early Morning",
// "early_morning" and "EarlyMorning" all return EarlyMorning.
func ParseMode(s string) (Mode, error) {
	normalized := normalizeMode(s)
	for mode, name := range modeNames {
		if normalizeMode(name) == normalized {
			return mode, nil
		}
	}
	return Day, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func normalizeMode(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s)))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err == nil {
		*m = mode
	}
	return err
}

func modeOptions() []string {
	options := make([]string, len(Modes))
	for i, m := range Modes {
		options[i] = m.String()
	}
	return options
}

// Profile is the outcome of the daily morning classification.
type Profile string

const (
	Work    Profile = "work"
	DayOff  Profile = "day_off"
	Unknown Profile = "unknown"
)

func parseProfile(s string) (Profile, bool) {
	switch normalizeMode(s) {
	case "work", "workday":
		return Work, true
	case "dayoff", "nonwork", "off":
		return DayOff, true
	default:
		return Unknown, false
	}
}
