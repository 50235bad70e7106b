// Package host defines how the controller talks to the home-automation host: reading and writing named state keys,
// and invoking actions.
package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Attributes hold descriptive metadata written alongside a state value.
type Attributes map[string]any

// Args are the arguments of an action.
type Args map[string]any

// State reads and writes named keys. Keys that are unknown or unavailable read as absent.
type State interface {
	Get(key string) (string, bool)
	Attribute(key, name string) (any, bool)
	Keys(domain string) []string
	Set(ctx context.Context, key string, value any, attrs Attributes) error
}

// Invoker calls an action on the host. Callers must not assume the action succeeded.
type Invoker interface {
	Invoke(ctx context.Context, domain, action string, args Args) error
}

// Host combines State and Invoker.
type Host interface {
	State
	Invoker
}

// An Event reports that a key changed value.
type Event struct {
	Key        string
	Old        string
	New        string
	Attributes Attributes
	Time       time.Time
}

// Present returns false for blank, "unknown" and "unavailable" values.
func Present(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "unknown", "unavailable", "none":
		return false
	default:
		return true
	}
}

// Domain returns the domain part of a key, e.g. "light" for "light.kitchen".
func Domain(key string) string {
	domain, _, _ := strings.Cut(key, ".")
	return domain
}

// Format converts a value into the string form stored by the host.
func Format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "on"
		}
		return "off"
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Active returns true if a device reports any present state other than "off".
func Active(value string) bool {
	return Present(value) && !strings.EqualFold(strings.TrimSpace(value), "off")
}

// Float converts an attribute value into a float64.
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
