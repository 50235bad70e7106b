package ramp

import (
	"math"
	"time"
)

// Interpolate returns the value at time now of a linear glide from (start, from) to (end, to), rounded to the
// nearest integer. Before start it returns from, after end it returns to. A window where end does not come after
// start always yields to.
func Interpolate(now, start, end time.Time, from, to int) int {
	if !end.After(start) || !now.Before(end) {
		return to
	}
	if !now.After(start) {
		return from
	}
	return int(math.Round(float64(from) + float64(to-from)*fraction(now, start, end)))
}

// Progress returns how far now is into the window [start, end], as a percentage between 0 and 100.
func Progress(now, start, end time.Time) int {
	if !end.After(start) || !now.Before(end) {
		return 100
	}
	if !now.After(start) {
		return 0
	}
	return int(math.Round(100 * fraction(now, start, end)))
}

func fraction(now, start, end time.Time) float64 {
	return float64(now.Sub(start)) / float64(end.Sub(start))
}
