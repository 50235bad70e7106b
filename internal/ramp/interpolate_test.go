package ramp

import (
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestInterpolate(t *testing.T) {
	start := time.Date(2024, time.March, 4, 6, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name     string
		now      time.Time
		start    time.Time
		end      time.Time
		want     int
		progress int
	}{
		{name: "before start", now: start.Add(-time.Minute), start: start, end: end, want: 10, progress: 0},
		{name: "at start", now: start, start: start, end: end, want: 10, progress: 0},
		{name: "halfway", now: start.Add(30 * time.Minute), start: start, end: end, want: 30, progress: 50},
		{name: "rounding", now: start.Add(time.Minute), start: start, end: end, want: 11, progress: 2},
		{name: "at end", now: end, start: start, end: end, want: 50, progress: 100},
		{name: "after end", now: end.Add(time.Hour), start: start, end: end, want: 50, progress: 100},
		{name: "degenerate", now: start.Add(-time.Hour), start: end, end: start, want: 50, progress: 100},
		{name: "zero length", now: start.Add(-time.Hour), start: start, end: start, want: 50, progress: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.now, tt.start, tt.end, 10, 50))
			assert.Equal(t, tt.progress, Progress(tt.now, tt.start, tt.end))
		})
	}
}

func TestInterpolate_Monotonic(t *testing.T) {
	start := time.Date(2024, time.March, 4, 6, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	for _, values := range [][2]int{{10, 70}, {4000, 2000}, {50, 50}} {
		last := values[0]
		for now := start; !now.After(end); now = now.Add(17 * time.Second) {
			v := Interpolate(now, start, end, values[0], values[1])
			if values[1] >= values[0] {
				assert.GreaterOrEqual(t, v, last)
				assert.LessOrEqual(t, v, values[1])
			} else {
				assert.LessOrEqual(t, v, last)
				assert.GreaterOrEqual(t, v, values[1])
			}
			last = v
		}
		assert.Equal(t, values[1], Interpolate(end, start, end, values[0], values[1]))
	}
}
