package home

import (
	"github.com/clambin/home-controller/internal/ramp"
	"time"
)

// Status is a snapshot of the Controller's state.
type Status struct {
	Time           time.Time         `json:"time"`
	Enabled        bool              `json:"enabled"`
	Mode           string            `json:"mode"`
	Presence       map[string]string `json:"presence"`
	AllHome        bool              `json:"all_home"`
	Profile        string            `json:"profile"`
	ClassifiedAt   string            `json:"classified_at,omitempty"`
	EarlyMorning   Contract          `json:"early_morning"`
	DayReady       bool              `json:"day_ready"`
	DayReadyReason string            `json:"day_ready_reason,omitempty"`
	DayCommit      string            `json:"day_commit,omitempty"`
	DayTarget      string            `json:"day_target,omitempty"`
	InEvening      bool              `json:"in_evening"`
	EveningDone    bool              `json:"evening_done"`
	NightStartedOn string            `json:"night_started_on,omitempty"`
	CutoverPending bool              `json:"cutover_pending"`
	NightSweepDue  *time.Time        `json:"night_sweep_due,omitempty"`
	Ramps          []RampStatus      `json:"ramps,omitempty"`
	MissingInputs  []string          `json:"missing_inputs,omitempty"`
	LastActions    []string          `json:"last_actions,omitempty"`
}

// RampStatus describes a running ramp.
type RampStatus struct {
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Status returns the current state of the Controller.
func (c *Controller) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	s := Status{
		Time:           c.now(),
		Enabled:        c.enabled(),
		Mode:           c.mode().String(),
		Presence:       c.presence(),
		AllHome:        c.allHome(),
		EarlyMorning:   c.contract(),
		DayReady:       c.flag(keyDayReady),
		InEvening:      c.flag(keyInEvening),
		EveningDone:    c.flag(keyEveningDone),
		CutoverPending: c.flag(keyCutoverPending),
		MissingInputs:  c.helpers.Active(),
		LastActions:    append([]string(nil), c.history...),
	}
	s.Profile, _ = c.get(keyProfile)
	s.ClassifiedAt, _ = c.get(keyClassifiedAt)
	s.DayReadyReason, _ = c.get(keyDayReadyReason)
	s.DayCommit, _ = c.get(keyDayCommit)
	s.DayTarget, _ = c.get(keyDayTarget)
	s.NightStartedOn, _ = c.get(keyNightStartedOn)

	if c.nightWait != nil {
		if done, _ := c.nightWait.Result(); !done {
			due := c.nightWait.Due()
			s.NightSweepDue = &due
		}
	}

	for _, family := range []ramp.Family{ramp.Morning, ramp.EveningBrightness, ramp.EveningColor} {
		if h, ok := c.ramps.Active(family); ok {
			s.Ramps = append(s.Ramps, RampStatus{
				ID:    h.ID.String(),
				Kind:  string(h.Spec.Kind),
				Start: h.Spec.Start,
				End:   h.Spec.End,
			})
		}
	}
	return s
}
