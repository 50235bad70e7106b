// Package memory provides an in-memory host, used to run the controller without a home-automation platform.
package memory

import (
	"context"
	"fmt"
	"github.com/clambin/home-controller/internal/host"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
)

// Call records an action invoked on the Host.
type Call struct {
	Domain string
	Action string
	Args   host.Args
}

func (c Call) String() string {
	return c.Domain + "." + c.Action
}

type entity struct {
	value string
	attrs host.Attributes
}

// Host is an in-memory implementation of host.Host. Light and input_select actions are applied to its state.
type Host struct {
	entities map[string]entity
	calls    []Call
	failures map[string]error
	lock     sync.RWMutex
}

var _ host.Host = &Host{}

func New() *Host {
	return &Host{
		entities: make(map[string]entity),
		failures: make(map[string]error),
	}
}

// Seed sets the value of a key without going through Set.
func (h *Host) Seed(key, value string, attrs host.Attributes) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.entities[key] = entity{value: value, attrs: maps.Clone(attrs)}
}

// Delete removes a key.
func (h *Host) Delete(key string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.entities, key)
}

// FailOn makes all calls to domain.action, or writes to a key, return err. A nil err clears the failure.
func (h *Host) FailOn(target string, err error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if err == nil {
		delete(h.failures, target)
		return
	}
	h.failures[target] = err
}

func (h *Host) Get(key string) (string, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	e, ok := h.entities[key]
	if !ok || !host.Present(e.value) {
		return "", false
	}
	return e.value, true
}

func (h *Host) Attribute(key, name string) (any, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	e, ok := h.entities[key]
	if !ok {
		return nil, false
	}
	v, ok := e.attrs[name]
	return v, ok
}

func (h *Host) Attributes(key string) host.Attributes {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return maps.Clone(h.entities[key].attrs)
}

func (h *Host) Keys(domain string) []string {
	h.lock.RLock()
	defer h.lock.RUnlock()
	keys := make([]string, 0, len(h.entities))
	for key := range h.entities {
		if host.Domain(key) == domain {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (h *Host) Set(_ context.Context, key string, value any, attrs host.Attributes) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if err := h.failures[key]; err != nil {
		return err
	}
	h.entities[key] = entity{value: host.Format(value), attrs: maps.Clone(attrs)}
	return nil
}

func (h *Host) Invoke(_ context.Context, domain, action string, args host.Args) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	call := Call{Domain: domain, Action: action, Args: maps.Clone(args)}
	h.calls = append(h.calls, call)
	if err := h.failures[call.String()]; err != nil {
		return err
	}
	switch call.String() {
	case "light.turn_on", "light.turn_off":
		for _, target := range targets(args) {
			h.applyLight(target, action == "turn_on", args)
		}
	case "input_select.select_option":
		for _, target := range targets(args) {
			e := h.entities[target]
			e.value = fmt.Sprint(args["option"])
			h.entities[target] = e
		}
	}
	return nil
}

func (h *Host) applyLight(key string, on bool, args host.Args) {
	e := h.entities[key]
	if e.attrs == nil {
		e.attrs = make(host.Attributes)
	}
	e.value = "off"
	if on {
		e.value = "on"
		if pct, ok := host.Float(args["brightness_pct"]); ok {
			e.attrs["brightness"] = int(math.Round(pct * 255 / 100))
		}
		if kelvin, ok := host.Float(args["kelvin"]); ok {
			e.attrs["color_temp_kelvin"] = int(kelvin)
		}
	}
	h.entities[key] = e
}

func targets(args host.Args) []string {
	switch v := args["entity_id"].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return nil
	}
}

// Calls returns the actions invoked so far, optionally filtered on "domain.action".
func (h *Host) Calls(filter ...string) []Call {
	h.lock.RLock()
	defer h.lock.RUnlock()
	var calls []Call
	for _, c := range h.calls {
		if len(filter) == 0 || slices.Contains(filter, c.String()) {
			calls = append(calls, c)
		}
	}
	return calls
}

// Value returns the raw value of a key, including unknown/unavailable values.
func (h *Host) Value(key string) string {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.entities[key].value
}

// Dump returns all keys and their values, for debugging tests.
func (h *Host) Dump() string {
	h.lock.RLock()
	defer h.lock.RUnlock()
	keys := slices.Sorted(maps.Keys(h.entities))
	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key + "=" + h.entities[key].value + "\n")
	}
	return b.String()
}
