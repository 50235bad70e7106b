// Package resolver picks values from ordered lists of named sources, skipping sources that are absent or invalid.
package resolver

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAbsent is returned by a Source that has no value.
var ErrAbsent = errors.New("absent")

// A Source is a named provider of a value.
type Source[T any] struct {
	Name string
	Get  func() (T, error)
}

// A Failure records why a Source could not provide a value.
type Failure struct {
	Name string
	Err  error
}

func (f Failure) Error() string {
	return f.Name + ": " + f.Err.Error()
}

// Getter returns the raw value of a named key.
type Getter func(key string) (string, bool)

// FromState returns a Source that reads key through get and converts it with parse.
func FromState[T any](get Getter, key string, parse func(string) (T, error)) Source[T] {
	return Source[T]{
		Name: key,
		Get: func() (T, error) {
			var zero T
			raw, ok := get(key)
			if !ok {
				return zero, ErrAbsent
			}
			v, err := parse(raw)
			if err != nil {
				return zero, fmt.Errorf("invalid value %q: %w", raw, err)
			}
			return v, nil
		},
	}
}

// Value returns a Source that always provides v.
func Value[T any](name string, v T) Source[T] {
	return Source[T]{Name: name, Get: func() (T, error) { return v, nil }}
}

// FirstPresent returns the value of the first source that provides one, and the name of that source. If no source
// provides a value, name is blank. failures lists the sources that were tried and failed.
func FirstPresent[T any](sources ...Source[T]) (value T, name string, failures []Failure) {
	for _, s := range sources {
		v, err := s.Get()
		if err == nil {
			return v, s.Name, failures
		}
		failures = append(failures, Failure{Name: s.Name, Err: err})
	}
	return value, "", failures
}

// First combines sources into a single Source that provides the value of the first source that has one.
func First[T any](name string, sources ...Source[T]) Source[T] {
	return Source[T]{
		Name: name,
		Get: func() (T, error) {
			v, _, failures := FirstPresent(sources...)
			if len(failures) < len(sources) {
				return v, nil
			}
			errs := make([]error, 0, len(failures))
			for _, f := range failures {
				if errors.Is(f.Err, ErrAbsent) {
					continue
				}
				errs = append(errs, f)
			}
			if len(errs) == 0 {
				return v, ErrAbsent
			}
			return v, errors.Join(errs...)
		},
	}
}

// MaxTime returns the latest of floor and all times provided by sources, and the name of the source that provided it.
func MaxTime(floor Source[time.Time], sources ...Source[time.Time]) (latest time.Time, name string, failures []Failure) {
	for _, s := range append([]Source[time.Time]{floor}, sources...) {
		t, err := s.Get()
		if err != nil {
			failures = append(failures, Failure{Name: s.Name, Err: err})
			continue
		}
		if name == "" || t.After(latest) {
			latest, name = t, s.Name
		}
	}
	return latest, name, failures
}

// Describe formats failures for logging.
func Describe(failures []Failure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, f.Error())
	}
	return strings.Join(parts, ", ")
}
