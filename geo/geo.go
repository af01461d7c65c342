// Package geo captures positions from a platform source on a fixed
// cadence, with the platform's error codes mapped onto a small
// taxonomy: permission denial is terminal, everything else is
// transient.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Deployment constants, matching the original capture loop: a fresh
// high-accuracy fix every 5 seconds, each attempt bounded at 5 seconds.
const (
	DefaultInterval = 5 * time.Second
	FixTimeout      = 5 * time.Second
)

// Position is one geolocation reading.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // meters, 0 = unknown
	Time      time.Time `json:"time"`
}

var (
	// ErrPermissionDenied is terminal: sampling must stop until the
	// user re-grants access.
	ErrPermissionDenied = errors.New("geolocation permission denied")
	// ErrUnavailable is transient: the platform could not produce a
	// fix this time.
	ErrUnavailable = errors.New("position unavailable")
	// ErrTimeout is transient: the fix took longer than FixTimeout.
	ErrTimeout = errors.New("position request timed out")
)

// Terminal reports whether the error ends sampling.
func Terminal(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// FromCode maps the platform's numeric error codes
// (1=denied, 2=unavailable, 3=timeout) onto the taxonomy.
func FromCode(code int) error {
	switch code {
	case 1:
		return ErrPermissionDenied
	case 2:
		return ErrUnavailable
	case 3:
		return ErrTimeout
	default:
		return fmt.Errorf("geolocation error code %d: %w", code, ErrUnavailable)
	}
}

// Classify folds arbitrary source errors into the taxonomy. Context
// deadline errors become ErrTimeout; anything unrecognized becomes
// ErrUnavailable so the caller retries on the next tick.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
}

// Source produces one fresh fix per call. Implementations must honor
// ctx cancellation and must not serve cached positions.
type Source interface {
	Current(ctx context.Context) (Position, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (Position, error)

func (f SourceFunc) Current(ctx context.Context) (Position, error) {
	return f(ctx)
}

// Watcher is an optional Source capability: a push feed of fixes. The
// sampler prefers it when present since it reacts to movement
// immediately instead of being blind between poll ticks.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Position, <-chan error)
}
