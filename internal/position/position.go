// Package position defines the device-location contract used for distance
// tracking, plus a provider fed by explicit fixes.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

var (
	// ErrPermissionDenied is returned when location access was refused.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrNoFix is returned before any position is known.
	ErrNoFix = errors.New("no position fix yet")
)

// Permission is the outcome of a permission request.
type Permission int

const (
	Denied Permission = iota
	Granted
)

// WatchOptions controls how often Watch reports movement.
type WatchOptions struct {
	// DistanceInterval is the minimum movement in meters between reports.
	DistanceInterval float64
	// TimeInterval is the maximum time between reports while fixes arrive.
	TimeInterval time.Duration
}

// Provider is a source of device positions. Points are (lon, lat).
type Provider interface {
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentPosition(ctx context.Context) (orb.Point, error)
	// Watch calls fn for fixes that pass the WatchOptions filter and blocks
	// until ctx is cancelled.
	Watch(ctx context.Context, fn func(orb.Point), opts WatchOptions) error
}

// Filter implements the on-move rule: a fix is accepted when it is the
// first one, moved at least DistanceInterval, or TimeInterval has elapsed.
type Filter struct {
	opts   WatchOptions
	last   *orb.Point
	lastAt time.Time
}

// NewFilter creates a Filter for opts.
func NewFilter(opts WatchOptions) *Filter {
	return &Filter{opts: opts}
}

// Accept reports whether p observed at at should be delivered, and records
// it if so.
func (f *Filter) Accept(p orb.Point, at time.Time) bool {
	accept := f.last == nil ||
		geo.Distance(*f.last, p) >= f.opts.DistanceInterval ||
		(f.opts.TimeInterval > 0 && at.Sub(f.lastAt) >= f.opts.TimeInterval)
	if accept {
		f.last = &p
		f.lastAt = at
	}
	return accept
}

// Validate checks that p is a plausible WGS84 coordinate.
func Validate(p orb.Point) error {
	if p.Lat() < -90 || p.Lat() > 90 || p.Lon() < -180 || p.Lon() > 180 {
		return fmt.Errorf("coordinate out of range: lat=%f lon=%f", p.Lat(), p.Lon())
	}
	return nil
}

// Manual is a Provider whose fixes are pushed by the caller, e.g. from an
// HTTP endpoint the client app reports to.
type Manual struct {
	mu       sync.Mutex
	current  *orb.Point
	watchers map[chan orb.Point]struct{}
	now      func() time.Time
}

// NewManual creates a Manual provider with no fix.
func NewManual() *Manual {
	return &Manual{watchers: make(map[chan orb.Point]struct{}), now: time.Now}
}

// Push records a new fix and hands it to active watchers.
func (m *Manual) Push(p orb.Point) error {
	if err := Validate(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &p
	for ch := range m.watchers {
		// Keep only the newest fix for slow watchers.
		select {
		case <-ch:
		default:
		}
		ch <- p
	}
	return nil
}

// RequestPermission always grants; the client already consented by pushing.
func (m *Manual) RequestPermission(context.Context) (Permission, error) {
	return Granted, nil
}

// CurrentPosition returns the last pushed fix.
func (m *Manual) CurrentPosition(context.Context) (orb.Point, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return orb.Point{}, ErrNoFix
	}
	return *m.current, nil
}

// Watch delivers filtered fixes to fn until ctx is cancelled.
func (m *Manual) Watch(ctx context.Context, fn func(orb.Point), opts WatchOptions) error {
	ch := make(chan orb.Point, 1)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.watchers, ch)
		m.mu.Unlock()
	}()

	filter := NewFilter(opts)
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-ch:
			if filter.Accept(p, m.now()) {
				fn(p)
			}
		}
	}
}
