// Package scheduler owns the in-memory Entity list and the refresh cycles
// that keep it current.
//
// The list is an immutable slice behind an atomic pointer. Readers load it
// without locking; every cycle builds a replacement and swaps it in under a
// single writer mutex, so concurrent cycles converge last-writer-wins and a
// reader never observes a half-updated list.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"

	"facility-finder-backend/config"
	"facility-finder-backend/internal/aggregator"
	"facility-finder-backend/internal/cache"
	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/position"
)

// ErrUnknownLocation is returned for ids outside the static catalog.
var ErrUnknownLocation = errors.New("unknown location")

// Fetcher is the upstream crowd-data source.
type Fetcher interface {
	FetchOne(ctx context.Context, id string) (model.DynamicSnapshot, error)
	FetchBulk(ctx context.Context, ids []string) (map[string]model.DynamicSnapshot, error)
	FetchOccupancy(ctx context.Context, refresh bool) (map[string]model.RealTimeOccupancy, error)
}

// State is the cold-start state of the scheduler.
type State int32

const (
	// Cold means the next read must bulk-fetch and bypass the cache.
	Cold State = iota
	// Warm means cycles honor the cache.
	Warm
)

func (s State) String() string {
	if s == Warm {
		return "warm"
	}
	return "cold"
}

// Intervals holds the period of each refresh class. A period of zero or less
// disables that class in Run; the configuration spells this as a negative
// number of seconds.
type Intervals struct {
	Realtime  time.Duration
	Weekly    time.Duration
	Occupancy time.Duration
	Sweep     time.Duration
	Track     position.WatchOptions
}

// IntervalsFromConfig converts the refresh section of the configuration.
func IntervalsFromConfig(c config.RefreshConfig) Intervals {
	return Intervals{
		Realtime:  c.Realtime,
		Weekly:    c.Weekly,
		Occupancy: c.Occupancy,
		Sweep:     c.Sweep,
		Track: position.WatchOptions{
			DistanceInterval: c.TrackMeters,
			TimeInterval:     c.Track,
		},
	}
}

// Scheduler coordinates fetchers, the persistent cache and the aggregator.
type Scheduler struct {
	catalog []model.Location
	index   map[string]int

	fetcher   Fetcher
	cache     *cache.Layer
	agg       *aggregator.Aggregator
	bus       *events.Bus
	provider  position.Provider
	intervals Intervals
	now       func() time.Time

	state      atomic.Int32
	generation atomic.Uint64
	entities   atomic.Pointer[[]model.Entity]

	lastUpdate       atomic.Int64
	lastWeeklyUpdate atomic.Int64

	coldStart singleflight.Group

	// writeMu serializes list replacement and guards the fields below.
	writeMu   sync.Mutex
	occupancy map[string]model.RealTimeOccupancy
	user      *orb.Point
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithEventBus publishes refresh events on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithPositionProvider enables distance tracking from p.
func WithPositionProvider(p position.Provider) Option {
	return func(s *Scheduler) { s.provider = p }
}

// New creates a cold Scheduler. Every catalog location starts out as an
// Unknown entity so it is listed before any data arrives.
func New(catalog []model.Location, fetcher Fetcher, layer *cache.Layer, agg *aggregator.Aggregator, intervals Intervals, opts ...Option) *Scheduler {
	s := &Scheduler{
		catalog:   slices.Clone(catalog),
		index:     make(map[string]int, len(catalog)),
		fetcher:   fetcher,
		cache:     layer,
		agg:       agg,
		intervals: intervals,
		now:       time.Now,
		occupancy: make(map[string]model.RealTimeOccupancy),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}

	now := s.now()
	list := make([]model.Entity, len(s.catalog))
	for i, loc := range s.catalog {
		s.index[loc.ID] = i
		list[i] = s.agg.MergeOne(loc, nil, nil, aggregator.MergeContext{Now: now})
	}
	s.entities.Store(&list)
	return s
}

// Events returns the bus the scheduler publishes on.
func (s *Scheduler) Events() *events.Bus {
	return s.bus
}

// State returns the current cold-start state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Generation returns the refresh generation. It increases on every
// ForceRefresh; results captured under an older generation are discarded.
func (s *Scheduler) Generation() uint64 {
	return s.generation.Load()
}

// LastUpdate returns when current data was last merged, or the zero time.
func (s *Scheduler) LastUpdate() time.Time {
	return loadTime(&s.lastUpdate)
}

// LastWeeklyUpdate returns when weekly data was last merged, or the zero time.
func (s *Scheduler) LastWeeklyUpdate() time.Time {
	return loadTime(&s.lastWeeklyUpdate)
}

// Locations returns the current Entity list in catalog order.
func (s *Scheduler) Locations() []model.Entity {
	return slices.Clone(*s.entities.Load())
}

// Location returns the current Entity of id.
func (s *Scheduler) Location(id string) (model.Entity, bool) {
	i, ok := s.index[id]
	if !ok {
		return model.Entity{}, false
	}
	return (*s.entities.Load())[i], true
}

// GetAllLocations returns the Entity list. While cold it first performs the
// cold-start bulk fetch and returns its error if that fetch fails.
func (s *Scheduler) GetAllLocations(ctx context.Context) ([]model.Entity, error) {
	if s.State() == Cold {
		if err := s.runColdStart(ctx); err != nil {
			return s.Locations(), err
		}
	}
	return s.Locations(), nil
}

// UpdatePosition records a new device position and recomputes distances.
// Busyness fields are left untouched.
func (s *Scheduler) UpdatePosition(p orb.Point) {
	s.writeMu.Lock()
	s.user = &p
	cur := *s.entities.Load()
	next := make([]model.Entity, len(cur))
	for i, e := range cur {
		next[i] = aggregator.WithUser(e, &p)
	}
	s.entities.Store(&next)
	gen := s.generation.Load()
	s.writeMu.Unlock()

	s.emit(events.Event{Kind: events.PositionUpdated, Source: "position", Generation: gen})
}

// ids returns the catalog ids in order.
func (s *Scheduler) ids() []string {
	out := make([]string, len(s.catalog))
	for i, loc := range s.catalog {
		out[i] = loc.ID
	}
	return out
}

// update is one entity replacement produced by a cycle. A nil snapshot keeps
// the dynamic data the entity already has.
type update struct {
	id   string
	snap *model.DynamicSnapshot
}

// change is the result of one cycle, applied atomically by apply.
type change struct {
	updates   []update
	occupancy map[string]model.RealTimeOccupancy
	// persist writes the cycle's data through to the cache. It runs under
	// writeMu, so a superseded cycle never writes after a force refresh
	// invalidated the cache.
	persist func()
	// warm moves the scheduler out of Cold.
	warm bool
}

// apply swaps in a new list built from c if gen is still current. It
// reports whether the change was applied.
func (s *Scheduler) apply(gen uint64, c change) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.generation.Load() != gen {
		return false
	}
	if c.persist != nil {
		c.persist()
	}
	for id, occ := range c.occupancy {
		s.occupancy[id] = occ
	}

	cur := *s.entities.Load()
	next := slices.Clone(cur)
	now := s.now()
	for _, u := range c.updates {
		i := s.index[u.id]
		snap := u.snap
		if snap == nil {
			snap = cur[i].Snapshot()
		}
		next[i] = s.merge(s.catalog[i], snap, now)
	}
	s.entities.Store(&next)
	if c.warm {
		s.state.Store(int32(Warm))
	}
	return true
}

// expireOccupancy drops readings older than the occupancy TTL from the
// entities still showing them and returns the ids it re-merged.
func (s *Scheduler) expireOccupancy() []string {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	ttl := s.cache.TTLs().Occupancy
	cur := *s.entities.Load()
	var next []model.Entity
	var expired []string
	for i, e := range cur {
		if e.Occupancy == nil || now.Sub(e.Occupancy.Timestamp) < ttl {
			continue
		}
		delete(s.occupancy, e.ID)
		if next == nil {
			next = slices.Clone(cur)
		}
		next[i] = s.merge(s.catalog[i], e.Snapshot(), now)
		expired = append(expired, e.ID)
	}
	if next != nil {
		s.entities.Store(&next)
	}
	return expired
}

// merge builds one entity. Caller holds writeMu.
func (s *Scheduler) merge(loc model.Location, snap *model.DynamicSnapshot, now time.Time) model.Entity {
	var occ *model.RealTimeOccupancy
	if reading, ok := s.occupancy[loc.ID]; ok && now.Sub(reading.Timestamp) < s.cache.TTLs().Occupancy {
		occ = &reading
	}
	return s.agg.MergeOne(loc, snap, occ, aggregator.MergeContext{Now: now, User: s.user})
}

func (s *Scheduler) emit(ev events.Event) {
	ev.At = s.now()
	s.bus.Emit(ev)
}

// bumpTime advances a timestamp, never moving it backwards.
func bumpTime(v *atomic.Int64, t time.Time) {
	n := t.UnixNano()
	for {
		old := v.Load()
		if n <= old || v.CompareAndSwap(old, n) {
			return
		}
	}
}

func loadTime(v *atomic.Int64) time.Time {
	n := v.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
