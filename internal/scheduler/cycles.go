package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/model"
)

// runColdStart performs the cold-start bulk fetch once per generation.
// Concurrent callers share a single upstream call, which is not cancelled
// with the caller that started it; the fetcher's timeout bounds it.
func (s *Scheduler) runColdStart(ctx context.Context) error {
	gen := s.generation.Load()
	shared := context.WithoutCancel(ctx)
	_, err, _ := s.coldStart.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		if s.State() == Warm && s.generation.Load() == gen {
			return nil, nil
		}
		return nil, s.coldStartOnce(shared, gen)
	})
	return err
}

func (s *Scheduler) coldStartOnce(ctx context.Context, gen uint64) error {
	log.Println("Executing cold start...")
	ids := s.ids()

	snaps, err := s.fetcher.FetchBulk(ctx, ids)
	if err == nil && len(snaps) == 0 && len(ids) > 0 {
		err = fmt.Errorf("bulk fetch returned no usable entries")
	}
	if err != nil {
		s.emit(events.Event{Kind: events.RefreshFailed, Source: "cold_start", Generation: gen, Failed: ids, Err: err})
		return fmt.Errorf("cold start failed: %w", err)
	}

	ttl := s.cache.TTLs().ColdStartCurrent
	updates := make([]update, 0, len(snaps))
	var failed []string
	weekly := false
	for _, id := range ids {
		snap, ok := snaps[id]
		if !ok {
			failed = append(failed, id)
			continue
		}
		if snap.Weekly != nil {
			weekly = true
		}
		updates = append(updates, update{id: id, snap: &snap})
	}

	persist := func() {
		for _, u := range updates {
			if u.snap.Current != nil {
				if err := s.cache.WriteCurrentFor(ctx, u.id, *u.snap.Current, ttl); err != nil {
					log.Printf("Error writing current status of %s: %v", u.id, err)
				}
			}
			if u.snap.Weekly != nil {
				if err := s.cache.WriteWeekly(ctx, u.id, *u.snap.Weekly); err != nil {
					log.Printf("Error writing weekly pattern of %s: %v", u.id, err)
				}
			}
		}
	}
	if !s.apply(gen, change{updates: updates, persist: persist, warm: true}) {
		log.Println("Cold start superseded by a newer refresh; discarding results.")
		return nil
	}

	now := s.now()
	bumpTime(&s.lastUpdate, now)
	if weekly {
		bumpTime(&s.lastWeeklyUpdate, now)
	}
	logFailures("Cold start", failed)
	s.emit(events.Event{Kind: events.LocationsUpdated, Source: "cold_start", Generation: gen, Changed: changedIDs(updates), Failed: failed})
	log.Printf("Cold start finished: %d updated, %d failed.", len(updates), len(failed))
	return nil
}

// ForceRefresh returns the scheduler to Cold, invalidates every cached
// bucket and reruns the cold start. Cycles still in flight are discarded.
func (s *Scheduler) ForceRefresh(ctx context.Context) error {
	s.writeMu.Lock()
	s.state.Store(int32(Cold))
	s.generation.Add(1)
	for _, id := range s.ids() {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			log.Printf("Error invalidating cache of %s: %v", id, err)
		}
	}
	s.writeMu.Unlock()

	return s.runColdStart(ctx)
}

// RefreshRealtime serves fresh cached snapshots and bulk-fetches the rest.
// Ids whose fetch fails keep their previous entity. While cold it runs the
// cold start instead.
func (s *Scheduler) RefreshRealtime(ctx context.Context) error {
	if s.State() == Cold {
		return s.runColdStart(ctx)
	}
	log.Println("Executing realtime refresh...")
	gen := s.generation.Load()
	s.dropExpiredOccupancy(gen)

	var updates []update
	var misses []string
	for _, id := range s.ids() {
		if snap, ok := s.cache.ReadCombined(ctx, id); ok {
			updates = append(updates, update{id: id, snap: &snap})
			continue
		}
		misses = append(misses, id)
	}

	var failed []string
	var fetchErr error
	fetched := make(map[string]model.DynamicSnapshot)
	if len(misses) > 0 {
		snaps, err := s.fetcher.FetchBulk(ctx, misses)
		if err != nil {
			fetchErr = fmt.Errorf("realtime bulk fetch: %w", err)
			log.Printf("Error fetching %d locations: %v", len(misses), err)
		}
		for _, id := range misses {
			snap, ok := snaps[id]
			if !ok {
				failed = append(failed, id)
				continue
			}
			fetched[id] = snap
			updates = append(updates, update{id: id, snap: &snap})
		}
	}

	if len(failed) > 0 {
		s.emit(events.Event{Kind: events.RefreshFailed, Source: "realtime", Generation: gen, Failed: failed, Err: fetchErr})
	}
	if len(updates) == 0 {
		return fetchErr
	}
	persist := func() {
		for id, snap := range fetched {
			s.writeThrough(ctx, id, snap)
		}
	}
	if !s.apply(gen, change{updates: updates, persist: persist}) {
		log.Println("Realtime refresh superseded by a newer refresh; discarding results.")
		return nil
	}

	bumpTime(&s.lastUpdate, s.now())
	logFailures("Realtime refresh", failed)
	s.emit(events.Event{Kind: events.LocationsUpdated, Source: "realtime", Generation: gen, Changed: changedIDs(updates), Failed: failed})
	log.Printf("Realtime refresh finished: %d updated, %d failed.", len(updates), len(failed))
	return fetchErr
}

// RefreshWeekly refreshes weekly patterns only. Current-status fields of
// every entity are left as they were.
func (s *Scheduler) RefreshWeekly(ctx context.Context) error {
	log.Println("Executing weekly refresh...")
	gen := s.generation.Load()

	patterns := make(map[string]model.WeeklyPattern)
	var misses []string
	for _, id := range s.ids() {
		if p, ok := s.cache.ReadWeekly(ctx, id); ok {
			patterns[id] = p
			continue
		}
		misses = append(misses, id)
	}

	var failed []string
	var fetchErr error
	var fetched []string
	if len(misses) > 0 {
		snaps, err := s.fetcher.FetchBulk(ctx, misses)
		if err != nil {
			fetchErr = fmt.Errorf("weekly bulk fetch: %w", err)
			log.Printf("Error fetching weekly patterns: %v", err)
		}
		for _, id := range misses {
			snap, ok := snaps[id]
			if !ok || snap.Weekly == nil {
				failed = append(failed, id)
				continue
			}
			patterns[id] = *snap.Weekly
			fetched = append(fetched, id)
		}
	}

	if len(failed) > 0 {
		s.emit(events.Event{Kind: events.RefreshFailed, Source: "weekly", Generation: gen, Failed: failed, Err: fetchErr})
	}
	if len(patterns) == 0 {
		return fetchErr
	}

	// Weekly data is merged onto each entity's own current status, read
	// under the writer lock so a concurrent realtime swap is not lost.
	s.writeMu.Lock()
	if s.generation.Load() != gen {
		s.writeMu.Unlock()
		log.Println("Weekly refresh superseded by a newer refresh; discarding results.")
		return nil
	}
	for _, id := range fetched {
		if err := s.cache.WriteWeekly(ctx, id, patterns[id]); err != nil {
			log.Printf("Error writing weekly pattern of %s: %v", id, err)
		}
	}
	cur := *s.entities.Load()
	next := make([]model.Entity, len(cur))
	copy(next, cur)
	now := s.now()
	changed := make([]string, 0, len(patterns))
	for _, id := range s.ids() {
		p, ok := patterns[id]
		if !ok {
			continue
		}
		i := s.index[id]
		snap := model.DynamicSnapshot{Current: cur[i].Current, Weekly: &p}
		next[i] = s.merge(s.catalog[i], &snap, now)
		changed = append(changed, id)
	}
	s.entities.Store(&next)
	s.writeMu.Unlock()

	bumpTime(&s.lastWeeklyUpdate, now)
	logFailures("Weekly refresh", failed)
	s.emit(events.Event{Kind: events.WeeklyUpdated, Source: "weekly", Generation: gen, Changed: changed, Failed: failed})
	log.Printf("Weekly refresh finished: %d updated, %d failed.", len(changed), len(failed))
	return fetchErr
}

// RefreshOccupancy merges live sensor readings into sensor-enabled
// locations. Other locations are not touched.
func (s *Scheduler) RefreshOccupancy(ctx context.Context) error {
	var sensors []model.Location
	for _, loc := range s.catalog {
		if loc.HasSensor() {
			sensors = append(sensors, loc)
		}
	}
	if len(sensors) == 0 {
		return nil
	}
	gen := s.generation.Load()

	readings, err := s.fetcher.FetchOccupancy(ctx, false)
	if err != nil {
		ids := make([]string, len(sensors))
		for i, loc := range sensors {
			ids[i] = loc.ID
		}
		s.emit(events.Event{Kind: events.RefreshFailed, Source: "occupancy", Generation: gen, Failed: ids, Err: err})
		s.dropExpiredOccupancy(gen)
		return fmt.Errorf("occupancy fetch: %w", err)
	}

	set := make(map[string]model.RealTimeOccupancy)
	var updates []update
	var failed []string
	for _, loc := range sensors {
		occ, ok := readings[loc.SensorKey]
		if !ok {
			failed = append(failed, loc.ID)
			continue
		}
		set[loc.ID] = occ
		updates = append(updates, update{id: loc.ID})
	}
	if len(updates) > 0 && s.apply(gen, change{updates: updates, occupancy: set}) {
		logFailures("Occupancy refresh", failed)
		s.emit(events.Event{Kind: events.OccupancyUpdated, Source: "occupancy", Generation: gen, Changed: changedIDs(updates), Failed: failed})
	}
	s.dropExpiredOccupancy(gen)
	return nil
}

// dropExpiredOccupancy removes readings past the occupancy TTL and announces
// the affected locations as expiry events.
func (s *Scheduler) dropExpiredOccupancy(gen uint64) {
	expired := s.expireOccupancy()
	if len(expired) == 0 {
		return
	}
	log.Printf("Occupancy readings expired for %v", expired)
	s.emit(events.Event{Kind: events.OccupancyUpdated, Source: events.SourceExpiry, Generation: gen, Changed: expired})
}

// SweepCache replaces entities from cache hits without any network call,
// so entries written by another process become visible. Entities already
// built from the same cached data are left alone.
func (s *Scheduler) SweepCache(ctx context.Context) error {
	gen := s.generation.Load()
	s.dropExpiredOccupancy(gen)

	var updates []update
	for _, id := range s.ids() {
		snap, ok := s.cache.ReadCombined(ctx, id)
		if !ok {
			continue
		}
		if e, _ := s.Location(id); sameData(e, snap) {
			continue
		}
		updates = append(updates, update{id: id, snap: &snap})
	}
	if len(updates) == 0 {
		return nil
	}
	if !s.apply(gen, change{updates: updates}) {
		return nil
	}

	bumpTime(&s.lastUpdate, s.now())
	s.emit(events.Event{Kind: events.LocationsUpdated, Source: "sweep", Generation: gen, Changed: changedIDs(updates)})
	log.Printf("Cache sweep surfaced %d locations.", len(updates))
	return nil
}

// RefreshLocation refreshes one location: a fresh cache entry is used as
// is, otherwise the location is fetched and written through.
func (s *Scheduler) RefreshLocation(ctx context.Context, id string) (model.Entity, error) {
	if _, ok := s.index[id]; !ok {
		return model.Entity{}, ErrUnknownLocation
	}
	gen := s.generation.Load()

	var persist func()
	snap, ok := s.cache.ReadCombined(ctx, id)
	if !ok {
		fetched, err := s.fetcher.FetchOne(ctx, id)
		if err != nil {
			s.emit(events.Event{Kind: events.RefreshFailed, Source: "location", Generation: gen, Failed: []string{id}, Err: err})
			e, _ := s.Location(id)
			return e, fmt.Errorf("refresh %s: %w", id, err)
		}
		persist = func() { s.writeThrough(ctx, id, fetched) }
		snap = fetched
	}

	if s.apply(gen, change{updates: []update{{id: id, snap: &snap}}, persist: persist}) {
		bumpTime(&s.lastUpdate, s.now())
		s.emit(events.Event{Kind: events.LocationsUpdated, Source: "location", Generation: gen, Changed: []string{id}})
	}
	e, _ := s.Location(id)
	return e, nil
}

func (s *Scheduler) writeThrough(ctx context.Context, id string, snap model.DynamicSnapshot) {
	if snap.Current != nil {
		if err := s.cache.WriteCurrent(ctx, id, *snap.Current); err != nil {
			log.Printf("Error writing current status of %s: %v", id, err)
		}
	}
	if snap.Weekly != nil {
		if err := s.cache.WriteWeekly(ctx, id, *snap.Weekly); err != nil {
			log.Printf("Error writing weekly pattern of %s: %v", id, err)
		}
	}
}

// sameData reports whether e was built from the buckets in snap.
func sameData(e model.Entity, snap model.DynamicSnapshot) bool {
	have := e.Snapshot()
	if have == nil || !have.Complete() || !snap.Complete() {
		return false
	}
	return have.Current.Timestamp.Equal(snap.Current.Timestamp) && have.Weekly.Timestamp.Equal(snap.Weekly.Timestamp)
}

func changedIDs(updates []update) []string {
	out := make([]string, len(updates))
	for i, u := range updates {
		out[i] = u.id
	}
	return out
}

func logFailures(cycle string, failed []string) {
	if len(failed) > 0 {
		log.Printf("%s kept previous data for %d locations: %v", cycle, len(failed), failed)
	}
}
