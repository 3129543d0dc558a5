package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"facility-finder-backend/internal/position"
)

// Run performs the cold start and then drives every refresh class on its
// own timer until ctx is cancelled. A failed cold start is retried by the
// realtime cycle.
func (s *Scheduler) Run(ctx context.Context) {
	log.Println("Starting refresh scheduler...")

	if _, err := s.GetAllLocations(ctx); err != nil {
		log.Printf("Error during cold start: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.loop(gctx, "realtime", s.intervals.Realtime, false, s.RefreshRealtime); return nil })
	g.Go(func() error { s.loop(gctx, "weekly", s.intervals.Weekly, false, s.RefreshWeekly); return nil })
	g.Go(func() error { s.loop(gctx, "occupancy", s.intervals.Occupancy, true, s.RefreshOccupancy); return nil })
	g.Go(func() error { s.loop(gctx, "sweep", s.intervals.Sweep, false, s.SweepCache); return nil })
	if s.provider != nil {
		g.Go(func() error { return s.track(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.Printf("Refresh scheduler stopped with error: %v", err)
	}
	log.Println("Refresh scheduler shutting down.")
}

// loop calls fn every period until ctx is done. A non-positive period
// disables the class.
func (s *Scheduler) loop(ctx context.Context, name string, period time.Duration, immediate bool, fn func(context.Context) error) {
	if period <= 0 {
		log.Printf("The %s refresh is disabled.", name)
		return
	}
	if immediate {
		s.runCycle(ctx, name, fn)
	}

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runCycle(ctx, name, fn)
			timer.Reset(period)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Error during %s refresh: %v", name, err)
	}
}

// track follows the position provider and recomputes distances on every
// accepted fix. A denied permission disables tracking.
func (s *Scheduler) track(ctx context.Context) error {
	perm, err := s.provider.RequestPermission(ctx)
	if err == nil && perm != position.Granted {
		err = position.ErrPermissionDenied
	}
	if err != nil {
		log.Printf("Location tracking disabled: %v", err)
		return nil
	}

	if p, err := s.provider.CurrentPosition(ctx); err == nil {
		s.UpdatePosition(p)
	}
	return s.provider.Watch(ctx, func(p orb.Point) { s.UpdatePosition(p) }, s.intervals.Track)
}
