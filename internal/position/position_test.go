package position

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Accept(t *testing.T) {
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	f := NewFilter(WatchOptions{DistanceInterval: 10, TimeInterval: 30 * time.Second})
	origin := orb.Point{-73.9965, 40.7295}

	assert.True(t, f.Accept(origin, start), "first fix is always accepted")

	// About 5.5m north.
	near := orb.Point{-73.9965, 40.72955}
	assert.False(t, f.Accept(near, start.Add(5*time.Second)))

	// About 22m north of the last accepted fix.
	far := orb.Point{-73.9965, 40.7297}
	assert.True(t, f.Accept(far, start.Add(10*time.Second)))

	assert.False(t, f.Accept(far, start.Add(20*time.Second)))
	assert.True(t, f.Accept(far, start.Add(40*time.Second)), "time interval elapsed")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(orb.Point{-73.99, 40.73}))
	assert.Error(t, Validate(orb.Point{-73.99, 95}))
	assert.Error(t, Validate(orb.Point{190, 40}))
}

func TestManual_PushAndCurrent(t *testing.T) {
	ctx := context.Background()
	m := NewManual()

	_, err := m.CurrentPosition(ctx)
	assert.ErrorIs(t, err, ErrNoFix)

	perm, err := m.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, Granted, perm)

	require.NoError(t, m.Push(orb.Point{-73.99, 40.73}))
	p, err := m.CurrentPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-73.99, 40.73}, p)

	assert.Error(t, m.Push(orb.Point{0, 100}))
}

func TestManual_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManual()

	var mu sync.Mutex
	var got []orb.Point
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx, func(p orb.Point) {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		}, WatchOptions{DistanceInterval: 10, TimeInterval: time.Hour})
	}()

	// Wait until the watcher is registered.
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Push(orb.Point{-73.9965, 40.7295}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, orb.Point{-73.9965, 40.7295}, got[0])
}
