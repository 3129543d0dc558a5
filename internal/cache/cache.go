// Package cache is the durable two-bucket cache of per-location crowd data.
//
// Each location has a current-status bucket and a weekly-pattern bucket,
// stored as JSON envelopes in a generic key-value store. The store has no
// native expiry, so freshness is checked against the envelope timestamp on
// every read. Storage and decode failures are logged and reported as misses.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/pkg/errors"

	"facility-finder-backend/config"
	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/store"
)

// Bucket names, also used as key prefixes.
const (
	BucketCurrent = "current_status"
	BucketWeekly  = "weekly_patterns"
)

// TTLs is the freshness table shared by every location.
type TTLs struct {
	Current          time.Duration
	ColdStartCurrent time.Duration
	Weekly           time.Duration
	Occupancy        time.Duration
}

// DefaultTTLs returns 30m current, 2h cold-start current, 7d weekly and 5m occupancy.
func DefaultTTLs() TTLs {
	return TTLs{
		Current:          30 * time.Minute,
		ColdStartCurrent: 2 * time.Hour,
		Weekly:           7 * 24 * time.Hour,
		Occupancy:        5 * time.Minute,
	}
}

// TTLsFromConfig converts the cache section of the configuration.
func TTLsFromConfig(c config.CacheConfig) TTLs {
	return TTLs{
		Current:          time.Duration(c.CurrentMinutes) * time.Minute,
		ColdStartCurrent: time.Duration(c.ColdStartCurrentMinutes) * time.Minute,
		Weekly:           time.Duration(c.WeeklyHours) * time.Hour,
		Occupancy:        time.Duration(c.OccupancySeconds) * time.Second,
	}
}

// envelope is the persisted form of one bucket. TTL is recorded so entries
// written with a non-default lifetime keep it across restarts.
type envelope struct {
	Timestamp  time.Time       `json:"timestamp"`
	TTLSeconds int64           `json:"ttlSeconds,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Layer reads and writes the two buckets of each location.
type Layer struct {
	kv   store.Store
	ttls TTLs
	now  func() time.Time
}

// Option configures a Layer.
type Option func(*Layer)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Layer) { l.now = now }
}

// New creates a Layer over kv.
func New(kv store.Store, ttls TTLs, opts ...Option) *Layer {
	l := &Layer{kv: kv, ttls: ttls, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TTLs returns the freshness table in use.
func (l *Layer) TTLs() TTLs {
	return l.ttls
}

// Key returns the storage key of a bucket, e.g. "current_status_main-library".
func Key(bucket, id string) string {
	return bucket + "_" + id
}

// ReadCurrent returns the cached current status of id if it is fresh.
func (l *Layer) ReadCurrent(ctx context.Context, id string) (model.CurrentStatus, bool) {
	var status model.CurrentStatus
	ok := l.read(ctx, BucketCurrent, id, l.ttls.Current, &status)
	return status, ok
}

// ReadWeekly returns the cached weekly pattern of id if it is fresh.
func (l *Layer) ReadWeekly(ctx context.Context, id string) (model.WeeklyPattern, bool) {
	var pattern model.WeeklyPattern
	ok := l.read(ctx, BucketWeekly, id, l.ttls.Weekly, &pattern)
	return pattern, ok
}

// ReadCombined returns both buckets of id, or a miss if either one misses.
// Mixing a fresh current status with a stale weekly pattern is never served.
func (l *Layer) ReadCombined(ctx context.Context, id string) (model.DynamicSnapshot, bool) {
	current, ok := l.ReadCurrent(ctx, id)
	if !ok {
		return model.DynamicSnapshot{}, false
	}
	weekly, ok := l.ReadWeekly(ctx, id)
	if !ok {
		return model.DynamicSnapshot{}, false
	}
	return model.DynamicSnapshot{Current: &current, Weekly: &weekly}, true
}

// WriteCurrent stamps and persists a current status with the default TTL.
func (l *Layer) WriteCurrent(ctx context.Context, id string, status model.CurrentStatus) error {
	return l.WriteCurrentFor(ctx, id, status, l.ttls.Current)
}

// WriteCurrentFor stamps and persists a current status that stays fresh for ttl.
func (l *Layer) WriteCurrentFor(ctx context.Context, id string, status model.CurrentStatus, ttl time.Duration) error {
	now := l.now()
	status.Timestamp = now
	return l.write(ctx, BucketCurrent, id, now, ttl, status)
}

// WriteWeekly stamps and persists a weekly pattern.
func (l *Layer) WriteWeekly(ctx context.Context, id string, pattern model.WeeklyPattern) error {
	now := l.now()
	pattern.Timestamp = now
	return l.write(ctx, BucketWeekly, id, now, l.ttls.Weekly, pattern)
}

// Invalidate removes both buckets of id.
func (l *Layer) Invalidate(ctx context.Context, id string) error {
	for _, bucket := range []string{BucketCurrent, BucketWeekly} {
		if err := l.kv.Remove(ctx, Key(bucket, id)); err != nil {
			return errors.Wrapf(err, "invalidate %s", id)
		}
	}
	return nil
}

func (l *Layer) read(ctx context.Context, bucket, id string, defaultTTL time.Duration, out any) bool {
	key := Key(bucket, id)
	raw, found, err := l.kv.Get(ctx, key)
	if err != nil {
		log.Printf("Cache read of %s failed, treating as miss: %v", key, err)
		return false
	}
	if !found {
		return false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Printf("Cache entry %s is corrupt, treating as miss: %v", key, err)
		return false
	}

	ttl := defaultTTL
	if env.TTLSeconds > 0 {
		ttl = time.Duration(env.TTLSeconds) * time.Second
	}
	if env.Timestamp.IsZero() || l.now().Sub(env.Timestamp) >= ttl {
		return false
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Printf("Cache entry %s has an undecodable payload, treating as miss: %v", key, err)
		return false
	}
	return true
}

func (l *Layer) write(ctx context.Context, bucket, id string, now time.Time, ttl time.Duration, data any) error {
	key := Key(bucket, id)
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	raw, err := json.Marshal(envelope{
		Timestamp:  now,
		TTLSeconds: int64(ttl / time.Second),
		Data:       payload,
	})
	if err != nil {
		return errors.Wrapf(err, "encode envelope %s", key)
	}
	if err := l.kv.Set(ctx, key, string(raw)); err != nil {
		return errors.Wrapf(err, "persist %s", key)
	}
	return nil
}
