package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"facility-finder-backend/config"
	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/position"
	"facility-finder-backend/internal/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFinder struct {
	mu         sync.Mutex
	list       []model.Entity
	err        error
	refreshErr error
	forced     int
	gets       int
	state      scheduler.State
	last       time.Time
}

func (f *fakeFinder) GetAllLocations(context.Context) ([]model.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return append([]model.Entity(nil), f.list...), f.err
}

func (f *fakeFinder) Location(id string) (model.Entity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.list {
		if e.ID == id {
			return e, true
		}
	}
	return model.Entity{}, false
}

func (f *fakeFinder) RefreshLocation(_ context.Context, id string) (model.Entity, error) {
	e, ok := f.Location(id)
	if !ok {
		return model.Entity{}, scheduler.ErrUnknownLocation
	}
	if f.refreshErr != nil {
		return e, f.refreshErr
	}
	e.Busyness = 99
	return e, nil
}

func (f *fakeFinder) ForceRefresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
	return f.refreshErr
}

func (f *fakeFinder) Locations() []model.Entity { return append([]model.Entity(nil), f.list...) }
func (f *fakeFinder) State() scheduler.State     { return f.state }
func (f *fakeFinder) Generation() uint64         { return uint64(f.forced) }
func (f *fakeFinder) LastUpdate() time.Time      { return f.last }
func (f *fakeFinder) LastWeeklyUpdate() time.Time {
	return time.Time{}
}

func distance(d float64) *float64 { return &d }

func newFinder() *fakeFinder {
	return &fakeFinder{
		state: scheduler.Warm,
		last:  time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC),
		list: []model.Entity{
			{Location: model.Location{ID: "lib", Name: "Library", Categories: []string{"study"}}, Busyness: 60, Distance: distance(300)},
			{Location: model.Location{ID: "gym", Name: "Gym", Categories: []string{"gym"}}, Busyness: 20},
			{Location: model.Location{ID: "dining", Name: "Dining", Categories: []string{"dining"}}, Busyness: 40, Distance: distance(100)},
		},
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PushSubscription{}, &model.SubscriptionLocation{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type testServer struct {
	router   *gin.Engine
	finder   *fakeFinder
	position *position.Manual
	bus      *events.Bus
}

func newTestServer(t *testing.T, opts *webpush.Options) *testServer {
	ts := &testServer{finder: newFinder(), position: position.NewManual(), bus: events.NewBus()}
	ts.router = NewRouter(Deps{
		Finder:   ts.finder,
		DB:       newTestDB(t),
		Position: ts.position,
		Events:   ts.bus,
		Webpush:  opts,
		Server:   config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTL: time.Minute},
	})
	return ts
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	ts.router.ServeHTTP(w, req)
	return w
}

func ids(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var list []model.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ID
	}
	return out
}

func TestGetLocations(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		status   int
		expected []string
	}{
		{name: "Catalog order", path: "/api/locations", status: http.StatusOK, expected: []string{"lib", "gym", "dining"}},
		{name: "By distance", path: "/api/locations?sort=distance", status: http.StatusOK, expected: []string{"dining", "lib", "gym"}},
		{name: "By busyness", path: "/api/locations?sort=busyness", status: http.StatusOK, expected: []string{"gym", "dining", "lib"}},
		{name: "By category", path: "/api/locations?category=study", status: http.StatusOK, expected: []string{"lib"}},
		{name: "Bad sort", path: "/api/locations?sort=name", status: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.status, w.Code)
			if tc.expected != nil {
				assert.Equal(t, tc.expected, ids(t, w))
			}
		})
	}
}

func TestGetLocations_CachedUntilDataChanges(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(http.MethodGet, "/api/locations", nil)
	w := ts.do(http.MethodGet, "/api/locations", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, ts.finder.gets)

	ts.bus.Emit(events.Event{Kind: events.LocationsUpdated})
	ts.do(http.MethodGet, "/api/locations", nil)
	assert.Equal(t, 2, ts.finder.gets)
}

func TestGetLocations_ColdStartFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.finder.err = errors.New("cold start failed: upstream down")

	w := ts.do(http.MethodGet, "/api/locations", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream down")

	ts.finder.err = nil
	w = ts.do(http.MethodGet, "/api/locations", nil)
	assert.Equal(t, http.StatusOK, w.Code, "failures are not cached")
}

func TestGetLocation(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/api/locations/gym", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var e model.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, 20, e.Busyness)

	w = ts.do(http.MethodGet, "/api/locations/gym?refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, 99, e.Busyness)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/locations/pool", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/locations/pool?refresh=true", nil).Code)

	ts.finder.refreshErr = errors.New("timeout")
	assert.Equal(t, http.StatusBadGateway, ts.do(http.MethodGet, "/api/locations/gym?refresh=true", nil).Code)
}

func TestPostRefresh(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ts.finder.forced)
	assert.Len(t, ids(t, w), 3)

	ts.finder.refreshErr = errors.New("cold start failed")
	w = ts.do(http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPutPosition(t *testing.T) {
	testCases := []struct {
		name   string
		body   any
		status int
	}{
		{name: "Valid fix", body: map[string]float64{"lat": 40.7295, "lon": -73.9965}, status: http.StatusNoContent},
		{name: "Equator and meridian", body: map[string]float64{"lat": 0, "lon": 0}, status: http.StatusNoContent},
		{name: "Missing longitude", body: map[string]float64{"lat": 40.7}, status: http.StatusBadRequest},
		{name: "Latitude out of range", body: map[string]float64{"lat": 91, "lon": 0}, status: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(http.MethodPut, "/api/position", tc.body)
			assert.Equal(t, tc.status, w.Code)

			_, err := ts.position.CurrentPosition(context.Background())
			if tc.status == http.StatusNoContent {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, position.ErrNoFix)
			}
		})
	}
}

func TestPutPosition_PushesFix(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPut, "/api/position", map[string]float64{"lat": 40.7295, "lon": -73.9965})

	p, err := ts.position.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-73.9965, 40.7295}, p)
}

func TestGetStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"state": "warm",
		"generation": 0,
		"lastUpdate": "2026-03-02T17:00:00Z",
		"lastWeeklyUpdate": null,
		"locations": 3
	}`, w.Body.String())
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t, nil)
	endpoint := "https://push.example.com/send/abc"

	w := ts.do(http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint": endpoint, "p256dh": "key", "auth": "auth",
		"subscribed_locations": []string{"lib", "gym"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Locations []string `json:"subscribed_locations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.ElementsMatch(t, []string{"lib", "gym"}, got.Locations)

	w = ts.do(http.MethodDelete, "/api/subscriptions", map[string]string{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code)
}

func TestPutSubscription_Invalid(t *testing.T) {
	testCases := []struct {
		name     string
		body     any
		expected string
	}{
		{name: "Empty body", body: nil, expected: `{"error":"invalid request"}`},
		{name: "Missing keys", body: map[string]string{"endpoint": "https://push.example.com/x"}, expected: `{"error":"invalid request"}`},
		{name: "Unknown location", body: map[string]any{
			"endpoint": "https://push.example.com/x", "p256dh": "k", "auth": "a",
			"subscribed_locations": []string{"pool"},
		}, expected: `{"error":"unknown location pool"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(http.MethodPut, "/api/subscriptions", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, tc.expected, w.Body.String())
		})
	}
}

func TestGetSubscription_RequiresEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/subscriptions", nil).Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/vapid_public_key", nil).Code)

	ts = newTestServer(t, &webpush.Options{VAPIDPublicKey: "BPublic"})
	w := ts.do(http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublic"}`, w.Body.String())
}
