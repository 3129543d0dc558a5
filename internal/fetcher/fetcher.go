package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"facility-finder-backend/config"
	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/timedcache"
)

const occupancyCacheKey = "safespace"

// Client talks to the crowd-data API. Every call is bounded by the
// configured timeout and the outbound rate limit.
type Client struct {
	baseURL      string
	headers      map[string]string
	client       *http.Client
	limiter      *rate.Limiter
	occupancy    *timedcache.Cache[map[string]model.RealTimeOccupancy]
	occupancyTTL time.Duration
	now          func() time.Time
}

// NewClient creates a Client for cfg. Occupancy readings are memoized for
// occupancyTTL.
func NewClient(cfg config.UpstreamConfig, occupancyTTL time.Duration) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Fetcher will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.RequestBurst
	if burst <= 0 {
		burst = 1
	}
	if occupancyTTL <= 0 {
		occupancyTTL = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		limiter:      rate.NewLimiter(limit, burst),
		occupancy:    timedcache.New[map[string]model.RealTimeOccupancy](occupancyTTL, 2*occupancyTTL),
		occupancyTTL: occupancyTTL,
		now:          time.Now,
	}
}

// FetchOne fetches the crowd data of a single location.
func (c *Client) FetchOne(ctx context.Context, id string) (model.DynamicSnapshot, error) {
	u := c.baseURL + "/api/locations/" + url.PathEscape(id) + "/crowd-data"

	var data crowdData
	if err := c.getJSON(ctx, u, &data); err != nil {
		return model.DynamicSnapshot{}, err
	}
	if reason := data.validate(); reason != "" {
		return model.DynamicSnapshot{}, &MalformedDataError{URL: u, ID: id, Reason: reason}
	}
	return data.toSnapshot(c.now()), nil
}

// FetchBulk fetches the crowd data of every location in one request and
// returns the entries for ids. Entries that are missing or malformed are
// left out of the result; callers treat them as per-location failures.
func (c *Client) FetchBulk(ctx context.Context, ids []string) (map[string]model.DynamicSnapshot, error) {
	u := c.baseURL + "/api/locations/bulk-data"

	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}

	now := c.now()
	out := make(map[string]model.DynamicSnapshot, len(ids))
	for _, id := range ids {
		entry, ok := raw[id]
		if !ok {
			continue
		}
		var data crowdData
		if err := json.Unmarshal(entry, &data); err != nil {
			log.Printf("Skipping bulk entry %s: %v", id, &MalformedDataError{URL: u, ID: id, Err: err})
			continue
		}
		if reason := data.validate(); reason != "" {
			log.Printf("Skipping bulk entry %s: %v", id, &MalformedDataError{URL: u, ID: id, Reason: reason})
			continue
		}
		out[id] = data.toSnapshot(now)
	}
	return out, nil
}

// FetchOccupancy returns live sensor readings keyed by sensor key. A cached
// reading younger than the occupancy TTL is returned unless refresh is set.
func (c *Client) FetchOccupancy(ctx context.Context, refresh bool) (map[string]model.RealTimeOccupancy, error) {
	if !refresh {
		if cached, ok := c.occupancy.Get(occupancyCacheKey); ok {
			return maps.Clone(cached), nil
		}
	}

	u := c.baseURL + "/api/locations/library/safespace?refresh=" + strconv.FormatBool(refresh)
	var raw map[string]occupancyData
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, err
	}

	now := c.now()
	out := make(map[string]model.RealTimeOccupancy, len(raw))
	for key, data := range raw {
		occ, ok := data.toOccupancy(now)
		if !ok {
			log.Printf("Skipping occupancy entry %s: %v", key, &MalformedDataError{URL: u, ID: key, Reason: "missing count or percentage"})
			continue
		}
		out[key] = occ
	}
	if len(out) == 0 {
		return nil, &MalformedDataError{URL: u, Reason: "no usable occupancy entries"}
	}

	c.occupancy.Set(occupancyCacheKey, out, c.occupancyTTL)
	return maps.Clone(out), nil
}

// getJSON performs a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &FetchError{URL: u, Err: errors.Wrap(err, "rate limiter")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &FetchError{URL: u, Err: errors.Wrap(err, "failed to create request")}
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &FetchError{URL: u, Err: errors.Wrap(err, "http request failed")}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{URL: u, Err: errors.Wrap(err, "failed to read response body")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedDataError{URL: u, Err: err}
	}
	return nil
}
