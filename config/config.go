package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Cache      CacheConfig      `yaml:"cache"`
	Campus     CampusConfig     `yaml:"campus"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
// Alerts are disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// UpstreamConfig describes the crowd-data API the fetchers talk to.
type UpstreamConfig struct {
	BaseURL        string            `yaml:"base_url"`
	HTTPProxy      string            `yaml:"http_proxy"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
	RequestsPerSec float64           `yaml:"requests_per_sec"`
	RequestBurst   int               `yaml:"request_burst"`
}

// RefreshConfig holds the period of each refresh cycle in seconds. Zero
// selects the default and a negative period disables the cycle.
type RefreshConfig struct {
	RealtimeSeconds  int     `yaml:"realtime_seconds"`
	WeeklySeconds    int     `yaml:"weekly_seconds"`
	OccupancySeconds int     `yaml:"occupancy_seconds"`
	SweepSeconds     int     `yaml:"sweep_seconds"`
	TrackMeters      float64 `yaml:"track_meters"`
	TrackSeconds     int     `yaml:"track_seconds"`

	Realtime  time.Duration `yaml:"-"`
	Weekly    time.Duration `yaml:"-"`
	Occupancy time.Duration `yaml:"-"`
	Sweep     time.Duration `yaml:"-"`
	Track     time.Duration `yaml:"-"`
}

// CacheConfig holds the TTL table for the persistent cache buckets.
type CacheConfig struct {
	CurrentMinutes          int `yaml:"current_minutes"`
	ColdStartCurrentMinutes int `yaml:"cold_start_current_minutes"`
	WeeklyHours             int `yaml:"weekly_hours"`
	OccupancySeconds        int `yaml:"occupancy_seconds"`
}

// CampusConfig holds the static facility catalog and the campus timezone.
type CampusConfig struct {
	Timezone  string     `yaml:"timezone" validate:"required"`
	Locations []Location `yaml:"locations" validate:"required,min=1,dive"`
}

// Location is one facility entry of the static catalog.
type Location struct {
	ID         string   `yaml:"id" validate:"required"`
	Name       string   `yaml:"name" validate:"required"`
	Latitude   float64  `yaml:"latitude" validate:"latitude"`
	Longitude  float64  `yaml:"longitude" validate:"longitude"`
	Capacity   int      `yaml:"capacity" validate:"gte=0"`
	Amenities  []string `yaml:"amenities"`
	Categories []string `yaml:"categories" validate:"dive,oneof=study dining gym"`
	SensorKey  string   `yaml:"sensor_key"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = 10
	}
	cfg.Upstream.Timeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	if cfg.Upstream.RequestsPerSec <= 0 {
		cfg.Upstream.RequestsPerSec = 5
	}
	if cfg.Upstream.RequestBurst <= 0 {
		cfg.Upstream.RequestBurst = 10
	}

	r := &cfg.Refresh
	r.RealtimeSeconds = periodOrDefault(r.RealtimeSeconds, 2*60*60)
	r.WeeklySeconds = periodOrDefault(r.WeeklySeconds, 7*24*60*60)
	r.OccupancySeconds = periodOrDefault(r.OccupancySeconds, 5*60)
	r.SweepSeconds = periodOrDefault(r.SweepSeconds, 5*60)
	r.TrackSeconds = orDefault(r.TrackSeconds, 30)
	if r.TrackMeters <= 0 {
		r.TrackMeters = 10
	}
	r.Realtime = time.Duration(r.RealtimeSeconds) * time.Second
	r.Weekly = time.Duration(r.WeeklySeconds) * time.Second
	r.Occupancy = time.Duration(r.OccupancySeconds) * time.Second
	r.Sweep = time.Duration(r.SweepSeconds) * time.Second
	r.Track = time.Duration(r.TrackSeconds) * time.Second

	c := &cfg.Cache
	c.CurrentMinutes = orDefault(c.CurrentMinutes, 30)
	c.ColdStartCurrentMinutes = orDefault(c.ColdStartCurrentMinutes, 120)
	c.WeeklyHours = orDefault(c.WeeklyHours, 7*24)
	c.OccupancySeconds = orDefault(c.OccupancySeconds, 5*60)

	if cfg.Campus.Timezone == "" {
		cfg.Campus.Timezone = "America/New_York"
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:finder.db?cache=shared"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// Validate checks the facility catalog and the campus timezone.
func (cfg *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg.Campus); err != nil {
		return fmt.Errorf("invalid campus catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(cfg.Campus.Locations))
	for _, l := range cfg.Campus.Locations {
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("invalid campus catalog: duplicate location id %q", l.ID)
		}
		seen[l.ID] = struct{}{}
	}

	if _, err := time.LoadLocation(cfg.Campus.Timezone); err != nil {
		return fmt.Errorf("invalid campus timezone %q: %w", cfg.Campus.Timezone, err)
	}
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// periodOrDefault keeps negative periods, which switch a cycle off.
func periodOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
