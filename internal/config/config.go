// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep the raw Config mutable only during load; consumers read immutable
//   Revisions published by the Store.
// - External errors must be wrapped via this package's error helpers.
package config

// ScoutConfig configures the external scanning service client and the
// dispatch engine.
type ScoutConfig struct {
	// BaseURL of the scanning service, e.g. "http://dragonite:7272".
	BaseURL string `koanf:"base_url"`

	// Optional credentials. Username/Password enable basic auth, APIKey is
	// sent as X-API-Key, BearerToken as Authorization: Bearer.
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	APIKey      string `koanf:"api_key"`
	BearerToken string `koanf:"bearer_token"`

	// Concurrency bounds the outstanding scout set.
	Concurrency int `koanf:"concurrency"`

	// TimeoutIVSeconds is how long a dispatched scout waits for its IV
	// webhook before timing out.
	TimeoutIVSeconds int `koanf:"timeout_iv"`

	// SweepIntervalSeconds is the cadence of the deadline sweep.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`
}

// AutoRarityConfig configures the dynamic rarity tracker.
type AutoRarityConfig struct {
	Enabled bool `koanf:"enabled"`

	// CalibrationMinutes is the per-area warm-up before rankings are trusted.
	CalibrationMinutes int `koanf:"calibration_minutes"`

	// IVThreshold and CellThreshold cap the rarity rank eligible for
	// dispatch, for single-spawn and nearby_cell events respectively.
	IVThreshold   int `koanf:"iv_threshold"`
	CellThreshold int `koanf:"cell_threshold"`

	RankingIntervalSeconds int `koanf:"ranking_interval_seconds"`
	CleanupIntervalSeconds int `koanf:"cleanup_interval_seconds"`

	// CensusStaleSeconds is the despawn-inference staleness threshold;
	// records not seen for this long are pruned. Deliberately distinct
	// from the cleanup cadence.
	CensusStaleSeconds int `koanf:"census_stale_seconds"`
}

// GeofenceConfig configures the polygon provider and cache.
type GeofenceConfig struct {
	// Enabled toggles geofence filtering. When false, lookups return the
	// synthetic GLOBAL area.
	Enabled bool `koanf:"enabled"`

	BaseURL     string `koanf:"base_url"`
	BearerToken string `koanf:"bearer_token"`
	Project     string `koanf:"project"`

	RefreshCacheSeconds int `koanf:"refresh_cache_seconds"`
	ExpireCacheSeconds  int `koanf:"expire_cache_seconds"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":7070".
	Addr string `koanf:"addr"`

	// AllowedIPs restricts webhook callers; empty means allow all.
	AllowedIPs []string `koanf:"allowed_ips"`

	// AuthHeader requires a static header on webhook calls, in
	// "Header-Name: value" form. Empty disables header auth.
	AuthHeader string `koanf:"auth_header"`

	// IVList and CellList are ordered species[:form] matcher sequences.
	// Lower index means higher priority.
	IVList   []string `koanf:"ivlist"`
	CellList []string `koanf:"celllist"`

	Scout      ScoutConfig      `koanf:"scout"`
	AutoRarity AutoRarityConfig `koanf:"auto_rarity"`
	Geofence   GeofenceConfig   `koanf:"geofence"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Addr:     ":7070",
		Scout: ScoutConfig{
			Concurrency:          5,
			TimeoutIVSeconds:     180,
			SweepIntervalSeconds: 30,
		},
		AutoRarity: AutoRarityConfig{
			CalibrationMinutes:     5,
			IVThreshold:            50,
			CellThreshold:          20,
			RankingIntervalSeconds: 300,
			CleanupIntervalSeconds: 60,
			CensusStaleSeconds:     1800,
		},
		Geofence: GeofenceConfig{
			Enabled:             true,
			RefreshCacheSeconds: 3500,
			ExpireCacheSeconds:  3600,
		},
	}
}
