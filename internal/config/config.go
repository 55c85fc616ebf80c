package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
)

// Config holds service and CLI configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	DataBackend  string // "http" or "minio"
	DataBaseURL  string
	DataTimeout  time.Duration
	GridPaths    []string
	OverlayPath  string
	ColorbarPath string
	MinIO        MinIOConfig

	Domain models.Domain

	ForecastStart  time.Time
	HourStep       int
	KnownMaxHour   int // negative when unknown
	DefaultMaxHour int
	HourCeiling    int
	Checkpoints    []int
	ScanAll        bool
	ProbeTTL       time.Duration

	Variables []models.Variable

	PlaceholderRows int
	PlaceholderCols int

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	MemcachedExpiration   time.Duration

	RetryAttempts           int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerFailureThreshold int
	BreakerHalfOpenRequests int
	BreakerTimeout          time.Duration
	RateLimitRPS            int
	RateLimitBurst          int

	TimeseriesTimeout time.Duration
	PrefetchTimeout   time.Duration

	WarmEnabled     bool
	WarmVariables   []string
	WarmInterval    time.Duration
	WarmConcurrency int

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int

	LogLevel string
}

// MinIOConfig locates grid documents in an object store bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Data struct {
		Backend      string   `yaml:"backend"`
		BaseURL      string   `yaml:"base_url"`
		Timeout      string   `yaml:"timeout"`
		GridPaths    []string `yaml:"grid_paths"`
		OverlayPath  string   `yaml:"overlay_path"`
		ColorbarPath string   `yaml:"colorbar_path"`
		MinIO        struct {
			Endpoint string `yaml:"endpoint"`
			Bucket   string `yaml:"bucket"`
			Prefix   string `yaml:"prefix"`
			UseSSL   bool   `yaml:"use_ssl"`
		} `yaml:"minio"`
	} `yaml:"data"`

	Domain *models.Domain `yaml:"domain"`

	Forecast struct {
		Start          string `yaml:"start"`
		HourStep       int    `yaml:"hour_step"`
		KnownMaxHour   *int   `yaml:"known_max_hour"`
		DefaultMaxHour int    `yaml:"default_max_hour"`
		Ceiling        int    `yaml:"ceiling"`
		Checkpoints    []int  `yaml:"checkpoints"`
		ScanAll        bool   `yaml:"scan_all"`
		ProbeTTL       string `yaml:"probe_ttl"`
	} `yaml:"forecast"`

	Variables []models.Variable `yaml:"variables"`

	Placeholder struct {
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`
	} `yaml:"placeholder"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
			Expiration   string `yaml:"expiration"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			HalfOpenRequests int    `yaml:"half_open_requests"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Timeseries struct {
		Timeout         string `yaml:"timeout"`
		PrefetchTimeout string `yaml:"prefetch_timeout"`
	} `yaml:"timeseries"`

	Warm struct {
		Enabled     bool     `yaml:"enabled"`
		Variables   []string `yaml:"variables"`
		Interval    string   `yaml:"interval"`
		Concurrency int      `yaml:"concurrency"`
	} `yaml:"warm"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinSamples int    `yaml:"degraded_min_samples"`
	} `yaml:"health"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) under the
// working directory. A .env file there is loaded first when present.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFromDir(cwd)
}

// LoadFromDir is Load rooted at dir.
func LoadFromDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.DataBackend = envOr("DATA_BACKEND", strings.ToLower(strings.TrimSpace(fc.Data.Backend)))
	if cfg.DataBackend == "" {
		cfg.DataBackend = "http"
	}
	cfg.DataBaseURL = envOr("DATA_BASE_URL", strings.TrimSpace(fc.Data.BaseURL))
	cfg.DataTimeout = parseDuration(fc.Data.Timeout, 5*time.Second)
	cfg.GridPaths = fc.Data.GridPaths
	if len(cfg.GridPaths) == 0 {
		cfg.GridPaths = []string{"{variable}/json/fh_{hour3}.json", "{variable}/json/fh_{hour}.json"}
	}
	cfg.OverlayPath = fc.Data.OverlayPath
	cfg.ColorbarPath = fc.Data.ColorbarPath
	cfg.MinIO = MinIOConfig{
		Endpoint:  fc.Data.MinIO.Endpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    fc.Data.MinIO.Bucket,
		Prefix:    fc.Data.MinIO.Prefix,
		UseSSL:    fc.Data.MinIO.UseSSL,
	}

	cfg.Domain = models.DefaultDomain
	if fc.Domain != nil {
		cfg.Domain = *fc.Domain
	}

	start := envOr("FORECAST_START", strings.TrimSpace(fc.Forecast.Start))
	if start == "" {
		cfg.ForecastStart = time.Now().UTC().Truncate(24 * time.Hour)
	} else {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, fmt.Errorf("forecast.start must be RFC3339: %w", err)
		}
		cfg.ForecastStart = t.UTC()
	}
	cfg.HourStep = positiveOr(fc.Forecast.HourStep, 1)
	cfg.KnownMaxHour = -1
	if fc.Forecast.KnownMaxHour != nil {
		cfg.KnownMaxHour = *fc.Forecast.KnownMaxHour
	}
	cfg.DefaultMaxHour = positiveOr(fc.Forecast.DefaultMaxHour, 239)
	cfg.HourCeiling = positiveOr(fc.Forecast.Ceiling, 500)
	cfg.Checkpoints = fc.Forecast.Checkpoints
	if len(cfg.Checkpoints) == 0 {
		cfg.Checkpoints = []int{0, 24, 48, 72, 96, 120, 168, 240, 336, 500}
	}
	cfg.ScanAll = fc.Forecast.ScanAll
	cfg.ProbeTTL = parseDurationOrZero(fc.Forecast.ProbeTTL, 10*time.Minute)

	cfg.Variables = fc.Variables

	cfg.PlaceholderRows = positiveOr(fc.Placeholder.Rows, 50)
	cfg.PlaceholderCols = positiveOr(fc.Placeholder.Cols, 50)

	cfg.CacheBackend = envOr("CACHE_BACKEND", strings.TrimSpace(strings.ToLower(fc.Cache.Backend)))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", strings.TrimSpace(fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)
	cfg.MemcachedExpiration = parseDurationOrZero(fc.Cache.Memcached.Expiration, 0)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5)
	cfg.BreakerHalfOpenRequests = positiveOr(fc.Reliability.CircuitBreaker.HalfOpenRequests, 2)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)

	cfg.TimeseriesTimeout = parseDuration(fc.Timeseries.Timeout, 2*time.Minute)
	cfg.PrefetchTimeout = parseDuration(fc.Timeseries.PrefetchTimeout, 30*time.Second)

	cfg.WarmEnabled = fc.Warm.Enabled
	cfg.WarmVariables = fc.Warm.Variables
	cfg.WarmInterval = parseDuration(fc.Warm.Interval, time.Hour)
	cfg.WarmConcurrency = positiveOr(fc.Warm.Concurrency, 4)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 20)
	cfg.DegradedMinSamples = positiveOr(fc.Health.DegradedMinSamples, 5)

	cfg.LogLevel = os.Getenv("LOG_LEVEL")

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Variable returns the named variable's settings.
func (c *Config) Variable(name string) (models.Variable, bool) {
	for _, v := range c.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return models.Variable{}, false
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero is returned as-is so fields can use it to mean "disabled".
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above DataTimeout if needed.
func validate(cfg *Config) error {
	if !cfg.Domain.Valid() {
		return fmt.Errorf("domain bounds must satisfy lat_sw < lat_ne and lon_sw < lon_ne")
	}
	switch cfg.DataBackend {
	case "http":
		if cfg.DataBaseURL == "" {
			return fmt.Errorf("data.base_url (or DATA_BASE_URL) is required for the http backend")
		}
	case "minio":
		if cfg.MinIO.Endpoint == "" || cfg.MinIO.Bucket == "" {
			return fmt.Errorf("data.minio.endpoint and data.minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("data.backend must be http or minio, got %q", cfg.DataBackend)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if len(cfg.GridPaths) == 0 {
		return fmt.Errorf("data.grid_paths must list at least one template")
	}
	if len(cfg.Variables) == 0 {
		return fmt.Errorf("at least one variable must be configured")
	}
	seen := make(map[string]bool, len(cfg.Variables))
	for _, v := range cfg.Variables {
		if v.Name == "" {
			return fmt.Errorf("variable name is required")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
		if v.Precision < 0 || v.Precision > 6 {
			return fmt.Errorf("variable %q precision must be 0-6", v.Name)
		}
	}
	for _, w := range cfg.WarmVariables {
		if !seen[w] {
			return fmt.Errorf("warm variable %q is not configured", w)
		}
	}
	for i := 1; i < len(cfg.Checkpoints); i++ {
		if cfg.Checkpoints[i] <= cfg.Checkpoints[i-1] {
			return fmt.Errorf("forecast.checkpoints must be strictly ascending")
		}
	}
	if len(cfg.Checkpoints) > 0 && cfg.Checkpoints[0] < 0 {
		return fmt.Errorf("forecast.checkpoints must be non-negative")
	}
	if cfg.DefaultMaxHour > cfg.HourCeiling {
		return fmt.Errorf("forecast.default_max_hour %d exceeds ceiling %d", cfg.DefaultMaxHour, cfg.HourCeiling)
	}
	if cfg.KnownMaxHour > cfg.HourCeiling {
		return fmt.Errorf("forecast.known_max_hour %d exceeds ceiling %d", cfg.KnownMaxHour, cfg.HourCeiling)
	}
	if cfg.RequestTimeout <= cfg.DataTimeout {
		cfg.RequestTimeout = cfg.DataTimeout + time.Second
	}
	return nil
}
