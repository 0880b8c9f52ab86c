package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded once at startup.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// TelegramConfig contains credentials for both authentication paths and the
// list of channels to monitor.
type TelegramConfig struct {
	APIID    int      `yaml:"api_id"`
	APIHash  string   `yaml:"api_hash"`
	Phone    string   `yaml:"phone"`
	Password string   `yaml:"password"` // 2FA password, optional
	BotToken string   `yaml:"bot_token"`
	Channels []string `yaml:"channels"`
}

// DatabaseConfig contains configuration for the database connection.
type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MigrationsPath string `yaml:"migrations_path"`
}

// GeocodingConfig selects the geocoding providers and the map service used
// for URL generation.
type GeocodingConfig struct {
	Provider       string        `yaml:"provider"` // osm | google
	Fallback       string        `yaml:"fallback"` // osm | google | "" (none)
	GoogleAPIKey   string        `yaml:"google_api_key"`
	MapService     string        `yaml:"map_service"` // google | osm | apple
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
}

// PipelineConfig tunes the listener poll cycle and the processing pool.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// APIConfig configures the read-only query API.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig configures log verbosity and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// LoadConfig reads the configuration from the given path. Secrets may be
// supplied or overridden through environment variables so that config files
// can be committed without credentials.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TG_API_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.Telegram.APIID = id
		}
	}
	if v := os.Getenv("TG_API_HASH"); v != "" {
		c.Telegram.APIHash = v
	}
	if v := os.Getenv("TG_PHONE"); v != "" {
		c.Telegram.Phone = v
	}
	if v := os.Getenv("TG_PASSWORD"); v != "" {
		c.Telegram.Password = v
	}
	if v := os.Getenv("TG_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TG_CHANNELS"); v != "" {
		c.Telegram.Channels = splitList(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("GOOGLE_MAPS_API_KEY"); v != "" {
		c.Geocoding.GoogleAPIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "./migrations"
	}
	if c.Geocoding.Provider == "" {
		c.Geocoding.Provider = "osm"
	}
	if c.Geocoding.MapService == "" {
		c.Geocoding.MapService = "google"
	}
	if c.Geocoding.CacheTTL <= 0 {
		c.Geocoding.CacheTTL = 24 * time.Hour
	}
	if c.Geocoding.RequestTimeout <= 0 {
		c.Geocoding.RequestTimeout = 10 * time.Second
	}
	if c.Geocoding.RateLimitRPS <= 0 {
		c.Geocoding.RateLimitRPS = 1
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 256
	}
	if c.Pipeline.PollInterval <= 0 {
		c.Pipeline.PollInterval = time.Minute
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 50
	}
	if c.Pipeline.ShutdownGrace <= 0 {
		c.Pipeline.ShutdownGrace = 15 * time.Second
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Telegram.APIID == 0 || c.Telegram.APIHash == "" {
		return fmt.Errorf("telegram api_id and api_hash are required")
	}
	if c.Telegram.Phone == "" && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram phone or bot_token must be configured")
	}
	if len(c.Telegram.Channels) == 0 {
		return fmt.Errorf("at least one telegram channel must be configured")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	switch c.Geocoding.Provider {
	case "osm", "google":
	default:
		return fmt.Errorf("unknown geocoding provider %q", c.Geocoding.Provider)
	}
	switch c.Geocoding.Fallback {
	case "", "osm", "google":
	default:
		return fmt.Errorf("unknown geocoding fallback %q", c.Geocoding.Fallback)
	}
	if c.Geocoding.Fallback == c.Geocoding.Provider {
		return fmt.Errorf("geocoding fallback must differ from the primary provider")
	}
	switch c.Geocoding.MapService {
	case "google", "osm", "apple":
	default:
		return fmt.Errorf("unknown map service %q", c.Geocoding.MapService)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
