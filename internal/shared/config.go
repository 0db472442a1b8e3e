package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Redis      RedisConfig      `toml:"redis"`
	Database   DatabaseConfig   `toml:"database"`
	Cache      CacheConfig      `toml:"cache"`
	Download   DownloadConfig   `toml:"download"`
	Moderation ModerationConfig `toml:"moderation"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// RedisConfig points at the shared key-value store.
type RedisConfig struct {
	URL string `toml:"url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig locates the artifact cache on disk.
type CacheConfig struct {
	Dir              string `toml:"dir"`
	MaxArtifactBytes int64  `toml:"max_artifact_bytes"`
}

// DownloadConfig tunes the download dispatcher.
type DownloadConfig struct {
	Workers         int     `toml:"workers"`
	AwaitTimeout    string  `toml:"await_timeout"`
	FetchRatePerSec float64 `toml:"fetch_rate_per_sec"`
	CookiesFile     string  `toml:"cookies_file"`
}

// ModerationConfig holds the moderation policy.
type ModerationConfig struct {
	DefaultRequired bool   `toml:"default_required"`
	StaleAfter      string `toml:"stale_after"`
	AllowCrossAdmin bool   `toml:"allow_cross_admin"`
}

// ReconcileConfig schedules the background repair pass.
type ReconcileConfig struct {
	Interval string `toml:"interval"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the logger verbosity.
type LogConfig struct {
	Level string `toml:"level"`
}

// Addr joins host and port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AwaitTimeoutDuration parses [DownloadConfig.AwaitTimeout].
func (d DownloadConfig) AwaitTimeoutDuration() time.Duration {
	return mustDuration(d.AwaitTimeout)
}

// StaleAfterDuration parses [ModerationConfig.StaleAfter].
func (m ModerationConfig) StaleAfterDuration() time.Duration {
	return mustDuration(m.StaleAfter)
}

// IntervalDuration parses [ReconcileConfig.Interval].
func (r ReconcileConfig) IntervalDuration() time.Duration {
	return mustDuration(r.Interval)
}

// LogLevel parses [LogConfig.Level], falling back to info.
func (l LogConfig) LogLevel() log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// mustDuration returns zero for values that [Config.Validate] would reject.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks the fields other packages rely on.
func (c *Config) Validate() error {
	var problems []string

	if c.Redis.URL == "" {
		problems = append(problems, "redis.url is empty")
	}
	if c.Cache.Dir == "" {
		problems = append(problems, "cache.dir is empty")
	}
	if c.Cache.MaxArtifactBytes <= 0 {
		problems = append(problems, "cache.max_artifact_bytes must be positive")
	}
	if c.Download.Workers <= 0 {
		problems = append(problems, "download.workers must be positive")
	}
	if c.Download.FetchRatePerSec < 0 {
		problems = append(problems, "download.fetch_rate_per_sec must not be negative")
	}
	durations := []struct {
		name, value string
		positive    bool
	}{
		{"download.await_timeout", c.Download.AwaitTimeout, false},
		{"moderation.stale_after", c.Moderation.StaleAfter, true},
		{"reconcile.interval", c.Reconcile.Interval, false},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", d.name, err))
		case d.positive && parsed <= 0:
			problems = append(problems, d.name+" must be positive")
		case parsed < 0:
			problems = append(problems, d.name+" must not be negative")
		}
	}
	if c.Log.Level != "" {
		if _, err := log.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
			problems = append(problems, fmt.Sprintf("log.level: %v", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys absent from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
