// Package config loads the todocal runtime configuration from a YAML file
// with TODOCAL_* environment overrides, and writes it back.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cyp0633/libtodocal/recurrence"
	"github.com/cyp0633/libtodocal/scheduler"
)

const EnvPrefix = "TODOCAL"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// StorageConfig selects the repository backend.
type StorageConfig struct {
	// Driver is "memory" (default) or "postgres".
	Driver string `yaml:"driver" mapstructure:"driver"`
	// DatabaseURL is the pgx connection string for the postgres driver.
	DatabaseURL string `yaml:"database_url,omitempty" mapstructure:"database_url"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" mapstructure:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
}

// SchedulerConfig drives the background materialization job.
type SchedulerConfig struct {
	Spec           string `yaml:"spec" mapstructure:"spec"`
	HorizonDays    int    `yaml:"horizon_days" mapstructure:"horizon_days"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone new events and cron specs use.
	Timezone  string          `yaml:"timezone" mapstructure:"timezone"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	// CachePreset picks a recurrence engine preset: default,
	// high_performance, low_memory or disabled.
	CachePreset string `yaml:"cache_preset" mapstructure:"cache_preset"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone: "UTC",
		Storage:  StorageConfig{Driver: DriverMemory},
		Log:      LogConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{
			Spec:           scheduler.DefaultSpec,
			HorizonDays:    int(scheduler.DefaultHorizon / (24 * time.Hour)),
			TimeoutSeconds: int(scheduler.DefaultTimeout / time.Second),
		},
		CachePreset: "default",
	}
}

// Normalize fills in missing or invalid values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()

	c.Timezone = strings.TrimSpace(c.Timezone)
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres:
	default:
		c.Storage.Driver = def.Storage.Driver
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Log.Level = def.Log.Level
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format != "json" {
		c.Log.Format = def.Log.Format
	}

	if strings.TrimSpace(c.Scheduler.Spec) == "" {
		c.Scheduler.Spec = def.Scheduler.Spec
	}
	if c.Scheduler.HorizonDays <= 0 {
		c.Scheduler.HorizonDays = def.Scheduler.HorizonDays
	}
	if c.Scheduler.TimeoutSeconds <= 0 {
		c.Scheduler.TimeoutSeconds = def.Scheduler.TimeoutSeconds
	}

	c.CachePreset = strings.ToLower(strings.TrimSpace(c.CachePreset))
	if _, ok := enginePresets[c.CachePreset]; !ok {
		c.CachePreset = def.CachePreset
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Storage.Driver == DriverPostgres && c.Storage.DatabaseURL == "" {
		return errors.New("config: postgres storage needs storage.database_url")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Load reads path (when it exists) and applies TODOCAL_* environment
// overrides, e.g. TODOCAL_STORAGE_DRIVER or TODOCAL_LOG_LEVEL. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("timezone", def.Timezone)
	v.SetDefault("storage.driver", def.Storage.Driver)
	v.SetDefault("storage.database_url", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("scheduler.spec", def.Scheduler.Spec)
	v.SetDefault("scheduler.horizon_days", def.Scheduler.HorizonDays)
	v.SetDefault("scheduler.timeout_seconds", def.Scheduler.TimeoutSeconds)
	v.SetDefault("cache_preset", def.CachePreset)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The file
// ends up with 0600 permissions since it may hold database credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".todocal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// SlogLevel maps Log.Level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Scheduler.HorizonDays) * 24 * time.Hour
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Scheduler.TimeoutSeconds) * time.Second
}

var enginePresets = map[string]recurrence.EngineConfig{
	"default":          recurrence.DefaultEngineConfig,
	"high_performance": recurrence.HighPerformanceConfig,
	"low_memory":       recurrence.LowMemoryConfig,
	"disabled":         recurrence.DisabledCacheConfig,
}

// EngineConfig returns the recurrence engine preset named by CachePreset.
func (c *Config) EngineConfig() recurrence.EngineConfig {
	if preset, ok := enginePresets[c.CachePreset]; ok {
		return preset
	}
	return recurrence.DefaultEngineConfig
}
