package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libtodocal/recurrence"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todocal.yaml")
	content := `timezone: Europe/Berlin
storage:
  driver: postgres
  database_url: postgres://localhost/todocal
log:
  level: DEBUG
scheduler:
  horizon_days: 7
cache_preset: low_memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("TODOCAL_SCHEDULER_SPEC", "@hourly")
	t.Setenv("TODOCAL_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/todocal", cfg.Storage.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "@hourly", cfg.Scheduler.Spec)
	assert.Equal(t, 7*24*time.Hour, cfg.Horizon())
	assert.Equal(t, time.Minute, cfg.Timeout())
	assert.Equal(t, recurrence.LowMemoryConfig, cfg.EngineConfig())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todocal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		Storage:     StorageConfig{Driver: "sqlite"},
		Log:         LogConfig{Level: "verbose", Format: "xml"},
		Scheduler:   SchedulerConfig{HorizonDays: -1},
		CachePreset: "huge",
	}
	cfg.Normalize()

	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, DefaultConfig().Scheduler, cfg.Scheduler)
	assert.Equal(t, "default", cfg.CachePreset)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Storage.Driver = DriverPostgres
	assert.Error(t, cfg.Validate())
	cfg.Storage.DatabaseURL = "postgres://localhost/todocal"
	assert.NoError(t, cfg.Validate())

	cfg.Timezone = "Nowhere/Special"
	assert.Error(t, cfg.Validate())
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "todocal.yaml")
	cfg := DefaultConfig()
	cfg.Storage.Driver = DriverPostgres
	cfg.Storage.DatabaseURL = "postgres://localhost/todocal"
	cfg.Scheduler.HorizonDays = 14

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".todocal-config-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSave_RejectsEmptyArguments(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
}
