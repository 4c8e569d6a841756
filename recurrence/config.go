package recurrence

import (
	"io"
	"log/slog"
	"time"

	"github.com/cyp0633/libtodocal/repeat"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// MaxIterations caps how many occurrences a single query may walk
	MaxIterations int
	// UpcomingLimit is the default number of records Upcoming returns
	UpcomingLimit int
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	MaxIterations: repeat.DefaultMaxIterations,
	UpcomingLimit: 30,
}

// HighPerformanceConfig is optimized for high-traffic scenarios
var HighPerformanceConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             30 * time.Minute,
		MaxEntries:      5000,
		CleanupInterval: 10 * time.Minute,
	},

	MaxIterations: 10_000,
	UpcomingLimit: 10,
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 2 * time.Minute,
	},

	MaxIterations: repeat.DefaultMaxIterations,
	UpcomingLimit: 10,
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,

	MaxIterations: repeat.DefaultMaxIterations,
	UpcomingLimit: 30,
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for cache and iteration diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = repeat.DefaultMaxIterations
	}
	if config.UpcomingLimit <= 0 {
		config.UpcomingLimit = DefaultEngineConfig.UpcomingLimit
	}

	e := &Engine{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if config.CacheEnabled {
		e.cache = NewRecurrenceCache(config.CacheConfig)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
