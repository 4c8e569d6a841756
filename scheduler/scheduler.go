// Package scheduler periodically refreshes the materialized upcoming
// occurrences of repeating schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSpec    = "*/15 * * * *"
	DefaultHorizon = 30 * 24 * time.Hour
	DefaultTimeout = time.Minute
)

var ErrAlreadyStarted = errors.New("scheduler: already started")

// Materializer is the job the scheduler runs. service.EventService
// implements it.
type Materializer interface {
	MaterializeRepeatingTimes(ctx context.Context, horizon time.Duration) (int, error)
}

// Scheduler runs a Materializer on a cron schedule. A run still in progress
// when the next one is due is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	job     Materializer
	spec    string
	horizon time.Duration
	timeout time.Duration
	loc     *time.Location
	logger  *slog.Logger
	started bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSpec sets the cron expression (standard five fields or a descriptor
// such as "@hourly").
func WithSpec(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.spec = spec
		}
	}
}

// WithHorizon sets how far ahead each run materializes occurrences.
func WithHorizon(horizon time.Duration) Option {
	return func(s *Scheduler) {
		if horizon > 0 {
			s.horizon = horizon
		}
	}
}

// WithTimeout bounds a single run.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLocation sets the zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New builds a stopped scheduler. It fails when the cron spec does not parse.
func New(job Materializer, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		job:     job,
		spec:    DefaultSpec,
		horizon: DefaultHorizon,
		timeout: DefaultTimeout,
		loc:     time.Local,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	logger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", s.spec, err)
	}
	return s, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec, "horizon", s.horizon)
	return nil
}

// Stop halts the schedule and waits for a running job to return, or for ctx
// to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		// Abort the running job.
		s.cancel()
		return ctx.Err()
	}
}

// RunOnce runs the job immediately in the caller's goroutine.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	updated, err := s.job.MaterializeRepeatingTimes(ctx, s.horizon)
	if err != nil {
		s.logger.Error("materialization failed", "error", err, "elapsed", time.Since(start))
		return updated, err
	}
	s.logger.Debug("materialization finished", "updated", updated, "elapsed", time.Since(start))
	return updated, nil
}

func (s *Scheduler) run() {
	_, _ = s.RunOnce(s.ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
