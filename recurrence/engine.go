// Package recurrence answers range queries over schedule events, caching the
// results of repeated lookups.
package recurrence

import (
	"log/slog"
	"slices"
	"time"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
)

const (
	opHasOccurrence = "has_occurrence"
	opOccurrences   = "occurrences"
)

// Engine provides exclusion-aware occurrence lookups for schedule events
type Engine struct {
	cache  *RecurrenceCache
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates an engine without a cache
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DisabledCacheConfig, opts...)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// HasOccurrenceInRange reports whether any non-excluded occurrence of ev
// intersects rng.
func (e *Engine) HasOccurrenceInRange(ev event.ScheduleEvent, rng eventtime.Range) bool {
	if ev.Repeating == nil {
		return !ev.IsExcluded(ev.Time) && ev.Time.IsOverlap(rng)
	}

	if cached, ok := e.lookup(opHasOccurrence, ev, rng); ok {
		if found, ok := cached.(bool); ok {
			return found
		}
	}

	found := false
	for occ := range ev.Repeating.Sequence(ev.Time, e.config.MaxIterations) {
		if occ.Time.LowerBoundWithFixed() >= rng.Upper {
			break
		}
		if occ.Time.IsOverlap(rng) && !ev.IsExcluded(occ.Time) {
			found = true
			break
		}
	}

	e.store(opHasOccurrence, ev, rng, found)
	return found
}

// Occurrences lists the non-excluded occurrences of ev intersecting rng.
func (e *Engine) Occurrences(ev event.ScheduleEvent, rng eventtime.Range) []event.RepeatingTimes {
	if cached, ok := e.lookup(opOccurrences, ev, rng); ok {
		if occurrences, ok := cached.([]event.RepeatingTimes); ok {
			return slices.Clone(occurrences)
		}
	}

	occurrences := ev.OccurrencesWithin(rng, e.config.MaxIterations)
	if ev.Repeating == nil && ev.IsExcluded(ev.Time) {
		occurrences = nil
	}

	e.store(opOccurrences, ev, rng, slices.Clone(occurrences))
	return occurrences
}

// Upcoming returns up to limit occurrences starting in [from, from+horizon).
// A non-positive limit uses the configured UpcomingLimit.
func (e *Engine) Upcoming(ev event.ScheduleEvent, from time.Time, horizon time.Duration, limit int) []event.RepeatingTimes {
	if limit <= 0 {
		limit = e.config.UpcomingLimit
	}
	lower := eventtime.Unix(from)
	upper := eventtime.Unix(from.Add(horizon))

	if ev.Repeating == nil {
		start := ev.Time.LowerBoundWithFixed()
		if start >= lower && start < upper && !ev.IsExcluded(ev.Time) {
			return []event.RepeatingTimes{{Time: ev.Time, Turn: 1}}
		}
		return nil
	}

	var out []event.RepeatingTimes
	for occ := range ev.Repeating.Sequence(ev.Time, e.config.MaxIterations) {
		start := occ.Time.LowerBoundWithFixed()
		if start >= upper {
			break
		}
		if start < lower || ev.IsExcluded(occ.Time) {
			continue
		}
		out = append(out, occ)
		if len(out) == limit {
			break
		}
	}
	return out
}

// CacheStats returns the cache statistics, or zero stats without a cache.
func (e *Engine) CacheStats() CacheStats {
	if e.cache == nil {
		return CacheStats{}
	}
	return e.cache.Stats()
}

// Close releases the cache's cleanup goroutine.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

func (e *Engine) lookup(operation string, ev event.ScheduleEvent, rng eventtime.Range) (interface{}, bool) {
	if e.cache == nil {
		return nil, false
	}
	result, ok := e.cache.Get(operation, ev, rng)
	if ok {
		e.logger.Debug("recurrence cache hit", "operation", operation, "event", ev.UUID)
	}
	return result, ok
}

func (e *Engine) store(operation string, ev event.ScheduleEvent, rng eventtime.Range, result interface{}) {
	if e.cache == nil {
		return
	}
	e.cache.Set(operation, ev, rng, result)
}
