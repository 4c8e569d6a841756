// Package service applies schedule and todo operations on top of a storage
// repository: it resolves edit scopes into records to write and keeps the
// materialized upcoming occurrences of repeating schedules fresh.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/recurrence"
	"github.com/cyp0633/libtodocal/storage"
)

// EventService is the entry point clients use to manage schedules and todos.
type EventService struct {
	repo   storage.Repository
	engine *recurrence.Engine
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an EventService.
type Option func(*EventService)

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *EventService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, which decides completion times and where
// materialization starts.
func WithClock(now func() time.Time) Option {
	return func(s *EventService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEngine sets the recurrence engine used for range lookups.
func WithEngine(engine *recurrence.Engine) Option {
	return func(s *EventService) {
		if engine != nil {
			s.engine = engine
		}
	}
}

func New(repo storage.Repository, opts ...Option) *EventService {
	s := &EventService{
		repo:   repo,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = recurrence.NewEngine(recurrence.WithLogger(s.logger))
	}
	return s
}

// ScheduleOccurrence is one occurrence of a schedule inside a queried range.
type ScheduleOccurrence struct {
	Schedule event.ScheduleEvent
	Time     eventtime.EventTime
	Turn     int
}

// MakeSchedule creates and stores a new schedule.
func (s *EventService) MakeSchedule(ctx context.Context, params event.ScheduleMakeParams) (event.ScheduleEvent, error) {
	ev, err := event.NewScheduleEvent(params)
	if err != nil {
		return event.ScheduleEvent{}, err
	}
	if err := s.repo.MakeSchedule(ctx, ev); err != nil {
		s.logger.Error("failed to make schedule", "error", err, "name", ev.Name)
		return event.ScheduleEvent{}, fmt.Errorf("make schedule: %w", err)
	}
	s.logger.Info("schedule made", "uuid", ev.UUID, "repeating", ev.Repeating != nil)
	return ev, nil
}

// UpdateSchedule edits the schedule id within params.Scope. The original is
// rewritten first; when creating the split-off schedule fails the original
// is restored.
func (s *EventService) UpdateSchedule(ctx context.Context, id string, params event.SchedulePutParams) (event.ScheduleEditPlan, error) {
	origin, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return event.ScheduleEditPlan{}, fmt.Errorf("update schedule %s: %w", id, err)
	}

	plan, err := event.ResolveScheduleEdit(*origin, params)
	if err != nil {
		return event.ScheduleEditPlan{}, err
	}

	if err := s.repo.UpdateSchedule(ctx, plan.Updated); err != nil {
		return event.ScheduleEditPlan{}, fmt.Errorf("update schedule %s: %w", id, err)
	}
	if plan.Created != nil {
		if err := s.repo.MakeSchedule(ctx, *plan.Created); err != nil {
			if rerr := s.repo.UpdateSchedule(ctx, *origin); rerr != nil {
				s.logger.Error("failed to restore schedule after split failure",
					"uuid", id, "error", rerr)
			}
			return event.ScheduleEditPlan{}, fmt.Errorf("update schedule %s: create %s: %w", id, plan.Created.UUID, err)
		}
	}

	s.logger.Info("schedule updated",
		"uuid", id,
		"scope", params.Scope.String(),
		"created", plan.Created != nil)
	return plan, nil
}

// RemoveSchedule deletes the schedule id. When onlyThisTime is set, only
// that occurrence of a repeating schedule is excluded.
func (s *EventService) RemoveSchedule(ctx context.Context, id string, onlyThisTime *eventtime.EventTime) error {
	if onlyThisTime == nil {
		if err := s.repo.RemoveSchedule(ctx, id); err != nil {
			return fmt.Errorf("remove schedule %s: %w", id, err)
		}
		s.logger.Info("schedule removed", "uuid", id)
		return nil
	}

	origin, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("remove schedule %s: %w", id, err)
	}
	if origin.Repeating == nil {
		return fmt.Errorf("remove occurrence of %s: %w", id, event.ErrNotRepeating)
	}

	updated := origin.Excluding(*onlyThisTime)
	updated.NextRepeatingTimes = slices.DeleteFunc(updated.NextRepeatingTimes, func(t event.RepeatingTimes) bool {
		return t.Time.CustomKey() == onlyThisTime.CustomKey()
	})
	if err := s.repo.UpdateSchedule(ctx, updated); err != nil {
		return fmt.Errorf("remove occurrence of %s: %w", id, err)
	}
	s.logger.Info("schedule occurrence removed", "uuid", id, "key", onlyThisTime.CustomKey())
	return nil
}

// SchedulesInRange lists schedules with at least one non-excluded occurrence
// in rng.
func (s *EventService) SchedulesInRange(ctx context.Context, rng eventtime.Range) ([]event.ScheduleEvent, error) {
	candidates, err := s.repo.FindSchedules(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("find schedules: %w", err)
	}

	var out []event.ScheduleEvent
	for _, ev := range candidates {
		if s.engine.HasOccurrenceInRange(ev, rng) {
			out = append(out, ev)
		}
	}
	s.logger.Debug("schedules in range",
		"lower", rng.Lower,
		"upper", rng.Upper,
		"candidates", len(candidates),
		"matched", len(out))
	return out, nil
}

// OccurrencesInRange expands every schedule in rng into its occurrences,
// ordered by start.
func (s *EventService) OccurrencesInRange(ctx context.Context, rng eventtime.Range) ([]ScheduleOccurrence, error) {
	candidates, err := s.repo.FindSchedules(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("find schedules: %w", err)
	}

	var out []ScheduleOccurrence
	for _, ev := range candidates {
		for _, occ := range s.engine.Occurrences(ev, rng) {
			out = append(out, ScheduleOccurrence{Schedule: ev, Time: occ.Time, Turn: occ.Turn})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.LowerBoundWithFixed() < out[j].Time.LowerBoundWithFixed()
	})
	return out, nil
}

// MaterializeRepeatingTimes recomputes the upcoming occurrences of every
// repeating schedule for the next horizon and stores those that changed. It
// returns how many schedules were rewritten.
func (s *EventService) MaterializeRepeatingTimes(ctx context.Context, horizon time.Duration) (int, error) {
	schedules, err := s.repo.AllSchedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("materialize: %w", err)
	}

	now := s.now()
	updated := 0
	for _, ev := range schedules {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if ev.Repeating == nil {
			continue
		}

		upcoming := s.engine.Upcoming(ev, now, horizon, 0)
		if sameOccurrences(upcoming, ev.NextRepeatingTimes) {
			continue
		}
		if err := s.repo.SaveRepeatingTimes(ctx, ev.UUID, upcoming); err != nil {
			if storage.IsNotFound(err) {
				// Removed since AllSchedules ran.
				continue
			}
			return updated, fmt.Errorf("materialize %s: %w", ev.UUID, err)
		}
		updated++
	}

	s.logger.Info("materialized repeating times",
		"schedules", len(schedules),
		"updated", updated,
		"horizon", horizon)
	return updated, nil
}

// Import stores decoded schedules and todos, replacing records that share
// their UUIDs.
func (s *EventService) Import(ctx context.Context, schedules []event.ScheduleEvent, todos []event.TodoEvent) error {
	for _, ev := range schedules {
		err := s.repo.MakeSchedule(ctx, ev)
		if storage.IsAlreadyExists(err) {
			err = s.repo.UpdateSchedule(ctx, ev)
		}
		if err != nil {
			return fmt.Errorf("import schedule %s: %w", ev.UUID, err)
		}
	}
	for _, todo := range todos {
		err := s.repo.MakeTodo(ctx, todo)
		if storage.IsAlreadyExists(err) {
			err = s.repo.UpdateTodo(ctx, todo)
		}
		if err != nil {
			return fmt.Errorf("import todo %s: %w", todo.UUID, err)
		}
	}
	s.logger.Info("calendar imported", "schedules", len(schedules), "todos", len(todos))
	return nil
}

// Export returns every stored schedule and todo.
func (s *EventService) Export(ctx context.Context) ([]event.ScheduleEvent, []event.TodoEvent, error) {
	schedules, err := s.repo.AllSchedules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("export schedules: %w", err)
	}
	todos, err := s.repo.AllTodos(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("export todos: %w", err)
	}
	return schedules, todos, nil
}

func sameOccurrences(a, b []event.RepeatingTimes) bool {
	return slices.EqualFunc(a, b, func(x, y event.RepeatingTimes) bool {
		return x.Turn == y.Turn && x.Time == y.Time
	})
}
