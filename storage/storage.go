// Package storage defines the repositories the event service persists
// schedules and todos through.
package storage

import (
	"context"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
)

// ScheduleRepository persists schedule events.
type ScheduleRepository interface {
	MakeSchedule(ctx context.Context, ev event.ScheduleEvent) error
	UpdateSchedule(ctx context.Context, ev event.ScheduleEvent) error
	RemoveSchedule(ctx context.Context, id string) error
	GetSchedule(ctx context.Context, id string) (*event.ScheduleEvent, error)
	// FindSchedules returns every schedule that may overlap rng. Results are
	// a superset; callers apply the exact occurrence check.
	FindSchedules(ctx context.Context, rng eventtime.Range) ([]event.ScheduleEvent, error)
	AllSchedules(ctx context.Context) ([]event.ScheduleEvent, error)
	// SaveRepeatingTimes replaces the materialized upcoming occurrences.
	SaveRepeatingTimes(ctx context.Context, id string, times []event.RepeatingTimes) error
}

// TodoRepository persists todos and their completion records.
type TodoRepository interface {
	MakeTodo(ctx context.Context, todo event.TodoEvent) error
	UpdateTodo(ctx context.Context, todo event.TodoEvent) error
	RemoveTodo(ctx context.Context, id string) error
	GetTodo(ctx context.Context, id string) (*event.TodoEvent, error)
	AllTodos(ctx context.Context) ([]event.TodoEvent, error)
	SaveDoneTodo(ctx context.Context, done event.DoneTodoEvent) error
	// DoneTodos lists completions of the todo originID, oldest first. An
	// empty originID lists every completion.
	DoneTodos(ctx context.Context, originID string) ([]event.DoneTodoEvent, error)
}

// Repository is implemented by backends storing both entity kinds.
type Repository interface {
	ScheduleRepository
	TodoRepository
}

// MayOverlap is the coarse range filter FindSchedules implementations share:
// a schedule qualifies when its first occurrence starts before rng ends and,
// for repeating schedules, its repetition has not ended before rng starts.
func MayOverlap(ev event.ScheduleEvent, rng eventtime.Range) bool {
	if ev.Repeating == nil {
		return ev.Time.IsOverlap(rng)
	}
	if ev.Time.LowerBoundWithFixed() >= rng.Upper {
		return false
	}
	if end := ev.Repeating.EndTime; end != nil {
		return *end+ev.Time.Duration() >= rng.Lower
	}
	return true
}
