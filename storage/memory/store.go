// memory based implementation for tests and the CLI's ephemeral mode
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/storage"
)

// Store implements storage.Repository using in-memory maps. Records are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	schedules map[string]event.ScheduleEvent
	todos     map[string]event.TodoEvent
	done      []event.DoneTodoEvent
}

var _ storage.Repository = (*Store)(nil)

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		schedules: make(map[string]event.ScheduleEvent),
		todos:     make(map[string]event.TodoEvent),
	}
}

// Schedule operations

func (s *Store) MakeSchedule(_ context.Context, ev event.ScheduleEvent) error {
	if ev.UUID == "" {
		return storage.InvalidInput("schedule without uuid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[ev.UUID]; exists {
		return storage.AlreadyExists("schedule", ev.UUID)
	}
	s.schedules[ev.UUID] = ev.Clone()
	return nil
}

func (s *Store) UpdateSchedule(_ context.Context, ev event.ScheduleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[ev.UUID]; !exists {
		return storage.NotFound("schedule", ev.UUID)
	}
	s.schedules[ev.UUID] = ev.Clone()
	return nil
}

func (s *Store) RemoveSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[id]; !exists {
		return storage.NotFound("schedule", id)
	}
	delete(s.schedules, id)
	return nil
}

func (s *Store) GetSchedule(_ context.Context, id string) (*event.ScheduleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.schedules[id]
	if !ok {
		return nil, storage.NotFound("schedule", id)
	}
	ev = ev.Clone()
	return &ev, nil
}

func (s *Store) FindSchedules(_ context.Context, rng eventtime.Range) ([]event.ScheduleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.ScheduleEvent
	for _, ev := range s.schedules {
		if storage.MayOverlap(ev, rng) {
			out = append(out, ev.Clone())
		}
	}
	sortSchedules(out)
	return out, nil
}

func (s *Store) AllSchedules(_ context.Context) ([]event.ScheduleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.ScheduleEvent, 0, len(s.schedules))
	for _, ev := range s.schedules {
		out = append(out, ev.Clone())
	}
	sortSchedules(out)
	return out, nil
}

func (s *Store) SaveRepeatingTimes(_ context.Context, id string, times []event.RepeatingTimes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, exists := s.schedules[id]
	if !exists {
		return storage.NotFound("schedule", id)
	}
	ev.NextRepeatingTimes = slices.Clone(times)
	s.schedules[id] = ev
	return nil
}

// Todo operations

func (s *Store) MakeTodo(_ context.Context, todo event.TodoEvent) error {
	if todo.UUID == "" {
		return storage.InvalidInput("todo without uuid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.todos[todo.UUID]; exists {
		return storage.AlreadyExists("todo", todo.UUID)
	}
	s.todos[todo.UUID] = todo.Clone()
	return nil
}

func (s *Store) UpdateTodo(_ context.Context, todo event.TodoEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.todos[todo.UUID]; !exists {
		return storage.NotFound("todo", todo.UUID)
	}
	s.todos[todo.UUID] = todo.Clone()
	return nil
}

func (s *Store) RemoveTodo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.todos[id]; !exists {
		return storage.NotFound("todo", id)
	}
	delete(s.todos, id)
	return nil
}

func (s *Store) GetTodo(_ context.Context, id string) (*event.TodoEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	todo, ok := s.todos[id]
	if !ok {
		return nil, storage.NotFound("todo", id)
	}
	todo = todo.Clone()
	return &todo, nil
}

func (s *Store) AllTodos(_ context.Context) ([]event.TodoEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.TodoEvent, 0, len(s.todos))
	for _, todo := range s.todos {
		out = append(out, todo.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func (s *Store) SaveDoneTodo(_ context.Context, done event.DoneTodoEvent) error {
	if done.UUID == "" {
		return storage.InvalidInput("done todo without uuid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.done {
		if d.UUID == done.UUID {
			return storage.AlreadyExists("done todo", done.UUID)
		}
	}
	s.done = append(s.done, cloneDone(done))
	return nil
}

func (s *Store) DoneTodos(_ context.Context, originID string) ([]event.DoneTodoEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.DoneTodoEvent
	for _, d := range s.done {
		if originID == "" || d.OriginEventID == originID {
			out = append(out, cloneDone(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DoneTime.Before(out[j].DoneTime)
	})
	return out, nil
}

func cloneDone(d event.DoneTodoEvent) event.DoneTodoEvent {
	if d.EventTime != nil {
		t := *d.EventTime
		d.EventTime = &t
	}
	return d
}

func sortSchedules(evs []event.ScheduleEvent) {
	sort.Slice(evs, func(i, j int) bool {
		li, lj := evs[i].Time.LowerBoundWithFixed(), evs[j].Time.LowerBoundWithFixed()
		if li != lj {
			return li < lj
		}
		return evs[i].UUID < evs[j].UUID
	})
}
