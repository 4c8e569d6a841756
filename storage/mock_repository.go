package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
)

// MockRepository implements the Repository interface for testing
type MockRepository struct {
	mock.Mock
}

var _ Repository = (*MockRepository)(nil)

func (m *MockRepository) MakeSchedule(ctx context.Context, ev event.ScheduleEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockRepository) UpdateSchedule(ctx context.Context, ev event.ScheduleEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockRepository) RemoveSchedule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) GetSchedule(ctx context.Context, id string) (*event.ScheduleEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.ScheduleEvent), args.Error(1)
}

func (m *MockRepository) FindSchedules(ctx context.Context, rng eventtime.Range) ([]event.ScheduleEvent, error) {
	args := m.Called(ctx, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.ScheduleEvent), args.Error(1)
}

func (m *MockRepository) AllSchedules(ctx context.Context) ([]event.ScheduleEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.ScheduleEvent), args.Error(1)
}

func (m *MockRepository) SaveRepeatingTimes(ctx context.Context, id string, times []event.RepeatingTimes) error {
	args := m.Called(ctx, id, times)
	return args.Error(0)
}

func (m *MockRepository) MakeTodo(ctx context.Context, todo event.TodoEvent) error {
	args := m.Called(ctx, todo)
	return args.Error(0)
}

func (m *MockRepository) UpdateTodo(ctx context.Context, todo event.TodoEvent) error {
	args := m.Called(ctx, todo)
	return args.Error(0)
}

func (m *MockRepository) RemoveTodo(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) GetTodo(ctx context.Context, id string) (*event.TodoEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.TodoEvent), args.Error(1)
}

func (m *MockRepository) AllTodos(ctx context.Context) ([]event.TodoEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.TodoEvent), args.Error(1)
}

func (m *MockRepository) SaveDoneTodo(ctx context.Context, done event.DoneTodoEvent) error {
	args := m.Called(ctx, done)
	return args.Error(0)
}

func (m *MockRepository) DoneTodos(ctx context.Context, originID string) ([]event.DoneTodoEvent, error) {
	args := m.Called(ctx, originID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.DoneTodoEvent), args.Error(1)
}
