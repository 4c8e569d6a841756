package event

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
)

var created = time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC)

func dueAt(day int) eventtime.EventTime {
	return eventtime.At(eventtime.NewTimeStamp(time.Date(2024, 3, day, 18, 0, 0, 0, time.UTC)))
}

func dailyTodo(t *testing.T, endDay int) TodoEvent {
	t.Helper()
	due := dueAt(1)
	opt, err := repeat.NewEveryDay(1)
	require.NoError(t, err)

	var end *float64
	if endDay > 0 {
		v := dueAt(endDay).LowerBoundWithFixed()
		end = &v
	}
	r, err := repeat.ForEventTime(due, opt, end)
	require.NoError(t, err)

	todo, err := NewTodoEvent(TodoMakeParams{Name: "water plants", Time: &due, Repeating: &r}, created)
	require.NoError(t, err)
	return todo
}

func TestTodoMakeParams_IsValidForMaking(t *testing.T) {
	due := dueAt(1)
	opt, err := repeat.NewEveryDay(1)
	require.NoError(t, err)
	r, err := repeat.ForEventTime(due, opt, nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		params   TodoMakeParams
		expected bool
	}{
		{name: "name only", params: TodoMakeParams{Name: "buy milk"}, expected: true},
		{name: "blank name", params: TodoMakeParams{Name: " "}, expected: false},
		{name: "repeating with time", params: TodoMakeParams{Name: "buy milk", Time: &due, Repeating: &r}, expected: true},
		{name: "repeating without time", params: TodoMakeParams{Name: "buy milk", Repeating: &r}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.params.IsValidForMaking())
		})
	}
}

func TestNewTodoEvent(t *testing.T) {
	todo := dailyTodo(t, 0)
	assert.NotEmpty(t, todo.UUID)
	assert.Equal(t, 1, todo.RepeatingTurn)
	assert.Equal(t, created, todo.CreatedAt)

	plain, err := NewTodoEvent(TodoMakeParams{Name: "buy milk"}, created)
	require.NoError(t, err)
	assert.Nil(t, plain.Time)
	assert.Zero(t, plain.RepeatingTurn)

	_, err = NewTodoEvent(TodoMakeParams{}, created)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCompleteTodo_AdvancesRepeatingTodo(t *testing.T) {
	todo := dailyTodo(t, 2)
	doneAt := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)

	done, next := CompleteTodo(todo, doneAt)
	assert.Equal(t, todo.UUID, done.OriginEventID)
	assert.Equal(t, doneAt, done.DoneTime)
	require.NotNil(t, done.EventTime)
	assert.Equal(t, dueAt(1), *done.EventTime)

	require.NotNil(t, next)
	assert.Equal(t, todo.UUID, next.UUID)
	assert.Equal(t, dueAt(2), *next.Time)
	assert.Equal(t, 2, next.RepeatingTurn)

	_, last := CompleteTodo(*next, doneAt)
	assert.Nil(t, last)
}

func TestCompleteTodo_NonRepeating(t *testing.T) {
	plain, err := NewTodoEvent(TodoMakeParams{Name: "buy milk"}, created)
	require.NoError(t, err)

	done, next := CompleteTodo(plain, created)
	assert.Nil(t, next)
	assert.Nil(t, done.EventTime)
	assert.Equal(t, "buy milk", done.Name)
}

func TestResolveTodoEdit_All(t *testing.T) {
	todo := dailyTodo(t, 0)
	moved := dueAt(3)

	plan, err := ResolveTodoEdit(todo, TodoEditParams{Time: mo.Some(&moved), Scope: All()})
	require.NoError(t, err)
	require.NotNil(t, plan.Updated)
	assert.Nil(t, plan.Created)
	assert.Equal(t, moved, *plan.Updated.Time)
	assert.Equal(t, moved.LowerBoundWithFixed(), plan.Updated.Repeating.StartTime)

	_, err = ResolveTodoEdit(todo, TodoEditParams{Time: mo.Some[*eventtime.EventTime](nil), Scope: All()})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestResolveTodoEdit_OnlyThisTime(t *testing.T) {
	todo := dailyTodo(t, 0)
	edited := dueAt(1).Shift(3600)

	plan, err := ResolveTodoEdit(todo, TodoEditParams{
		Name:  mo.Some("water plants (late)"),
		Time:  mo.Some(&edited),
		Scope: OnlyThisTime(dueAt(1)),
	})
	require.NoError(t, err)

	require.NotNil(t, plan.Updated)
	assert.Equal(t, dueAt(2), *plan.Updated.Time)
	assert.Equal(t, 2, plan.Updated.RepeatingTurn)
	assert.Equal(t, "water plants", plan.Updated.Name)

	require.NotNil(t, plan.Created)
	assert.NotEqual(t, todo.UUID, plan.Created.UUID)
	assert.Equal(t, edited, *plan.Created.Time)
	assert.Nil(t, plan.Created.Repeating)
}

func TestResolveTodoEdit_OnlyThisTimeOnLastOccurrenceRemovesOrigin(t *testing.T) {
	todo := dailyTodo(t, 1)
	due := dueAt(1)

	plan, err := ResolveTodoEdit(todo, TodoEditParams{
		Name:  mo.Some("water plants"),
		Time:  mo.Some(&due),
		Scope: OnlyThisTime(due),
	})
	require.NoError(t, err)
	assert.Nil(t, plan.Updated)
	require.NotNil(t, plan.Created)
}

func TestResolveTodoEdit_OnlyThisTimeRejectsOtherOccurrence(t *testing.T) {
	todo := dailyTodo(t, 0)
	due := dueAt(4)

	_, err := ResolveTodoEdit(todo, TodoEditParams{
		Name:  mo.Some("water plants"),
		Time:  mo.Some(&due),
		Scope: OnlyThisTime(due),
	})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestResolveTodoEdit_FromNow(t *testing.T) {
	todo := dailyTodo(t, 0)
	fourth := dueAt(4)
	edited := fourth.Shift(1800)

	plan, err := ResolveTodoEdit(todo, TodoEditParams{
		Name:  mo.Some("water plants"),
		Time:  mo.Some(&edited),
		Scope: FromNow(fourth),
	})
	require.NoError(t, err)

	require.NotNil(t, plan.Updated)
	require.NotNil(t, plan.Updated.Repeating.EndTime)
	assert.Equal(t, dueAt(3).LowerBoundWithFixed(), *plan.Updated.Repeating.EndTime)

	require.NotNil(t, plan.Created)
	assert.Equal(t, edited, *plan.Created.Time)
	assert.Equal(t, 1, plan.Created.RepeatingTurn)
	require.NotNil(t, plan.Created.Repeating)
	assert.Equal(t, edited.LowerBoundWithFixed(), plan.Created.Repeating.StartTime)
}

func TestResolveTodoEdit_Errors(t *testing.T) {
	plain, err := NewTodoEvent(TodoMakeParams{Name: "buy milk"}, created)
	require.NoError(t, err)
	due := dueAt(1)

	_, err = ResolveTodoEdit(plain, TodoEditParams{Scope: All()})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = ResolveTodoEdit(plain, TodoEditParams{Name: mo.Some("x"), Time: mo.Some(&due), Scope: FromNow(due)})
	assert.ErrorIs(t, err, ErrNotRepeating)
}
