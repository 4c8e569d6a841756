package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
	"github.com/cyp0633/libtodocal/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TODOCAL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TODOCAL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	require.NoError(t, store.Migrate(ctx))
	_, err = store.conn.Exec(ctx, `TRUNCATE schedules, todos, done_todos`)
	require.NoError(t, err)
	return store
}

func weeklySchedule(t *testing.T, id string) event.ScheduleEvent {
	t.Helper()
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	at, err := eventtime.Period(eventtime.NewTimeStamp(start), eventtime.NewTimeStamp(start.Add(time.Hour)))
	require.NoError(t, err)
	opt, err := repeat.NewEveryWeek(1)
	require.NoError(t, err)
	end := eventtime.Unix(start.AddDate(0, 1, 0))
	r, err := repeat.ForEventTime(at, opt, &end)
	require.NoError(t, err)

	return event.ScheduleEvent{
		UUID:                id,
		Name:                "review",
		Time:                at,
		Repeating:           &r,
		NotificationOptions: []time.Duration{10 * time.Minute},
		ShowTurn:            true,
	}.Excluding(at.Shift(7 * 86400))
}

func TestStore_ScheduleRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	ev := weeklySchedule(t, "s1")

	require.NoError(t, store.MakeSchedule(ctx, ev))
	assert.True(t, storage.IsAlreadyExists(store.MakeSchedule(ctx, ev)))

	got, err := store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, ev.Time, got.Time)
	assert.Equal(t, *ev.Repeating.EndTime, *got.Repeating.EndTime)
	assert.Equal(t, ev.Repeating.Option, got.Repeating.Option)
	assert.Equal(t, ev.ExcludeKeys(), got.ExcludeKeys())
	assert.Equal(t, ev.NotificationOptions, got.NotificationOptions)

	inRange, err := store.FindSchedules(ctx, eventtime.RangeOf(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	afterEnd, err := store.FindSchedules(ctx, eventtime.RangeOf(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Empty(t, afterEnd)

	times := []event.RepeatingTimes{{Time: ev.Time.Shift(14 * 86400), Turn: 3}}
	require.NoError(t, store.SaveRepeatingTimes(ctx, "s1", times))
	got, err = store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, times, got.NextRepeatingTimes)

	require.NoError(t, store.RemoveSchedule(ctx, "s1"))
	_, err = store.GetSchedule(ctx, "s1")
	assert.True(t, storage.IsNotFound(err))
}

func TestStore_TodoRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	todo := event.TodoEvent{UUID: "t1", Name: "no due date", CreatedAt: created}
	require.NoError(t, store.MakeTodo(ctx, todo))

	got, err := store.GetTodo(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got.Time)
	assert.Nil(t, got.Repeating)
	assert.True(t, created.Equal(got.CreatedAt))

	due := eventtime.At(eventtime.NewTimeStamp(created.Add(time.Hour)))
	todo.Time = &due
	require.NoError(t, store.UpdateTodo(ctx, todo))
	got, err = store.GetTodo(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.Time)
	assert.Equal(t, due, *got.Time)

	done, _ := event.CompleteTodo(*got, created.Add(2*time.Hour))
	require.NoError(t, store.SaveDoneTodo(ctx, done))
	records, err := store.DoneTodos(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, done.UUID, records[0].UUID)

	require.NoError(t, store.RemoveTodo(ctx, "t1"))
	assert.True(t, storage.IsNotFound(store.RemoveTodo(ctx, "t1")))
}
