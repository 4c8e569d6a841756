package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
	"github.com/cyp0633/libtodocal/storage"
	"github.com/cyp0633/libtodocal/storage/memory"
)

var clock = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func mayAt(day, hour int) eventtime.EventTime {
	start := time.Date(2024, 5, day, hour, 0, 0, 0, time.UTC)
	t, _ := eventtime.Period(eventtime.NewTimeStamp(start), eventtime.NewTimeStamp(start.Add(time.Hour)))
	return t
}

func mayDay(day int) eventtime.Range {
	start := time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
	return eventtime.RangeOf(start, start.AddDate(0, 0, 1))
}

func daily(t *testing.T, at eventtime.EventTime) *repeat.EventRepeating {
	t.Helper()
	opt, err := repeat.NewEveryDay(1)
	require.NoError(t, err)
	r, err := repeat.ForEventTime(at, opt, nil)
	require.NoError(t, err)
	return &r
}

func newService(t *testing.T) (*EventService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, WithClock(func() time.Time { return clock })), store
}

func makeStandup(t *testing.T, svc *EventService) event.ScheduleEvent {
	t.Helper()
	at := mayAt(1, 9)
	ev, err := svc.MakeSchedule(context.Background(), event.ScheduleMakeParams{
		Name:      "standup",
		Time:      &at,
		Repeating: daily(t, at),
	})
	require.NoError(t, err)
	return ev
}

func TestEventService_MakeScheduleRejectsInvalidParams(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.MakeSchedule(context.Background(), event.ScheduleMakeParams{Name: "no time"})
	assert.ErrorIs(t, err, event.ErrInvalidParams)
}

func TestEventService_UpdateScheduleOnlyThisTime(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	standup := makeStandup(t, svc)

	moved := mayAt(3, 10)
	plan, err := svc.UpdateSchedule(ctx, standup.UUID, event.SchedulePutParams{
		Name:  mo.Some("late standup"),
		Time:  mo.Some(moved),
		Scope: event.OnlyThisTime(mayAt(3, 9)),
	})
	require.NoError(t, err)
	require.NotNil(t, plan.Created)

	occurrences, err := svc.OccurrencesInRange(ctx, mayDay(3))
	require.NoError(t, err)
	require.Len(t, occurrences, 1)
	assert.Equal(t, "late standup", occurrences[0].Schedule.Name)
	assert.Equal(t, moved, occurrences[0].Time)

	occurrences, err = svc.OccurrencesInRange(ctx, mayDay(4))
	require.NoError(t, err)
	require.Len(t, occurrences, 1)
	assert.Equal(t, standup.UUID, occurrences[0].Schedule.UUID)
	assert.Equal(t, 4, occurrences[0].Turn)
}

func TestEventService_UpdateScheduleFromNow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	standup := makeStandup(t, svc)

	plan, err := svc.UpdateSchedule(ctx, standup.UUID, event.SchedulePutParams{
		Name:  mo.Some("standup v2"),
		Time:  mo.Some(mayAt(4, 11)),
		Scope: event.FromNow(mayAt(4, 9)),
	})
	require.NoError(t, err)
	require.NotNil(t, plan.Created)

	week := eventtime.Range{Lower: mayDay(1).Lower, Upper: mayDay(8).Lower}
	occurrences, err := svc.OccurrencesInRange(ctx, week)
	require.NoError(t, err)
	require.Len(t, occurrences, 7)
	for i, occ := range occurrences {
		if i < 3 {
			assert.Equal(t, standup.UUID, occ.Schedule.UUID, "day %d", i+1)
			assert.Equal(t, mayAt(i+1, 9), occ.Time)
		} else {
			assert.Equal(t, "standup v2", occ.Schedule.Name, "day %d", i+1)
			assert.Equal(t, mayAt(i+1, 11), occ.Time)
		}
	}
}

func TestEventService_UpdateScheduleMissing(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.UpdateSchedule(context.Background(), "missing", event.SchedulePutParams{
		Name:  mo.Some("x"),
		Scope: event.All(),
	})
	assert.True(t, storage.IsNotFound(err))
}

func TestEventService_RemoveSchedule(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	standup := makeStandup(t, svc)

	second := mayAt(2, 9)
	require.NoError(t, svc.RemoveSchedule(ctx, standup.UUID, &second))
	found, err := svc.SchedulesInRange(ctx, mayDay(2))
	require.NoError(t, err)
	assert.Empty(t, found)
	found, err = svc.SchedulesInRange(ctx, mayDay(3))
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, svc.RemoveSchedule(ctx, standup.UUID, nil))
	_, err = store.GetSchedule(ctx, standup.UUID)
	assert.True(t, storage.IsNotFound(err))
}

func TestEventService_RemoveOccurrenceOfSingleSchedule(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	at := mayAt(1, 9)
	ev, err := svc.MakeSchedule(ctx, event.ScheduleMakeParams{Name: "dentist", Time: &at})
	require.NoError(t, err)

	err = svc.RemoveSchedule(ctx, ev.UUID, &at)
	assert.ErrorIs(t, err, event.ErrNotRepeating)
}

func TestEventService_MaterializeRepeatingTimes(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	standup := makeStandup(t, svc)
	at := mayAt(2, 9)
	_, err := svc.MakeSchedule(ctx, event.ScheduleMakeParams{Name: "single", Time: &at})
	require.NoError(t, err)

	updated, err := svc.MaterializeRepeatingTimes(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := store.GetSchedule(ctx, standup.UUID)
	require.NoError(t, err)
	require.Len(t, got.NextRepeatingTimes, 3)
	for i, occ := range got.NextRepeatingTimes {
		assert.Equal(t, i+1, occ.Turn)
		assert.Equal(t, mayAt(i+1, 9), occ.Time)
	}

	updated, err = svc.MaterializeRepeatingTimes(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, updated, "unchanged occurrences are not rewritten")
}

func TestEventService_MaterializeStopsOnCancelledContext(t *testing.T) {
	svc, _ := newService(t)
	makeStandup(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.MaterializeRepeatingTimes(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventService_ImportReplacesExisting(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	standup := makeStandup(t, svc)

	standup.Name = "renamed"
	todo := event.TodoEvent{UUID: "t1", Name: "imported", CreatedAt: clock}
	require.NoError(t, svc.Import(ctx, []event.ScheduleEvent{standup}, []event.TodoEvent{todo}))

	got, err := store.GetSchedule(ctx, standup.UUID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	schedules, todos, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Len(t, schedules, 1)
	assert.Len(t, todos, 1)
}

func TestEventService_UpdateScheduleRestoresOriginWhenSplitFails(t *testing.T) {
	repo := new(storage.MockRepository)
	svc := New(repo)
	ctx := context.Background()

	at := mayAt(1, 9)
	origin := event.ScheduleEvent{UUID: "s1", Name: "standup", Time: at, Repeating: daily(t, at)}
	failure := errors.New("disk full")

	repo.On("GetSchedule", ctx, "s1").Return(&origin, nil)
	repo.On("UpdateSchedule", ctx, mock.AnythingOfType("event.ScheduleEvent")).Return(nil)
	repo.On("MakeSchedule", ctx, mock.AnythingOfType("event.ScheduleEvent")).Return(failure)

	_, err := svc.UpdateSchedule(ctx, "s1", event.SchedulePutParams{
		Name:  mo.Some("moved"),
		Time:  mo.Some(mayAt(2, 10)),
		Scope: event.OnlyThisTime(mayAt(2, 9)),
	})
	assert.ErrorIs(t, err, failure)
	repo.AssertNumberOfCalls(t, "UpdateSchedule", 2)
	repo.AssertCalled(t, "UpdateSchedule", ctx, origin)
}
