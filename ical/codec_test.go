package ical

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
)

var stamp = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func testCodec() *Codec {
	return NewCodec(WithClock(func() time.Time { return stamp }))
}

func roundTrip(t *testing.T, schedules []event.ScheduleEvent, todos []event.TodoEvent) ([]event.ScheduleEvent, []event.TodoEvent) {
	t.Helper()
	codec := testCodec()
	data, err := codec.EncodeCalendar(schedules, todos)
	require.NoError(t, err)
	gotSchedules, gotTodos, err := codec.DecodeCalendar(strings.NewReader(string(data)))
	require.NoError(t, err)
	return gotSchedules, gotTodos
}

func TestCodec_WeeklyScheduleRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	at, err := eventtime.Period(eventtime.NewTimeStamp(start), eventtime.NewTimeStamp(start.Add(time.Hour)))
	require.NoError(t, err)
	opt, err := repeat.NewEveryWeek(2)
	require.NoError(t, err)
	end := eventtime.Unix(start.AddDate(0, 2, 0))
	r, err := repeat.ForEventTime(at, opt, &end)
	require.NoError(t, err)

	ev := event.ScheduleEvent{
		UUID:                "weekly",
		Name:                "review",
		Time:                at,
		Repeating:           &r,
		EventTagID:          "work",
		NotificationOptions: []time.Duration{10 * time.Minute, time.Hour},
		ShowTurn:            true,
	}.Excluding(at.Shift(14 * 86400))

	schedules, todos := roundTrip(t, []event.ScheduleEvent{ev}, nil)
	require.Len(t, schedules, 1)
	assert.Empty(t, todos)

	got := schedules[0]
	assert.Equal(t, "weekly", got.UUID)
	assert.Equal(t, "review", got.Name)
	assert.Equal(t, ev.Time, got.Time)
	require.NotNil(t, got.Repeating)
	assert.Equal(t, r.StartTime, got.Repeating.StartTime)
	assert.Equal(t, r.Option, got.Repeating.Option)
	require.NotNil(t, got.Repeating.EndTime)
	assert.Equal(t, end, *got.Repeating.EndTime)
	assert.Equal(t, ev.ExcludeKeys(), got.ExcludeKeys())
	assert.Equal(t, "work", got.EventTagID)
	assert.True(t, got.ShowTurn)
	assert.Equal(t, ev.NotificationOptions, got.NotificationOptions)
}

func TestCodec_AllDayScheduleRoundTrip(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	at, err := eventtime.AllDayOf(time.Date(2024, 5, 5, 0, 0, 0, 0, seoul), 1)
	require.NoError(t, err)
	opt, err := repeat.NewEveryDay(1)
	require.NoError(t, err)
	r, err := repeat.ForEventTime(at, opt, nil)
	require.NoError(t, err)

	ev := event.ScheduleEvent{UUID: "holiday", Name: "holiday", Time: at, Repeating: &r}.Excluding(at.Shift(86400))

	schedules, _ := roundTrip(t, []event.ScheduleEvent{ev}, nil)
	require.Len(t, schedules, 1)

	got := schedules[0]
	assert.Equal(t, eventtime.KindAllDay, got.Time.Kind)
	assert.Equal(t, 9*3600, got.Time.SecondsFromGMT)
	assert.Equal(t, ev.Time, got.Time)
	require.NotNil(t, got.Repeating)
	assert.Equal(t, r.StartTime, got.Repeating.StartTime)
	assert.Nil(t, got.Repeating.EndTime)
	assert.Equal(t, ev.ExcludeKeys(), got.ExcludeKeys())
	assert.True(t, got.IsExcluded(at.Shift(86400)))
	assert.False(t, got.IsExcluded(at.Shift(2*86400)))
}

func TestCodec_TodoRoundTrip(t *testing.T) {
	due := eventtime.At(eventtime.NewTimeStamp(time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC)))
	opt, err := repeat.NewEveryDay(1)
	require.NoError(t, err)
	r, err := repeat.ForEventTime(due, opt, nil)
	require.NoError(t, err)
	created := time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC)

	repeating := event.TodoEvent{
		UUID:          "laundry",
		Name:          "laundry",
		Time:          &due,
		Repeating:     &r,
		RepeatingTurn: 3,
		CreatedAt:     created,
	}
	undated := event.TodoEvent{UUID: "someday", Name: "read a book", CreatedAt: created}

	_, todos := roundTrip(t, nil, []event.TodoEvent{repeating, undated})
	require.Len(t, todos, 2)

	got := todos[0]
	require.NotNil(t, got.Time)
	assert.Equal(t, due, *got.Time)
	require.NotNil(t, got.Repeating)
	assert.Equal(t, r.Option, got.Repeating.Option)
	assert.Equal(t, r.StartTime, got.Repeating.StartTime)
	assert.Equal(t, 3, got.RepeatingTurn)
	assert.True(t, created.Equal(got.CreatedAt))

	assert.Equal(t, "someday", todos[1].UUID)
	assert.Nil(t, todos[1].Time)
	assert.Nil(t, todos[1].Repeating)
	assert.Zero(t, todos[1].RepeatingTurn)
}

const foreignCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example//Other Client//EN
BEGIN:VEVENT
UID:gym
DTSTAMP:20240501T000000Z
SUMMARY:gym
DTSTART:20240506T070000Z
DURATION:PT30M
RRULE:FREQ=WEEKLY;BYDAY=MO,WE
END:VEVENT
BEGIN:VEVENT
UID:standup
DTSTAMP:20240501T000000Z
SUMMARY:standup
DTSTART:20240501T090000Z
DTEND:20240501T091500Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20240502T090000Z,20240503T090000Z
EXDATE;VALUE=DATE:20240504
BEGIN:VALARM
ACTION:DISPLAY
DESCRIPTION:standup
TRIGGER:-PT5M
END:VALARM
END:VEVENT
BEGIN:VTODO
UID:taxes
DTSTAMP:20240501T000000Z
SUMMARY:taxes
DUE;VALUE=DATE:20240510
END:VTODO
END:VCALENDAR
`

func TestCodec_DecodeForeignCalendar(t *testing.T) {
	data := strings.ReplaceAll(foreignCalendar, "\n", "\r\n")
	schedules, todos, err := testCodec().DecodeCalendar(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	require.Len(t, todos, 1)

	gym := schedules[0]
	assert.Nil(t, gym.Repeating, "multi-day weekly rules are imported without repetition")
	assert.Equal(t, eventtime.KindPeriod, gym.Time.Kind)
	assert.Equal(t, float64(30*60), gym.Time.Duration())

	standup := schedules[1]
	require.NotNil(t, standup.Repeating)
	require.NotNil(t, standup.Repeating.EndTime)
	assert.Equal(t, eventtime.Unix(time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC)), *standup.Repeating.EndTime)
	assert.Len(t, standup.RepeatingTimeToExcludes, 3)
	assert.Equal(t, []time.Duration{5 * time.Minute}, standup.NotificationOptions)

	rng := eventtime.RangeOf(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))
	occurrences := standup.Occurrences(rng)
	require.Len(t, occurrences, 2)
	assert.Equal(t, 1, occurrences[0].Turn)
	assert.Equal(t, 5, occurrences[1].Turn)

	taxes := todos[0]
	require.NotNil(t, taxes.Time)
	assert.Equal(t, eventtime.KindAllDay, taxes.Time.Kind)
	assert.Equal(t, float64(86400), taxes.Time.Duration())
	assert.True(t, stamp.Equal(taxes.CreatedAt), "missing CREATED falls back to the codec clock")
}

func TestCodec_AllDayMonthlyCount(t *testing.T) {
	data := strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example//EN
BEGIN:VEVENT
UID:rent
DTSTAMP:20240501T000000Z
SUMMARY:rent
DTSTART;VALUE=DATE:20240101
X-TODOCAL-SECONDS-FROM-GMT:32400
RRULE:FREQ=MONTHLY;COUNT=3
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")
	schedules, _, err := testCodec().DecodeCalendar(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	rent := schedules[0]
	require.NotNil(t, rent.Repeating)
	assert.Equal(t, eventtime.KindAllDay, rent.Time.Kind)
	assert.Equal(t, 9*3600, rent.Time.SecondsFromGMT)

	rng := eventtime.RangeOf(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	occurrences := rent.Occurrences(rng)
	require.Len(t, occurrences, 3)
	for i, month := range []time.Month{time.January, time.February, time.March} {
		floating := eventtime.Unix(time.Date(2024, month, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, floating, occurrences[i].Time.LowerBound())
		assert.Equal(t, i+1, occurrences[i].Turn)
	}
}

func TestCodec_AllDayUntilIsDate(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	at, err := eventtime.AllDayOf(time.Date(2024, 5, 5, 0, 0, 0, 0, seoul), 1)
	require.NoError(t, err)
	opt, err := repeat.NewEveryWeek(1)
	require.NoError(t, err)
	end := at.Shift(14 * 86400).LowerBoundWithFixed()
	r, err := repeat.ForEventTime(at, opt, &end)
	require.NoError(t, err)
	ev := event.ScheduleEvent{UUID: "market", Name: "market", Time: at, Repeating: &r}

	data, err := testCodec().EncodeCalendar([]event.ScheduleEvent{ev}, nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), "UNTIL=20240519")
	assert.NotContains(t, string(data), "UNTIL=20240519T")

	schedules, _ := roundTrip(t, []event.ScheduleEvent{ev}, nil)
	require.Len(t, schedules, 1)
	require.NotNil(t, schedules[0].Repeating)
	require.NotNil(t, schedules[0].Repeating.EndTime)
	assert.Equal(t, end, *schedules[0].Repeating.EndTime)
	assert.Len(t, schedules[0].Occurrences(eventtime.RangeOf(stamp, stamp.AddDate(0, 2, 0))), 3)
}

func TestCodec_DecodeRejectsEventWithoutStart(t *testing.T) {
	data := strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example//EN
BEGIN:VEVENT
UID:broken
DTSTAMP:20240501T000000Z
SUMMARY:no start
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")
	_, _, err := testCodec().DecodeCalendar(strings.NewReader(data))
	assert.Error(t, err)
}

func TestFormatTrigger(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "PT0S"},
		{time.Hour, "-PT1H"},
		{15 * time.Minute, "-PT15M"},
		{90 * time.Second, "-PT90S"},
		{-5 * time.Minute, "PT5M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTrigger(tt.in), tt.in.String())
	}
}
