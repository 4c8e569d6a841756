package repeat

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/libtodocal/eventtime"
)

// maxCalendarSearch bounds how many interval steps the month and year rules
// may skip while looking for a month that holds the wanted day.
const maxCalendarSearch = 400

// Enumerator produces successive occurrences of a single rule.
type Enumerator struct {
	option Option
}

// NewEnumerator validates opt and returns an enumerator for it.
func NewEnumerator(opt Option) (*Enumerator, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	return &Enumerator{option: opt}, nil
}

// NextEventTime returns the occurrence following from. Spans keep their
// length. When until is set and the next occurrence begins after it, the
// sequence has ended and None is returned.
func (e *Enumerator) NextEventTime(from eventtime.EventTime, until *float64) mo.Option[eventtime.EventTime] {
	loc := e.location(from)
	start := eventtime.ToTime(from.LowerBound(), loc)

	next, ok := e.nextStart(start)
	if !ok {
		return mo.None[eventtime.EventTime]()
	}

	nextTime := from.Shift(next.Sub(start).Seconds())
	if until != nil && nextTime.LowerBoundWithFixed() > *until {
		return mo.None[eventtime.EventTime]()
	}
	return mo.Some(nextTime)
}

// Enumerate collects up to limit occurrences after from.
func (e *Enumerator) Enumerate(from eventtime.EventTime, until *float64, limit int) []eventtime.EventTime {
	out := make([]eventtime.EventTime, 0, limit)
	cur := from
	for len(out) < limit {
		next, ok := e.NextEventTime(cur, until).Get()
		if !ok {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

func (e *Enumerator) location(from eventtime.EventTime) *time.Location {
	if from.Kind == eventtime.KindAllDay {
		return time.UTC
	}
	if e.option.TimeZone != "" {
		return eventtime.LoadLocation(e.option.TimeZone)
	}
	return from.Location()
}

// nextStart returns the first instant matching the rule strictly after t.
func (e *Enumerator) nextStart(t time.Time) (time.Time, bool) {
	n := e.option.Interval
	switch e.option.Kind {
	case EveryDay:
		return t.AddDate(0, 0, n), true
	case EveryWeek:
		return t.AddDate(0, 0, 7*n), true
	case EveryMonth:
		return e.searchMonths(t, func(year int, month time.Month) (int, bool) {
			return t.Day(), t.Day() <= daysIn(year, month)
		})
	case LastDayOfMonth:
		return e.searchMonths(t, func(year int, month time.Month) (int, bool) {
			return daysIn(year, month), true
		})
	case NthWeekdayOfMonth:
		return e.searchMonths(t, func(year int, month time.Month) (int, bool) {
			return nthWeekday(year, month, e.option.Ordinal, e.option.Weekday), true
		})
	case EveryYear:
		for k := 0; k <= maxCalendarSearch; k++ {
			year := t.Year() + k*n
			if t.Day() > daysIn(year, t.Month()) {
				continue
			}
			candidate := withDate(t, year, t.Month(), t.Day())
			if candidate.After(t) {
				return candidate, true
			}
		}
	}
	return time.Time{}, false
}

// searchMonths walks t's month, then every interval months after it, and
// returns the first day picked by pick that lies after t.
func (e *Enumerator) searchMonths(t time.Time, pick func(year int, month time.Month) (int, bool)) (time.Time, bool) {
	n := e.option.Interval
	for k := 0; k <= maxCalendarSearch; k++ {
		first := time.Date(t.Year(), t.Month()+time.Month(k*n), 1, 0, 0, 0, 0, time.UTC)
		day, ok := pick(first.Year(), first.Month())
		if !ok {
			continue
		}
		candidate := withDate(t, first.Year(), first.Month(), day)
		if candidate.After(t) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// withDate moves t to another calendar date, keeping its time of day.
func withDate(t time.Time, year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nthWeekday returns the day of month of the ordinal-th weekday; LastOrdinal
// picks the final one.
func nthWeekday(year int, month time.Month, ordinal int, weekday time.Weekday) int {
	if ordinal == LastOrdinal {
		last := daysIn(year, month)
		lastWeekday := time.Date(year, month, last, 0, 0, 0, 0, time.UTC).Weekday()
		return last - (int(lastWeekday)-int(weekday)+7)%7
	}
	firstWeekday := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	first := 1 + (int(weekday)-int(firstWeekday)+7)%7
	return first + (ordinal-1)*7
}
