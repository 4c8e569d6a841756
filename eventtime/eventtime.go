// Package eventtime holds the timezone-aware instants and spans that events
// are scheduled at, plus the overlap primitives the recurrence code builds on.
package eventtime

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrInvalidRange is returned when an upper bound precedes its lower bound.
	ErrInvalidRange = errors.New("eventtime: upper bound before lower bound")
	// ErrUnknownKind is returned when decoding an unrecognised EventTime kind.
	ErrUnknownKind = errors.New("eventtime: unknown kind")
)

// Kind tells which variant an EventTime holds.
type Kind int

const (
	KindAt Kind = iota
	KindPeriod
	KindAllDay
)

func (k Kind) String() string {
	switch k {
	case KindAt:
		return "at"
	case KindPeriod:
		return "period"
	case KindAllDay:
		return "allday"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < KindAt || k > KindAllDay {
		return nil, ErrUnknownKind
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "at":
		*k = KindAt
	case "period":
		*k = KindPeriod
	case "allday":
		*k = KindAllDay
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(b))
	}
	return nil
}

// Range is a half-open interval [Lower, Upper) of epoch seconds.
type Range struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// NewRange validates that upper is not before lower.
func NewRange(lower, upper float64) (Range, error) {
	if upper < lower {
		return Range{}, ErrInvalidRange
	}
	return Range{Lower: lower, Upper: upper}, nil
}

// RangeOf builds a Range from two wall-clock times.
func RangeOf(start, end time.Time) Range {
	return Range{Lower: Unix(start), Upper: Unix(end)}
}

func (r Range) Contains(t float64) bool {
	return r.Lower <= t && t < r.Upper
}

func (r Range) Overlaps(o Range) bool {
	return r.Lower < o.Upper && o.Lower < r.Upper
}

// EventTime is the time an event is scheduled at: a single point, a period
// between two timestamps, or a run of whole days.
//
// All-day times are stored in floating coordinates, i.e. the local wall
// clock read as if it were UTC, together with the zone's offset from GMT.
// The real instants are obtained through the *WithFixed accessors.
type EventTime struct {
	Kind           Kind      `json:"kind"`
	Start          TimeStamp `json:"start"`
	End            TimeStamp `json:"end"`
	SecondsFromGMT int       `json:"secondsFromGMT,omitempty"`
}

// At is a point in time.
func At(t TimeStamp) EventTime {
	return EventTime{Kind: KindAt, Start: t, End: t}
}

// Period spans [start, end).
func Period(start, end TimeStamp) (EventTime, error) {
	if end.Before(start) {
		return EventTime{}, ErrInvalidRange
	}
	return EventTime{Kind: KindPeriod, Start: start, End: end}, nil
}

// AllDay spans the floating range r in a zone secondsFromGMT away from UTC.
func AllDay(r Range, secondsFromGMT int) (EventTime, error) {
	if r.Upper < r.Lower {
		return EventTime{}, ErrInvalidRange
	}
	return EventTime{
		Kind:           KindAllDay,
		Start:          TimeStamp{UTC: r.Lower, TimeZone: "UTC"},
		End:            TimeStamp{UTC: r.Upper, TimeZone: "UTC"},
		SecondsFromGMT: secondsFromGMT,
	}, nil
}

// AllDayOf builds an all-day time covering days whole days starting at the
// calendar date of day in day's location.
func AllDayOf(day time.Time, days int) (EventTime, error) {
	if days < 1 {
		return EventTime{}, ErrInvalidRange
	}
	y, m, d := day.Date()
	_, offset := time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Zone()
	lower := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	upper := lower.AddDate(0, 0, days)
	return AllDay(RangeOf(lower, upper), offset)
}

func (e EventTime) LowerBound() float64 { return e.Start.UTC }

func (e EventTime) UpperBound() float64 { return e.End.UTC }

// LowerBoundWithFixed is the real instant the time begins at.
func (e EventTime) LowerBoundWithFixed() float64 {
	if e.Kind == KindAllDay {
		return e.Start.UTC - float64(e.SecondsFromGMT)
	}
	return e.Start.UTC
}

// UpperBoundWithFixed is the real instant the time ends at.
func (e EventTime) UpperBoundWithFixed() float64 {
	if e.Kind == KindAllDay {
		return e.End.UTC - float64(e.SecondsFromGMT)
	}
	return e.End.UTC
}

// FixedRange is the real [lower, upper) span of the time.
func (e EventTime) FixedRange() Range {
	return Range{Lower: e.LowerBoundWithFixed(), Upper: e.UpperBoundWithFixed()}
}

// Duration is the span length in seconds; zero for At.
func (e EventTime) Duration() float64 {
	return e.End.UTC - e.Start.UTC
}

// Shift moves both bounds by the same number of seconds.
func (e EventTime) Shift(seconds float64) EventTime {
	e.Start = e.Start.Add(seconds)
	e.End = e.End.Add(seconds)
	return e
}

// Location is the zone calendar arithmetic should run in. All-day times are
// floating and always use UTC.
func (e EventTime) Location() *time.Location {
	if e.Kind == KindAllDay {
		return time.UTC
	}
	return e.Start.Location()
}

// IsOverlap reports whether the time intersects r. Points overlap when they
// fall inside r; spans use half-open intersection.
func (e EventTime) IsOverlap(r Range) bool {
	fixed := e.FixedRange()
	if fixed.Lower == fixed.Upper {
		return r.Contains(fixed.Lower)
	}
	return fixed.Overlaps(r)
}

// CustomKey identifies one occurrence of a repeating event. Exclusion sets
// are keyed by it.
func (e EventTime) CustomKey() string {
	return FormatKey(e.LowerBoundWithFixed())
}

// FormatKey formats a fixed lower bound the way CustomKey does.
func FormatKey(lower float64) string {
	return strconv.FormatFloat(lower, 'f', -1, 64)
}

// ParseKey is the inverse of FormatKey.
func ParseKey(key string) (float64, error) {
	return strconv.ParseFloat(key, 64)
}

func (e EventTime) String() string {
	switch e.Kind {
	case KindAt:
		return "at(" + e.Start.Time().Format(time.RFC3339) + ")"
	case KindPeriod:
		return "period(" + e.Start.Time().Format(time.RFC3339) + ".." + e.End.Time().Format(time.RFC3339) + ")"
	case KindAllDay:
		return fmt.Sprintf("allday(%s..%s, %+d)",
			ToTime(e.Start.UTC, time.UTC).Format(time.DateOnly),
			ToTime(e.End.UTC, time.UTC).Format(time.DateOnly),
			e.SecondsFromGMT)
	default:
		return "unknown"
	}
}
