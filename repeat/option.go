// Package repeat implements repeat rules for events: computing the next
// occurrence of a rule, walking occurrences, and testing overlap with a range.
package repeat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidOption is returned when a rule is built with out-of-range values.
	ErrInvalidOption = errors.New("repeat: invalid option")
	// ErrEndBeforeStart is returned when a repeating end time precedes its start.
	ErrEndBeforeStart = errors.New("repeat: end time before start time")
	// ErrUnsupportedRule is returned when an RRULE has no equivalent Option.
	ErrUnsupportedRule = errors.New("repeat: unsupported rule")
)

// Kind enumerates the closed set of repeat rules.
type Kind int

const (
	EveryDay Kind = iota + 1
	EveryWeek
	EveryMonth
	EveryYear
	LastDayOfMonth
	NthWeekdayOfMonth
)

// LastOrdinal selects the last matching weekday of a month.
const LastOrdinal = -1

// MaxWeekInterval bounds EveryWeek rules: week, 2 weeks, 3 weeks, 4 weeks.
const MaxWeekInterval = 4

func (k Kind) String() string {
	switch k {
	case EveryDay:
		return "every_day"
	case EveryWeek:
		return "every_week"
	case EveryMonth:
		return "every_month"
	case EveryYear:
		return "every_year"
	case LastDayOfMonth:
		return "last_day_of_month"
	case NthWeekdayOfMonth:
		return "nth_weekday_of_month"
	default:
		return "unknown"
	}
}

// Option is a single repeat rule.
type Option struct {
	Kind     Kind         `json:"kind"`
	Interval int          `json:"interval"`
	Ordinal  int          `json:"ordinal,omitempty"`
	Weekday  time.Weekday `json:"weekday,omitempty"`
	// TimeZone is the IANA zone calendar arithmetic runs in for timed
	// events. Empty means the event time's own zone.
	TimeZone string `json:"timeZone,omitempty"`
}

func NewEveryDay(interval int) (Option, error) {
	return validated(Option{Kind: EveryDay, Interval: interval})
}

// NewEveryWeek covers the week, 2-week, 3-week and 4-week rules.
func NewEveryWeek(interval int) (Option, error) {
	return validated(Option{Kind: EveryWeek, Interval: interval})
}

func NewEveryMonth(interval int) (Option, error) {
	return validated(Option{Kind: EveryMonth, Interval: interval})
}

func NewEveryYear(interval int) (Option, error) {
	return validated(Option{Kind: EveryYear, Interval: interval})
}

func NewLastDayOfMonth(interval int) (Option, error) {
	return validated(Option{Kind: LastDayOfMonth, Interval: interval})
}

// NewNthWeekdayOfMonth repeats on the ordinal-th weekday of every interval
// months. Ordinal is 1 to 4, or LastOrdinal.
func NewNthWeekdayOfMonth(ordinal int, weekday time.Weekday, interval int) (Option, error) {
	return validated(Option{Kind: NthWeekdayOfMonth, Ordinal: ordinal, Weekday: weekday, Interval: interval})
}

func validated(o Option) (Option, error) {
	if err := o.Validate(); err != nil {
		return Option{}, err
	}
	return o, nil
}

// WithTimeZone returns a copy of the option pinned to the named zone.
func (o Option) WithTimeZone(name string) Option {
	o.TimeZone = name
	return o
}

// Validate checks the option's fields against its kind.
func (o Option) Validate() error {
	if o.Interval < 1 {
		return fmt.Errorf("%w: interval %d", ErrInvalidOption, o.Interval)
	}
	switch o.Kind {
	case EveryDay, EveryMonth, EveryYear, LastDayOfMonth:
	case EveryWeek:
		if o.Interval > MaxWeekInterval {
			return fmt.Errorf("%w: week interval %d", ErrInvalidOption, o.Interval)
		}
	case NthWeekdayOfMonth:
		if o.Ordinal != LastOrdinal && (o.Ordinal < 1 || o.Ordinal > 4) {
			return fmt.Errorf("%w: ordinal %d", ErrInvalidOption, o.Ordinal)
		}
		if o.Weekday < time.Sunday || o.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidOption, o.Weekday)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidOption, o.Kind)
	}
	return nil
}

func (o Option) String() string {
	if o.Kind == NthWeekdayOfMonth {
		return fmt.Sprintf("%s(%d %s, /%d)", o.Kind, o.Ordinal, o.Weekday, o.Interval)
	}
	return fmt.Sprintf("%s(/%d)", o.Kind, o.Interval)
}
