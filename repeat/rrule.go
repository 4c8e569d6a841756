package repeat

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cyp0633/libtodocal/eventtime"
)

// rrule-go orders weekdays from Monday.
var rruleWeekdays = [7]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

func toRRuleWeekday(wd time.Weekday) rrule.Weekday {
	return rruleWeekdays[(int(wd)+6)%7]
}

func fromRRuleWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

// ROption converts the rule into rrule-go options without DTSTART.
func (o Option) ROption() (rrule.ROption, error) {
	if err := o.Validate(); err != nil {
		return rrule.ROption{}, err
	}
	opt := rrule.ROption{Interval: o.Interval}
	switch o.Kind {
	case EveryDay:
		opt.Freq = rrule.DAILY
	case EveryWeek:
		opt.Freq = rrule.WEEKLY
	case EveryMonth:
		opt.Freq = rrule.MONTHLY
	case EveryYear:
		opt.Freq = rrule.YEARLY
	case LastDayOfMonth:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{-1}
	case NthWeekdayOfMonth:
		opt.Freq = rrule.MONTHLY
		wd := toRRuleWeekday(o.Weekday)
		opt.Byweekday = []rrule.Weekday{wd.Nth(o.Ordinal)}
	}
	return opt, nil
}

// RRuleString renders the repetition of t as RFC 5545 RRULE text (without
// the "RRULE:" prefix). The end time becomes UNTIL, a UTC DATE-TIME for timed
// events and the floating DATE of the last day for all-day ones.
func (r EventRepeating) RRuleString(t eventtime.EventTime) (string, error) {
	opt, err := r.Option.ROption()
	if err != nil {
		return "", err
	}
	if r.EndTime == nil {
		return opt.RRuleString(), nil
	}
	if t.Kind == eventtime.KindAllDay {
		floating := eventtime.ToTime(*r.EndTime+float64(t.SecondsFromGMT), time.UTC)
		return opt.RRuleString() + ";UNTIL=" + floating.Format(rrule.DateFormat), nil
	}
	opt.Until = eventtime.ToTime(*r.EndTime, time.UTC)
	return opt.RRuleString(), nil
}

// FromRRule maps RRULE text back onto an EventRepeating starting at t.
// COUNT is resolved into an end time by expanding the rule from t's start.
// All-day times expand in floating coordinates and a DATE UNTIL is read as
// a floating date. Rules outside the supported set return
// ErrUnsupportedRule.
func FromRRule(text string, t eventtime.EventTime) (EventRepeating, error) {
	loc := t.Location()
	ropt, err := rrule.StrToROptionInLocation(text, loc)
	if err != nil {
		return EventRepeating{}, fmt.Errorf("parse rrule %q: %w", text, err)
	}

	opt, err := optionFromROption(ropt)
	if err != nil {
		return EventRepeating{}, fmt.Errorf("%w: %s", err, text)
	}

	var offset float64
	if t.Kind == eventtime.KindAllDay {
		offset = float64(t.SecondsFromGMT)
	}

	var end *float64
	switch {
	case !ropt.Until.IsZero():
		v := eventtime.Unix(ropt.Until)
		if untilIsDate(text) {
			v -= offset
		}
		end = &v
	case ropt.Count > 0:
		ropt.Dtstart = eventtime.ToTime(t.LowerBound(), loc)
		rule, err := rrule.NewRRule(*ropt)
		if err != nil {
			return EventRepeating{}, fmt.Errorf("expand rrule %q: %w", text, err)
		}
		all := rule.All()
		if len(all) > 0 {
			v := eventtime.Unix(all[len(all)-1]) - offset
			end = &v
		}
	}

	start := t.LowerBoundWithFixed()
	if end != nil && *end < start {
		end = &start
	}
	return New(start, opt, end)
}

func untilIsDate(text string) bool {
	for _, part := range strings.Split(strings.ToUpper(text), ";") {
		if v, ok := strings.CutPrefix(part, "UNTIL="); ok {
			return !strings.Contains(v, "T")
		}
	}
	return false
}

func optionFromROption(ropt *rrule.ROption) (Option, error) {
	interval := ropt.Interval
	if interval < 1 {
		interval = 1
	}
	if len(ropt.Bymonth) > 0 || len(ropt.Byyearday) > 0 || len(ropt.Byweekno) > 0 ||
		len(ropt.Bysetpos) > 0 || len(ropt.Byhour) > 0 || len(ropt.Byminute) > 0 {
		return Option{}, ErrUnsupportedRule
	}

	switch ropt.Freq {
	case rrule.DAILY:
		if len(ropt.Byweekday) > 0 || len(ropt.Bymonthday) > 0 {
			return Option{}, ErrUnsupportedRule
		}
		return NewEveryDay(interval)
	case rrule.WEEKLY:
		if len(ropt.Byweekday) > 1 || len(ropt.Bymonthday) > 0 {
			return Option{}, ErrUnsupportedRule
		}
		return NewEveryWeek(interval)
	case rrule.MONTHLY:
		switch {
		case len(ropt.Bymonthday) == 1 && ropt.Bymonthday[0] == -1 && len(ropt.Byweekday) == 0:
			return NewLastDayOfMonth(interval)
		case len(ropt.Byweekday) == 1 && len(ropt.Bymonthday) == 0:
			wd := ropt.Byweekday[0]
			if wd.N() == 0 {
				return Option{}, ErrUnsupportedRule
			}
			return NewNthWeekdayOfMonth(wd.N(), fromRRuleWeekday(wd), interval)
		case len(ropt.Byweekday) == 0 && len(ropt.Bymonthday) <= 1:
			return NewEveryMonth(interval)
		}
	case rrule.YEARLY:
		if len(ropt.Byweekday) == 0 && len(ropt.Bymonthday) == 0 {
			return NewEveryYear(interval)
		}
	}
	return Option{}, ErrUnsupportedRule
}
