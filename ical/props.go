package ical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
)

// setEventTime writes t as DTSTART and endName. All-day times use DATE
// values in their floating coordinates. A todo due at a point gets a DUE
// equal to its DTSTART.
func setEventTime(props ical.Props, t eventtime.EventTime, endName string) {
	switch t.Kind {
	case eventtime.KindAllDay:
		setDate(props, ical.PropDateTimeStart, eventtime.ToTime(t.LowerBound(), time.UTC))
		setDate(props, endName, eventtime.ToTime(t.UpperBound(), time.UTC))
		props.SetText(PropSecondsFromGMT, strconv.Itoa(t.SecondsFromGMT))
	case eventtime.KindPeriod:
		props.SetDateTime(ical.PropDateTimeStart, t.Start.Time())
		props.SetDateTime(endName, t.End.Time())
	default:
		props.SetDateTime(ical.PropDateTimeStart, t.Start.Time())
		if endName == ical.PropDue {
			props.SetDateTime(ical.PropDue, t.Start.Time())
		}
	}
}

func setDate(props ical.Props, name string, t time.Time) {
	prop := ical.NewProp(name)
	prop.SetDate(t)
	props.Set(prop)
}

func setRecurrence(props ical.Props, r repeat.EventRepeating, t eventtime.EventTime) error {
	text, err := r.RRuleString(t)
	if err != nil {
		return err
	}
	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = text
	props.Set(prop)
	return nil
}

// exceptionDate renders the occurrence starting at the fixed instant lower
// the way DTSTART of t is rendered.
func exceptionDate(t eventtime.EventTime, lower float64) *ical.Prop {
	prop := ical.NewProp(ical.PropExceptionDates)
	if t.Kind == eventtime.KindAllDay {
		prop.SetDate(eventtime.ToTime(lower+float64(t.SecondsFromGMT), time.UTC))
		return prop
	}
	prop.SetDateTime(eventtime.ToTime(lower, t.Start.Location()))
	return prop
}

// readEventTime is the inverse of setEventTime. It returns nil when the
// component carries no time at all.
func readEventTime(props ical.Props, endName string) (*eventtime.EventTime, error) {
	startProp := props.Get(ical.PropDateTimeStart)
	endProp := props.Get(endName)

	if startProp == nil {
		if endProp == nil {
			return nil, nil
		}
		// A todo with only a due date.
		startProp, endProp = endProp, nil
	}

	if isDateValue(startProp) {
		start, err := time.Parse(dateLayout, startProp.Value)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", startProp.Name, err)
		}
		end := start.AddDate(0, 0, 1)
		if endProp != nil && isDateValue(endProp) {
			if end, err = time.Parse(dateLayout, endProp.Value); err != nil {
				return nil, fmt.Errorf("parse %s: %w", endProp.Name, err)
			}
		}
		offset := 0
		if prop := props.Get(PropSecondsFromGMT); prop != nil {
			if offset, err = strconv.Atoi(strings.TrimSpace(prop.Value)); err != nil {
				return nil, fmt.Errorf("parse %s: %w", PropSecondsFromGMT, err)
			}
		}
		t, err := eventtime.AllDay(eventtime.RangeOf(start, end), offset)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	start, err := startProp.DateTime(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", startProp.Name, err)
	}

	var end time.Time
	switch {
	case endProp != nil:
		if end, err = endProp.DateTime(time.UTC); err != nil {
			return nil, fmt.Errorf("parse %s: %w", endProp.Name, err)
		}
	case props.Get(ical.PropDuration) != nil:
		d, err := props.Get(ical.PropDuration).Duration()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", ical.PropDuration, err)
		}
		end = start.Add(d)
	default:
		end = start
	}

	if end.Equal(start) {
		t := eventtime.At(eventtime.NewTimeStamp(start))
		return &t, nil
	}

	t, err := eventtime.Period(eventtime.NewTimeStamp(start), eventtime.NewTimeStamp(end))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// readExceptionKeys turns EXDATE values into occurrence keys of an event
// scheduled at t. Date-only values on timed events keep t's time of day.
func readExceptionKeys(props ical.Props, t eventtime.EventTime) (map[string]struct{}, error) {
	var keys map[string]struct{}
	for _, prop := range props.Values(ical.PropExceptionDates) {
		for _, value := range strings.Split(prop.Value, ",") {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			lower, err := exceptionInstant(&prop, value, t)
			if err != nil {
				return nil, fmt.Errorf("parse %s %q: %w", ical.PropExceptionDates, value, err)
			}
			if keys == nil {
				keys = make(map[string]struct{})
			}
			keys[eventtime.FormatKey(lower)] = struct{}{}
		}
	}
	return keys, nil
}

func exceptionInstant(prop *ical.Prop, value string, t eventtime.EventTime) (float64, error) {
	if isDateValue(prop) {
		d, err := time.Parse(dateLayout, value)
		if err != nil {
			return 0, err
		}
		if t.Kind == eventtime.KindAllDay {
			return eventtime.Unix(d) - float64(t.SecondsFromGMT), nil
		}
		st := t.Start.Time()
		local := time.Date(d.Year(), d.Month(), d.Day(), st.Hour(), st.Minute(), st.Second(), st.Nanosecond(), st.Location())
		return eventtime.Unix(local), nil
	}

	if strings.HasSuffix(value, "Z") {
		v, err := time.Parse(utcLayout, value)
		if err != nil {
			return 0, err
		}
		return eventtime.Unix(v), nil
	}

	loc := time.UTC
	if tzid := param(prop, "TZID"); tzid != "" {
		loc = eventtime.LoadLocation(tzid)
	}
	v, err := time.ParseInLocation(dateTimeLayout, value, loc)
	if err != nil {
		return 0, err
	}
	return eventtime.Unix(v), nil
}

// addAlarms adds a display VALARM triggering each offset before the start.
func addAlarms(comp *ical.Component, description string, offsets []time.Duration) {
	for _, d := range offsets {
		alarm := ical.NewComponent(ical.CompAlarm)
		alarm.Props.SetText(ical.PropAction, "DISPLAY")
		alarm.Props.SetText(ical.PropDescription, description)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.Value = formatTrigger(d)
		alarm.Props.Set(trigger)
		comp.Children = append(comp.Children, alarm)
	}
}

func readAlarms(comp *ical.Component) []time.Duration {
	var out []time.Duration
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil || strings.EqualFold(param(trigger, "VALUE"), "DATE-TIME") {
			continue
		}
		d, err := trigger.Duration()
		if err != nil {
			continue
		}
		out = append(out, -d)
	}
	return out
}

// formatTrigger renders a lead time as a negative RFC 5545 duration.
func formatTrigger(d time.Duration) string {
	sign := "-"
	if d < 0 {
		sign, d = "", -d
	}
	switch {
	case d == 0:
		return "PT0S"
	case d%time.Hour == 0:
		return fmt.Sprintf("%sPT%dH", sign, d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%sPT%dM", sign, d/time.Minute)
	default:
		return fmt.Sprintf("%sPT%dS", sign, d/time.Second)
	}
}

func isDateValue(prop *ical.Prop) bool {
	return strings.EqualFold(param(prop, "VALUE"), "DATE")
}

func param(prop *ical.Prop, name string) string {
	if values := prop.Params[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}
