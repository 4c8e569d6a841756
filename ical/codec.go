// Package ical converts schedules and todos to and from iCalendar data so
// they can be synced with external calendar services.
package ical

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
)

// Non-standard properties carrying fields iCalendar has no place for.
const (
	PropSecondsFromGMT = "X-TODOCAL-SECONDS-FROM-GMT"
	PropShowTurn       = "X-TODOCAL-SHOW-TURN"
	PropRepeatingTurn  = "X-TODOCAL-REPEATING-TURN"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
	utcLayout      = "20060102T150405Z"
)

// Codec encodes and decodes calendars.
type Codec struct {
	logger    *slog.Logger
	productID string
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

// WithProductID overrides the PRODID written to encoded calendars.
func WithProductID(id string) Option {
	return func(c *Codec) {
		c.productID = id
	}
}

// WithClock sets the clock used for DTSTAMP and missing creation times.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		productID: "-//Todocal//Go Todo Calendar//EN",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExportSchedule builds a VEVENT for ev. Excluded occurrences become EXDATEs
// and notification offsets become VALARMs.
func (c *Codec) ExportSchedule(ev event.ScheduleEvent) (*ical.Component, error) {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, ev.UUID)
	comp.Props.SetText(ical.PropSummary, ev.Name)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())

	setEventTime(comp.Props, ev.Time, ical.PropDateTimeEnd)

	if ev.Repeating != nil {
		if err := setRecurrence(comp.Props, *ev.Repeating, ev.Time); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", ev.UUID, err)
		}
		for _, key := range ev.ExcludeKeys() {
			lower, err := eventtime.ParseKey(key)
			if err != nil {
				c.logger.Warn("skipping malformed exclusion key", "event", ev.UUID, "key", key)
				continue
			}
			comp.Props.Add(exceptionDate(ev.Time, lower))
		}
	}

	if ev.EventTagID != "" {
		comp.Props.SetText(ical.PropCategories, ev.EventTagID)
	}
	if ev.ShowTurn {
		comp.Props.SetText(PropShowTurn, "TRUE")
	}
	addAlarms(comp, ev.Name, ev.NotificationOptions)

	return comp, nil
}

// ExportTodo builds a VTODO for todo. The todo's time maps onto DTSTART and
// DUE.
func (c *Codec) ExportTodo(todo event.TodoEvent) (*ical.Component, error) {
	comp := ical.NewComponent(ical.CompToDo)
	comp.Props.SetText(ical.PropUID, todo.UUID)
	comp.Props.SetText(ical.PropSummary, todo.Name)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())
	if !todo.CreatedAt.IsZero() {
		comp.Props.SetDateTime(ical.PropCreated, todo.CreatedAt.UTC())
	}

	if todo.Time != nil {
		setEventTime(comp.Props, *todo.Time, ical.PropDue)
		if todo.Repeating != nil {
			if err := setRecurrence(comp.Props, *todo.Repeating, *todo.Time); err != nil {
				return nil, fmt.Errorf("todo %s: %w", todo.UUID, err)
			}
			comp.Props.SetText(PropRepeatingTurn, strconv.Itoa(todo.RepeatingTurn))
		}
	}

	if todo.EventTagID != "" {
		comp.Props.SetText(ical.PropCategories, todo.EventTagID)
	}
	addAlarms(comp, todo.Name, todo.NotificationOptions)

	return comp, nil
}

// EncodeCalendar renders schedules and todos as a single VCALENDAR.
func (c *Codec) EncodeCalendar(schedules []event.ScheduleEvent, todos []event.TodoEvent) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, c.productID)

	for _, ev := range schedules {
		comp, err := c.ExportSchedule(ev)
		if err != nil {
			return nil, err
		}
		cal.Children = append(cal.Children, comp)
	}
	for _, todo := range todos {
		comp, err := c.ExportTodo(todo)
		if err != nil {
			return nil, err
		}
		cal.Children = append(cal.Children, comp)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCalendar reads every VEVENT and VTODO of a calendar. Components with
// a recurrence rule outside the supported set are imported without
// repetition and logged.
func (c *Codec) DecodeCalendar(r io.Reader) ([]event.ScheduleEvent, []event.TodoEvent, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode calendar: %w", err)
	}

	var (
		schedules []event.ScheduleEvent
		todos     []event.TodoEvent
	)
	for _, child := range cal.Children {
		switch child.Name {
		case ical.CompEvent:
			ev, err := c.decodeSchedule(child)
			if err != nil {
				return nil, nil, err
			}
			schedules = append(schedules, ev)
		case ical.CompToDo:
			todo, err := c.decodeTodo(child)
			if err != nil {
				return nil, nil, err
			}
			todos = append(todos, todo)
		}
	}
	return schedules, todos, nil
}

func (c *Codec) decodeSchedule(comp *ical.Component) (event.ScheduleEvent, error) {
	ev := event.ScheduleEvent{
		UUID: propText(comp, ical.PropUID),
		Name: propText(comp, ical.PropSummary),
	}
	if ev.UUID == "" {
		ev.UUID = uuid.NewString()
	}

	t, err := readEventTime(comp.Props, ical.PropDateTimeEnd)
	if err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.UUID, err)
	}
	if t == nil {
		return ev, fmt.Errorf("event %s: missing DTSTART", ev.UUID)
	}
	ev.Time = *t
	ev.Repeating = c.readRecurrence(comp, ev.UUID, ev.Time)

	if ev.Repeating != nil {
		keys, err := readExceptionKeys(comp.Props, ev.Time)
		if err != nil {
			return ev, fmt.Errorf("event %s: %w", ev.UUID, err)
		}
		ev.RepeatingTimeToExcludes = keys
	}

	ev.EventTagID = propText(comp, ical.PropCategories)
	ev.ShowTurn = strings.EqualFold(propText(comp, PropShowTurn), "TRUE")
	ev.NotificationOptions = readAlarms(comp)
	return ev, nil
}

func (c *Codec) decodeTodo(comp *ical.Component) (event.TodoEvent, error) {
	todo := event.TodoEvent{
		UUID:      propText(comp, ical.PropUID),
		Name:      propText(comp, ical.PropSummary),
		CreatedAt: c.now(),
	}
	if todo.UUID == "" {
		todo.UUID = uuid.NewString()
	}
	if prop := comp.Props.Get(ical.PropCreated); prop != nil {
		if created, err := prop.DateTime(time.UTC); err == nil {
			todo.CreatedAt = created
		}
	}

	t, err := readEventTime(comp.Props, ical.PropDue)
	if err != nil {
		return todo, fmt.Errorf("todo %s: %w", todo.UUID, err)
	}
	todo.Time = t
	if t != nil {
		todo.Repeating = c.readRecurrence(comp, todo.UUID, *t)
	}
	if todo.Repeating != nil {
		todo.RepeatingTurn = 1
		if turn, err := strconv.Atoi(propText(comp, PropRepeatingTurn)); err == nil && turn > 0 {
			todo.RepeatingTurn = turn
		}
	}

	todo.EventTagID = propText(comp, ical.PropCategories)
	todo.NotificationOptions = readAlarms(comp)
	return todo, nil
}

func (c *Codec) readRecurrence(comp *ical.Component, id string, t eventtime.EventTime) *repeat.EventRepeating {
	prop := comp.Props.Get(ical.PropRecurrenceRule)
	if prop == nil || prop.Value == "" {
		return nil
	}
	r, err := repeat.FromRRule(prop.Value, t)
	if err != nil {
		c.logger.Warn("importing without repetition", "uid", id, "rrule", prop.Value, "error", err)
		return nil
	}
	return &r
}

func propText(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	text, err := prop.Text()
	if err != nil {
		return prop.Value
	}
	return text
}
