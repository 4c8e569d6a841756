package event

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
)

// RepeatingTimes is a materialized occurrence of a repeating event.
type RepeatingTimes = repeat.Occurrence

// ScheduleEvent is an event placed on the calendar at a time, optionally
// repeating.
type ScheduleEvent struct {
	UUID                string
	Name                string
	Time                eventtime.EventTime
	Repeating           *repeat.EventRepeating
	EventTagID          string
	NotificationOptions []time.Duration
	ShowTurn            bool

	// NextRepeatingTimes caches upcoming occurrences written back by the
	// materializer.
	NextRepeatingTimes []RepeatingTimes
	// RepeatingTimeToExcludes holds CustomKeys of skipped occurrences.
	RepeatingTimeToExcludes map[string]struct{}
}

// Clone returns a deep copy.
func (e ScheduleEvent) Clone() ScheduleEvent {
	if e.Repeating != nil {
		r := e.Repeating.Clone()
		e.Repeating = &r
	}
	e.NotificationOptions = slices.Clone(e.NotificationOptions)
	e.NextRepeatingTimes = slices.Clone(e.NextRepeatingTimes)
	e.RepeatingTimeToExcludes = cloneKeys(e.RepeatingTimeToExcludes)
	return e
}

// IsOverlap reports whether any occurrence of the event intersects rng.
func (e ScheduleEvent) IsOverlap(rng eventtime.Range) bool {
	if e.Repeating == nil {
		return e.Time.IsOverlap(rng)
	}
	return e.Repeating.IsOverlap(e.Time, rng)
}

// Occurrences lists occurrences intersecting rng, leaving out excluded ones.
func (e ScheduleEvent) Occurrences(rng eventtime.Range) []RepeatingTimes {
	return e.OccurrencesWithin(rng, repeat.DefaultMaxIterations)
}

// OccurrencesWithin is Occurrences with an explicit iteration cap.
func (e ScheduleEvent) OccurrencesWithin(rng eventtime.Range, maxIterations int) []RepeatingTimes {
	if e.Repeating == nil {
		if e.Time.IsOverlap(rng) {
			return []RepeatingTimes{{Time: e.Time, Turn: 1}}
		}
		return nil
	}
	return e.Repeating.OccurrencesWithin(e.Time, rng, e.RepeatingTimeToExcludes, maxIterations)
}

// IsExcluded reports whether the occurrence at t was skipped.
func (e ScheduleEvent) IsExcluded(t eventtime.EventTime) bool {
	_, ok := e.RepeatingTimeToExcludes[t.CustomKey()]
	return ok
}

// Excluding returns a copy with the occurrence at t skipped.
func (e ScheduleEvent) Excluding(t eventtime.EventTime) ScheduleEvent {
	e = e.Clone()
	if e.RepeatingTimeToExcludes == nil {
		e.RepeatingTimeToExcludes = make(map[string]struct{})
	}
	e.RepeatingTimeToExcludes[t.CustomKey()] = struct{}{}
	return e
}

// ExcludeKeys returns the exclusion keys in ascending order.
func (e ScheduleEvent) ExcludeKeys() []string {
	keys := make([]string, 0, len(e.RepeatingTimeToExcludes))
	for k := range e.RepeatingTimeToExcludes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ScheduleMakeParams carries the fields of a new schedule.
type ScheduleMakeParams struct {
	Name                string
	Time                *eventtime.EventTime
	Repeating           *repeat.EventRepeating
	EventTagID          string
	NotificationOptions []time.Duration
	ShowTurn            bool
}

// IsValidForMaking requires a non-blank name and a time.
func (p ScheduleMakeParams) IsValidForMaking() bool {
	return strings.TrimSpace(p.Name) != "" && p.Time != nil
}

// NewScheduleEvent builds a schedule with a fresh UUID.
func NewScheduleEvent(p ScheduleMakeParams) (ScheduleEvent, error) {
	if !p.IsValidForMaking() {
		return ScheduleEvent{}, fmt.Errorf("%w: schedule needs a name and a time", ErrInvalidParams)
	}
	ev := ScheduleEvent{
		UUID:                uuid.NewString(),
		Name:                p.Name,
		Time:                *p.Time,
		EventTagID:          p.EventTagID,
		NotificationOptions: slices.Clone(p.NotificationOptions),
		ShowTurn:            p.ShowTurn,
	}
	if p.Repeating != nil {
		r := p.Repeating.Clone()
		ev.Repeating = &r
	}
	return ev, nil
}

// SchedulePutParams is a partial edit: absent options leave fields as they
// are. Repeating set to Some(nil) removes the repeat rule.
type SchedulePutParams struct {
	Name                mo.Option[string]
	Time                mo.Option[eventtime.EventTime]
	Repeating           mo.Option[*repeat.EventRepeating]
	EventTagID          mo.Option[string]
	NotificationOptions mo.Option[[]time.Duration]
	ShowTurn            mo.Option[bool]

	Scope RepeatingUpdateScope
}

func (p SchedulePutParams) hasAnyField() bool {
	return p.Name.IsPresent() || p.Time.IsPresent() || p.Repeating.IsPresent() ||
		p.EventTagID.IsPresent() || p.NotificationOptions.IsPresent() || p.ShowTurn.IsPresent()
}

// IsValidForUpdate: editing every occurrence needs at least one field, while
// per-occurrence scopes must describe a valid standalone event.
func (p SchedulePutParams) IsValidForUpdate() bool {
	if p.Scope.Kind == ScopeAll {
		return p.hasAnyField()
	}
	return p.AsMakeParams().IsValidForMaking()
}

// AsMakeParams reads the supplied fields as the params of a new schedule.
func (p SchedulePutParams) AsMakeParams() ScheduleMakeParams {
	mp := ScheduleMakeParams{
		Name:                p.Name.OrEmpty(),
		EventTagID:          p.EventTagID.OrEmpty(),
		NotificationOptions: p.NotificationOptions.OrEmpty(),
		ShowTurn:            p.ShowTurn.OrEmpty(),
	}
	if t, ok := p.Time.Get(); ok {
		mp.Time = &t
	}
	if r, ok := p.Repeating.Get(); ok {
		mp.Repeating = r
	}
	return mp
}

// apply writes the supplied fields onto a copy of e. When the time moves and
// the repeat rule is not replaced, repetition is re-anchored at the new time.
func (p SchedulePutParams) apply(e ScheduleEvent) ScheduleEvent {
	e = e.Clone()
	if v, ok := p.Name.Get(); ok {
		e.Name = v
	}
	if v, ok := p.EventTagID.Get(); ok {
		e.EventTagID = v
	}
	if v, ok := p.NotificationOptions.Get(); ok {
		e.NotificationOptions = slices.Clone(v)
	}
	if v, ok := p.ShowTurn.Get(); ok {
		e.ShowTurn = v
	}
	if v, ok := p.Repeating.Get(); ok {
		e.Repeating = nil
		if v != nil {
			r := v.Clone()
			e.Repeating = &r
		}
	}
	if v, ok := p.Time.Get(); ok && v != e.Time {
		e.Time = v
		e.NextRepeatingTimes = nil
		if e.Repeating != nil && !p.Repeating.IsPresent() {
			r := anchorRepeating(*e.Repeating, v)
			e.Repeating = &r
		}
	}
	if e.Repeating == nil {
		e.NextRepeatingTimes = nil
		e.RepeatingTimeToExcludes = nil
	}
	return e
}

// ScheduleEditPlan is what the repository has to persist for an edit:
// Updated replaces the original record and Created, when set, is a new one.
type ScheduleEditPlan struct {
	Updated ScheduleEvent
	Created *ScheduleEvent
}

// ResolveScheduleEdit interprets params against origin according to
// params.Scope.
func ResolveScheduleEdit(origin ScheduleEvent, params SchedulePutParams) (ScheduleEditPlan, error) {
	if !params.IsValidForUpdate() {
		return ScheduleEditPlan{}, fmt.Errorf("%w: %s edit of %s", ErrInvalidParams, params.Scope, origin.UUID)
	}

	switch params.Scope.Kind {
	case ScopeAll:
		return ScheduleEditPlan{Updated: params.apply(origin)}, nil
	case ScopeOnlyThisTime:
		if origin.Repeating == nil {
			return ScheduleEditPlan{}, fmt.Errorf("%w: %s", ErrNotRepeating, origin.UUID)
		}
		return resolveScheduleOnlyThisTime(origin, params)
	case ScopeFromNow:
		if origin.Repeating == nil {
			return ScheduleEditPlan{}, fmt.Errorf("%w: %s", ErrNotRepeating, origin.UUID)
		}
		return resolveScheduleFromNow(origin, params), nil
	default:
		return ScheduleEditPlan{}, fmt.Errorf("%w: unknown scope %d", ErrInvalidParams, params.Scope.Kind)
	}
}

func resolveScheduleOnlyThisTime(origin ScheduleEvent, params SchedulePutParams) (ScheduleEditPlan, error) {
	if _, ok := origin.Repeating.OccurrenceAt(origin.Time, params.Scope.Time.LowerBoundWithFixed()).Get(); !ok {
		return ScheduleEditPlan{}, fmt.Errorf("%w: %s is not an occurrence of %s", ErrInvalidParams, params.Scope.Time, origin.UUID)
	}
	updated := origin.Excluding(params.Scope.Time)

	standalone := params.apply(origin)
	standalone.UUID = uuid.NewString()
	standalone.Repeating = nil
	standalone.ShowTurn = params.ShowTurn.OrEmpty()
	standalone.NextRepeatingTimes = nil
	standalone.RepeatingTimeToExcludes = nil

	return ScheduleEditPlan{Updated: updated, Created: &standalone}, nil
}

func resolveScheduleFromNow(origin ScheduleEvent, params SchedulePutParams) ScheduleEditPlan {
	pivot := params.Scope.Time.LowerBoundWithFixed()
	prev, ok := origin.Repeating.PreviousOccurrence(origin.Time, pivot).Get()
	if !ok {
		// Nothing precedes the chosen occurrence, so the edit covers the
		// whole sequence.
		return ScheduleEditPlan{Updated: params.apply(origin)}
	}

	end := prev.Time.LowerBoundWithFixed()
	updatedRepeating := origin.Repeating.WithEndTime(&end)
	updated := origin.Clone()
	updated.Repeating = &updatedRepeating
	updated.NextRepeatingTimes = keepTimes(updated.NextRepeatingTimes, func(f float64) bool { return f <= end })
	updated.RepeatingTimeToExcludes = keepKeys(updated.RepeatingTimeToExcludes, func(f float64) bool { return f < pivot })

	branch := params.apply(origin)
	branch.UUID = uuid.NewString()
	branch.NextRepeatingTimes = nil
	newTime := params.Time.OrElse(params.Scope.Time)
	branch.Time = newTime
	if !params.Repeating.IsPresent() {
		r := origin.Repeating.Clone()
		branch.Repeating = &r
	}
	if branch.Repeating != nil {
		r := anchorRepeating(*branch.Repeating, newTime)
		branch.Repeating = &r
		start := r.StartTime
		branch.RepeatingTimeToExcludes = keepKeys(origin.RepeatingTimeToExcludes, func(f float64) bool { return f >= start })
	} else {
		branch.RepeatingTimeToExcludes = nil
	}

	return ScheduleEditPlan{Updated: updated, Created: &branch}
}

// anchorRepeating restarts r at t, keeping its end no earlier than the start.
func anchorRepeating(r repeat.EventRepeating, t eventtime.EventTime) repeat.EventRepeating {
	r = r.WithStartTime(t.LowerBoundWithFixed())
	if r.EndTime != nil && *r.EndTime < r.StartTime {
		r = r.WithEndTime(&r.StartTime)
	}
	return r
}

func cloneKeys(keys map[string]struct{}) map[string]struct{} {
	if keys == nil {
		return nil
	}
	out := make(map[string]struct{}, len(keys))
	for k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func keepKeys(keys map[string]struct{}, keep func(float64) bool) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range keys {
		f, err := eventtime.ParseKey(k)
		if err != nil || !keep(f) {
			continue
		}
		out[k] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func keepTimes(times []RepeatingTimes, keep func(float64) bool) []RepeatingTimes {
	var out []RepeatingTimes
	for _, t := range times {
		if keep(t.Time.LowerBoundWithFixed()) {
			out = append(out, t)
		}
	}
	return out
}
