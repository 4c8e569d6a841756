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

// TodoEvent is a task, optionally due at a time and optionally repeating.
// A repeating todo holds only its current occurrence; completing or skipping
// it moves the todo on to the next one.
type TodoEvent struct {
	UUID                string
	Name                string
	Time                *eventtime.EventTime
	Repeating           *repeat.EventRepeating
	RepeatingTurn       int
	EventTagID          string
	NotificationOptions []time.Duration
	CreatedAt           time.Time
}

// DoneTodoEvent records a completed todo occurrence.
type DoneTodoEvent struct {
	UUID          string
	OriginEventID string
	Name          string
	DoneTime      time.Time
	EventTime     *eventtime.EventTime
	EventTagID    string
}

func (e TodoEvent) Clone() TodoEvent {
	if e.Time != nil {
		t := *e.Time
		e.Time = &t
	}
	if e.Repeating != nil {
		r := e.Repeating.Clone()
		e.Repeating = &r
	}
	e.NotificationOptions = slices.Clone(e.NotificationOptions)
	return e
}

// TodoMakeParams carries the fields of a new todo.
type TodoMakeParams struct {
	Name                string
	Time                *eventtime.EventTime
	Repeating           *repeat.EventRepeating
	EventTagID          string
	NotificationOptions []time.Duration
}

// IsValidForMaking requires a non-blank name; a repeat rule also needs a time.
func (p TodoMakeParams) IsValidForMaking() bool {
	if strings.TrimSpace(p.Name) == "" {
		return false
	}
	return p.Repeating == nil || p.Time != nil
}

// NewTodoEvent builds a todo with a fresh UUID.
func NewTodoEvent(p TodoMakeParams, createdAt time.Time) (TodoEvent, error) {
	if !p.IsValidForMaking() {
		return TodoEvent{}, fmt.Errorf("%w: todo needs a name, and a time when repeating", ErrInvalidParams)
	}
	todo := TodoEvent{
		UUID:                uuid.NewString(),
		Name:                p.Name,
		EventTagID:          p.EventTagID,
		NotificationOptions: slices.Clone(p.NotificationOptions),
		CreatedAt:           createdAt,
	}
	if p.Time != nil {
		t := *p.Time
		todo.Time = &t
	}
	if p.Repeating != nil {
		r := p.Repeating.Clone()
		todo.Repeating = &r
		todo.RepeatingTurn = 1
	}
	return todo, nil
}

// TodoEditParams is a partial todo edit. Time or Repeating set to Some(nil)
// clears the field.
type TodoEditParams struct {
	Name                mo.Option[string]
	Time                mo.Option[*eventtime.EventTime]
	Repeating           mo.Option[*repeat.EventRepeating]
	EventTagID          mo.Option[string]
	NotificationOptions mo.Option[[]time.Duration]

	Scope RepeatingUpdateScope
}

func (p TodoEditParams) hasAnyField() bool {
	return p.Name.IsPresent() || p.Time.IsPresent() || p.Repeating.IsPresent() ||
		p.EventTagID.IsPresent() || p.NotificationOptions.IsPresent()
}

// IsValidForUpdate mirrors SchedulePutParams.IsValidForUpdate; the
// per-occurrence scopes additionally need a time for the new todo.
func (p TodoEditParams) IsValidForUpdate() bool {
	if p.Scope.Kind == ScopeAll {
		return p.hasAnyField()
	}
	t, ok := p.Time.Get()
	return ok && t != nil && p.AsMakeParams().IsValidForMaking()
}

func (p TodoEditParams) AsMakeParams() TodoMakeParams {
	mp := TodoMakeParams{
		Name:                p.Name.OrEmpty(),
		Time:                p.Time.OrEmpty(),
		Repeating:           p.Repeating.OrEmpty(),
		EventTagID:          p.EventTagID.OrEmpty(),
		NotificationOptions: p.NotificationOptions.OrEmpty(),
	}
	return mp
}

func (p TodoEditParams) apply(e TodoEvent) TodoEvent {
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
	if v, ok := p.Repeating.Get(); ok {
		e.Repeating = nil
		e.RepeatingTurn = 0
		if v != nil {
			r := v.Clone()
			e.Repeating = &r
			e.RepeatingTurn = 1
		}
	}
	if v, ok := p.Time.Get(); ok {
		e.Time = nil
		if v != nil {
			t := *v
			e.Time = &t
			if e.Repeating != nil && !p.Repeating.IsPresent() {
				r := anchorRepeating(*e.Repeating, t)
				e.Repeating = &r
			}
		}
	}
	return e
}

// TodoEditPlan is what the repository has to persist for a todo edit.
// Updated nil means the original todo has no occurrences left and should be
// removed.
type TodoEditPlan struct {
	Updated *TodoEvent
	Created *TodoEvent
}

// ResolveTodoEdit interprets params against origin according to params.Scope.
func ResolveTodoEdit(origin TodoEvent, params TodoEditParams) (TodoEditPlan, error) {
	if !params.IsValidForUpdate() {
		return TodoEditPlan{}, fmt.Errorf("%w: %s edit of %s", ErrInvalidParams, params.Scope, origin.UUID)
	}

	if params.Scope.Kind != ScopeAll {
		if origin.Repeating == nil {
			return TodoEditPlan{}, fmt.Errorf("%w: %s", ErrNotRepeating, origin.UUID)
		}
		if origin.Time == nil {
			return TodoEditPlan{}, fmt.Errorf("%w: %s", ErrNoTime, origin.UUID)
		}
	}

	switch params.Scope.Kind {
	case ScopeAll:
		updated := params.apply(origin)
		if updated.Repeating != nil && updated.Time == nil {
			return TodoEditPlan{}, fmt.Errorf("%w: repeating todo %s needs a time", ErrInvalidParams, origin.UUID)
		}
		return TodoEditPlan{Updated: &updated}, nil
	case ScopeOnlyThisTime:
		return resolveTodoOnlyThisTime(origin, params)
	case ScopeFromNow:
		return resolveTodoFromNow(origin, params), nil
	default:
		return TodoEditPlan{}, fmt.Errorf("%w: unknown scope %d", ErrInvalidParams, params.Scope.Kind)
	}
}

func resolveTodoOnlyThisTime(origin TodoEvent, params TodoEditParams) (TodoEditPlan, error) {
	if params.Scope.Time.CustomKey() != origin.Time.CustomKey() {
		return TodoEditPlan{}, fmt.Errorf("%w: %s is not the current occurrence of %s", ErrInvalidParams, params.Scope.Time, origin.UUID)
	}

	standalone := params.apply(origin)
	standalone.UUID = uuid.NewString()
	standalone.Repeating = nil
	standalone.RepeatingTurn = 0

	return TodoEditPlan{Updated: AdvanceTodo(origin), Created: &standalone}, nil
}

func resolveTodoFromNow(origin TodoEvent, params TodoEditParams) TodoEditPlan {
	pivot := params.Scope.Time.LowerBoundWithFixed()
	prev, ok := origin.Repeating.PreviousOccurrence(*origin.Time, pivot).Get()
	if !ok {
		updated := params.apply(origin)
		return TodoEditPlan{Updated: &updated}
	}

	end := prev.Time.LowerBoundWithFixed()
	updated := origin.Clone()
	r := origin.Repeating.WithEndTime(&end)
	updated.Repeating = &r

	branch := params.apply(origin)
	branch.UUID = uuid.NewString()
	if !params.Repeating.IsPresent() {
		r := origin.Repeating.Clone()
		branch.Repeating = &r
	}
	branch.RepeatingTurn = 0
	if branch.Repeating != nil && branch.Time != nil {
		r := anchorRepeating(*branch.Repeating, *branch.Time)
		branch.Repeating = &r
		branch.RepeatingTurn = 1
	}

	return TodoEditPlan{Updated: &updated, Created: &branch}
}

// AdvanceTodo moves a repeating todo on to its next occurrence. It returns
// nil when the todo does not repeat or its sequence has ended.
func AdvanceTodo(origin TodoEvent) *TodoEvent {
	if origin.Repeating == nil || origin.Time == nil {
		return nil
	}
	next, ok := origin.Repeating.NextEventTime(*origin.Time).Get()
	if !ok {
		return nil
	}
	advanced := origin.Clone()
	advanced.Time = &next
	advanced.RepeatingTurn = origin.RepeatingTurn + 1
	return &advanced
}

// CompleteTodo records origin's current occurrence as done and returns the
// todo moved on to its next occurrence, or nil when nothing is left.
func CompleteTodo(origin TodoEvent, doneAt time.Time) (DoneTodoEvent, *TodoEvent) {
	done := DoneTodoEvent{
		UUID:          uuid.NewString(),
		OriginEventID: origin.UUID,
		Name:          origin.Name,
		DoneTime:      doneAt,
		EventTagID:    origin.EventTagID,
	}
	if origin.Time != nil {
		t := *origin.Time
		done.EventTime = &t
	}
	return done, AdvanceTodo(origin)
}
