// Package event defines schedule and todo entities and resolves edits made
// to repeating events into concrete update and branch operations.
package event

import (
	"errors"
	"fmt"

	"github.com/cyp0633/libtodocal/eventtime"
)

var (
	// ErrInvalidParams is returned when make or edit params fail validation.
	ErrInvalidParams = errors.New("event: invalid params")
	// ErrNotRepeating is returned when a per-occurrence scope targets an
	// event without a repeat rule.
	ErrNotRepeating = errors.New("event: event is not repeating")
	// ErrNoTime is returned when a todo operation needs a time the todo lacks.
	ErrNoTime = errors.New("event: event has no time")
)

// ScopeKind selects which occurrences an edit applies to.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeOnlyThisTime
	ScopeFromNow
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeAll:
		return "all"
	case ScopeOnlyThisTime:
		return "only_this_time"
	case ScopeFromNow:
		return "from_now"
	default:
		return "unknown"
	}
}

// RepeatingUpdateScope is the edit scope plus the occurrence it was chosen
// on. Time is meaningless for ScopeAll.
type RepeatingUpdateScope struct {
	Kind ScopeKind
	Time eventtime.EventTime
}

// All applies an edit to every occurrence.
func All() RepeatingUpdateScope {
	return RepeatingUpdateScope{Kind: ScopeAll}
}

// OnlyThisTime applies an edit to the occurrence at t only.
func OnlyThisTime(t eventtime.EventTime) RepeatingUpdateScope {
	return RepeatingUpdateScope{Kind: ScopeOnlyThisTime, Time: t}
}

// FromNow applies an edit to the occurrence at t and every later one.
func FromNow(t eventtime.EventTime) RepeatingUpdateScope {
	return RepeatingUpdateScope{Kind: ScopeFromNow, Time: t}
}

func (s RepeatingUpdateScope) String() string {
	if s.Kind == ScopeAll {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Time)
}
