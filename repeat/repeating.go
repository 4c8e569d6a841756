package repeat

import (
	"fmt"
	"iter"

	"github.com/samber/mo"

	"github.com/cyp0633/libtodocal/eventtime"
)

// DefaultMaxIterations caps how many occurrences a single walk may visit.
const DefaultMaxIterations = 100_000

// Occurrence is one materialized instance of a repeating event. Turn counts
// from 1 for the event's own time.
type Occurrence struct {
	Time eventtime.EventTime `json:"time"`
	Turn int                 `json:"turn"`
}

// EventRepeating ties a rule to the instant repetition starts at and an
// optional instant it ends at (both fixed epoch seconds).
type EventRepeating struct {
	StartTime float64  `json:"startTime"`
	Option    Option   `json:"option"`
	EndTime   *float64 `json:"endTime,omitempty"`
}

// New validates the rule and that end, when given, is not before start.
func New(start float64, opt Option, end *float64) (EventRepeating, error) {
	if err := opt.Validate(); err != nil {
		return EventRepeating{}, err
	}
	if end != nil && *end < start {
		return EventRepeating{}, fmt.Errorf("%w: start %v end %v", ErrEndBeforeStart, start, *end)
	}
	return EventRepeating{StartTime: start, Option: opt, EndTime: end}, nil
}

// ForEventTime starts repetition at the fixed lower bound of t.
func ForEventTime(t eventtime.EventTime, opt Option, end *float64) (EventRepeating, error) {
	return New(t.LowerBoundWithFixed(), opt, end)
}

// WithEndTime returns a copy ending at end (nil removes the end).
func (r EventRepeating) WithEndTime(end *float64) EventRepeating {
	if end != nil {
		v := *end
		end = &v
	}
	r.EndTime = end
	return r
}

// WithStartTime returns a copy starting at start.
func (r EventRepeating) WithStartTime(start float64) EventRepeating {
	r.StartTime = start
	return r.WithEndTime(r.EndTime)
}

// Clone deep-copies the end pointer.
func (r EventRepeating) Clone() EventRepeating {
	return r.WithEndTime(r.EndTime)
}

// NextEventTime advances from by one step of the rule, honoring the end.
func (r EventRepeating) NextEventTime(from eventtime.EventTime) mo.Option[eventtime.EventTime] {
	enumerator, err := NewEnumerator(r.Option)
	if err != nil {
		return mo.None[eventtime.EventTime]()
	}
	return enumerator.NextEventTime(from, r.EndTime)
}

// Sequence yields occurrences starting with first (turn 1), skipping any that
// begin before StartTime and stopping after the end time or maxIterations.
func (r EventRepeating) Sequence(first eventtime.EventTime, maxIterations int) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		enumerator, err := NewEnumerator(r.Option)
		if err != nil {
			return
		}
		if maxIterations <= 0 {
			maxIterations = DefaultMaxIterations
		}

		cur := first
		for turn := 1; turn <= maxIterations; turn++ {
			if r.EndTime != nil && cur.LowerBoundWithFixed() > *r.EndTime {
				return
			}
			if cur.LowerBoundWithFixed() >= r.StartTime {
				if !yield(Occurrence{Time: cur, Turn: turn}) {
					return
				}
			}
			next, ok := enumerator.NextEventTime(cur, r.EndTime).Get()
			if !ok {
				return
			}
			cur = next
		}
	}
}

// IsOverlap reports whether any occurrence of the event scheduled at time
// intersects rng.
func (r EventRepeating) IsOverlap(time eventtime.EventTime, rng eventtime.Range) bool {
	return r.IsOverlapWithin(time, rng, DefaultMaxIterations)
}

// IsOverlapWithin is IsOverlap with an explicit iteration cap.
func (r EventRepeating) IsOverlapWithin(time eventtime.EventTime, rng eventtime.Range, maxIterations int) bool {
	for occ := range r.Sequence(time, maxIterations) {
		if occ.Time.LowerBoundWithFixed() >= rng.Upper {
			return false
		}
		if occ.Time.IsOverlap(rng) {
			return true
		}
	}
	return false
}

// Occurrences lists every occurrence intersecting rng whose key is not in
// excludes.
func (r EventRepeating) Occurrences(time eventtime.EventTime, rng eventtime.Range, excludes map[string]struct{}) []Occurrence {
	return r.OccurrencesWithin(time, rng, excludes, DefaultMaxIterations)
}

// OccurrencesWithin is Occurrences with an explicit iteration cap.
func (r EventRepeating) OccurrencesWithin(time eventtime.EventTime, rng eventtime.Range, excludes map[string]struct{}, maxIterations int) []Occurrence {
	var out []Occurrence
	for occ := range r.Sequence(time, maxIterations) {
		if occ.Time.LowerBoundWithFixed() >= rng.Upper {
			break
		}
		if !occ.Time.IsOverlap(rng) {
			continue
		}
		if _, excluded := excludes[occ.Time.CustomKey()]; excluded {
			continue
		}
		out = append(out, occ)
	}
	return out
}

// PreviousOccurrence returns the last occurrence beginning strictly before
// the fixed instant before.
func (r EventRepeating) PreviousOccurrence(time eventtime.EventTime, before float64) mo.Option[Occurrence] {
	prev := mo.None[Occurrence]()
	for occ := range r.Sequence(time, DefaultMaxIterations) {
		if occ.Time.LowerBoundWithFixed() >= before {
			break
		}
		prev = mo.Some(occ)
	}
	return prev
}

// OccurrenceAt finds the occurrence starting exactly at the fixed instant at.
func (r EventRepeating) OccurrenceAt(time eventtime.EventTime, at float64) mo.Option[Occurrence] {
	for occ := range r.Sequence(time, DefaultMaxIterations) {
		lower := occ.Time.LowerBoundWithFixed()
		if lower == at {
			return mo.Some(occ)
		}
		if lower > at {
			break
		}
	}
	return mo.None[Occurrence]()
}
