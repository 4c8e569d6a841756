package eventtime

import (
	"math"
	"sync"
	"time"
)

// TimeStamp is an instant (seconds since the Unix epoch) together with the
// IANA timezone it was recorded in. Ordering only looks at the instant.
type TimeStamp struct {
	UTC      float64 `json:"utc"`
	TimeZone string  `json:"timeZone,omitempty"`
}

var locations sync.Map // map[string]*time.Location

// NewTimeStamp converts t into a TimeStamp carrying t's location name.
func NewTimeStamp(t time.Time) TimeStamp {
	return TimeStamp{UTC: Unix(t), TimeZone: t.Location().String()}
}

// Location resolves the timestamp's timezone, falling back to UTC for empty
// or unknown names.
func (t TimeStamp) Location() *time.Location {
	return LoadLocation(t.TimeZone)
}

// Time returns the instant in the timestamp's own location.
func (t TimeStamp) Time() time.Time {
	return ToTime(t.UTC, t.Location())
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or
// after o.
func (t TimeStamp) Compare(o TimeStamp) int {
	switch {
	case t.UTC < o.UTC:
		return -1
	case t.UTC > o.UTC:
		return 1
	default:
		return 0
	}
}

func (t TimeStamp) Before(o TimeStamp) bool { return t.UTC < o.UTC }

func (t TimeStamp) Equal(o TimeStamp) bool { return t.UTC == o.UTC }

// Add moves the instant by the given number of seconds, keeping the timezone.
func (t TimeStamp) Add(seconds float64) TimeStamp {
	return TimeStamp{UTC: t.UTC + seconds, TimeZone: t.TimeZone}
}

// LoadLocation is time.LoadLocation with a process-wide cache and a UTC
// fallback.
func LoadLocation(name string) *time.Location {
	if name == "" || name == "UTC" {
		return time.UTC
	}
	if name == "Local" {
		return time.Local
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locations.Store(name, loc)
	return loc
}

// Unix returns t as fractional seconds since the epoch.
func Unix(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// ToTime converts fractional epoch seconds into a time.Time in loc.
func ToTime(seconds float64, loc *time.Location) time.Time {
	sec, frac := math.Modf(seconds)
	nsec := int64(math.Round(frac * 1e9))
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(int64(sec), nsec).In(loc)
}
