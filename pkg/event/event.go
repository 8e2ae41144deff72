package event

import (
	"time"

	"github.com/samber/mo"
)

// Fields are the mutable attributes of an event. Versions snapshot exactly these.
type Fields struct {
	Title             string
	Description       string
	StartTime         time.Time
	EndTime           time.Time
	Location          string
	IsRecurring       bool
	RecurrencePattern string
}

func (f Fields) Range() TimeRange {
	return TimeRange{Start: f.StartTime, End: f.EndTime}
}

type Event struct {
	Id      int
	OwnerId int
	Fields
	CreatedAt time.Time
}

// Version is an immutable snapshot of an event taken before it was changed.
type Version struct {
	Id      int
	EventId int
	Fields
	UpdatedBy int
	UpdatedAt time.Time
}

type Permission struct {
	Id      int
	EventId int
	UserId  int
	Role    Role
}

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) Valid() bool {
	return r.Start.Before(r.End)
}

// Overlaps reports whether the two half-open ranges intersect. Touching endpoints do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Patch is a partial update. Absent options leave the field unchanged.
type Patch struct {
	Title             mo.Option[string]
	Description       mo.Option[string]
	StartTime         mo.Option[time.Time]
	EndTime           mo.Option[time.Time]
	Location          mo.Option[string]
	IsRecurring       mo.Option[bool]
	RecurrencePattern mo.Option[string]
}

func (p Patch) Apply(f Fields) Fields {
	f.Title = p.Title.OrElse(f.Title)
	f.Description = p.Description.OrElse(f.Description)
	f.StartTime = p.StartTime.OrElse(f.StartTime)
	f.EndTime = p.EndTime.OrElse(f.EndTime)
	f.Location = p.Location.OrElse(f.Location)
	f.IsRecurring = p.IsRecurring.OrElse(f.IsRecurring)
	f.RecurrencePattern = p.RecurrencePattern.OrElse(f.RecurrencePattern)
	return f
}

func (p Patch) TouchesTimeRange() bool {
	return p.StartTime.IsPresent() || p.EndTime.IsPresent()
}
