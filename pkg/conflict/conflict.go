package conflict

import (
	"context"
	"fmt"

	"github.com/agenda-app/agenda/pkg/event"
	log "github.com/sirupsen/logrus"
)

// Store is the lookup the detector needs. event.Repository satisfies it.
type Store interface {
	FindOverlappingEvents(ctx context.Context, userId int, r event.TimeRange, excludeEventId int) ([]event.Event, error)
}

// FindConflict returns the first of accessible that overlaps candidate, ignoring excludeEventId.
func FindConflict(candidate event.TimeRange, excludeEventId int, accessible []event.Event) (event.Event, bool) {
	for _, e := range accessible {
		if e.Id == excludeEventId {
			continue
		}
		if candidate.Overlaps(e.Range()) {
			return e, true
		}
	}
	return event.Event{}, false
}

func HasConflict(candidate event.TimeRange, excludeEventId int, accessible []event.Event) bool {
	_, found := FindConflict(candidate, excludeEventId, accessible)
	return found
}

// Check fails with *event.ConflictError when candidate overlaps any event userId
// owns or has been shared, other than excludeEventId. Pass 0 to exclude nothing.
func Check(ctx context.Context, store Store, userId int, candidate event.TimeRange, excludeEventId int) error {
	overlapping, err := store.FindOverlappingEvents(ctx, userId, candidate, excludeEventId)
	if err != nil {
		return fmt.Errorf("failed to look up overlapping events: %w", err)
	}
	if found, ok := FindConflict(candidate, excludeEventId, overlapping); ok {
		log.Debugf("range %s - %s of user %d collides with event %d", candidate.Start, candidate.End, userId, found.Id)
		return &event.ConflictError{EventId: found.Id, EventTitle: found.Title, Range: found.Range()}
	}
	return nil
}

// SiblingConflictError reports two items of one batch that overlap each other.
type SiblingConflictError struct {
	First  int
	Second int
}

func (e *SiblingConflictError) Error() string {
	return fmt.Sprintf("%s between batch items %d and %d", event.ErrSchedulingConflict, e.First, e.Second)
}

func (e *SiblingConflictError) Unwrap() error {
	return event.ErrSchedulingConflict
}

// CheckSiblings fails when any two of the ranges overlap. Indexes in the error are zero based.
func CheckSiblings(ranges []event.TimeRange) error {
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].Overlaps(ranges[j]) {
				return &SiblingConflictError{First: i, Second: j}
			}
		}
	}
	return nil
}
