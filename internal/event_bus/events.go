package event_bus

const (
	EventUpdated    EventType = "calendar.event.updated"
	EventDeleted    EventType = "calendar.event.deleted"
	EventShared     EventType = "calendar.event.shared"
	EventRolledBack EventType = "calendar.event.rolled_back"
)

// EventChanged is published after a committed mutation of a calendar event.
type EventChanged struct {
	EventId int
	ActorId int
	Message string
	// Recipients overrides the participant lookup. It is set when the
	// participants are gone by the time the event is published (deletion).
	Recipients []int
}
