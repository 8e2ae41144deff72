package notification

import (
	"errors"
	"time"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is an inbox entry of one user about one event. It outlives the event.
type Notification struct {
	Id        int
	UserId    int
	EventId   int
	Message   string
	Seen      bool
	CreatedAt time.Time
}
