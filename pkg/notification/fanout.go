package notification

import (
	"context"
	"fmt"

	"github.com/agenda-app/agenda/internal/event_bus"
	"github.com/agenda-app/agenda/internal/utils"
	log "github.com/sirupsen/logrus"
)

// Fanout turns committed event changes into inbox entries for the users
// holding a permission on the event.
type Fanout struct {
	repo  Repository
	clock utils.Clock
}

func NewFanout(repo Repository, clock utils.Clock) *Fanout {
	return &Fanout{repo: repo, clock: clock}
}

// NotifyParticipants delivers message to every current permission holder of the event.
func (f *Fanout) NotifyParticipants(ctx context.Context, eventId int, message string) error {
	participants, err := f.repo.ListParticipants(ctx, eventId)
	if err != nil {
		return fmt.Errorf("failed to look up participants of event %d: %w", eventId, err)
	}
	return f.Notify(ctx, eventId, message, participants)
}

// Notify delivers message to the given users.
func (f *Fanout) Notify(ctx context.Context, eventId int, message string, recipients []int) error {
	if len(recipients) == 0 {
		log.Debugf("no one to notify about event %d", eventId)
		return nil
	}
	count, err := f.repo.StoreNotifications(ctx, eventId, message, recipients, f.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to notify about event %d: %w", eventId, err)
	}
	log.Debugf("stored %d notifications about event %d", count, eventId)
	return nil
}

// Subscribe attaches the fan-out to every event change published on bus.
func (f *Fanout) Subscribe(bus *event_bus.EventBus) (unsubscribe func()) {
	types := []event_bus.EventType{
		event_bus.EventUpdated,
		event_bus.EventDeleted,
		event_bus.EventShared,
		event_bus.EventRolledBack,
	}
	unsubscribers := make([]func(), 0, len(types))
	for _, eventType := range types {
		unsubscribers = append(unsubscribers, event_bus.SubscribeTyped(bus, eventType, f.handle))
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}

func (f *Fanout) handle(e event_bus.EventT[event_bus.EventChanged]) error {
	change := e.Data
	if change.Recipients != nil {
		return f.Notify(e.Context(), change.EventId, change.Message, change.Recipients)
	}
	return f.NotifyParticipants(e.Context(), change.EventId, change.Message)
}
