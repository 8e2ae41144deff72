package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agenda-app/agenda/internal/event_bus"
	"github.com/agenda-app/agenda/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestFanout_NotifyParticipants(t *testing.T) {
	// given
	repo := NewRepositoryStub()
	repo.SetParticipants(7, 2, 3)
	fanout := NewFanout(repo, utils.NewMockClock(now))

	// when
	err := fanout.NotifyParticipants(context.Background(), 7, "Event has been updated.")

	// then
	require.NoError(t, err)
	for _, userId := range []int{2, 3} {
		inbox, err := repo.ListForUser(context.Background(), userId, false)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, 7, inbox[0].EventId)
		assert.Equal(t, "Event has been updated.", inbox[0].Message)
		assert.False(t, inbox[0].Seen)
		assert.Equal(t, now, inbox[0].CreatedAt)
	}
}

func TestFanout_Subscribe(t *testing.T) {
	repo := NewRepositoryStub()
	repo.SetParticipants(7, 2)
	bus := event_bus.NewEventBus()
	unsubscribe := NewFanout(repo, utils.NewMockClock(now)).Subscribe(bus)

	t.Run("should look up participants when no recipients are given", func(t *testing.T) {
		err := bus.Publish(event_bus.NewEvent(context.Background(), event_bus.EventShared, event_bus.EventChanged{EventId: 7, ActorId: 1, Message: "shared"}))
		require.NoError(t, err)

		inbox, err := repo.ListForUser(context.Background(), 2, false)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, "shared", inbox[0].Message)
	})

	t.Run("should use the given recipients of a deleted event", func(t *testing.T) {
		err := bus.Publish(event_bus.NewEvent(context.Background(), event_bus.EventDeleted, event_bus.EventChanged{EventId: 9, ActorId: 1, Message: "gone", Recipients: []int{4}}))
		require.NoError(t, err)

		inbox, err := repo.ListForUser(context.Background(), 4, false)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, 9, inbox[0].EventId)
	})

	t.Run("should notify no one for an empty recipient list", func(t *testing.T) {
		err := bus.Publish(event_bus.NewEvent(context.Background(), event_bus.EventDeleted, event_bus.EventChanged{EventId: 7, Message: "gone", Recipients: []int{}}))
		require.NoError(t, err)

		inbox, err := repo.ListForUser(context.Background(), 2, false)
		require.NoError(t, err)
		assert.Len(t, inbox, 1, "participants of event 7 are not looked up")
	})

	t.Run("should report store failures to the publisher", func(t *testing.T) {
		boom := errors.New("db down")
		repo.FailWith(boom)
		defer repo.FailWith(nil)

		err := bus.Publish(event_bus.NewEvent(context.Background(), event_bus.EventUpdated, event_bus.EventChanged{EventId: 7, Message: "updated"}))

		assert.ErrorIs(t, err, boom)
	})

	t.Run("should stop after unsubscribe", func(t *testing.T) {
		unsubscribe()

		err := bus.Publish(event_bus.NewEvent(context.Background(), event_bus.EventRolledBack, event_bus.EventChanged{EventId: 7, Message: "rolled back"}))
		require.NoError(t, err)

		inbox, err := repo.ListForUser(context.Background(), 2, false)
		require.NoError(t, err)
		assert.Len(t, inbox, 1)
	})
}
