package notification

import (
	"context"
	"testing"
	"time"

	"github.com/agenda-app/agenda/internal/config"
	"github.com/agenda-app/agenda/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_Purge(t *testing.T) {
	// given
	ctx := context.Background()
	repo := NewRepositoryStub()
	_, err := repo.StoreNotifications(ctx, 1, "old", []int{2}, now.AddDate(0, 0, -40))
	require.NoError(t, err)
	_, err = repo.StoreNotifications(ctx, 1, "old but unseen", []int{2}, now.AddDate(0, 0, -40))
	require.NoError(t, err)
	_, err = repo.StoreNotifications(ctx, 1, "recent", []int{2}, now.AddDate(0, 0, -1))
	require.NoError(t, err)
	inbox, err := repo.ListForUser(ctx, 2, false)
	require.NoError(t, err)
	for _, n := range inbox {
		if n.Message != "old but unseen" {
			_, err := repo.MarkSeen(ctx, 2, n.Id)
			require.NoError(t, err)
		}
	}
	janitor := NewJanitor(repo, utils.NewMockClock(now), config.Notifications{RetentionDays: 30, PurgeSchedule: "@daily"})

	// when
	purged, err := janitor.Purge(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	remaining, err := repo.ListForUser(ctx, 2, false)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "recent", remaining[0].Message)
	assert.Equal(t, "old but unseen", remaining[1].Message)
}

func TestJanitor_Start(t *testing.T) {
	t.Run("should reject an invalid schedule", func(t *testing.T) {
		janitor := NewJanitor(NewRepositoryStub(), utils.NewMockClock(now), config.Notifications{RetentionDays: 30, PurgeSchedule: "every now and then"})

		assert.Error(t, janitor.Start())
	})

	t.Run("should do nothing when retention is disabled", func(t *testing.T) {
		janitor := NewJanitor(NewRepositoryStub(), utils.NewMockClock(now), config.Notifications{RetentionDays: 0, PurgeSchedule: "not parsed"})

		require.NoError(t, janitor.Start())
		janitor.Stop()
	})

	t.Run("should start and stop", func(t *testing.T) {
		janitor := NewJanitor(NewRepositoryStub(), utils.NewMockClock(now), config.Notifications{RetentionDays: 30, PurgeSchedule: "@every 1h"})

		require.NoError(t, janitor.Start())
		stopped := make(chan struct{})
		go func() {
			janitor.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("janitor did not stop")
		}
	})
}
