//go:build integration

package notification

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/agenda-app/agenda/internal/test_utils"
	"github.com/agenda-app/agenda/pkg/event"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func setupTestRepository(t *testing.T) (context.Context, *RepositoryImpl, *event.RepositoryImpl, []int) {
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	userIds := test_utils.CreateUsers(t, db, "alice", "bob", "carol")
	return ctx, NewRepository(db), event.NewRepository(db), userIds
}

func TestRepositoryImpl_ListParticipants(t *testing.T) {
	// given
	ctx, repo, events, users := setupTestRepository(t)
	stored, err := events.StoreEvent(ctx, users[0], event.Fields{Title: "Review", StartTime: base, EndTime: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = events.UpsertPermission(ctx, stored.Id, users[2], event.RoleViewer)
	require.NoError(t, err)
	_, err = events.UpsertPermission(ctx, stored.Id, users[1], event.RoleEditor)
	require.NoError(t, err)

	// when
	participants, err := repo.ListParticipants(ctx, stored.Id)

	// then
	require.NoError(t, err)
	assert.Equal(t, []int{users[1], users[2]}, participants)
}

func TestRepositoryImpl_Inbox(t *testing.T) {
	// given
	ctx, repo, _, users := setupTestRepository(t)
	count, err := repo.StoreNotifications(ctx, 42, "first", []int{users[1], users[2]}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	_, err = repo.StoreNotifications(ctx, 42, "second", []int{users[1]}, base.Add(time.Minute))
	require.NoError(t, err)

	// when
	inbox, err := repo.ListForUser(ctx, users[1], false)

	// then
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "second", inbox[0].Message)
	assert.Equal(t, 42, inbox[1].EventId)
	assert.True(t, base.Equal(inbox[1].CreatedAt))
	assert.False(t, inbox[1].Seen)

	t.Run("should mark only own notifications as seen", func(t *testing.T) {
		_, err := repo.MarkSeen(ctx, users[2], inbox[0].Id)
		assert.ErrorIs(t, err, ErrNotificationNotFound)

		seen, err := repo.MarkSeen(ctx, users[1], inbox[0].Id)
		require.NoError(t, err)
		assert.True(t, seen.Seen)

		unseen, err := repo.ListForUser(ctx, users[1], true)
		require.NoError(t, err)
		require.Len(t, unseen, 1)
		assert.Equal(t, "first", unseen[0].Message)
	})

	t.Run("should purge old seen notifications", func(t *testing.T) {
		purged, err := repo.PurgeSeen(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)

		remaining, err := repo.ListForUser(ctx, users[1], false)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "first", remaining[0].Message)
	})
}
