package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// StoreNotifications writes one unseen notification per recipient and returns how many were written.
	StoreNotifications(ctx context.Context, eventId int, message string, recipients []int, createdAt time.Time) (int64, error)
	// ListParticipants returns the users holding a permission on the event.
	ListParticipants(ctx context.Context, eventId int) ([]int, error)
	// ListForUser returns the user's notifications, newest first.
	ListForUser(ctx context.Context, userId int, unseenOnly bool) ([]Notification, error)
	MarkSeen(ctx context.Context, userId int, notificationId int) (Notification, error)
	// PurgeSeen deletes seen notifications created before the given time.
	PurgeSeen(ctx context.Context, before time.Time) (int64, error)
}

const notificationColumns = `id, user_id, event_id, message, seen, created_at`

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) StoreNotifications(ctx context.Context, eventId int, message string, recipients []int, createdAt time.Time) (int64, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(recipients))
	for _, userId := range recipients {
		rows = append(rows, []any{userId, eventId, message, createdAt})
	}
	count, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		[]string{"user_id", "event_id", "message", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		err := fmt.Errorf("could not store notifications for event %d: %w", eventId, err)
		log.Error(err)
		return 0, err
	}
	return count, nil
}

func (r *RepositoryImpl) ListParticipants(ctx context.Context, eventId int) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM event_permissions WHERE event_id = $1 ORDER BY user_id`, eventId)
	if err != nil {
		err := fmt.Errorf("could not query participants of event %d: %w", eventId, err)
		log.Error(err)
		return nil, err
	}
	participants, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		err := fmt.Errorf("could not scan participants: %w", err)
		log.Error(err)
		return nil, err
	}
	return participants, nil
}

func (r *RepositoryImpl) ListForUser(ctx context.Context, userId int, unseenOnly bool) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
				WHERE user_id = $1 AND (NOT $2 OR NOT seen)
				ORDER BY created_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query, userId, unseenOnly)
	if err != nil {
		err := fmt.Errorf("could not query notifications: %w", err)
		log.Error(err)
		return nil, err
	}
	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		return scanNotification(row)
	})
	if err != nil {
		err := fmt.Errorf("could not scan notifications: %w", err)
		log.Error(err)
		return nil, err
	}
	return notifications, nil
}

func (r *RepositoryImpl) MarkSeen(ctx context.Context, userId int, notificationId int) (Notification, error) {
	query := `UPDATE notifications SET seen = true WHERE id = $1 AND user_id = $2 RETURNING ` + notificationColumns
	updated, err := scanNotification(r.db.QueryRow(ctx, query, notificationId, userId))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not mark notification %d as seen: %w", notificationId, err)
		log.Error(err)
		return Notification{}, err
	}
	return updated, nil
}

func (r *RepositoryImpl) PurgeSeen(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE seen AND created_at < $1`, before)
	if err != nil {
		err := fmt.Errorf("could not purge notifications: %w", err)
		log.Error(err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.Id, &n.UserId, &n.EventId, &n.Message, &n.Seen, &n.CreatedAt)
	return n, err
}
