package event

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Repository is the event store. Methods called on the handle passed to
// WithTransaction run inside that transaction.
type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	// LockCalendar serializes conflict-checked writes of one user until the transaction ends.
	LockCalendar(ctx context.Context, userId int) error

	StoreEvent(ctx context.Context, ownerId int, fields Fields) (Event, error)
	GetEvent(ctx context.Context, eventId int) (Event, error)
	// GetEventForUpdate reads the event and locks its row until the transaction ends.
	GetEventForUpdate(ctx context.Context, eventId int) (Event, error)
	UpdateEventFields(ctx context.Context, eventId int, fields Fields) (Event, error)
	DeleteEvent(ctx context.Context, eventId int) error
	ListAccessibleEvents(ctx context.Context, userId int, offset, limit int) ([]Event, error)
	// FindOverlappingEvents returns events the user owns or has been shared that overlap r, skipping excludeEventId.
	FindOverlappingEvents(ctx context.Context, userId int, r TimeRange, excludeEventId int) ([]Event, error)

	StoreVersion(ctx context.Context, version Version) (Version, error)
	GetVersion(ctx context.Context, eventId int, versionId int) (Version, error)
	// ListVersions returns the versions of an event, newest first.
	ListVersions(ctx context.Context, eventId int) ([]Version, error)

	GetPermission(ctx context.Context, eventId int, userId int) (Permission, error)
	UpsertPermission(ctx context.Context, eventId int, userId int, role Role) (Permission, error)
	UpdatePermission(ctx context.Context, eventId int, userId int, role Role) (Permission, error)
	DeletePermission(ctx context.Context, eventId int, userId int) error
	ListPermissions(ctx context.Context, eventId int) ([]Permission, error)

	UserExists(ctx context.Context, userId int) (bool, error)
}

// calendarLockSpace is the first key of the two-key advisory lock taken by LockCalendar.
const calendarLockSpace = 0x5ca1

const eventColumns = `id, owner_id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern, created_at`
const versionColumns = `id, event_id, title, description, start_time, end_time, location, is_recurring, recurrence_pattern, updated_by, updated_at`

const accessibleByUser = `(e.owner_id = $1 OR EXISTS (
	SELECT 1 FROM event_permissions p WHERE p.event_id = e.id AND p.user_id = $1))`

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// getQuerier returns the transaction when one is open, the pool otherwise.
func (r *RepositoryImpl) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(&RepositoryImpl{db: r.db, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) LockCalendar(ctx context.Context, userId int) error {
	if r.tx == nil {
		return errors.New("calendar lock requires a transaction")
	}
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, calendarLockSpace, userId)
	if err != nil {
		err = fmt.Errorf("could not lock calendar of user %d: %w", userId, err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, ownerId int, fields Fields) (Event, error) {
	query := `INSERT INTO events (
                    owner_id,
                    title,
                    description,
                    start_time,
                    end_time,
                    location,
                    is_recurring,
                    recurrence_pattern
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + eventColumns

	row := r.getQuerier().QueryRow(ctx, query,
		ownerId,
		fields.Title,
		fields.Description,
		fields.StartTime,
		fields.EndTime,
		fields.Location,
		fields.IsRecurring,
		fields.RecurrencePattern,
	)
	stored, err := scanEvent(row)
	if err != nil {
		err := fmt.Errorf("could not store event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, eventId int) (Event, error) {
	return r.getEvent(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, eventId)
}

func (r *RepositoryImpl) GetEventForUpdate(ctx context.Context, eventId int) (Event, error) {
	return r.getEvent(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventId)
}

func (r *RepositoryImpl) getEvent(ctx context.Context, query string, eventId int) (Event, error) {
	found, err := scanEvent(r.getQuerier().QueryRow(ctx, query, eventId))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not get event %d: %w", eventId, err)
		log.Error(err)
		return Event{}, err
	}
	return found, nil
}

func (r *RepositoryImpl) UpdateEventFields(ctx context.Context, eventId int, fields Fields) (Event, error) {
	query := `UPDATE events SET
				title = $2,
				description = $3,
				start_time = $4,
				end_time = $5,
				location = $6,
				is_recurring = $7,
				recurrence_pattern = $8
			  WHERE id = $1
			  RETURNING ` + eventColumns

	updated, err := scanEvent(r.getQuerier().QueryRow(ctx, query,
		eventId,
		fields.Title,
		fields.Description,
		fields.StartTime,
		fields.EndTime,
		fields.Location,
		fields.IsRecurring,
		fields.RecurrencePattern,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not update event %d: %w", eventId, err)
		log.Error(err)
		return Event{}, err
	}
	return updated, nil
}

// DeleteEvent removes the event. Versions and permissions go with it through ON DELETE CASCADE.
func (r *RepositoryImpl) DeleteEvent(ctx context.Context, eventId int) error {
	tag, err := r.getQuerier().Exec(ctx, `DELETE FROM events WHERE id = $1`, eventId)
	if err != nil {
		err := fmt.Errorf("could not delete event %d: %w", eventId, err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *RepositoryImpl) ListAccessibleEvents(ctx context.Context, userId int, offset, limit int) ([]Event, error) {
	query := `SELECT ` + prefixed("e", eventColumns) + `
			  FROM events e
			  WHERE ` + accessibleByUser + `
			  ORDER BY e.start_time, e.id
			  OFFSET $2 LIMIT $3`
	return r.queryEvents(ctx, query, userId, offset, limit)
}

func (r *RepositoryImpl) FindOverlappingEvents(ctx context.Context, userId int, tr TimeRange, excludeEventId int) ([]Event, error) {
	query := `SELECT ` + prefixed("e", eventColumns) + `
			  FROM events e
			  WHERE ` + accessibleByUser + `
			    AND e.start_time < $3
			    AND e.end_time > $2
			    AND e.id <> $4
			  ORDER BY e.start_time, e.id`
	return r.queryEvents(ctx, query, userId, tr.Start, tr.End, excludeEventId)
}

func (r *RepositoryImpl) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.getQuerier().Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query events: %w", err)
		log.Error(err)
		return nil, err
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		return scanEvent(row)
	})
	if err != nil {
		err := fmt.Errorf("could not scan events: %w", err)
		log.Error(err)
		return nil, err
	}
	return events, nil
}

func (r *RepositoryImpl) StoreVersion(ctx context.Context, version Version) (Version, error) {
	query := `INSERT INTO event_versions (
                    event_id,
                    title,
                    description,
                    start_time,
                    end_time,
                    location,
                    is_recurring,
                    recurrence_pattern,
                    updated_by,
                    updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING ` + versionColumns

	stored, err := scanVersion(r.getQuerier().QueryRow(ctx, query,
		version.EventId,
		version.Title,
		version.Description,
		version.StartTime,
		version.EndTime,
		version.Location,
		version.IsRecurring,
		version.RecurrencePattern,
		version.UpdatedBy,
		version.UpdatedAt,
	))
	if err != nil {
		err := fmt.Errorf("could not store version of event %d: %w", version.EventId, err)
		log.Error(err)
		return Version{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) GetVersion(ctx context.Context, eventId int, versionId int) (Version, error) {
	query := `SELECT ` + versionColumns + ` FROM event_versions WHERE id = $1 AND event_id = $2`
	found, err := scanVersion(r.getQuerier().QueryRow(ctx, query, versionId, eventId))
	if errors.Is(err, pgx.ErrNoRows) {
		return Version{}, ErrVersionNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not get version %d: %w", versionId, err)
		log.Error(err)
		return Version{}, err
	}
	return found, nil
}

func (r *RepositoryImpl) ListVersions(ctx context.Context, eventId int) ([]Version, error) {
	query := `SELECT ` + versionColumns + ` FROM event_versions WHERE event_id = $1 ORDER BY updated_at DESC, id DESC`
	rows, err := r.getQuerier().Query(ctx, query, eventId)
	if err != nil {
		err := fmt.Errorf("could not query versions: %w", err)
		log.Error(err)
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Version, error) {
		return scanVersion(row)
	})
	if err != nil {
		err := fmt.Errorf("could not scan versions: %w", err)
		log.Error(err)
		return nil, err
	}
	return versions, nil
}

func (r *RepositoryImpl) GetPermission(ctx context.Context, eventId int, userId int) (Permission, error) {
	query := `SELECT id, event_id, user_id, role FROM event_permissions WHERE event_id = $1 AND user_id = $2`
	found, err := scanPermission(r.getQuerier().QueryRow(ctx, query, eventId, userId))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrPermissionNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not get permission: %w", err)
		log.Error(err)
		return Permission{}, err
	}
	return found, nil
}

func (r *RepositoryImpl) UpsertPermission(ctx context.Context, eventId int, userId int, role Role) (Permission, error) {
	if !role.Grantable() {
		return Permission{}, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	query := `INSERT INTO event_permissions (event_id, user_id, role) VALUES ($1, $2, $3)
			  ON CONFLICT ON CONSTRAINT event_permissions_event_user_key DO UPDATE SET role = EXCLUDED.role
			  RETURNING id, event_id, user_id, role`
	stored, err := scanPermission(r.getQuerier().QueryRow(ctx, query, eventId, userId, role.String()))
	if err != nil {
		err := fmt.Errorf("could not store permission: %w", err)
		log.Error(err)
		return Permission{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) UpdatePermission(ctx context.Context, eventId int, userId int, role Role) (Permission, error) {
	if !role.Grantable() {
		return Permission{}, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}
	query := `UPDATE event_permissions SET role = $3 WHERE event_id = $1 AND user_id = $2
			  RETURNING id, event_id, user_id, role`
	updated, err := scanPermission(r.getQuerier().QueryRow(ctx, query, eventId, userId, role.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrPermissionNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not update permission: %w", err)
		log.Error(err)
		return Permission{}, err
	}
	return updated, nil
}

func (r *RepositoryImpl) DeletePermission(ctx context.Context, eventId int, userId int) error {
	tag, err := r.getQuerier().Exec(ctx, `DELETE FROM event_permissions WHERE event_id = $1 AND user_id = $2`, eventId, userId)
	if err != nil {
		err := fmt.Errorf("could not delete permission: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

func (r *RepositoryImpl) ListPermissions(ctx context.Context, eventId int) ([]Permission, error) {
	query := `SELECT id, event_id, user_id, role FROM event_permissions WHERE event_id = $1 ORDER BY user_id`
	rows, err := r.getQuerier().Query(ctx, query, eventId)
	if err != nil {
		err := fmt.Errorf("could not query permissions: %w", err)
		log.Error(err)
		return nil, err
	}
	permissions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		return scanPermission(row)
	})
	if err != nil {
		err := fmt.Errorf("could not scan permissions: %w", err)
		log.Error(err)
		return nil, err
	}
	return permissions, nil
}

func (r *RepositoryImpl) UserExists(ctx context.Context, userId int) (bool, error) {
	var exists bool
	err := r.getQuerier().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userId).Scan(&exists)
	if err != nil {
		err := fmt.Errorf("could not check user %d: %w", userId, err)
		log.Error(err)
		return false, err
	}
	return exists, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(
		&e.Id,
		&e.OwnerId,
		&e.Title,
		&e.Description,
		&e.StartTime,
		&e.EndTime,
		&e.Location,
		&e.IsRecurring,
		&e.RecurrencePattern,
		&e.CreatedAt,
	)
	return e, err
}

func scanVersion(row pgx.Row) (Version, error) {
	var v Version
	err := row.Scan(
		&v.Id,
		&v.EventId,
		&v.Title,
		&v.Description,
		&v.StartTime,
		&v.EndTime,
		&v.Location,
		&v.IsRecurring,
		&v.RecurrencePattern,
		&v.UpdatedBy,
		&v.UpdatedAt,
	)
	return v, err
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	var role string
	if err := row.Scan(&p.Id, &p.EventId, &p.UserId, &role); err != nil {
		return Permission{}, err
	}
	parsed, err := ParseGrantableRole(role)
	if err != nil {
		return Permission{}, err
	}
	p.Role = parsed
	return p, nil
}

// prefixed qualifies a column list with a table alias.
func prefixed(alias string, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, column := range parts {
		parts[i] = alias + "." + column
	}
	return strings.Join(parts, ", ")
}
