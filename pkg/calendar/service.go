package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agenda-app/agenda/internal/config"
	"github.com/agenda-app/agenda/internal/event_bus"
	"github.com/agenda-app/agenda/internal/utils"
	"github.com/agenda-app/agenda/pkg/access"
	"github.com/agenda-app/agenda/pkg/conflict"
	"github.com/agenda-app/agenda/pkg/event"
	"github.com/agenda-app/agenda/pkg/ics"
	"github.com/agenda-app/agenda/pkg/recurrence"
	"github.com/agenda-app/agenda/pkg/user"
	"github.com/agenda-app/agenda/pkg/versioning"
	log "github.com/sirupsen/logrus"
)

const (
	MessageUpdated    = "Event has been updated."
	MessageDeleted    = "An event you were part of has been deleted."
	MessageShared     = "You have been granted access to an event."
	messageRolledBack = "Event was rolled back to version %d."
)

var ErrInvalidPage = errors.New("invalid page")

// Grant is one entry of a share request.
type Grant struct {
	UserId int
	Role   event.Role
}

type Service struct {
	repo   event.Repository
	engine *versioning.Engine
	bus    *event_bus.EventBus
	cfg    config.Scheduling
	clock  utils.Clock
}

func NewService(repo event.Repository, engine *versioning.Engine, bus *event_bus.EventBus, cfg config.Scheduling, clock utils.Clock) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		bus:    bus,
		cfg:    cfg,
		clock:  clock,
	}
}

// Create stores a new event owned by the current user. It fails with
// event.ErrSchedulingConflict when the range overlaps an event the user owns
// or has been shared.
func (s *Service) Create(ctx context.Context, fields event.Fields) (event.Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return event.Event{}, err
	}
	fields = fields.UTC()
	if err := validate(fields); err != nil {
		return event.Event{}, err
	}

	var created event.Event
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		if err := tx.LockCalendar(ctx, userId); err != nil {
			return err
		}
		if err := conflict.Check(ctx, tx, userId, fields.Range(), 0); err != nil {
			return err
		}
		created, err = tx.StoreEvent(ctx, userId, fields)
		return err
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	log.Debugf("user %d created event %d", userId, created.Id)
	return created, nil
}

// CreateBatch stores all items or none. Every item is checked against the
// events that existed before the batch. Items are checked against each other
// only when scheduling.batchsiblingcheck is enabled.
func (s *Service) CreateBatch(ctx context.Context, items []event.Fields) ([]event.Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, event.ErrEmptyBatch
	}
	if s.cfg.MaxBatchSize > 0 && len(items) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d items, at most %d allowed", event.ErrBatchTooLarge, len(items), s.cfg.MaxBatchSize)
	}

	normalized := make([]event.Fields, len(items))
	ranges := make([]event.TimeRange, len(items))
	for i, item := range items {
		normalized[i] = item.UTC()
		if err := validate(normalized[i]); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ranges[i] = normalized[i].Range()
	}
	if s.cfg.BatchSiblingCheck {
		if err := conflict.CheckSiblings(ranges); err != nil {
			return nil, err
		}
	}

	created := make([]event.Event, 0, len(items))
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		if err := tx.LockCalendar(ctx, userId); err != nil {
			return err
		}
		for i, r := range ranges {
			if err := conflict.Check(ctx, tx, userId, r, 0); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		for _, fields := range normalized {
			stored, err := tx.StoreEvent(ctx, userId, fields)
			if err != nil {
				return err
			}
			created = append(created, stored)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	log.Debugf("user %d created %d events in a batch", userId, len(created))
	return created, nil
}

// List returns the events the current user owns or has been shared, ordered by
// start time. A zero limit selects the configured default.
func (s *Service) List(ctx context.Context, skip int, limit int) ([]event.Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", ErrInvalidPage)
	}
	if limit == 0 {
		limit = s.cfg.ListDefaultLimit
	}
	if limit < 0 || (s.cfg.ListMaxLimit > 0 && limit > s.cfg.ListMaxLimit) {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPage, s.cfg.ListMaxLimit)
	}
	return s.repo.ListAccessibleEvents(ctx, userId, skip, limit)
}

func (s *Service) Get(ctx context.Context, eventId int) (event.Event, event.Role, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return event.Event{}, event.RoleNone, err
	}
	return access.Authorize(ctx, s.repo, userId, eventId, access.ReadEvent)
}

// Update applies patch to the event after snapshotting its current state. The
// conflict check only runs when the patch moves the event in time.
func (s *Service) Update(ctx context.Context, eventId int, patch event.Patch) (event.Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return event.Event{}, err
	}

	var updated event.Event
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		current, err := lockAuthorized(ctx, tx, userId, eventId, access.UpdateEvent)
		if err != nil {
			return err
		}
		fields := patch.Apply(current.Fields).UTC()
		if err := validate(fields); err != nil {
			return err
		}
		if patch.TouchesTimeRange() {
			if err := tx.LockCalendar(ctx, userId); err != nil {
				return err
			}
			if err := conflict.Check(ctx, tx, userId, fields.Range(), eventId); err != nil {
				return err
			}
		}
		if _, err := s.engine.Snapshot(ctx, tx, current, userId); err != nil {
			return err
		}
		updated, err = tx.UpdateEventFields(ctx, eventId, fields)
		return err
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to update event %d: %w", eventId, err)
	}

	s.publish(ctx, event_bus.EventUpdated, event_bus.EventChanged{EventId: eventId, ActorId: userId, Message: MessageUpdated})
	return updated, nil
}

// Delete removes the event with its versions and permissions. Former permission
// holders are notified.
func (s *Service) Delete(ctx context.Context, eventId int) error {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return err
	}

	recipients := make([]int, 0)
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		if _, err := lockAuthorized(ctx, tx, userId, eventId, access.DeleteEvent); err != nil {
			return err
		}
		permissions, err := tx.ListPermissions(ctx, eventId)
		if err != nil {
			return err
		}
		for _, p := range permissions {
			recipients = append(recipients, p.UserId)
		}
		return tx.DeleteEvent(ctx, eventId)
	})
	if err != nil {
		return fmt.Errorf("failed to delete event %d: %w", eventId, err)
	}
	log.Debugf("user %d deleted event %d", userId, eventId)

	s.publish(ctx, event_bus.EventDeleted, event_bus.EventChanged{EventId: eventId, ActorId: userId, Message: MessageDeleted, Recipients: recipients})
	return nil
}

// Share grants roles on the event. Granting to a user that already holds a role
// replaces that role. Grants to the owner are ignored.
func (s *Service) Share(ctx context.Context, eventId int, grants []Grant) ([]event.Permission, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}

	var permissions []event.Permission
	granted := 0
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		e, err := lockAuthorized(ctx, tx, userId, eventId, access.ManagePermissions)
		if err != nil {
			return err
		}
		for _, g := range grants {
			if g.UserId == e.OwnerId {
				continue
			}
			if !g.Role.Grantable() {
				return fmt.Errorf("%w: %s", event.ErrInvalidRole, g.Role)
			}
			exists, err := tx.UserExists(ctx, g.UserId)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %d", event.ErrUserNotFound, g.UserId)
			}
			if _, err := tx.UpsertPermission(ctx, eventId, g.UserId, g.Role); err != nil {
				return err
			}
			granted++
		}
		permissions, err = tx.ListPermissions(ctx, eventId)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to share event %d: %w", eventId, err)
	}

	if granted > 0 {
		s.publish(ctx, event_bus.EventShared, event_bus.EventChanged{EventId: eventId, ActorId: userId, Message: MessageShared})
	}
	return permissions, nil
}

func (s *Service) ListPermissions(ctx context.Context, eventId int) ([]event.Permission, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	if _, _, err := access.Authorize(ctx, s.repo, userId, eventId, access.ManagePermissions); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx, eventId)
}

// UpdatePermission changes the role of an existing grant. It does not create one.
func (s *Service) UpdatePermission(ctx context.Context, eventId int, targetUserId int, role event.Role) (event.Permission, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return event.Permission{}, err
	}
	if !role.Grantable() {
		return event.Permission{}, fmt.Errorf("%w: %s", event.ErrInvalidRole, role)
	}

	var updated event.Permission
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		if _, err := lockAuthorized(ctx, tx, userId, eventId, access.ManagePermissions); err != nil {
			return err
		}
		updated, err = tx.UpdatePermission(ctx, eventId, targetUserId, role)
		return err
	})
	if err != nil {
		return event.Permission{}, fmt.Errorf("failed to update permission: %w", err)
	}
	return updated, nil
}

func (s *Service) RevokePermission(ctx context.Context, eventId int, targetUserId int) error {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return err
	}
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		if _, err := lockAuthorized(ctx, tx, userId, eventId, access.ManagePermissions); err != nil {
			return err
		}
		return tx.DeletePermission(ctx, eventId, targetUserId)
	})
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	return nil
}

// Changelog returns the versions of the event, newest first.
func (s *Service) Changelog(ctx context.Context, eventId int) ([]event.Version, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	if _, _, err := access.Authorize(ctx, s.repo, userId, eventId, access.ReadEvent); err != nil {
		return nil, err
	}
	return s.engine.Changelog(ctx, s.repo, eventId)
}

func (s *Service) Diff(ctx context.Context, eventId int, firstVersionId int, secondVersionId int) (versioning.Diff, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	if _, _, err := access.Authorize(ctx, s.repo, userId, eventId, access.ReadEvent); err != nil {
		return nil, err
	}
	return s.engine.DiffVersions(ctx, s.repo, eventId, firstVersionId, secondVersionId)
}

func (s *Service) GetVersion(ctx context.Context, eventId int, versionId int) (event.Version, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return event.Version{}, err
	}
	if _, _, err := access.Authorize(ctx, s.repo, userId, eventId, access.ReadEvent); err != nil {
		return event.Version{}, err
	}
	return s.repo.GetVersion(ctx, eventId, versionId)
}

// Rollback restores the fields of a previous version. The live state is
// snapshotted first. The restored range is not checked for conflicts.
func (s *Service) Rollback(ctx context.Context, eventId int, versionId int) (event.Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return event.Event{}, err
	}

	var restored event.Event
	err = s.repo.WithTransaction(ctx, func(tx event.Repository) error {
		current, err := lockAuthorized(ctx, tx, userId, eventId, access.RollbackEvent)
		if err != nil {
			return err
		}
		target, err := tx.GetVersion(ctx, eventId, versionId)
		if err != nil {
			return err
		}
		restored, _, err = s.engine.Rollback(ctx, tx, current, target, userId)
		return err
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("failed to roll back event %d: %w", eventId, err)
	}
	log.Debugf("user %d rolled event %d back to version %d", userId, eventId, versionId)

	s.publish(ctx, event_bus.EventRolledBack, event_bus.EventChanged{
		EventId: eventId,
		ActorId: userId,
		Message: fmt.Sprintf(messageRolledBack, versionId),
	})
	return restored, nil
}

// Occurrences expands the event into the ranges it covers inside window.
func (s *Service) Occurrences(ctx context.Context, eventId int, window event.TimeRange) ([]event.TimeRange, bool, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, false, err
	}
	e, _, err := access.Authorize(ctx, s.repo, userId, eventId, access.ReadEvent)
	if err != nil {
		return nil, false, err
	}
	return recurrence.Occurrences(e.Fields, window, s.cfg.MaxOccurrences)
}

// ICS renders the event as an iCalendar document. The revision count becomes its SEQUENCE.
func (s *Service) ICS(ctx context.Context, eventId int) (string, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return "", err
	}
	e, _, err := access.Authorize(ctx, s.repo, userId, eventId, access.ReadEvent)
	if err != nil {
		return "", err
	}
	versions, err := s.repo.ListVersions(ctx, eventId)
	if err != nil {
		return "", fmt.Errorf("failed to count revisions of event %d: %w", eventId, err)
	}
	return ics.Export(e, len(versions), s.clock.Now())
}

// lockAuthorized loads the event row for update and checks the role of userId.
// A missing event is reported before missing rights.
func lockAuthorized(ctx context.Context, tx event.Repository, userId int, eventId int, op access.Operation) (event.Event, error) {
	e, err := tx.GetEventForUpdate(ctx, eventId)
	if err != nil {
		return event.Event{}, err
	}
	if _, err := access.Check(ctx, tx, userId, e, op); err != nil {
		return event.Event{}, err
	}
	return e, nil
}

func validate(f event.Fields) error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("%w: title is required", event.ErrInvalidEvent)
	}
	if !f.Range().Valid() {
		return event.ErrInvalidRange
	}
	return recurrence.Validate(f.IsRecurring, f.RecurrencePattern)
}

// publish hands a committed change to the notification fan-out. Failures are
// logged and never undo the change.
func (s *Service) publish(ctx context.Context, eventType event_bus.EventType, change event_bus.EventChanged) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(event_bus.NewEvent(context.WithoutCancel(ctx), eventType, change))
	if err != nil {
		log.Warnf("notification for event %d not delivered: %v", change.EventId, err)
	}
}
