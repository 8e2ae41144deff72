package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/agenda-app/agenda/pkg/event"
)

// Operation is something a user may attempt on an existing event.
type Operation int

const (
	ReadEvent Operation = iota
	UpdateEvent
	DeleteEvent
	ManagePermissions
	RollbackEvent
)

func (o Operation) String() string {
	switch o {
	case ReadEvent:
		return "read"
	case UpdateEvent:
		return "update"
	case DeleteEvent:
		return "delete"
	case ManagePermissions:
		return "manage permissions of"
	case RollbackEvent:
		return "roll back"
	}
	return "unknown operation on"
}

// Policy is the minimum role each operation requires.
var Policy = map[Operation]event.Role{
	ReadEvent:         event.RoleViewer,
	UpdateEvent:       event.RoleEditor,
	DeleteEvent:       event.RoleOwner,
	ManagePermissions: event.RoleOwner,
	RollbackEvent:     event.RoleOwner,
}

// Store is what the resolver reads. event.Repository and its transaction handles satisfy it.
type Store interface {
	GetEvent(ctx context.Context, eventId int) (event.Event, error)
	GetPermission(ctx context.Context, eventId int, userId int) (event.Permission, error)
}

// Resolve returns the role userId holds on e.
func Resolve(ctx context.Context, store Store, userId int, e event.Event) (event.Role, error) {
	if e.OwnerId == userId {
		return event.RoleOwner, nil
	}
	permission, err := store.GetPermission(ctx, e.Id, userId)
	if errors.Is(err, event.ErrPermissionNotFound) {
		return event.RoleNone, nil
	}
	if err != nil {
		return event.RoleNone, fmt.Errorf("failed to resolve role: %w", err)
	}
	return permission.Role, nil
}

// Check resolves the role of userId on an already loaded event and fails with
// event.ErrAccessDenied when it is below what op requires.
func Check(ctx context.Context, store Store, userId int, e event.Event, op Operation) (event.Role, error) {
	role, err := Resolve(ctx, store, userId, e)
	if err != nil {
		return event.RoleNone, err
	}
	required, ok := Policy[op]
	if !ok {
		return role, fmt.Errorf("no policy for operation %d", op)
	}
	if !role.AtLeast(required) {
		return role, fmt.Errorf("%w: user %d cannot %s event %d (has %s, needs %s)",
			event.ErrAccessDenied, userId, op, e.Id, role, required)
	}
	return role, nil
}

// Authorize loads the event and checks op against it. A missing event is
// reported as event.ErrEventNotFound whatever the caller's role would be.
func Authorize(ctx context.Context, store Store, userId int, eventId int, op Operation) (event.Event, event.Role, error) {
	e, err := store.GetEvent(ctx, eventId)
	if err != nil {
		return event.Event{}, event.RoleNone, err
	}
	role, err := Check(ctx, store, userId, e, op)
	if err != nil {
		return event.Event{}, role, err
	}
	return e, role, nil
}
