package event

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type stubState struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users       map[int]bool
	events      map[int]Event
	versions    map[int]Version
	permissions map[int]Permission

	nextEventId      int
	nextVersionId    int
	nextPermissionId int

	failures map[string]error
	locks    []int
}

// RepositoryStub is an in-memory Repository. Transactions are serialized and
// roll back every change when the callback fails.
type RepositoryStub struct {
	*stubState
	inTx bool
}

func NewRepositoryStub() *RepositoryStub {
	r := &RepositoryStub{stubState: &stubState{}}
	r.Reset()
	return r
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	events := maps.Clone(r.events)
	versions := maps.Clone(r.versions)
	permissions := maps.Clone(r.permissions)
	nextEventId, nextVersionId, nextPermissionId := r.nextEventId, r.nextVersionId, r.nextPermissionId
	r.mu.Unlock()

	err := fn(&RepositoryStub{stubState: r.stubState, inTx: true})
	if err != nil {
		r.mu.Lock()
		r.events = events
		r.versions = versions
		r.permissions = permissions
		r.nextEventId, r.nextVersionId, r.nextPermissionId = nextEventId, nextVersionId, nextPermissionId
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) LockCalendar(ctx context.Context, userId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("LockCalendar"); err != nil {
		return err
	}
	r.locks = append(r.locks, userId)
	return nil
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, ownerId int, fields Fields) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("StoreEvent"); err != nil {
		return Event{}, err
	}
	r.nextEventId++
	stored := Event{Id: r.nextEventId, OwnerId: ownerId, Fields: fields, CreatedAt: time.Now()}
	r.events[stored.Id] = stored
	return stored, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, eventId int) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found, ok := r.events[eventId]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return found, nil
}

func (r *RepositoryStub) GetEventForUpdate(ctx context.Context, eventId int) (Event, error) {
	return r.GetEvent(ctx, eventId)
}

func (r *RepositoryStub) UpdateEventFields(ctx context.Context, eventId int, fields Fields) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("UpdateEventFields"); err != nil {
		return Event{}, err
	}
	found, ok := r.events[eventId]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	found.Fields = fields
	r.events[eventId] = found
	return found, nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, eventId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("DeleteEvent"); err != nil {
		return err
	}
	if _, ok := r.events[eventId]; !ok {
		return ErrEventNotFound
	}
	delete(r.events, eventId)
	maps.DeleteFunc(r.versions, func(_ int, v Version) bool { return v.EventId == eventId })
	maps.DeleteFunc(r.permissions, func(_ int, p Permission) bool { return p.EventId == eventId })
	return nil
}

func (r *RepositoryStub) ListAccessibleEvents(ctx context.Context, userId int, offset, limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	accessible := r.accessible(userId)
	if offset >= len(accessible) {
		return []Event{}, nil
	}
	accessible = accessible[offset:]
	if limit >= 0 && len(accessible) > limit {
		accessible = accessible[:limit]
	}
	return accessible, nil
}

func (r *RepositoryStub) FindOverlappingEvents(ctx context.Context, userId int, tr TimeRange, excludeEventId int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Event, 0)
	for _, e := range r.accessible(userId) {
		if e.Id != excludeEventId && e.Range().Overlaps(tr) {
			result = append(result, e)
		}
	}
	return result, nil
}

// accessible returns events owned by or shared with userId ordered by start time. Caller holds mu.
func (r *RepositoryStub) accessible(userId int) []Event {
	shared := make(map[int]bool)
	for _, p := range r.permissions {
		if p.UserId == userId {
			shared[p.EventId] = true
		}
	}
	result := make([]Event, 0)
	for _, e := range r.events {
		if e.OwnerId == userId || shared[e.Id] {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b Event) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
	return result
}

func (r *RepositoryStub) StoreVersion(ctx context.Context, version Version) (Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("StoreVersion"); err != nil {
		return Version{}, err
	}
	if _, ok := r.events[version.EventId]; !ok {
		return Version{}, ErrEventNotFound
	}
	r.nextVersionId++
	version.Id = r.nextVersionId
	r.versions[version.Id] = version
	return version, nil
}

func (r *RepositoryStub) GetVersion(ctx context.Context, eventId int, versionId int) (Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found, ok := r.versions[versionId]
	if !ok || found.EventId != eventId {
		return Version{}, ErrVersionNotFound
	}
	return found, nil
}

func (r *RepositoryStub) ListVersions(ctx context.Context, eventId int) ([]Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Version, 0)
	for _, v := range r.versions {
		if v.EventId == eventId {
			result = append(result, v)
		}
	}
	slices.SortFunc(result, func(a, b Version) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Id, a.Id)
	})
	return result, nil
}

func (r *RepositoryStub) GetPermission(ctx context.Context, eventId int, userId int) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.findPermission(eventId, userId); ok {
		return p, nil
	}
	return Permission{}, ErrPermissionNotFound
}

func (r *RepositoryStub) UpsertPermission(ctx context.Context, eventId int, userId int, role Role) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failure("UpsertPermission"); err != nil {
		return Permission{}, err
	}
	if !role.Grantable() {
		return Permission{}, ErrInvalidRole
	}
	if _, ok := r.events[eventId]; !ok {
		return Permission{}, ErrEventNotFound
	}
	if p, ok := r.findPermission(eventId, userId); ok {
		p.Role = role
		r.permissions[p.Id] = p
		return p, nil
	}
	r.nextPermissionId++
	p := Permission{Id: r.nextPermissionId, EventId: eventId, UserId: userId, Role: role}
	r.permissions[p.Id] = p
	return p, nil
}

func (r *RepositoryStub) UpdatePermission(ctx context.Context, eventId int, userId int, role Role) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !role.Grantable() {
		return Permission{}, ErrInvalidRole
	}
	p, ok := r.findPermission(eventId, userId)
	if !ok {
		return Permission{}, ErrPermissionNotFound
	}
	p.Role = role
	r.permissions[p.Id] = p
	return p, nil
}

func (r *RepositoryStub) DeletePermission(ctx context.Context, eventId int, userId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.findPermission(eventId, userId)
	if !ok {
		return ErrPermissionNotFound
	}
	delete(r.permissions, p.Id)
	return nil
}

func (r *RepositoryStub) ListPermissions(ctx context.Context, eventId int) ([]Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Permission, 0)
	for _, p := range r.permissions {
		if p.EventId == eventId {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b Permission) int { return cmp.Compare(a.UserId, b.UserId) })
	return result, nil
}

func (r *RepositoryStub) UserExists(ctx context.Context, userId int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userId], nil
}

func (r *RepositoryStub) findPermission(eventId int, userId int) (Permission, bool) {
	for _, p := range r.permissions {
		if p.EventId == eventId && p.UserId == userId {
			return p, true
		}
	}
	return Permission{}, false
}

func (r *RepositoryStub) failure(method string) error {
	return r.failures[method]
}

// AddUsers registers user ids known to UserExists.
func (r *RepositoryStub) AddUsers(ids ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.users[id] = true
	}
}

// SetFailure makes every later call of method return err. A nil err clears it.
func (r *RepositoryStub) SetFailure(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, method)
		return
	}
	r.failures[method] = err
}

// AllVersions returns every stored version regardless of event.
func (r *RepositoryStub) AllVersions() []Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Collect(maps.Values(r.versions))
}

// AllPermissions returns every stored permission regardless of event.
func (r *RepositoryStub) AllPermissions() []Permission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Collect(maps.Values(r.permissions))
}

// Locks returns the user ids passed to LockCalendar so far.
func (r *RepositoryStub) Locks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.locks)
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[int]bool)
	r.events = make(map[int]Event)
	r.versions = make(map[int]Version)
	r.permissions = make(map[int]Permission)
	r.nextEventId = 0
	r.nextVersionId = 0
	r.nextPermissionId = 0
	r.failures = make(map[string]error)
	r.locks = nil
}
