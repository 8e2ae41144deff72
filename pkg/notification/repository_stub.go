package notification

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type RepositoryStub struct {
	mu            sync.Mutex
	nextId        int
	notifications []Notification
	participants  map[int][]int
	failure       error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{participants: make(map[int][]int)}
}

// SetParticipants replaces the permission holders ListParticipants reports for eventId.
func (r *RepositoryStub) SetParticipants(eventId int, userIds ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[eventId] = userIds
}

// FailWith makes StoreNotifications return err. A nil err clears it.
func (r *RepositoryStub) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure = err
}

func (r *RepositoryStub) StoreNotifications(ctx context.Context, eventId int, message string, recipients []int, createdAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return 0, r.failure
	}
	for _, userId := range recipients {
		r.nextId++
		r.notifications = append(r.notifications, Notification{
			Id:        r.nextId,
			UserId:    userId,
			EventId:   eventId,
			Message:   message,
			CreatedAt: createdAt,
		})
	}
	return int64(len(recipients)), nil
}

func (r *RepositoryStub) ListParticipants(ctx context.Context, eventId int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.participants[eventId]), nil
}

func (r *RepositoryStub) ListForUser(ctx context.Context, userId int, unseenOnly bool) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Notification, 0)
	for _, n := range r.notifications {
		if n.UserId == userId && (!unseenOnly || !n.Seen) {
			result = append(result, n)
		}
	}
	slices.SortFunc(result, func(a, b Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Id, a.Id)
	})
	return result, nil
}

func (r *RepositoryStub) MarkSeen(ctx context.Context, userId int, notificationId int) (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.notifications {
		if n.Id == notificationId && n.UserId == userId {
			r.notifications[i].Seen = true
			return r.notifications[i], nil
		}
	}
	return Notification{}, ErrNotificationNotFound
}

func (r *RepositoryStub) PurgeSeen(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.notifications[:0]
	var purged int64
	for _, n := range r.notifications {
		if n.Seen && n.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, n)
	}
	r.notifications = kept
	return purged, nil
}
