package notification

import (
	"context"

	"github.com/agenda-app/agenda/pkg/user"
)

// Service is the inbox of the current user.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, unseenOnly bool) ([]Notification, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForUser(ctx, userId, unseenOnly)
}

// MarkSeen flags one of the current user's notifications as seen. Notifications
// of other users are reported as not found.
func (s *Service) MarkSeen(ctx context.Context, notificationId int) (Notification, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return Notification{}, err
	}
	return s.repo.MarkSeen(ctx, userId, notificationId)
}
