package user

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const UserKey contextKey = "user"

// ErrUnauthenticated is returned when a request carries no valid user identity.
var ErrUnauthenticated = errors.New("user not authenticated")

// CurrentId retrieves the current user's ID from the context. Returns ErrUnauthenticated if ID not present in context.
func CurrentId(ctx context.Context) (int, error) {
	identity, ok := ctx.Value(UserKey).(Identity)
	if !ok {
		log.Trace("user not found in context")
		return 0, ErrUnauthenticated
	}
	return identity.Id, nil
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, UserKey, identity)
}

func WithUser(ctx context.Context, user User) context.Context {
	return WithIdentity(ctx, user.Identity())
}
