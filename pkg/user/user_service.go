package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var ErrUserDataInvalid = errors.New("invalid user data")

type Service interface {
	GetCurrentUser(ctx context.Context) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id int) (User, error)
	GetAllUsers(ctx context.Context) ([]User, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
	Authenticator
}

// Authenticator resolves request credentials to a known user.
type Authenticator interface {
	// Authenticate resolves the raw X-User-Id header value to a registered user.
	Authenticate(ctx context.Context, credentials string) (Identity, error)
}

type UserServiceImpl struct {
	repo Repo
}

func NewUserService(repo Repo) *UserServiceImpl {
	return &UserServiceImpl{repo: repo}
}

func (u *UserServiceImpl) GetCurrentUser(ctx context.Context) (User, error) {
	userId, err := CurrentId(ctx)
	if err != nil {
		return User{}, fmt.Errorf("failed to get current user: %w", err)
	}
	return u.GetUser(ctx, userId)
}

func (u *UserServiceImpl) CreateUser(ctx context.Context, user User) (User, error) {
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.TrimSpace(user.Email)
	if user.Username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrUserDataInvalid)
	}
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return User{}, fmt.Errorf("%w: email %q is not valid", ErrUserDataInvalid, user.Email)
	}
	switch user.Role {
	case "":
		user.Role = DefaultRole
	case RoleViewer, RoleAdmin:
	default:
		return User{}, fmt.Errorf("%w: unknown role %q", ErrUserDataInvalid, user.Role)
	}

	userId, err := u.repo.CreateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	log.Debugf("created user %d (%s)", userId, user.Username)
	return u.repo.GetUser(ctx, userId)
}

func (u *UserServiceImpl) GetUser(ctx context.Context, id int) (User, error) {
	return u.repo.GetUser(ctx, id)
}

func (u *UserServiceImpl) GetAllUsers(ctx context.Context) ([]User, error) {
	return u.repo.GetAllUsers(ctx)
}

func (u *UserServiceImpl) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	return u.repo.IsUsernameAvailable(ctx, username)
}

func (u *UserServiceImpl) Authenticate(ctx context.Context, credentials string) (Identity, error) {
	credentials = strings.TrimSpace(credentials)
	if credentials == "" {
		return Identity{}, fmt.Errorf("%w: missing user id", ErrUnauthenticated)
	}
	userId, err := strconv.Atoi(credentials)
	if err != nil || userId <= 0 {
		return Identity{}, fmt.Errorf("%w: malformed user id %q", ErrUnauthenticated, credentials)
	}
	found, err := u.repo.GetUser(ctx, userId)
	if errors.Is(err, ErrUserNotFound) {
		return Identity{}, fmt.Errorf("%w: unknown user %d", ErrUnauthenticated, userId)
	}
	if err != nil {
		return Identity{}, err
	}
	return found.Identity(), nil
}
