package user

import "time"

type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

const DefaultRole = RoleViewer

type User struct {
	Id        int
	Username  string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Identity is the part of a user the scheduling core relies on.
type Identity struct {
	Id   int
	Role Role
}

func (u User) Identity() Identity {
	return Identity{Id: u.Id, Role: u.Role}
}
