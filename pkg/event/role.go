package event

import (
	"encoding/json"
	"fmt"
)

// Role is a user's access level on an event. Higher values include the lower ones.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleOwner:
		return "owner"
	}
	return "none"
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Grantable reports whether the role can be stored on a permission row.
func (r Role) Grantable() bool {
	return r == RoleViewer || r == RoleEditor
}

// ParseGrantableRole parses a role that can be given to another user.
func ParseGrantableRole(s string) (Role, error) {
	switch s {
	case "viewer":
		return RoleViewer, nil
	case "editor":
		return RoleEditor, nil
	}
	return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseGrantableRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
