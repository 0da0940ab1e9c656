// Package domain contains entities without logic, just meta-data.
package domain

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

type UserID string

// Role is one of the two disjoint user classes. A connection is bound to
// exactly one role for its lifetime.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
)

// Opposite returns the other role class. Presence events for one class are
// delivered to the opposite class's role room.
func (r Role) Opposite() Role {
	if r == RoleUser {
		return RoleAgent
	}
	return RoleUser
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent
}

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func NewUser(id UserID, username string, role Role) (*User, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if len(username) > MaxUsernameLen {
		username = username[:MaxUsernameLen]
	}
	if !role.Valid() {
		return nil, ErrBadRole
	}
	return &User{ID: id, Username: username, Role: role}, nil
}
