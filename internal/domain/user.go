// Package domain contains entities with minimal logic, mostly meta-data.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type UserID string

// Role orders authorization levels; a higher value implies every
// permission of the lower ones.
type Role int

const (
	RoleGuest Role = iota
	RoleMember
	RoleModerator
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleMember:
		return "member"
	case RoleModerator:
		return "moderator"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

func ParseRole(s string) Role {
	switch s {
	case "member":
		return RoleMember
	case "moderator":
		return RoleModerator
	case "owner":
		return RoleOwner
	default:
		return RoleGuest
	}
}

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(displayName string, role Role) (*User, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &User{ID: UserID(uuid.NewString()), DisplayName: displayName, Role: role}, nil
}

func (u *User) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = name
	return nil
}
