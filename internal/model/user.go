package model

import (
	"strings"
	"time"
)

// Role is the users.role column. Staff roles (MANAGER, ADMIN) may read and
// transition every application; CLIENT only sees its own rows.
type Role string

const (
	RoleClient  Role = "CLIENT"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleClient, RoleManager, RoleAdmin:
		return r, true
	}
	return "", false
}

func (r Role) IsStaff() bool { return r == RoleManager || r == RoleAdmin }

// User mirrors the users table. Users are never hard-deleted.
type User struct {
	ID           uint64
	Email        string // unique, lowercase
	Phone        string // unique, E.164 without spaces
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// RefreshToken models an entry in the refresh_tokens table. Only the SHA-256
// digest of the raw token is persisted.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
