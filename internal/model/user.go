package model

import (
	"fmt"
	"time"
)

// User represents an authentication user.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         Role       `db:"role" json:"role"`
	Department   string     `db:"department" json:"department"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Role is a user's role. Permissions per role live in the auth package.
type Role string

// Roles.
const (
	RoleSuperadmin           Role = "superadmin"
	RoleAdmin                Role = "admin"
	RoleItemMaster           Role = "item-master"
	RoleStorageMasterManager Role = "storage-master-manager"
	RoleStorageMaster        Role = "storage-master"
	RoleManager              Role = "manager"
	RoleUser                 Role = "user"
)

// Roles lists every known role.
var Roles = []Role{
	RoleSuperadmin,
	RoleAdmin,
	RoleItemMaster,
	RoleStorageMasterManager,
	RoleStorageMaster,
	RoleManager,
	RoleUser,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID     int64
	Username   string
	Role       Role
	Department string
}

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
