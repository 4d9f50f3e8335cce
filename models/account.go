package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Account is the admin identity record. PasswordHash and RefreshTokens are
// never serialized to clients.
type Account struct {
	ID                 bson.ObjectID    `bson:"_id,omitempty" json:"id"`
	Name               string           `bson:"name" json:"name"`
	Email              string           `bson:"email" json:"email"`
	PasswordHash       string           `bson:"passwordHash" json:"-"` // never expose
	Role               Role             `bson:"role" json:"role"`
	Permissions        PermissionMatrix `bson:"permissions" json:"permissions"`
	IsActive           bool             `bson:"isActive" json:"isActive"`
	FailedAttemptCount int              `bson:"failedAttemptCount" json:"failedAttemptCount"`
	LockedUntil        *time.Time       `bson:"lockedUntil,omitempty" json:"lockedUntil,omitempty"`
	LastLoginAt        *time.Time       `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
	RefreshTokens      []RefreshToken   `bson:"refreshTokens" json:"-"` // never expose
	CreatedAt          time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// HasPermission answers an authorization query against this account.
func (a *Account) HasPermission(resource Resource, action Action) bool {
	if a == nil {
		return false
	}
	return Allows(a.Role, a.Permissions, resource, action)
}

// IsLocked reports whether a lock is in force at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Sanitized returns a copy safe to hand to callers outside the store: no
// secret hash, no refresh token registry, and an independent permission map.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	out.RefreshTokens = nil
	out.Permissions = a.Permissions.Clone()
	return &out
}
