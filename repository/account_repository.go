package repository

import (
	"context"
	"errors"
	"time"

	"github.com/princinho/adminportal/models"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateIdentity = errors.New("email already exists")
)

// AccountPatch carries optional field updates. Nil fields are left as is.
type AccountPatch struct {
	Name        *string
	Role        *models.Role
	Permissions *models.PermissionMatrix
	IsActive    *bool
}

// AccountRepository persists Account documents. Every method touches a
// single account and is atomic for that account.
type AccountRepository interface {
	// FindByEmail returns (nil, nil) when no account has this email. The
	// email must already be normalized.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	// FindByID returns ErrNotFound for unknown or malformed ids.
	FindByID(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	// Create assigns an ID if unset. Returns ErrDuplicateIdentity on email collision.
	Create(ctx context.Context, acc *models.Account) error
	Update(ctx context.Context, id string, patch AccountPatch, now time.Time) (*models.Account, error)
	SetPasswordHash(ctx context.Context, id, hash string, now time.Time) error

	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	// RecordLoginFailure increments the failure counter and, once it reaches
	// lockThreshold (> 0), stamps lockedUntil. A lock that has expired by now
	// is cleared and the count restarts at 1. It returns the new count.
	RecordLoginFailure(ctx context.Context, id string, now time.Time, lockThreshold int, lockFor time.Duration) (int, error)

	// AddRefreshToken appends entry, dropping expired entries and evicting
	// the oldest beyond capacity (<= 0 means unbounded).
	AddRefreshToken(ctx context.Context, id string, entry models.RefreshToken, capacity int, now time.Time) error
	// HasRefreshToken is false for unknown accounts and expired entries.
	HasRefreshToken(ctx context.Context, id, tokenHash string, now time.Time) (bool, error)
	// RemoveRefreshToken reports whether an entry was actually removed.
	// Unknown accounts yield false.
	RemoveRefreshToken(ctx context.Context, id, tokenHash string) (bool, error)
	RemoveAllRefreshTokens(ctx context.Context, id string) error
	// PruneExpiredRefreshTokens drops expired entries across all accounts and
	// returns how many accounts changed.
	PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
