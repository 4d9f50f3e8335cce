package services

import (
	"context"
	"time"

	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/repository"
	"github.com/princinho/adminportal/utils"
)

// RefreshRegistry tracks the refresh tokens each account may still use.
// Tokens are stored hashed; an expired entry is treated as absent.
type RefreshRegistry struct {
	repo     repository.AccountRepository
	capacity int
	now      func() time.Time
}

// NewRefreshRegistry keeps at most capacity live tokens per account, evicting
// the oldest. capacity <= 0 means unbounded.
func NewRefreshRegistry(repo repository.AccountRepository, capacity int) *RefreshRegistry {
	return &RefreshRegistry{repo: repo, capacity: capacity, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (r *RefreshRegistry) WithClock(now func() time.Time) *RefreshRegistry {
	r.now = now
	return r
}

func (r *RefreshRegistry) Add(ctx context.Context, accountID, token string, ttl time.Duration) error {
	now := r.now().UTC()
	entry := models.RefreshToken{
		TokenHash: utils.HashToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := r.repo.AddRefreshToken(ctx, accountID, entry, r.capacity, now); err != nil {
		return apperror.Internal(err, "store refresh token")
	}
	return nil
}

func (r *RefreshRegistry) Contains(ctx context.Context, accountID, token string) (bool, error) {
	ok, err := r.repo.HasRefreshToken(ctx, accountID, utils.HashToken(token), r.now().UTC())
	if err != nil {
		return false, apperror.Internal(err, "look up refresh token")
	}
	return ok, nil
}

// Revoke removes token and reports whether it was present. Absent tokens
// are not an error.
func (r *RefreshRegistry) Revoke(ctx context.Context, accountID, token string) (bool, error) {
	removed, err := r.repo.RemoveRefreshToken(ctx, accountID, utils.HashToken(token))
	if err != nil {
		return false, apperror.Internal(err, "revoke refresh token")
	}
	return removed, nil
}

// Consume atomically removes token if it is present and unexpired. Exactly
// one of several concurrent callers with the same token succeeds.
func (r *RefreshRegistry) Consume(ctx context.Context, accountID, token string) (bool, error) {
	live, err := r.Contains(ctx, accountID, token)
	if err != nil || !live {
		return false, err
	}
	return r.Revoke(ctx, accountID, token)
}

func (r *RefreshRegistry) RevokeAll(ctx context.Context, accountID string) error {
	if err := r.repo.RemoveAllRefreshTokens(ctx, accountID); err != nil {
		return apperror.Internal(err, "revoke refresh tokens")
	}
	return nil
}

// Prune drops expired entries across all accounts.
func (r *RefreshRegistry) Prune(ctx context.Context) (int64, error) {
	n, err := r.repo.PruneExpiredRefreshTokens(ctx, r.now().UTC())
	if err != nil {
		return 0, apperror.Internal(err, "prune refresh tokens")
	}
	return n, nil
}
