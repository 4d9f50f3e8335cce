package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/princinho/adminportal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryAccountRepository keeps accounts in process. It backs tests and
// single-node development runs without Mongo.
type MemoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[bson.ObjectID]*models.Account
	byEmail map[string]bson.ObjectID
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[bson.ObjectID]*models.Account),
		byEmail: make(map[string]bson.ObjectID),
	}
}

func clone(acc *models.Account) *models.Account {
	out := *acc
	out.Permissions = acc.Permissions.Clone()
	out.RefreshTokens = append([]models.RefreshToken(nil), acc.RefreshTokens...)
	if acc.LockedUntil != nil {
		t := *acc.LockedUntil
		out.LockedUntil = &t
	}
	if acc.LastLoginAt != nil {
		t := *acc.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

func (r *MemoryAccountRepository) lookup(id string) (*models.Account, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	acc, ok := r.byID[oid]
	if !ok {
		return nil, ErrNotFound
	}
	return acc, nil
}

func (r *MemoryAccountRepository) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryAccountRepository) FindByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return clone(acc), nil
}

func (r *MemoryAccountRepository) List(_ context.Context) ([]models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Account, 0, len(r.byID))
	for _, acc := range r.byID {
		out = append(out, *clone(acc))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryAccountRepository) Create(_ context.Context, acc *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[acc.Email]; exists {
		return ErrDuplicateIdentity
	}
	if acc.ID.IsZero() {
		acc.ID = bson.NewObjectID()
	}
	r.byID[acc.ID] = clone(acc)
	r.byEmail[acc.Email] = acc.ID
	return nil
}

func (r *MemoryAccountRepository) Update(_ context.Context, id string, patch AccountPatch, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		acc.Name = *patch.Name
	}
	if patch.Role != nil {
		acc.Role = *patch.Role
	}
	if patch.Permissions != nil {
		acc.Permissions = patch.Permissions.Clone()
	}
	if patch.IsActive != nil {
		acc.IsActive = *patch.IsActive
	}
	acc.UpdatedAt = now
	return clone(acc), nil
}

func (r *MemoryAccountRepository) SetPasswordHash(_ context.Context, id, hash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	acc.UpdatedAt = now
	return nil
}

func (r *MemoryAccountRepository) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return err
	}
	acc.FailedAttemptCount = 0
	acc.LockedUntil = nil
	acc.LastLoginAt = &now
	return nil
}

func (r *MemoryAccountRepository) RecordLoginFailure(_ context.Context, id string, now time.Time, lockThreshold int, lockFor time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	if acc.LockedUntil != nil && !now.Before(*acc.LockedUntil) {
		// an expired lock starts a fresh count
		acc.FailedAttemptCount = 0
		acc.LockedUntil = nil
	}
	acc.FailedAttemptCount++
	if lockThreshold > 0 && acc.FailedAttemptCount >= lockThreshold {
		until := now.Add(lockFor)
		acc.LockedUntil = &until
	}
	return acc.FailedAttemptCount, nil
}

func (r *MemoryAccountRepository) AddRefreshToken(_ context.Context, id string, entry models.RefreshToken, capacity int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return err
	}
	acc.RefreshTokens = models.AppendRefreshToken(acc.RefreshTokens, entry, capacity, now)
	return nil
}

func (r *MemoryAccountRepository) HasRefreshToken(_ context.Context, id, tokenHash string, now time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, err := r.lookup(id)
	if err != nil {
		return false, nil
	}
	return models.ContainsRefreshToken(acc.RefreshTokens, tokenHash, now), nil
}

func (r *MemoryAccountRepository) RemoveRefreshToken(_ context.Context, id, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return false, nil
	}
	var removed bool
	acc.RefreshTokens, removed = models.RemoveRefreshToken(acc.RefreshTokens, tokenHash)
	return removed, nil
}

func (r *MemoryAccountRepository) RemoveAllRefreshTokens(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, err := r.lookup(id)
	if err != nil {
		return err
	}
	acc.RefreshTokens = nil
	return nil
}

func (r *MemoryAccountRepository) PruneExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var touched int64
	for _, acc := range r.byID {
		live := models.LiveRefreshTokens(acc.RefreshTokens, now)
		if len(live) != len(acc.RefreshTokens) {
			acc.RefreshTokens = live
			touched++
		}
	}
	return touched, nil
}
