package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/metrics"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/repository"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

// LockPolicy decides when repeated failures lock an account. A zero
// Threshold leaves counters running but never locks.
type LockPolicy struct {
	Threshold int
	Duration  time.Duration
}

func (p LockPolicy) Enabled() bool {
	return p.Threshold > 0 && p.Duration > 0
}

// NewAccount is the input to CredentialStore.Create.
type NewAccount struct {
	Name        string
	Email       string
	Password    string
	Role        models.Role
	Permissions models.PermissionMatrix
}

// AccountUpdate is the input to CredentialStore.Update. Nil fields are kept.
type AccountUpdate struct {
	Name        *string
	Role        *models.Role
	Permissions models.PermissionMatrix
	IsActive    *bool
}

// CredentialStore owns admin accounts: identity, secret hash, role and
// permission matrix.
type CredentialStore struct {
	repo   repository.AccountRepository
	hasher utils.PasswordHasher
	lock   LockPolicy
	log    *zap.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialStore(repo repository.AccountRepository, hasher utils.PasswordHasher, lock LockPolicy, log *zap.Logger) *CredentialStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialStore{repo: repo, hasher: hasher, lock: lock, log: log, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *CredentialStore) WithClock(now func() time.Time) *CredentialStore {
	s.now = now
	return s
}

func (s *CredentialStore) Now() time.Time {
	return s.now().UTC()
}

// FindByEmail returns (nil, nil) when no account has this email.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	normalized := utils.NormalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	acc, err := s.repo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, apperror.Internal(err, "find account by email")
	}
	return acc, nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.New(apperror.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, apperror.Internal(err, "find account by id")
	}
	return acc, nil
}

func (s *CredentialStore) List(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperror.Internal(err, "list accounts")
	}
	out := make([]*models.Account, 0, len(accounts))
	for i := range accounts {
		out = append(out, accounts[i].Sanitized())
	}
	return out, nil
}

func validatePassword(password string) error {
	if password == "" {
		return apperror.Validation("password is required")
	}
	if len(password) > utils.MaxPasswordBytes {
		return apperror.Validation(fmt.Sprintf("password must be at most %d bytes", utils.MaxPasswordBytes))
	}
	return nil
}

// Create validates and stores a new account. The plaintext password is
// hashed and dropped; the returned account is sanitized.
func (s *CredentialStore) Create(ctx context.Context, in NewAccount) (*models.Account, error) {
	email := utils.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.Validation("a valid email is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = models.RoleAdmin
	}
	if !role.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown role %q", role))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperror.Internal(err, "hash password")
	}

	now := s.Now()
	acc := &models.Account{
		Name:          utils.NormalizeName(in.Name),
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		Permissions:   models.DefaultPermissionsFor(role).Merge(in.Permissions),
		IsActive:      true,
		RefreshTokens: []models.RefreshToken{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			return nil, apperror.ErrDuplicateIdentity
		}
		return nil, apperror.Internal(err, "create account")
	}

	s.log.Info("account.created",
		zap.String("account_id", acc.ID.Hex()),
		zap.String("email", acc.Email),
		zap.String("role", string(acc.Role)),
	)
	return acc.Sanitized(), nil
}

// ChangeSecret re-hashes the account password. Callers verify the old one.
func (s *CredentialStore) ChangeSecret(ctx context.Context, accountID, newSecret string) error {
	if err := validatePassword(newSecret); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return apperror.Internal(err, "hash password")
	}
	if err := s.repo.SetPasswordHash(ctx, accountID, hash, s.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.New(apperror.CodeNotFound, "account not found")
		}
		return apperror.Internal(err, "store password hash")
	}
	s.log.Info("account.password_changed", zap.String("account_id", accountID))
	return nil
}

func (s *CredentialStore) HasPermission(acc *models.Account, resource models.Resource, action models.Action) bool {
	return acc.HasPermission(resource, action)
}

// VerifySecret compares secret with the account's hash. A nil account is
// compared against a fixed dummy hash so unknown emails cost the same.
func (s *CredentialStore) VerifySecret(acc *models.Account, secret string) (bool, error) {
	start := time.Now()
	defer func() { metrics.PasswordHashDuration.Observe(time.Since(start).Seconds()) }()

	if acc == nil {
		if hash := s.dummy(); hash != "" {
			_, _ = s.hasher.Verify(secret, hash)
		}
		return false, nil
	}
	ok, err := s.hasher.Verify(secret, acc.PasswordHash)
	if err != nil {
		return false, apperror.Internal(err, "verify password")
	}
	return ok, nil
}

func (s *CredentialStore) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.log.Warn("dummy hash unavailable", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// IsLocked applies the lock policy to acc at the current time.
func (s *CredentialStore) IsLocked(acc *models.Account) bool {
	if !s.lock.Enabled() {
		return false
	}
	return acc.IsLocked(s.Now())
}

func (s *CredentialStore) RecordLoginSuccess(ctx context.Context, accountID string) error {
	if err := s.repo.RecordLoginSuccess(ctx, accountID, s.Now()); err != nil {
		return apperror.Internal(err, "record login success")
	}
	return nil
}

// RecordLoginFailure bumps the failure counter and returns it.
func (s *CredentialStore) RecordLoginFailure(ctx context.Context, accountID string) (int, error) {
	threshold := 0
	if s.lock.Enabled() {
		threshold = s.lock.Threshold
	}
	count, err := s.repo.RecordLoginFailure(ctx, accountID, s.Now(), threshold, s.lock.Duration)
	if err != nil {
		return 0, apperror.Internal(err, "record login failure")
	}
	if threshold > 0 && count >= threshold {
		s.log.Warn("account.locked",
			zap.String("account_id", accountID),
			zap.Int("failed_attempts", count),
			zap.Duration("lock_for", s.lock.Duration),
		)
	}
	return count, nil
}

// Update applies an admin edit. Role and permission changes, and any edit
// of a super-admin account, require a super-admin actor.
func (s *CredentialStore) Update(ctx context.Context, actor models.Principal, id string, in AccountUpdate) (*models.Account, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// ObjectIDFromHex accepts either case; use the canonical spelling from here on.
	id = current.ID.Hex()
	if current.Role == models.RoleSuperAdmin && !actor.IsSuperAdmin() {
		return nil, apperror.New(apperror.CodeForbidden, "only a super-admin can modify a super-admin")
	}
	if (in.Role != nil || in.Permissions != nil) && !actor.IsSuperAdmin() {
		return nil, apperror.New(apperror.CodeForbidden, "only a super-admin can change roles or permissions")
	}
	if in.IsActive != nil && !*in.IsActive && current.ID.Hex() == actor.AccountID {
		return nil, apperror.Validation("you cannot deactivate your own account")
	}

	var patch repository.AccountPatch
	if in.Name != nil {
		name := utils.NormalizeName(*in.Name)
		if name == "" {
			return nil, apperror.Validation("name must not be empty")
		}
		patch.Name = &name
	}
	role := current.Role
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperror.Validation(fmt.Sprintf("unknown role %q", *in.Role))
		}
		role = *in.Role
		patch.Role = &role
	}
	switch {
	case in.Permissions != nil:
		perms := models.DefaultPermissionsFor(role).Merge(in.Permissions)
		patch.Permissions = &perms
	case in.Role != nil && role != current.Role:
		perms := models.DefaultPermissionsFor(role)
		patch.Permissions = &perms
	}
	patch.IsActive = in.IsActive

	updated, err := s.repo.Update(ctx, id, patch, s.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.New(apperror.CodeNotFound, "account not found")
	}
	if err != nil {
		return nil, apperror.Internal(err, "update account")
	}
	if in.IsActive != nil && !*in.IsActive {
		if err := s.repo.RemoveAllRefreshTokens(ctx, id); err != nil {
			return nil, apperror.Internal(err, "revoke refresh tokens")
		}
	}

	s.log.Info("account.updated",
		zap.String("account_id", id),
		zap.String("actor_id", actor.AccountID),
		zap.Bool("role_changed", patch.Role != nil),
		zap.Bool("permissions_changed", patch.Permissions != nil),
	)
	return updated.Sanitized(), nil
}

// Deactivate soft-deletes an account and revokes every refresh token it holds.
func (s *CredentialStore) Deactivate(ctx context.Context, actor models.Principal, id string) (*models.Account, error) {
	inactive := false
	acc, err := s.Update(ctx, actor, id, AccountUpdate{IsActive: &inactive})
	if err != nil {
		return nil, err
	}
	s.log.Info("account.deactivated", zap.String("account_id", id), zap.String("actor_id", actor.AccountID))
	return acc, nil
}

// EnsureSuperAdmin creates the bootstrap super-admin when no account uses
// email. An existing account is never modified.
func (s *CredentialStore) EnsureSuperAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return false, errors.New("missing ADMIN_EMAIL or ADMIN_PASSWORD")
	}
	existing, err := s.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if existing != nil {
		s.log.Info("super-admin already exists", zap.String("email", email))
		return false, nil
	}
	_, err = s.Create(ctx, NewAccount{Name: name, Email: email, Password: password, Role: models.RoleSuperAdmin})
	if errors.Is(err, apperror.ErrDuplicateIdentity) {
		// created concurrently by another instance
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.log.Info("super-admin seeded", zap.String("email", email))
	return true, nil
}
