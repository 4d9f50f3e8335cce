package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/ratelimit"
	"github.com/princinho/adminportal/repository"
	"github.com/princinho/adminportal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingRepo records how often the login path reads accounts.
type countingRepo struct {
	repository.AccountRepository
	lookups int64
}

func (r *countingRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	atomic.AddInt64(&r.lookups, 1)
	return r.AccountRepository.FindByEmail(ctx, email)
}

type env struct {
	clock    *fakeClock
	repo     *countingRepo
	store    *CredentialStore
	registry *RefreshRegistry
	tokens   *TokenService
	limiter  *ratelimit.MemoryLimiter
	auth     *AuthService
}

type envOption func(*envSettings)

type envSettings struct {
	rotation bool
	lock     LockPolicy
	capacity int
	limit    ratelimit.Config
}

func withoutRotation() envOption { return func(s *envSettings) { s.rotation = false } }

func withLock(p LockPolicy) envOption { return func(s *envSettings) { s.lock = p } }

func withLimit(cfg ratelimit.Config) envOption { return func(s *envSettings) { s.limit = cfg } }

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	settings := envSettings{
		rotation: true,
		capacity: 5,
		limit:    ratelimit.Config{MaxAttempts: 20, Window: 15 * time.Minute},
	}
	for _, o := range opts {
		o(&settings)
	}

	clock := &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	repo := &countingRepo{AccountRepository: repository.NewMemoryAccountRepository()}
	store := NewCredentialStore(repo, utils.NewBcryptHasher(bcrypt.MinCost), settings.lock, nil).WithClock(clock.Now)
	registry := NewRefreshRegistry(repo, settings.capacity).WithClock(clock.Now)
	tokens := NewTokenService(TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		Issuer:        "adminportal-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Rotation:      settings.rotation,
	}, store, registry, nil).WithClock(clock.Now)
	limiter := ratelimit.NewMemoryLimiter(settings.limit, 0).WithClock(clock.Now)
	auth := NewAuthService(store, tokens, registry, limiter, KeyByIP, nil)

	return &env{clock: clock, repo: repo, store: store, registry: registry, tokens: tokens, limiter: limiter, auth: auth}
}

func (e *env) createAccount(t *testing.T, email, password string, role models.Role, perms models.PermissionMatrix) *models.Account {
	t.Helper()
	acc, err := e.store.Create(context.Background(), NewAccount{
		Name:        "Test Admin",
		Email:       email,
		Password:    password,
		Role:        role,
		Permissions: perms,
	})
	require.NoError(t, err)
	return acc
}

func (e *env) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, _, err := e.auth.Login(context.Background(), LoginInput{Email: email, Password: password, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	return res
}

func TestCreateStoresOnlyHash(t *testing.T) {
	e := newEnv(t)
	acc := e.createAccount(t, "  Alice@Example.COM ", "Secret123!", models.RoleAdmin, nil)

	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Empty(t, acc.PasswordHash, "returned account is sanitized")
	assert.True(t, acc.IsActive)
	assert.Equal(t, models.DefaultPermissionsFor(models.RoleAdmin), acc.Permissions)

	stored, err := e.store.FindByEmail(context.Background(), "ALICE@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "Secret123!", stored.PasswordHash)

	ok, err := e.store.VerifySecret(stored, "Secret123!")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.store.VerifySecret(stored, "Secret123?")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateRejectsDuplicateAndInvalidInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	_, err := e.store.Create(ctx, NewAccount{Email: "A@X.com", Password: "another1"})
	assert.ErrorIs(t, err, apperror.ErrDuplicateIdentity)

	_, err = e.store.Create(ctx, NewAccount{Email: "not-an-email", Password: "Secret123!"})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	_, err = e.store.Create(ctx, NewAccount{Email: "b@x.com", Password: ""})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

	_, err = e.store.Create(ctx, NewAccount{Email: "b@x.com", Password: "Secret123!", Role: "owner"})
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
}

func TestFindByEmailAbsentIsNotAnError(t *testing.T) {
	e := newEnv(t)
	acc, err := e.store.FindByEmail(context.Background(), "nobody@x.com")
	assert.NoError(t, err)
	assert.Nil(t, acc)
}

func TestHasPermission(t *testing.T) {
	e := newEnv(t)
	admin := e.createAccount(t, "admin@x.com", "Secret123!", models.RoleAdmin,
		models.PermissionMatrix{models.ResourceCourses: {models.ActionDelete: false}})
	super := e.createAccount(t, "root@x.com", "Secret123!", models.RoleSuperAdmin,
		models.PermissionMatrix{models.ResourceAdmin: {models.ActionDelete: false}})

	assert.True(t, e.store.HasPermission(admin, models.ResourceCourses, models.ActionUpdate))
	assert.False(t, e.store.HasPermission(admin, models.ResourceCourses, models.ActionDelete))
	assert.False(t, e.store.HasPermission(admin, models.ResourceAdmin, models.ActionDelete))
	assert.False(t, e.store.HasPermission(admin, "reports", models.ActionRead))

	for _, res := range append(models.Resources, "reports") {
		for _, act := range models.Actions {
			assert.True(t, e.store.HasPermission(super, res, act), "%s:%s", res, act)
		}
	}
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	e := newEnv(t)
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	res := e.login(t, "A@x.com", "Secret123!")
	assert.Empty(t, res.Account.PasswordHash)
	assert.Nil(t, res.Account.RefreshTokens)
	require.NotNil(t, res.Account.LastLoginAt)

	claims, err := e.tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID.Hex(), claims.AccountID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, string(models.RoleAdmin), claims.Role)

	live, err := e.registry.Contains(context.Background(), acc.ID.Hex(), res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, live)

	_, err = e.tokens.VerifyAccess(res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "refresh token is not an access token")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	inactive := false
	_, err := e.store.Update(ctx, models.Principal{Role: models.RoleSuperAdmin}, e.createAccount(t, "off@x.com", "Secret123!", models.RoleAdmin, nil).ID.Hex(),
		AccountUpdate{IsActive: &inactive})
	require.NoError(t, err)

	cases := map[string]LoginInput{
		"wrong password": {Email: "a@x.com", Password: "nope", ClientIP: "1.1.1.1"},
		"unknown email":  {Email: "ghost@x.com", Password: "Secret123!", ClientIP: "1.1.1.1"},
		"inactive":       {Email: "off@x.com", Password: "Secret123!", ClientIP: "1.1.1.1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			res, _, err := e.auth.Login(ctx, in)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.Equal(t, apperror.ErrInvalidCredentials, err)
		})
	}

	stored, err := e.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedAttemptCount)
	assert.Nil(t, stored.LockedUntil, "lock enforcement is off by default")

	e.login(t, "a@x.com", "Secret123!")
	stored, err = e.store.FindByID(ctx, acc.ID.Hex())
	require.NoError(t, err)
	assert.Zero(t, stored.FailedAttemptCount)
}

func TestLoginMissingFields(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.auth.Login(context.Background(), LoginInput{Email: "a@x.com"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, _, err = e.auth.Login(context.Background(), LoginInput{Email: " \t ", Password: "Secret123!"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Zero(t, atomic.LoadInt64(&e.repo.lookups))
}

func TestLoginRateLimitSkipsStore(t *testing.T) {
	e := newEnv(t, withLimit(ratelimit.Config{MaxAttempts: 3, Window: 15 * time.Minute}))
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	for i := 0; i < 3; i++ {
		_, _, err := e.auth.Login(ctx, LoginInput{Email: "ghost@x.com", Password: "x", ClientIP: "9.9.9.9"})
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	}
	lookups := atomic.LoadInt64(&e.repo.lookups)

	_, decision, err := e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!", ClientIP: "9.9.9.9"})
	require.ErrorIs(t, err, apperror.ErrRateLimited)
	assert.Equal(t, apperror.CodeRateLimited, apperror.CodeOf(err))
	assert.False(t, decision.Allowed)
	assert.Equal(t, 15*time.Minute, decision.RetryAfter)
	assert.Equal(t, lookups, atomic.LoadInt64(&e.repo.lookups), "blocked attempt never reaches the store")

	_, _, err = e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!", ClientIP: "8.8.8.8"})
	assert.NoError(t, err, "other clients are unaffected")

	e.clock.Advance(15 * time.Minute)
	_, _, err = e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!", ClientIP: "9.9.9.9"})
	assert.NoError(t, err, "window elapsed")
}

func TestLoginSuccessResetsLimiter(t *testing.T) {
	e := newEnv(t, withLimit(ratelimit.Config{MaxAttempts: 2, Window: time.Hour}))
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	_, _, err := e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "bad", ClientIP: "1.2.3.4"})
	require.Error(t, err)
	_, decision, err := e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!", ClientIP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, 2, decision.Remaining)

	_, _, err = e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "bad", ClientIP: "1.2.3.4"})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials, "counter was reset by the success")
}

func TestLimiterKeyStrategies(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, "ip:1.2.3.4", e.auth.limiterKey("1.2.3.4", "A@x.com"))

	byEmail := NewAuthService(e.store, e.tokens, e.registry, e.limiter, KeyByIPEmail, nil)
	assert.Equal(t, "ip_email:1.2.3.4|a@x.com", byEmail.limiterKey("1.2.3.4", " A@x.com"))
}

func TestLockPolicyEnforced(t *testing.T) {
	e := newEnv(t, withLock(LockPolicy{Threshold: 2, Duration: 10 * time.Minute}))
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	for i := 0; i < 2; i++ {
		_, _, err := e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "bad", ClientIP: "1.1.1.1"})
		require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	}

	_, _, err := e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!", ClientIP: "1.1.1.1"})
	assert.Equal(t, apperror.ErrInvalidCredentials, err, "locked account rejects correct password")

	e.clock.Advance(10 * time.Minute)
	res := e.login(t, "a@x.com", "Secret123!")
	assert.Nil(t, res.Account.LockedUntil)
}

func TestLockExpiryStartsFreshCount(t *testing.T) {
	e := newEnv(t, withLock(LockPolicy{Threshold: 2, Duration: 10 * time.Minute}))
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	for i := 0; i < 2; i++ {
		_, _, _ = e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "bad", ClientIP: "1.1.1.1"})
	}
	e.clock.Advance(10 * time.Minute)

	_, _, err := e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "bad", ClientIP: "1.1.1.1"})
	require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	stored, err := e.store.FindByID(ctx, acc.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedAttemptCount)
	assert.False(t, e.store.IsLocked(stored), "one miss after expiry does not relock")

	e.login(t, "a@x.com", "Secret123!")
}

func TestLockPolicyDisabledNeverLocks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	for i := 0; i < 10; i++ {
		_, _, _ = e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "bad", ClientIP: "1.1.1.1"})
	}
	e.login(t, "a@x.com", "Secret123!")
}

func TestRefreshWithRotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	first := e.login(t, "a@x.com", "Secret123!")

	e.clock.Advance(time.Minute)
	pair, err := e.auth.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, first.Tokens.RefreshToken, pair.RefreshToken)

	_, err = e.auth.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "a rotated token is single use")

	_, err = e.auth.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshWithoutRotation(t *testing.T) {
	e := newEnv(t, withoutRotation())
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	res := e.login(t, "a@x.com", "Secret123!")

	for i := 0; i < 3; i++ {
		pair, err := e.auth.Refresh(ctx, res.Tokens.RefreshToken)
		require.NoError(t, err)
		assert.Empty(t, pair.RefreshToken)
		claims, err := e.tokens.VerifyAccess(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, acc.ID.Hex(), claims.AccountID)
	}

	principal := models.Principal{AccountID: acc.ID.Hex()}
	require.NoError(t, e.auth.Logout(ctx, principal, res.Tokens.RefreshToken))
	_, err := e.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "revoked token cannot rotate")
}

func TestRefreshRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	res := e.login(t, "a@x.com", "Secret123!")

	_, err := e.auth.Refresh(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
	_, err = e.auth.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
	_, err = e.auth.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "access token is not a refresh token")

	// a correctly signed token that was never registered
	forged, err := e.tokens.IssuePair(acc)
	require.NoError(t, err)
	_, err = e.auth.Refresh(ctx, forged.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	inactive := false
	_, err = e.store.Update(ctx, models.Principal{Role: models.RoleSuperAdmin}, acc.ID.Hex(), AccountUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, err = e.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestRefreshExpires(t *testing.T) {
	e := newEnv(t)
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	res := e.login(t, "a@x.com", "Secret123!")

	e.clock.Advance(24*time.Hour + time.Second)
	_, err := e.auth.Refresh(context.Background(), res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	_, err = e.tokens.VerifyAccess(res.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	e := newEnv(t)
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	res := e.login(t, "a@x.com", "Secret123!")

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.auth.Refresh(context.Background(), res.Tokens.RefreshToken); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
}

func TestLogoutIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	res := e.login(t, "a@x.com", "Secret123!")
	principal := models.NewPrincipal(&models.Account{ID: acc.ID, Email: acc.Email, Role: acc.Role})

	require.NoError(t, e.auth.Logout(ctx, principal, res.Tokens.RefreshToken))
	require.NoError(t, e.auth.Logout(ctx, principal, res.Tokens.RefreshToken))
	require.NoError(t, e.auth.Logout(ctx, principal, ""))

	_, err := e.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestLogoutCannotRevokeAnotherAccountsToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	other := e.createAccount(t, "b@x.com", "Secret123!", models.RoleAdmin, nil)
	victim := e.login(t, "a@x.com", "Secret123!")

	require.NoError(t, e.auth.Logout(ctx, models.Principal{AccountID: other.ID.Hex()}, victim.Tokens.RefreshToken))
	_, err := e.auth.Refresh(ctx, victim.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestLogoutAllAndChangePassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	principal := models.Principal{AccountID: acc.ID.Hex(), Role: acc.Role}

	s1 := e.login(t, "a@x.com", "Secret123!")
	s2 := e.login(t, "a@x.com", "Secret123!")
	require.NoError(t, e.auth.LogoutAll(ctx, principal))
	for _, s := range []*LoginResult{s1, s2} {
		_, err := e.auth.Refresh(ctx, s.Tokens.RefreshToken)
		assert.ErrorIs(t, err, apperror.ErrInvalidToken)
	}

	s3 := e.login(t, "a@x.com", "Secret123!")
	err := e.auth.ChangePassword(ctx, principal, "wrong", "NewSecret1!")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	err = e.auth.ChangePassword(ctx, principal, "Secret123!", "Secret123!")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	require.NoError(t, e.auth.ChangePassword(ctx, principal, "Secret123!", "NewSecret1!"))
	_, err = e.auth.Refresh(ctx, s3.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "password change revokes sessions")

	_, _, err = e.auth.Login(ctx, LoginInput{Email: "a@x.com", Password: "Secret123!", ClientIP: "1.1.1.1"})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
	e.login(t, "a@x.com", "NewSecret1!")
}

func TestRegistryCapacityEvictsOldest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)

	var sessions []*LoginResult
	for i := 0; i < 6; i++ {
		sessions = append(sessions, e.login(t, "a@x.com", "Secret123!"))
		e.clock.Advance(time.Second)
	}
	live, err := e.registry.Contains(ctx, acc.ID.Hex(), sessions[0].Tokens.RefreshToken)
	require.NoError(t, err)
	assert.False(t, live, "oldest session evicted")
	live, err = e.registry.Contains(ctx, acc.ID.Hex(), sessions[5].Tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, live)
}

func TestRegistryPrune(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acc := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	require.NoError(t, e.registry.Add(ctx, acc.ID.Hex(), "short", time.Minute))
	require.NoError(t, e.registry.Add(ctx, acc.ID.Hex(), "long", time.Hour))

	e.clock.Advance(2 * time.Minute)
	n, err := e.registry.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := e.registry.Contains(ctx, acc.ID.Hex(), "long")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateRoleRequiresSuperAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	target := e.createAccount(t, "mod@x.com", "Secret123!", models.RoleModerator, nil)
	root := e.createAccount(t, "root@x.com", "Secret123!", models.RoleSuperAdmin, nil)
	admin := models.Principal{AccountID: "someone", Role: models.RoleAdmin}
	super := models.Principal{AccountID: root.ID.Hex(), Role: models.RoleSuperAdmin}

	role := models.RoleAdmin
	_, err := e.store.Update(ctx, admin, target.ID.Hex(), AccountUpdate{Role: &role})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = e.store.Update(ctx, admin, target.ID.Hex(), AccountUpdate{
		Permissions: models.PermissionMatrix{models.ResourceAdmin: {models.ActionDelete: true}},
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	name := "Renamed  Moderator"
	updated, err := e.store.Update(ctx, admin, target.ID.Hex(), AccountUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Moderator", updated.Name)

	_, err = e.store.Update(ctx, admin, root.ID.Hex(), AccountUpdate{Name: &name})
	assert.ErrorIs(t, err, apperror.ErrForbidden, "admins cannot edit a super-admin")

	updated, err = e.store.Update(ctx, super, target.ID.Hex(), AccountUpdate{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	assert.Equal(t, models.DefaultPermissionsFor(models.RoleAdmin), updated.Permissions, "role change resets defaults")

	_, err = e.store.Update(ctx, super, "000000000000000000000000", AccountUpdate{Name: &name})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeactivateRevokesSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	target := e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	root := e.createAccount(t, "root@x.com", "Secret123!", models.RoleSuperAdmin, nil)
	super := models.Principal{AccountID: root.ID.Hex(), Role: models.RoleSuperAdmin}
	session := e.login(t, "a@x.com", "Secret123!")

	acc, err := e.store.Deactivate(ctx, super, target.ID.Hex())
	require.NoError(t, err)
	assert.False(t, acc.IsActive)

	live, err := e.registry.Contains(ctx, target.ID.Hex(), session.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.False(t, live)

	_, err = e.store.Deactivate(ctx, super, root.ID.Hex())
	assert.ErrorIs(t, err, apperror.ErrValidation, "cannot deactivate yourself")
	_, err = e.store.Deactivate(ctx, super, strings.ToUpper(root.ID.Hex()))
	assert.ErrorIs(t, err, apperror.ErrValidation, "id spelling does not matter")

	stored, err := e.store.FindByID(ctx, root.ID.Hex())
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestEnsureSuperAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.store.EnsureSuperAdmin(ctx, "", "x", "Root")
	assert.Error(t, err)

	created, err := e.store.EnsureSuperAdmin(ctx, "Root@X.com", "Secret123!", "Root")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.store.EnsureSuperAdmin(ctx, "root@x.com", "Different1!", "Root")
	require.NoError(t, err)
	assert.False(t, created)

	acc, err := e.store.FindByEmail(ctx, "root@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, acc.Role)
	ok, err := e.store.VerifySecret(acc, "Secret123!")
	require.NoError(t, err)
	assert.True(t, ok, "existing account is never overwritten")
}

func TestListIsSanitized(t *testing.T) {
	e := newEnv(t)
	e.createAccount(t, "a@x.com", "Secret123!", models.RoleAdmin, nil)
	e.login(t, "a@x.com", "Secret123!")

	accounts, err := e.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Empty(t, accounts[0].PasswordHash)
	assert.Nil(t, accounts[0].RefreshTokens)
}
