package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/metrics"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/ratelimit"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

// Login limiter key strategies.
const (
	KeyByIP      = "ip"
	KeyByIPEmail = "ip_email"
)

type LoginInput struct {
	Email    string
	Password string
	ClientIP string
}

type LoginResult struct {
	Tokens  TokenPair
	Account *models.Account
}

// RateLimitedError is returned when the login limiter blocks an attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return apperror.ErrRateLimited.Message
}

func (e *RateLimitedError) Unwrap() error {
	return apperror.ErrRateLimited
}

// AuthService runs the login, refresh, logout and password change flows.
type AuthService struct {
	store    *CredentialStore
	tokens   *TokenService
	registry *RefreshRegistry
	limiter  ratelimit.Limiter
	keyBy    string
	log      *zap.Logger
}

func NewAuthService(store *CredentialStore, tokens *TokenService, registry *RefreshRegistry, limiter ratelimit.Limiter, keyBy string, log *zap.Logger) *AuthService {
	if keyBy != KeyByIPEmail {
		keyBy = KeyByIP
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		store:    store,
		tokens:   tokens,
		registry: registry,
		limiter:  limiter,
		keyBy:    keyBy,
		log:      log,
	}
}

func (s *AuthService) limiterKey(ip, email string) string {
	if s.keyBy == KeyByIPEmail {
		return "ip_email:" + ip + "|" + utils.NormalizeEmail(email)
	}
	return "ip:" + ip
}

func (s *AuthService) loginFailed(email, ip, reason string, fields ...zap.Field) error {
	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeInvalid).Inc()
	s.log.Warn("login.failure", append([]zap.Field{
		zap.String("email", utils.NormalizeEmail(email)),
		zap.String("client_ip", ip),
		zap.String("reason", reason),
	}, fields...)...)
	return apperror.ErrInvalidCredentials
}

// Login authenticates email/password. The returned decision is the limiter
// state after this attempt and is valid whenever err is nil or a rate-limit error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, ratelimit.Decision, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" || in.Password == "" {
		return nil, ratelimit.Decision{}, apperror.Validation("email and password are required")
	}

	key := s.limiterKey(in.ClientIP, in.Email)
	decision, err := s.limiter.Allow(ctx, key)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, decision, apperror.Internal(err, "login rate limiter unavailable")
	}
	if !decision.Allowed {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		s.log.Warn("login.rate_limited",
			zap.String("client_ip", in.ClientIP),
			zap.Duration("retry_after", decision.RetryAfter),
		)
		return nil, decision, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	acc, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, decision, err
	}

	ok, err := s.store.VerifySecret(acc, in.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, decision, err
	}
	if acc == nil {
		return nil, decision, s.loginFailed(in.Email, in.ClientIP, "unknown_email")
	}

	accountID := acc.ID.Hex()
	if s.store.IsLocked(acc) {
		return nil, decision, s.loginFailed(in.Email, in.ClientIP, "locked", zap.String("account_id", accountID))
	}
	if !ok {
		count, err := s.store.RecordLoginFailure(ctx, accountID)
		if err != nil {
			s.log.Error("record login failure", zap.String("account_id", accountID), zap.Error(err))
		}
		return nil, decision, s.loginFailed(in.Email, in.ClientIP, "wrong_password",
			zap.String("account_id", accountID),
			zap.Int("failed_attempts", count),
		)
	}
	if !acc.IsActive {
		return nil, decision, s.loginFailed(in.Email, in.ClientIP, "inactive", zap.String("account_id", accountID))
	}

	pair, err := s.tokens.StartSession(ctx, acc)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, decision, err
	}
	if err := s.store.RecordLoginSuccess(ctx, accountID); err != nil {
		s.log.Error("record login success", zap.String("account_id", accountID), zap.Error(err))
	}
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.Warn("reset login limiter", zap.String("client_ip", in.ClientIP), zap.Error(err))
	} else {
		decision.Remaining = decision.Limit
	}

	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("login.success",
		zap.String("account_id", accountID),
		zap.String("email", acc.Email),
		zap.String("role", string(acc.Role)),
		zap.String("client_ip", in.ClientIP),
	)

	out := acc.Sanitized()
	now := s.store.Now()
	out.LastLoginAt = &now
	out.FailedAttemptCount = 0
	out.LockedUntil = nil
	return &LoginResult{Tokens: pair, Account: out}, decision, nil
}

// Refresh exchanges a refresh token for a new access token (and a new
// refresh token when rotation is on).
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	pair, acc, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		outcome := metrics.OutcomeRevoked
		if apperror.CodeOf(err) == apperror.CodeInternal {
			outcome = metrics.OutcomeError
		}
		metrics.TokenRefreshes.WithLabelValues(outcome).Inc()
		s.log.Warn("token.refresh_failed", zap.Error(err))
		return TokenPair{}, err
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.log.Info("token.refresh",
		zap.String("account_id", acc.ID.Hex()),
		zap.Bool("rotated", pair.RefreshToken != ""),
	)
	return pair, nil
}

// Logout revokes one refresh token of the caller. Unknown or already revoked
// tokens succeed silently.
func (s *AuthService) Logout(ctx context.Context, principal models.Principal, refreshToken string) error {
	removed := false
	if refreshToken != "" {
		var err error
		removed, err = s.registry.Revoke(ctx, principal.AccountID, refreshToken)
		if err != nil {
			return err
		}
	}
	s.log.Info("logout", zap.String("account_id", principal.AccountID), zap.Bool("revoked", removed))
	return nil
}

// LogoutAll revokes every refresh token of the caller.
func (s *AuthService) LogoutAll(ctx context.Context, principal models.Principal) error {
	if err := s.registry.RevokeAll(ctx, principal.AccountID); err != nil {
		return err
	}
	s.log.Info("logout.all", zap.String("account_id", principal.AccountID))
	return nil
}

// Me returns the sanitized account behind principal.
func (s *AuthService) Me(ctx context.Context, principal models.Principal) (*models.Account, error) {
	acc, err := s.store.FindByID(ctx, principal.AccountID)
	if err != nil {
		return nil, err
	}
	return acc.Sanitized(), nil
}

// ChangePassword verifies the current password, stores the new one and
// revokes every refresh token of the account.
func (s *AuthService) ChangePassword(ctx context.Context, principal models.Principal, current, next string) error {
	if current == "" || next == "" {
		return apperror.Validation("current and new password are required")
	}
	if current == next {
		return apperror.Validation("new password must differ from the current one")
	}
	acc, err := s.store.FindByID(ctx, principal.AccountID)
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	ok, err := s.store.VerifySecret(acc, current)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn("account.password_change_rejected", zap.String("account_id", principal.AccountID))
		return apperror.New(apperror.CodeInvalidCredentials, "current password is incorrect")
	}
	if err := s.store.ChangeSecret(ctx, principal.AccountID, next); err != nil {
		return err
	}
	return s.registry.RevokeAll(ctx, principal.AccountID)
}
