package services

import (
	"context"
	"errors"
	"time"

	"github.com/princinho/adminportal/apperror"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Rotation makes refresh tokens single use: every refresh consumes the
	// presented token and returns a new one.
	Rotation bool
}

type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// TokenService issues, verifies and rotates access/refresh token pairs.
type TokenService struct {
	cfg      TokenConfig
	store    *CredentialStore
	registry *RefreshRegistry
	log      *zap.Logger
	now      func() time.Time
}

func NewTokenService(cfg TokenConfig, store *CredentialStore, registry *RefreshRegistry, log *zap.Logger) *TokenService {
	if len(cfg.RefreshSecret) == 0 {
		cfg.RefreshSecret = cfg.AccessSecret
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenService{cfg: cfg, store: store, registry: registry, log: log, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) issueAccess(acc *models.Account, now time.Time) (string, error) {
	return utils.SignToken(utils.Claims{
		AccountID: acc.ID.Hex(),
		Email:     acc.Email,
		Role:      string(acc.Role),
		TokenType: utils.TokenTypeAccess,
	}, s.cfg.AccessSecret, s.cfg.Issuer, now, s.cfg.AccessTTL)
}

// IssuePair signs a new access/refresh pair for acc. It does not register
// the refresh token; see StartSession.
func (s *TokenService) IssuePair(acc *models.Account) (TokenPair, error) {
	now := s.now()
	access, err := s.issueAccess(acc, now)
	if err != nil {
		return TokenPair{}, apperror.Internal(err, "issue access token")
	}
	refresh, err := utils.SignToken(utils.Claims{
		AccountID: acc.ID.Hex(),
		TokenType: utils.TokenTypeRefresh,
	}, s.cfg.RefreshSecret, s.cfg.Issuer, now, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, apperror.Internal(err, "issue refresh token")
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTTL),
	}, nil
}

// StartSession issues a pair and records the refresh token in the registry.
func (s *TokenService) StartSession(ctx context.Context, acc *models.Account) (TokenPair, error) {
	pair, err := s.IssuePair(acc)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.registry.Add(ctx, acc.ID.Hex(), pair.RefreshToken, s.cfg.RefreshTTL); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// VerifyAccess checks signature, expiry and type. It never touches storage.
func (s *TokenService) VerifyAccess(token string) (*utils.Claims, error) {
	claims, err := utils.ValidateToken(token, s.cfg.AccessSecret, s.cfg.Issuer, utils.TokenTypeAccess, s.now)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidToken, apperror.ErrInvalidToken.Message)
	}
	return claims, nil
}

func (s *TokenService) VerifyRefresh(token string) (*utils.Claims, error) {
	claims, err := utils.ValidateToken(token, s.cfg.RefreshSecret, s.cfg.Issuer, utils.TokenTypeRefresh, s.now)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidToken, apperror.ErrInvalidToken.Message)
	}
	return claims, nil
}

var errRefreshNotRegistered = errors.New("refresh token not registered")

// Rotate exchanges a registered refresh token for a new access token. With
// rotation on, the presented token is consumed and a new refresh token is
// returned too. Any failure other than a storage error is InvalidToken.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (TokenPair, *models.Account, error) {
	if refreshToken == "" {
		return TokenPair{}, nil, apperror.New(apperror.CodeInvalidToken, "missing refresh token")
	}
	claims, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}

	acc, err := s.store.FindByID(ctx, claims.AccountID)
	if errors.Is(err, apperror.ErrNotFound) {
		return TokenPair{}, nil, apperror.Wrap(err, apperror.CodeInvalidToken, apperror.ErrInvalidToken.Message)
	}
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !acc.IsActive {
		return TokenPair{}, nil, apperror.Wrap(errors.New("account inactive"), apperror.CodeInvalidToken, apperror.ErrInvalidToken.Message)
	}

	if s.cfg.Rotation {
		consumed, err := s.registry.Consume(ctx, claims.AccountID, refreshToken)
		if err != nil {
			return TokenPair{}, nil, err
		}
		if !consumed {
			s.log.Debug("refresh token reuse or revoked", zap.String("account_id", claims.AccountID))
			return TokenPair{}, nil, apperror.Wrap(errRefreshNotRegistered, apperror.CodeInvalidToken, apperror.ErrInvalidToken.Message)
		}
		pair, err := s.StartSession(ctx, acc)
		if err != nil {
			return TokenPair{}, nil, err
		}
		return pair, acc, nil
	}

	live, err := s.registry.Contains(ctx, claims.AccountID, refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !live {
		return TokenPair{}, nil, apperror.Wrap(errRefreshNotRegistered, apperror.CodeInvalidToken, apperror.ErrInvalidToken.Message)
	}
	now := s.now()
	access, err := s.issueAccess(acc, now)
	if err != nil {
		return TokenPair{}, nil, apperror.Internal(err, "issue access token")
	}
	return TokenPair{AccessToken: access, AccessExpiresAt: now.Add(s.cfg.AccessTTL)}, acc, nil
}
