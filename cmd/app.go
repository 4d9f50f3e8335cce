package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/princinho/adminportal/config"
	"github.com/princinho/adminportal/database"
	"github.com/princinho/adminportal/ratelimit"
	"github.com/princinho/adminportal/repository"
	"github.com/princinho/adminportal/services"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

// app holds the wired services and the resources to release on shutdown.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *services.CredentialStore
	registry *services.RefreshRegistry
	tokens   *services.TokenService
	auth     *services.AuthService
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.AccountRepository, func(), error) {
	if cfg.MongoURI == "" {
		if cfg.IsProduction() {
			return nil, nil, errors.New("MONGODB_URI is required in production")
		}
		log.Warn("MONGODB_URI not set, accounts are kept in memory")
		return repository.NewMemoryAccountRepository(), func() {}, nil
	}
	client, err := database.Connect(ctx, cfg.MongoURI, log)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewMongoAccountRepository(database.OpenCollection(client, cfg.DatabaseName, repository.AccountsCollection))
	if err := repo.EnsureIndexes(ctx); err != nil {
		database.Disconnect(client, log)
		return nil, nil, err
	}
	return repo, func() { database.Disconnect(client, log) }, nil
}

func openLimiter(ctx context.Context, cfg *config.Config, log *zap.Logger) (ratelimit.Limiter, func(), error) {
	limits := ratelimit.Config{MaxAttempts: cfg.LoginMaxAttempts, Window: cfg.LoginWindow}
	if cfg.RateLimitBackend != config.BackendRedis {
		return ratelimit.NewMemoryLimiter(limits, ratelimit.DefaultMaxKeys), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	limiter := ratelimit.NewRedisLimiter(client, limits, "")
	if err := limiter.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info("login rate limiter backed by redis", zap.String("addr", cfg.RedisAddr))
	return limiter, func() {
		if err := client.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}, nil
}

// newApp opens storage and builds the service graph. withLimiter is false
// for commands that never log anyone in.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, withLimiter bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)

	hasher := utils.NewBcryptHasher(cfg.BcryptCost)
	a.store = services.NewCredentialStore(repo, hasher, services.LockPolicy{
		Threshold: cfg.LockThreshold,
		Duration:  cfg.LockDuration,
	}, log)
	a.registry = services.NewRefreshRegistry(repo, cfg.RefreshCapacity)
	a.tokens = services.NewTokenService(services.TokenConfig{
		AccessSecret:  []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Rotation:      cfg.RefreshRotation,
	}, a.store, a.registry, log)

	if withLimiter {
		limiter, closeLimiter, err := openLimiter(ctx, cfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, closeLimiter)
		a.auth = services.NewAuthService(a.store, a.tokens, a.registry, limiter, cfg.LoginRateKey, log)
	}
	return a, nil
}
