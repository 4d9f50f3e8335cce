package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	RateKeyIP      = "ip"
	RateKeyIPEmail = "ip_email"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port           string
	Env            string
	LogLevel       string
	MongoURI       string
	DatabaseName   string
	AllowedOrigins []string
	// TrustedProxies lists the proxy IPs/CIDRs whose X-Forwarded-For is
	// believed. Empty means the peer address is always the client.
	TrustedProxies []string

	JWTSecret        string
	JWTRefreshSecret string
	// RefreshSecretFallback is set when no dedicated refresh secret was
	// configured and the access secret is reused.
	RefreshSecretFallback bool
	JWTIssuer             string
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	RefreshRotation       bool
	RefreshCapacity       int

	BcryptCost int

	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginRateKey     string
	RateLimitBackend string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	LockThreshold int
	LockDuration  time.Duration

	APIRatePerSecond float64
	APIBurst         int

	CookieSecure bool
	CookieDomain string

	PruneSchedule string

	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MONGODB_URI", "")
	v.SetDefault("DATABASE_NAME", "adminportal")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "adminportal")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("REFRESH_TOKEN_TTL_DAYS", 14)
	v.SetDefault("REFRESH_TOKEN_ROTATION", true)
	v.SetDefault("REFRESH_TOKEN_CAPACITY", 5)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_WINDOW_MINUTES", 15)
	v.SetDefault("LOGIN_RATE_KEY", RateKeyIP)
	v.SetDefault("RATE_LIMIT_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOGIN_LOCK_THRESHOLD", 0)
	v.SetDefault("LOGIN_LOCK_MINUTES", 15)
	v.SetDefault("API_RATE_PER_SECOND", 20.0)
	v.SetDefault("API_BURST", 40)
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("PRUNE_SCHEDULE", "@hourly")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("ADMIN_NAME", "Super Admin")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Port:             v.GetString("PORT"),
		Env:              strings.ToLower(v.GetString("APP_ENV")),
		LogLevel:         v.GetString("LOG_LEVEL"),
		MongoURI:         v.GetString("MONGODB_URI"),
		DatabaseName:     v.GetString("DATABASE_NAME"),
		AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
		TrustedProxies:   splitList(v.GetString("TRUSTED_PROXIES")),
		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTRefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
		JWTIssuer:        v.GetString("JWT_ISSUER"),
		AccessTokenTTL:   time.Duration(v.GetInt("ACCESS_TOKEN_TTL_MINUTES")) * time.Minute,
		RefreshTokenTTL:  time.Duration(v.GetInt("REFRESH_TOKEN_TTL_DAYS")) * 24 * time.Hour,
		RefreshRotation:  v.GetBool("REFRESH_TOKEN_ROTATION"),
		RefreshCapacity:  v.GetInt("REFRESH_TOKEN_CAPACITY"),
		BcryptCost:       v.GetInt("BCRYPT_COST"),
		LoginMaxAttempts: v.GetInt("LOGIN_MAX_ATTEMPTS"),
		LoginWindow:      time.Duration(v.GetInt("LOGIN_WINDOW_MINUTES")) * time.Minute,
		LoginRateKey:     strings.ToLower(v.GetString("LOGIN_RATE_KEY")),
		RateLimitBackend: strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		LockThreshold:    v.GetInt("LOGIN_LOCK_THRESHOLD"),
		LockDuration:     time.Duration(v.GetInt("LOGIN_LOCK_MINUTES")) * time.Minute,
		APIRatePerSecond: v.GetFloat64("API_RATE_PER_SECOND"),
		APIBurst:         v.GetInt("API_BURST"),
		CookieSecure:     v.GetBool("COOKIE_SECURE"),
		CookieDomain:     v.GetString("COOKIE_DOMAIN"),
		PruneSchedule:    v.GetString("PRUNE_SCHEDULE"),
		AdminEmail:       v.GetString("ADMIN_EMAIL"),
		AdminPassword:    v.GetString("ADMIN_PASSWORD"),
		AdminName:        v.GetString("ADMIN_NAME"),
	}

	if cfg.JWTRefreshSecret == "" {
		cfg.JWTRefreshSecret = cfg.JWTSecret
		cfg.RefreshSecretFallback = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL_MINUTES must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL_DAYS must be positive"))
	}
	if c.LoginMaxAttempts <= 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}
	if c.LoginWindow <= 0 {
		errs = append(errs, errors.New("LOGIN_WINDOW_MINUTES must be positive"))
	}
	if c.LockThreshold < 0 {
		errs = append(errs, errors.New("LOGIN_LOCK_THRESHOLD must not be negative"))
	}
	for _, proxy := range c.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", proxy))
		}
	}
	switch c.LoginRateKey {
	case RateKeyIP, RateKeyIPEmail:
	default:
		errs = append(errs, fmt.Errorf("LOGIN_RATE_KEY must be %q or %q", RateKeyIP, RateKeyIPEmail))
	}
	switch c.RateLimitBackend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q", BackendMemory, BackendRedis))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
