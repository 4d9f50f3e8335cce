package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_credentials"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
	OutcomeRevoked     = "revoked"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adminportal",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adminportal",
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Refresh token rotations by outcome.",
	}, []string{"outcome"})

	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adminportal",
		Subsystem: "auth",
		Name:      "rejections_total",
		Help:      "Requests rejected by the auth middleware, by status.",
	}, []string{"status"})

	PasswordHashDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "adminportal",
		Subsystem: "auth",
		Name:      "password_verify_seconds",
		Help:      "Time spent verifying a password hash.",
		Buckets:   []float64{.01, .05, .1, .2, .3, .5, 1},
	})

	PrunedRefreshTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "adminportal",
		Subsystem: "auth",
		Name:      "refresh_token_prunes_total",
		Help:      "Accounts whose expired refresh tokens were pruned.",
	})
)

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
