package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/princinho/adminportal/controllers"
	"github.com/princinho/adminportal/metrics"
	"github.com/princinho/adminportal/middleware"
	"github.com/princinho/adminportal/models"
	"github.com/princinho/adminportal/services"
	"github.com/princinho/adminportal/utils"
	"go.uber.org/zap"
)

type Deps struct {
	Log            *zap.Logger
	Auth           *services.AuthService
	Store          *services.CredentialStore
	Tokens         *services.TokenService
	AllowedOrigins []string
	TrustedProxies []string
	Cookies        utils.CookieSettings
	RefreshTTL     time.Duration
	APIRate        float64
	APIBurst       int
}

// RequireAuth is the authentication gate every protected route uses.
func (d Deps) RequireAuth() gin.HandlerFunc {
	return middleware.AuthMiddleware(d.Tokens, d.Store, d.Log)
}

func corsConfig(origins []string, log *zap.Logger) cors.Config {
	allowedOrigins := map[string]bool{}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}
	log.Info("cors configured", zap.Strings("allowed_origins", origins))
	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	// c.ClientIP() only honours forwarding headers from these peers.
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		d.Log.Error("invalid trusted proxies, forwarding headers ignored", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(cors.New(corsConfig(d.AllowedOrigins, d.Log)))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.Throttle(d.APIRate, d.APIBurst))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/metrics", metrics.Handler())

	authCtl := controllers.NewAuthController(d.Auth, d.Cookies, d.RefreshTTL, d.Log)
	accountsCtl := controllers.NewAccountsController(d.Store, d.Log)
	requireAuth := d.RequireAuth()

	auth := r.Group("/auth")
	{
		auth.POST("/login", authCtl.Login())
		auth.POST("/refresh", authCtl.Refresh())

		auth.POST("/logout", requireAuth, authCtl.Logout())
		auth.POST("/logout-all", requireAuth, authCtl.LogoutAll())
		auth.GET("/me", requireAuth, authCtl.Me())
		auth.POST("/me/password", requireAuth, authCtl.ChangeMyPassword())
	}

	admin := r.Group("/admin")
	admin.Use(requireAuth)
	{
		admin.GET("/accounts", middleware.RequirePermission(models.ResourceAdmin, models.ActionRead), accountsCtl.List())
		admin.GET("/accounts/:id", middleware.RequirePermission(models.ResourceAdmin, models.ActionRead), accountsCtl.Get())
		admin.POST("/accounts", middleware.RequirePermission(models.ResourceAdmin, models.ActionCreate), accountsCtl.Create())
		admin.PATCH("/accounts/:id", middleware.RequirePermission(models.ResourceAdmin, models.ActionUpdate), accountsCtl.Update())
		admin.DELETE("/accounts/:id", middleware.RequirePermission(models.ResourceAdmin, models.ActionDelete), accountsCtl.Delete())
	}

	return r
}
