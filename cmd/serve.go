package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/adminportal/jobs"
	"github.com/princinho/adminportal/routes"
	"github.com/princinho/adminportal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
			if _, err := a.store.EnsureSuperAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
				return err
			}
		} else {
			log.Info("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping super-admin seed")
		}

		pruner, err := jobs.NewRefreshTokenPruner(a.registry, cfg.PruneSchedule, log)
		if err != nil {
			return err
		}

		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		router := routes.NewRouter(routes.Deps{
			Log:            log,
			Auth:           a.auth,
			Store:          a.store,
			Tokens:         a.tokens,
			AllowedOrigins: cfg.AllowedOrigins,
			TrustedProxies: cfg.TrustedProxies,
			Cookies:        utils.CookieSettings{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
			RefreshTTL:     cfg.RefreshTokenTTL,
			APIRate:        cfg.APIRatePerSecond,
			APIBurst:       cfg.APIBurst,
		})
		srv := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return pruner.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
