package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/adapter/handler"
	infra "github.com/zots0127/fileshare/internal/infrastructure/repository"
	"github.com/zots0127/fileshare/internal/infrastructure/staging"
	"github.com/zots0127/fileshare/internal/usecase"
	"github.com/zots0127/fileshare/pkg/config"
	"github.com/zots0127/fileshare/pkg/metrics"
	"github.com/zots0127/fileshare/pkg/middleware"
)

var (
	reconcileOnStart bool
	watchConfig      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the file API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&reconcileOnStart, "reconcile-on-start", false, "Reconcile pending intents before accepting requests")
	serveCmd.Flags().BoolVar(&watchConfig, "watch-config", true, "Apply log level changes when the configuration file changes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.config
	logger := a.logger.Logger

	stager, err := staging.New(cfg.Storage.StagingDir, int64(cfg.Storage.MaxUploadSize))
	if err != nil {
		return err
	}

	files := usecase.NewFileUseCase(a.catalog, a.store, a.journal, logger)
	reconciler := usecase.NewReconcileUseCase(a.catalog, a.store, a.journal, logger)
	health := usecase.NewHealthUseCase(
		infra.NewHealthRepository(a.catalog, a.store, a.journal, stager.Dir()),
		Version,
		logger,
	)

	// intents still pending at startup were cut short by a crash; nothing
	// else is running yet so repairs cannot race live operations
	if reconcileOnStart {
		results, err := reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			logger.Info("startup reconciliation finished", zap.Int("intents", len(results)))
		}
	}

	if watchConfig && a.configs.ConfigPath() != "" {
		a.configs.Watch(func(c *config.Config) {
			if err := a.logger.SetLevel(c.Logging.Level); err != nil {
				logger.Warn("failed to apply log level", zap.Error(err))
				return
			}
			logger.Info("log level updated", zap.String("level", c.Logging.Level))
		})
		watcher, err := config.NewConfigWatcher(a.configs, logger)
		if err != nil {
			logger.Warn("configuration watch disabled", zap.Error(err))
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	router, err := newRouter(cfg, logger, files, stager, health)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("version", Version),
			zap.Bool("tls", cfg.Server.TLS.Enabled),
			zap.String("store", a.store.Backend()),
		)
		if cfg.Server.TLS.Enabled {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// newRouter assembles middleware, health, metrics and the authenticated file API
func newRouter(cfg *config.Config, logger *zap.Logger, files handler.FileService, stager *staging.Stager, health handler.HealthService) (*gin.Engine, error) {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return nil, err
	}

	chain := middleware.NewMiddlewareChain(&middleware.Config{
		EnableLogging: true,
		SkipPaths:     []string{"/health", "/health/live", "/health/ready", cfg.Metrics.Path},
		EnableCORS:    cfg.Server.CORS.Enabled,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
			AllowedMethods: cfg.Server.CORS.AllowedMethods,
			AllowedHeaders: cfg.Server.CORS.AllowedHeaders,
			MaxAge:         cfg.Server.CORS.MaxAge,
		},
		EnableRateLimit:   cfg.Server.RateLimit.Enabled,
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
		EnableAuth:        cfg.Security.EnableAuth,
		Auth: middleware.AuthConfig{
			Secret: []byte(cfg.Security.JWTSecret),
			Issuer: cfg.Security.Issuer,
			Leeway: 30 * time.Second,
		},
		IdentityHeader: middleware.DefaultIdentityHeader,
	}, logger)
	chain.Apply(router)

	if cfg.Metrics.Enabled {
		router.Use(metrics.Middleware())
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	handler.NewHealthHandler(health).RegisterRoutes(router)

	api := router.Group("/api", chain.Protected()...)
	handler.NewFileHandler(files, stager, logger).RegisterRoutes(api)

	return router, nil
}
