package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shareapi/docs"
	"shareapi/internal/config"
	"shareapi/internal/database"
	"shareapi/internal/database/migration"
	handlers "shareapi/internal/http/handler"
	"shareapi/internal/http/middleware"
	"shareapi/internal/logger"
	tracing "shareapi/internal/otel"
	"shareapi/internal/reclaim"
	"shareapi/internal/service"
)

// multipartOverhead is added to MAX_FILE_SIZE so a file at the limit still
// fits in the request body together with its form envelope.
const multipartOverhead = 1 << 20

// @title Share API
// @version 1.0
// @description Ephemeral file sharing with download limits and expiry.
// @BasePath /
func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Location())

	if err := newRootCmd(cfg, log).ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.AppConfig, log *logrus.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "shareapi",
		Short:         "Ephemeral file sharing service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, log)
		},
	}
	root.AddCommand(newServeCmd(cfg, log))
	root.AddCommand(newSweepCmd(cfg, log))
	root.AddCommand(newMigrateCmd(cfg, log))
	return root
}

func newServeCmd(cfg *config.AppConfig, log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and the reclamation scheduler (default).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, log)
		},
	}
}

func newSweepCmd(cfg *config.AppConfig, log *logrus.Logger) *cobra.Command {
	var reconcile, purge bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reclamation pass and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cfg, log, reconcile, purge)
		},
	}
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "also remove orphaned objects and reap records whose object is missing")
	cmd.Flags().BoolVar(&purge, "purge", false, "also hard-delete soft-deleted records past retention")
	return cmd
}

func newMigrateCmd(cfg *config.AppConfig, log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema if it does not exist.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.NewPostgres(cfg.Database, log)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()
			return migration.EnsureMigrated(cmd.Context(), db, log, cfg.Database.Host)
		},
	}
}

func runServe(parent context.Context, cfg *config.AppConfig, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	deps, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promMw, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	sched := reclaim.New(deps.engine, deps.repo, deps.store, deps.lease, cfg.Reclaim, reclaim.NewMetrics(reg), log)
	svc := service.NewShareService(deps.engine, deps.repo, deps.audit, deps.store, cfg.Limits, log)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Limits.MaxFileSize) + multipartOverhead,
		DisableStartupMessage: true,
	})

	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.ClientContext())
	app.Use(middleware.Logger(log))
	app.Use(promMw.Handler())

	handlers.RegisterRoutes(app, deps.db, svc, reg, log)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	sched.Start(ctx)
	defer sched.Stop()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":            addr,
			"storage_backend": cfg.Storage.Backend,
		}).Info("server listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.WithError(err).Warn("http shutdown")
	}
	return nil
}

func runSweep(parent context.Context, cfg *config.AppConfig, log *logrus.Logger, reconcile, purge bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	sched := reclaim.New(deps.engine, deps.repo, deps.store, deps.lease, cfg.Reclaim, reclaim.NewMetrics(prometheus.NewRegistry()), log)

	if res := sched.Sweep(ctx); res.Skipped {
		return errors.New("sweep already running elsewhere")
	}
	if reconcile {
		sched.Reconcile(ctx)
	}
	if purge {
		sched.Purge(ctx)
	}
	res, err := sched.EmitStats(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		return errors.New("stats pass already running elsewhere")
	}
	return nil
}
