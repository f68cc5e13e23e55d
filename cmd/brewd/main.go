package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"brewery-production-backend/config"
	"brewery-production-backend/internal/api"
	"brewery-production-backend/internal/catalog"
	"brewery-production-backend/internal/db"
	"brewery-production-backend/internal/lock"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/notification"
	"brewery-production-backend/internal/reconcile"
	"brewery-production-backend/internal/store"
)

var configPath string

func main() {
	// A missing .env is fine; the config file and real environment still apply.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "brewd",
		Short:        "Brewery production consistency service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")

	root.AddCommand(serveCmd(), migrateCmd(), reconcileCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration from %q: %w", configPath, err)
	}
	logger := logging.New(cfg.Log)
	logger.WithField("path", configPath).Info("configuration loaded")
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconcile loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			gormDB, err := db.Init(&cfg.Database, logger)
			if err != nil {
				return err
			}
			return closeDB(gormDB)
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconcile cycle across all tenants and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			gormDB, err := db.Init(&cfg.Database, logger)
			if err != nil {
				return err
			}
			defer closeDB(gormDB)

			appStore := store.NewGormStore(gormDB, store.WithLogger(logger))
			report := reconcile.NewService(cfg.Reconcile, appStore, logger).RunOnce(cmd.Context())
			if report.Errors > 0 {
				return fmt.Errorf("reconcile finished with %d errors", report.Errors)
			}
			return nil
		},
	}
}

func serve(cfg *config.Config, logger *logrus.Logger) error {
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Warn("VAPID keys are not configured; push alerts are disabled")
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var locker lock.Locker = lock.Noop{}
	if cfg.Redis.Address != "" {
		rdb, err := lock.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Redis, logger)
		logger.WithField("address", cfg.Redis.Address).Info("redis locks enabled")
	}

	packageTypes := catalog.NewPackageTypes(cfg.Packaging.Types)
	opts := []store.Option{
		store.WithLogger(logger),
		store.WithLocker(locker),
		store.WithPackageTypes(packageTypes),
	}
	if webpushOptions != nil {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger)
		pool.Start(ctx)
		opts = append(opts, store.WithAlertSink(pool))
	}
	appStore := store.NewGormStore(gormDB, opts...)

	go reconcile.NewService(cfg.Reconcile, appStore, logger).Run(ctx)

	handler := api.NewHandler(appStore, packageTypes, webpushOptions, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server, logger),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Info("server gracefully stopped")
	return nil
}

func closeDB(gormDB *gorm.DB) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
