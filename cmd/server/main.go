package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata" // zone rules for hosts without a system database

	"github.com/joho/godotenv"
	"github.com/ringsaturn/tzf"

	"github.com/JonMunkholm/transactions/internal/archive"
	"github.com/JonMunkholm/transactions/internal/config"
	"github.com/JonMunkholm/transactions/internal/core"
	"github.com/JonMunkholm/transactions/internal/geoip"
	"github.com/JonMunkholm/transactions/internal/logging"
	"github.com/JonMunkholm/transactions/internal/store"
	"github.com/JonMunkholm/transactions/internal/timezone"
	"github.com/JonMunkholm/transactions/internal/web"
	"github.com/JonMunkholm/transactions/internal/xlsx"
)

func main() {
	// Overload lets .env win over variables already in the environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	zones, err := timezone.LoadTable(cfg.Timezone.MapFile)
	if err != nil {
		return err
	}
	slog.Info("timezone table loaded", "version", zones.Version(), "zones", zones.Len())
	if cfg.Timezone.WatchMapFile {
		stopWatch, err := zones.Watch(func(version string, err error) {
			if err != nil {
				slog.Error("timezone table reload failed, keeping previous table", "error", err)
				return
			}
			slog.Info("timezone table reloaded", "version", version)
		})
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return err
	}

	transactions := store.New(pool, zones)
	if err := transactions.EnsureSchema(ctx); err != nil {
		return err
	}

	deps := core.Deps{
		Store:    transactions,
		Resolver: timezone.NewResolver(finder, zones),
		Zones:    zones,
		Locator:  geoip.New(cfg.GeoIP),
		Sheets:   xlsx.NewWriter(),
		Limiter:  core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}
	if cfg.Archive.Enabled() {
		gcs, err := archive.NewGCS(ctx, cfg.Archive)
		if err != nil {
			return err
		}
		defer gcs.Close()
		deps.Archiver = gcs
		slog.Info("archiving uploads", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
	}

	service := core.NewService(deps, core.Options{
		StrictParsing: cfg.Upload.StrictParsing,
		Delimiter:     cfg.Upload.DelimiterRune(),
		UploadTimeout: cfg.Upload.Timeout,
	})

	server := web.NewServer(service, cfg,
		web.HealthCheck{Name: "database", Check: transactions.Ping},
	)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr())
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	limiter := service.Limiter()
	if active := limiter.ActiveCount(); active > 0 {
		slog.Info("waiting for uploads to complete", "active", active)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	slog.Info("server stopped")
	return nil
}
