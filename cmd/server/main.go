// Command server runs the ProjectHub API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/denusbtw/projecthub-sub000/api"
	"github.com/denusbtw/projecthub-sub000/config"
	"github.com/denusbtw/projecthub-sub000/housekeeping"
	"github.com/denusbtw/projecthub-sub000/logging"
	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/denusbtw/projecthub-sub000/tenant"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "projecthub:", err)
		os.Exit(1)
	}
}

// parseFlags returns the config file path from args.
func parseFlags(args []string) (string, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configFile := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *configFile, nil
}

func run(ctx context.Context, args []string) error {
	path, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pg, err := store.NewPGStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := store.NewMigrator(pg.Pool(), logger).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	stores := pg.Stores()

	cache, err := newCache(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	m := metrics.New()
	gateCfg := tenant.Config{BaseDomain: cfg.Tenant.BaseDomain, ExemptPrefixes: cfg.Tenant.ExemptPrefixes}
	router := api.NewRouter(api.Config{
		JWTSecret: cfg.Auth.JWTSecret,
		JWTIssuer: cfg.Auth.Issuer,
		TokenTTL:  cfg.Auth.TokenTTL,
	}, api.Deps{
		Stores:  stores,
		Gate:    tenant.NewGate(gateCfg, stores, cache, logger.Named("tenant"), m),
		Quota:   tenant.NewQuotaEnforcer(tenant.NewQuotaRegistry(cfg.Tenant.APIRequestsRPM), m),
		Cache:   cache,
		Metrics: m,
		Logger:  logger,
	})
	defer router.Stop()

	archiver := housekeeping.NewArchiver(stores, cfg.Housekeeping.Interval, m, logger)
	go archiver.Start(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newCache connects the tenant cache, or returns nil when Redis is not
// configured.
func newCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*tenant.Cache, error) {
	if cfg.Addr == "" {
		logger.Info("tenant cache disabled")
		return nil, nil
	}
	cache, err := tenant.NewCache(ctx, tenant.CacheConfig{
		Address:  cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Prefix:   cfg.Prefix,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("tenant cache connected", zap.String("addr", cfg.Addr))
	return cache, nil
}
