package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"otakuwallet/internal/backend"
	"otakuwallet/internal/cache"
	"otakuwallet/internal/cli"
	apphttp "otakuwallet/internal/http"
	"otakuwallet/internal/identity"
	applog "otakuwallet/internal/log"
	"otakuwallet/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	stats := services.NewStatisticsAggregator(res.Store, services.StatisticsConfig{
		TTL:     cfg.StatsCacheTTL,
		MaxSize: cfg.StatsCacheSize,
	})
	cacheManager := cache.NewManager()
	stats.Register(cacheManager)
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	opts := []services.Option{
		services.WithStatistics(stats),
		services.WithLogger(logger),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewExpenseService(res.Store, opts...)

	srv := apphttp.NewServer(":"+cfg.Port, svc, identity.NewCookieProvider(cfg.VisitorCookieName),
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(cfg.RateLimitRPM),
		apphttp.WithCORS(cfg.CORSAllowedOrigins),
		apphttp.WithCacheStats(stats.CacheStats),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting wallet server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events_enabled", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
