package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"scenegen/internal/bootstrap"
	"scenegen/internal/http/handlers"
	httpapi "scenegen/internal/http/httpapi"
	"scenegen/internal/infra"
	"scenegen/internal/infra/geoip"
	"scenegen/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build services")
	}
	defer svc.Close()

	var lookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if resolver != nil {
		lookup = resolver.Lookup
	}
	defer resolver.Close()

	app := &handlers.App{
		Runner:         svc.Driver,
		Jobs:           svc.Tracker,
		Images:         svc.Images,
		Uploads:        svc.Uploads,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("output_dir", svc.Images.BasePath()).
			Str("job_store", cfg.JobStore).
			Str("job_queue", cfg.JobQueue).
			Msg("api listening")
		return server.Start()
	})
	if cfg.WorkerMode == infra.WorkerModeInline {
		g.Go(func() error {
			return svc.Tracker.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
