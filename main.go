package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tg-channel-parser/pkg/api"
	"tg-channel-parser/pkg/config"
	"tg-channel-parser/pkg/extract"
	"tg-channel-parser/pkg/geocode"
	"tg-channel-parser/pkg/logging"
	"tg-channel-parser/pkg/pipeline"
	"tg-channel-parser/pkg/storage"
	"tg-channel-parser/pkg/telegram"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
	logger.Info("service stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := storage.ApplyMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	store, err := storage.New(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close()

	client := telegram.NewClient(cfg.Telegram, store.Session(), logger)

	resolver := geocode.NewResolver(
		buildProvider(cfg.Geocoding.Provider, cfg.Geocoding),
		fallbackProvider(cfg.Geocoding),
		cfg.Geocoding.MapService,
		cfg.Geocoding.CacheTTL,
		logger.Named("geocode"),
	)
	defer resolver.Stop()

	queue := make(chan telegram.RawMessage, cfg.Pipeline.QueueSize)
	listeners := telegram.NewPool(client, store, queue, cfg.Telegram.Channels,
		cfg.Pipeline.PollInterval, cfg.Pipeline.BatchSize, logger.Named("listener"))
	coordinator := pipeline.New(queue, store, extract.New(), resolver,
		cfg.Pipeline.Workers, logger.Named("pipeline"))
	server := api.NewServer(fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		store, logger.Named("api"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Workers outlive the listeners on shutdown so queued messages can drain
	// before their context ends.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go func() {
		<-gctx.Done()
		t := time.NewTimer(cfg.Pipeline.ShutdownGrace)
		defer t.Stop()
		<-t.C
		cancelWorkers()
	}()

	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error { return listeners.Run(gctx) })
	g.Go(func() error { return coordinator.Run(workerCtx) })
	g.Go(func() error { return server.Run(gctx) })

	logger.Info("service started",
		zap.Int("channels", len(cfg.Telegram.Channels)),
		zap.Int("workers", cfg.Pipeline.Workers))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildProvider(name string, cfg config.GeocodingConfig) geocode.Provider {
	switch name {
	case "google":
		return geocode.NewGoogle("", cfg.GoogleAPIKey, cfg.RequestTimeout, cfg.RateLimitRPS)
	default:
		return geocode.NewNominatim("", cfg.RequestTimeout, cfg.RateLimitRPS)
	}
}

func fallbackProvider(cfg config.GeocodingConfig) geocode.Provider {
	if cfg.Fallback == "" {
		return nil
	}
	return buildProvider(cfg.Fallback, cfg)
}
