package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"facility-finder-backend/config"
	"facility-finder-backend/internal/aggregator"
	"facility-finder-backend/internal/api"
	"facility-finder-backend/internal/cache"
	"facility-finder-backend/internal/db"
	"facility-finder-backend/internal/events"
	"facility-finder-backend/internal/fetcher"
	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/notification"
	"facility-finder-backend/internal/position"
	"facility-finder-backend/internal/scheduler"
	"facility-finder-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "finderd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	campus, err := time.LoadLocation(cfg.Campus.Timezone)
	if err != nil {
		logger.Fatalf("failed to load campus timezone %q: %v", cfg.Campus.Timezone, err)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := store.NewGormStore(gormDB)
	layer := cache.New(kv, cache.TTLsFromConfig(cfg.Cache))
	client := fetcher.NewClient(cfg.Upstream, layer.TTLs().Occupancy)
	catalog := model.LocationsFromConfig(cfg.Campus.Locations)

	bus := events.NewBus()
	bus.Subscribe(events.RefreshFailed, func(ev events.Event) {
		logger.Printf("%s refresh failed for %v: %v", ev.Source, ev.Failed, ev.Err)
	})
	tracker := position.NewManual()

	sched := scheduler.New(catalog, client, layer, aggregator.New(campus),
		scheduler.IntervalsFromConfig(cfg.Refresh),
		scheduler.WithEventBus(bus),
		scheduler.WithPositionProvider(tracker),
	)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		names := make(map[string]string, len(catalog))
		for _, loc := range catalog {
			names[loc.ID] = loc.Name
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, names, webpushOptions)
		workerPool.Start(ctx)
		notification.NewNotifier(sched, workerPool).Attach(bus)
		logger.Println("busyness alerts enabled")
	} else {
		logger.Println("VAPID keys are not configured; busyness alerts are disabled")
	}

	go sched.Run(ctx)

	router := api.NewRouter(api.Deps{
		Finder:   sched,
		DB:       gormDB,
		Position: tracker,
		Events:   bus,
		Webpush:  webpushOptions,
		Server:   cfg.Server,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
