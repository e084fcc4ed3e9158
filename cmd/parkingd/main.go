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

	"parkingspots-backend/config"
	"parkingspots-backend/internal/api"
	"parkingspots-backend/internal/cache"
	"parkingspots-backend/internal/db"
	"parkingspots-backend/internal/ingest"
	"parkingspots-backend/internal/ledger"
	"parkingspots-backend/internal/notify"
	"parkingspots-backend/internal/occupancy"
	"parkingspots-backend/internal/search"
	"parkingspots-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "parkingd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	appCache := cache.New(time.Duration(cfg.Cache.TTLSeconds) * time.Second)

	// The notifier is optional: without VAPID keys the system runs with
	// change notifications disabled.
	var webpushOptions *webpush.Options
	var notifier *notify.WorkerPool
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
			HTTPClient:      &http.Client{Timeout: 5 * time.Second},
		}
		notifier = notify.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		notifier.Start(ctx)
	} else {
		logger.Println("VAPID keys not configured; spot-update notifications disabled")
	}

	queryTimeout := time.Duration(cfg.Database.QueryTimeoutSeconds) * time.Second
	searchSvc := search.NewService(appStore, appCache, cfg.Search, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	occupancyModel := occupancy.NewModel(appStore, appCache, cfg.Occupancy.Step, time.Duration(cfg.Cache.PredictionTTLSeconds)*time.Second, queryTimeout)
	ledgerSvc := ledger.NewService(appStore, appCache, notifier, cfg.Occupancy.Step, queryTimeout)

	ingestSvc := ingest.NewService(cfg, appStore)
	go ingestSvc.Run(ctx)

	router := api.NewRouter(appStore, searchSvc, ledgerSvc, occupancyModel, webpushOptions, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
