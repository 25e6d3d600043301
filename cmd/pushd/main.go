package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"course-push-backend/config"
	"course-push-backend/internal/api"
	"course-push-backend/internal/db"
	"course-push-backend/internal/events"
	"course-push-backend/internal/logger"
	"course-push-backend/internal/notification"
	"course-push-backend/internal/store"
)

func main() {
	genKeys := flag.Bool("gen-vapid-keys", false, "print a new VAPID key pair and exit")
	flag.Parse()

	if *genKeys {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("failed to generate VAPID keys: %v", err)
		}
		fmt.Printf("vapid_public_key: %s\nvapid_private_key: %s\n", pub, priv)
		return
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zlog.Info("configuration loaded", zap.String("path", configPath))

	webpushOptions, err := notification.NewOptions(cfg.Push)
	if err != nil {
		zlog.Fatal("invalid VAPID configuration; run with -gen-vapid-keys to create a key pair", zap.Error(err))
	}

	gormDB, err := db.Init(&cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, store.WithMaxDevicesPerUser(cfg.Push.MaxDevicesPerUser))

	dispatcher := notification.NewDispatcher(appStore, webpushOptions,
		notification.WithConcurrency(cfg.WorkerPool.Size),
		notification.WithAttemptTimeout(cfg.Push.AttemptTimeout),
		notification.WithRefreshOnDelivery(cfg.Push.RefreshOnDelivery()),
		notification.WithLogger(zlog.Named("dispatch")),
	)

	mapper := events.NewMapper(dispatcher, zlog.Named("events"))
	queue := events.NewQueue(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, mapper, zlog.Named("queue"))
	queue.Start(ctx)

	handler := api.NewHandler(appStore, dispatcher, queue, webpushOptions, zlog.Named("api"))
	router := api.NewRouter(cfg, handler, zlog.Named("http"))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zlog.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	zlog.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP server Shutdown", zap.Error(err))
	}
	cancel()

	zlog.Info("server gracefully stopped")
}
