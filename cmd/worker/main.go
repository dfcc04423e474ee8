package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/blob"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/broker"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/config"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/integrations"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/logging"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/notify"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/store"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/telemetry"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Workers run on their own context so a signal does not cancel jobs
	// mid-flight. The signal only triggers the graceful drain below; ctx is
	// canceled after the drain finishes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connect postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		log.Error("migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var blobs blob.Store
	if cfg.S3Bucket != "" {
		blobs, err = blob.NewS3Store(ctx, cfg)
		if err != nil {
			log.Error("init s3 blob store", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		blobs = blob.NewLocalStore(cfg.BlobLocalDir)
		log.Warn("S3_BUCKET not set, using local blob store", slog.String("dir", cfg.BlobLocalDir))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	q := broker.New(rdb, broker.Options{
		Queues: []string{
			models.QueueScreenshot,
			models.QueueReplay,
			models.QueueIntegration,
			models.QueueNotification,
		},
		LeaseTimeout: cfg.LeaseTimeout,
		Retention:    cfg.JobRetention,
	})
	if err := q.Init(ctx); err != nil {
		log.Error("init broker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := integrations.NewRegistry()
	if cfg.IntegrationWebhookURL != "" {
		registry.Register(integrations.NewWebhookIntegration("webhook", cfg.IntegrationWebhookURL))
	}

	var notifier notify.Sender = notify.NewWebhookSender("webhook", cfg.NotificationWebhookURL)

	mgr := worker.NewManager(cfg, worker.Deps{
		Broker:       q,
		Records:      st,
		Blobs:        blobs,
		Integrations: registry,
		Notifier:     notifier,
		Redis:        rdb,
		Log:          log,
	})
	if err := mgr.Start(ctx); err != nil {
		log.Error("start worker manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	log.Info("worker service started",
		slog.String("metrics_addr", cfg.MetricsAddr),
		slog.Duration("job_timeout", cfg.JobTimeout),
		slog.Duration("lease_timeout", cfg.LeaseTimeout),
	)

	<-sigCh
	log.Info("shutting down")
	mgr.Shutdown(context.Background())
	cancel()
	if err := q.Shutdown(); err != nil {
		log.Warn("broker shutdown", slog.String("error", err.Error()))
	}
}
