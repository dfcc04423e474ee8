package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/api"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/broker"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/config"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/logging"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
	"github.com/apexbridge-tech/bugspotter-sub002/internal/ratelimit"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

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

	limiter := ratelimit.NewTokenBucket(rdb, cfg.IntakeRateCapacity, cfg.IntakeRateRefill, time.Hour)

	server := api.New(cfg, q, limiter, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Info("api listening", slog.String("port", cfg.HTTPPort))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = q.Shutdown()
}
