// Command worker runs the asynchronous payment-processing worker: it
// drains payment jobs from the shared main queue and forwards each to one
// of two external payment-processor endpoints, cooperating with sibling
// instances through the shared data store. The process is headless — it
// loads configuration, wires its dependencies, and runs its two control
// loops until signalled to stop.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lucas-de-lima/rinha-payment-worker/internal/config"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/dispatch"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/healthcache"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/healthcheck"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/history"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/processor"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/queue"
	"github.com/lucas-de-lima/rinha-payment-worker/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := store.NewRedisClient(ctx, store.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		DB:       cfg.RedisDB,
		Timeout:  cfg.RedisTimeout(),
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Error("bootstrap failed: cannot reach shared data store", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	procClient := processor.New(cfg.DefaultProcessorURL, cfg.FallbackProcessorURL, log)
	healthCache := healthcache.New(redisClient)
	recorder := history.New(redisClient, log)
	publisher := queue.NewPublisher(redisClient, cfg.MainQueueKey)

	engine := dispatch.New(procClient, healthCache, recorder, publisher, dispatch.Config{
		AssumeHealthyWhenUnknown:    cfg.AssumeHealthyWhenUnknown,
		MaxRetryAttemptsPerDispatch: cfg.MaxRetryAttemptsPerDispatch,
		MaxReenqueueCount:           cfg.MaxReenqueueCount,
	}, log)

	consumer := queue.New(redisClient, engine, queue.Config{
		QueueKey:              cfg.MainQueueKey,
		MaxConcurrentPayments: cfg.MaxConcurrentPayments,
		BatchSize:             cfg.BatchSize,
		ExecutionDelay:        cfg.ExecutionDelay(),
	}, log)

	orchestrator := healthcheck.New(redisClient, procClient, healthCache, log)

	log.Info("worker starting",
		"maxConcurrentPayments", cfg.MaxConcurrentPayments,
		"batchSize", cfg.BatchSize,
		"executionDelay", cfg.ExecutionDelay(),
	)

	done := make(chan struct{}, 2)
	go func() { consumer.Run(ctx); done <- struct{}{} }()
	go func() { orchestrator.Run(ctx); done <- struct{}{} }()

	<-ctx.Done()
	log.Info("shutdown signal received, stopping control loops")
	<-done
	<-done
	log.Info("worker stopped")
}
