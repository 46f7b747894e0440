package main

import (
	"context"
	"os"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/cli"
	"envelopes/internal/log"
	"envelopes/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting budget-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		// Notes written to a memory store would never reach the server.
		logger.Warn("Worker is not using the sqlite backend; notes stay in this process", "backend", cfg.DataBackend)
	}

	backend := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	dialCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	client, err := amqp.Dial(dialCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 10)
	cancel()
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, nil)

	w := worker.NewNotifyWorker(backend.Repository)
	if err := w.Run(ctx, client); err != nil {
		logger.Error("Warning consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	if ctx.Err() != nil {
		<-done
	}
	logger.Info("Worker stopped gracefully")
}
