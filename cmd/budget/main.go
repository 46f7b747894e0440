package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/cli"
	apphttp "envelopes/internal/http"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

const amqpDialAttempts = 5

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backend := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	// Warnings are still shown in the UI when messaging is disabled.
	var publisher services.WarningPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		dialCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := amqp.Dial(dialCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqpDialAttempts)
		cancel()
		if err != nil {
			logger.Error("Failed to connect to AMQP, continuing without warning events", log.FieldError, err)
		} else {
			amqpClient = client
			publisher = client
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		SummaryCacheTTL:    cfg.SummaryCacheTTL,
		WarningSessionTTL:  cfg.WarningSessionTTL,
	}, backend.Repository, publisher, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting envelopes server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
