package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tirelire/internal/amqp"
	"tirelire/internal/backend"
	"tirelire/internal/cli"
	"tirelire/internal/core"
	tirehttp "tirelire/internal/http"
	"tirelire/internal/log"
	"tirelire/internal/services"
	"tirelire/internal/store"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger)

	localCfg, err := backend.LocalFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid local backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	local, err := factory.CreateStore(ctx, localCfg)
	if err != nil {
		logger.Error("Failed to initialize local store", log.FieldError, err)
		os.Exit(1)
	}

	var mirror store.Store
	if mirrorCfg, ok, err := backend.MirrorFromAppConfig(cfg); err != nil {
		logger.Error("Invalid mirror backend configuration", log.FieldError, err)
		os.Exit(1)
	} else if ok {
		result, err := factory.CreateStore(ctx, mirrorCfg)
		if err != nil {
			logger.Error("Failed to initialize mirror store", log.FieldError, err)
			os.Exit(1)
		}
		mirror = result.Store
	}

	// The sqlite repository doubles as the push outbox; the memory backend
	// has none and runs without queued mirroring.
	outbox, _ := local.Store.(services.Outbox)

	var queue services.Publisher
	var amqpClient *amqp.Client
	if mirror != nil {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on outbox poll", log.FieldError, err)
		} else {
			queue = amqpClient
		}
	}

	carryMode, err := core.ParseCarryMode(cfg.CarryMode)
	if err != nil {
		logger.Error("Invalid carry mode", log.FieldError, err)
		os.Exit(1)
	}

	svc := services.NewLedgerService(local.Store, services.Options{
		Mirror:    mirror,
		Outbox:    outbox,
		Queue:     queue,
		CarryMode: carryMode,
	})

	server := tirehttp.NewServer(cfg, svc, logger)

	shutdownCtx, done := cli.GracefulShutdown(logger, 15*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(stopCtx); err != nil {
			logger.Error("HTTP shutdown failed", log.FieldError, err)
		}
		if amqpClient != nil {
			amqpClient.Close()
		}
		if local.Cleanup != nil {
			if err := local.Cleanup(); err != nil {
				logger.Error("Store cleanup failed", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting tirelire",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"mirror", cfg.MirrorBackend,
		"carry_mode", cfg.CarryMode)

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
}
