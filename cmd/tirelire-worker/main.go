package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"tirelire/internal/amqp"
	"tirelire/internal/backend"
	"tirelire/internal/cli"
	"tirelire/internal/log"
	"tirelire/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	mirrorCfg, ok, err := backend.MirrorFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	if !ok {
		logger.Error("Worker needs a mirror backend, set MIRROR_BACKEND to firestore or github")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger)
	mirrorResult, err := factory.CreateStore(ctx, mirrorCfg)
	if err != nil {
		logger.Error("Failed to initialize mirror store", log.FieldError, err)
		os.Exit(1)
	}

	w := worker.NewSyncWorker(repo, mirrorResult.Store, cfg.SyncBatchSize, cfg.SyncInterval)

	g, ctx := errgroup.WithContext(ctx)

	// Outbox poller, also runs the startup sweep.
	g.Go(func() error { return w.Run(ctx) })

	// Queue consumer, when the broker is reachable. The poller alone keeps
	// the mirror converging if it is not.
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, polling only", log.FieldError, err)
	} else {
		defer client.Close()
		g.Go(func() error {
			return client.ConsumePush(ctx, func(msg *amqp.PushMessage) error {
				return w.HandlePush(ctx, msg)
			})
		})
	}

	logger.Info("Starting tirelire-worker",
		"mirror", cfg.MirrorBackend,
		"batch_size", cfg.SyncBatchSize,
		"interval", cfg.SyncInterval.String())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
