package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"famfin/internal/app"
	"famfin/internal/config"
	"famfin/internal/logger"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Worker error: %v", err)
	}
}

func run() error {
	log := logger.Named("worker")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.EventBus != "amqp" {
		return fmt.Errorf("the worker consumes from a broker, EVENT_BUS is %q", cfg.EventBus)
	}

	dbManager, err := app.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	bus, err := app.NewBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	svc := app.NewServices(dbManager.DB(), cfg, bus.Publisher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("Consuming change notifications", "queue", cfg.AMQPQueue)
	err = bus.Client().Run(ctx, svc.EventHandler(false))
	if errors.Is(err, context.Canceled) {
		log.Info("Worker stopped")
		return nil
	}
	return err
}
