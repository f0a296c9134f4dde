package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"famfin/internal/app"
	"famfin/internal/config"
	"famfin/internal/logger"
	"famfin/internal/sweeper"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	code, err := run(*once)
	if err != nil {
		logger.Get().Fatalf("Sweeper error: %v", err)
	}
	logger.Sync()
	os.Exit(code)
}

func run(once bool) (int, error) {
	log := logger.Named("sweeper")

	cfg, err := config.Load()
	if err != nil {
		return 1, fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := app.OpenDatabase(cfg)
	if err != nil {
		return 1, err
	}
	defer dbManager.Close()

	bus, err := app.NewBus(cfg)
	if err != nil {
		return 1, err
	}
	defer bus.Close()

	svc := app.NewServices(dbManager.DB(), cfg, bus.Publisher)
	bus.Subscribe(svc.EventHandler(true))
	sw := sweeper.New(svc.Periods, svc.Reconciler, svc.Materializer, cfg.LatticeLeadMonths, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		result, err := sw.Run(ctx)
		if err != nil {
			return 1, err
		}
		log.Infow("sweep completed",
			"periods_created", result.PeriodsCreated,
			"projections_repaired", result.ProjectionsRepaired,
			"projections_created", result.ProjectionsCreated,
			"duration", result.Duration.String(),
		)
		if len(result.Errors) > 0 || len(result.ItemErrors) > 0 {
			for _, stepErr := range result.Errors {
				log.Errorw("sweep step failed", "step", stepErr.Step, "error", stepErr.Err)
			}
			return 2, nil
		}
		return 0, nil
	}

	log.Infow("Sweeping periodically", "interval", cfg.SweepInterval.String())
	if err := sw.Loop(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
		return 1, err
	}
	log.Info("Sweeper stopped")
	return 0, nil
}
