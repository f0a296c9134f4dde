// Package sweeper runs the periodic maintenance cycle: extend the period lattice,
// re-flag current periods, repair stale projections and top up materialization.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"famfin/internal/services"
)

// PeriodService is the part of the period lattice the sweeper maintains.
type PeriodService interface {
	EnsureHorizon(ctx context.Context, now time.Time, leadMonths int) (int64, error)
	SweepCurrent(ctx context.Context, now time.Time) (*services.SweepResult, error)
}

// StepError records a failed step of a cycle. Later steps still run.
type StepError struct {
	Step string
	Err  error
}

// RunResult contains the outcome of one sweep cycle.
type RunResult struct {
	PeriodsCreated      int64
	Sweep               *services.SweepResult
	ObligationsRepaired int
	ProjectionsRepaired int
	ObligationsTopped   int
	ProjectionsCreated  int64
	ItemErrors          []services.ItemError
	Errors              []StepError
	Duration            time.Duration
}

// Sweeper keeps the lattice and every obligation's projections current.
type Sweeper struct {
	periods      PeriodService
	reconciler   services.ReconcileServicer
	materializer services.MaterializerServicer
	leadMonths   int
	logger       *zap.SugaredLogger
	now          func() time.Time
}

// New creates a Sweeper that keeps leadMonths of lattice ahead of today.
func New(periods PeriodService, reconciler services.ReconcileServicer, materializer services.MaterializerServicer, leadMonths int, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		periods:      periods,
		reconciler:   reconciler,
		materializer: materializer,
		leadMonths:   leadMonths,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes a single cycle. Step failures are collected in the result; Run only
// returns an error when ctx is done.
func (s *Sweeper) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	now := s.now()
	result := &RunResult{}

	// 1. Keep the lattice ahead of today.
	created, err := s.periods.EnsureHorizon(ctx, now, s.leadMonths)
	if err != nil {
		result.Errors = append(result.Errors, StepError{Step: "lattice", Err: err})
	}
	result.PeriodsCreated = created

	// 2. Move the current flags.
	sweep, err := s.periods.SweepCurrent(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, StepError{Step: "sweep", Err: err})
	}
	result.Sweep = sweep

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Repair projections left behind by obligation edits.
	repaired, err := s.reconciler.ReconcileStale(ctx)
	if err != nil {
		result.Errors = append(result.Errors, StepError{Step: "reconcile", Err: err})
	} else {
		result.ObligationsRepaired = repaired.Obligations
		result.ProjectionsRepaired = repaired.Projections
		result.ItemErrors = append(result.ItemErrors, repaired.Errors...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. Extend every active obligation as the horizon rolls forward.
	topped, err := s.materializer.MaterializeAllActive(ctx)
	if err != nil {
		result.Errors = append(result.Errors, StepError{Step: "materialize", Err: err})
	} else {
		result.ObligationsTopped = topped.Processed
		result.ProjectionsCreated = topped.Created
		result.ItemErrors = append(result.ItemErrors, topped.Errors...)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Loop runs a cycle immediately and then every interval until ctx is done.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := s.Run(ctx)
		if err != nil {
			return err
		}
		s.report(result)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) report(result *RunResult) {
	s.logger.Infow("sweep completed",
		"periods_created", result.PeriodsCreated,
		"obligations_repaired", result.ObligationsRepaired,
		"projections_repaired", result.ProjectionsRepaired,
		"obligations_topped", result.ObligationsTopped,
		"projections_created", result.ProjectionsCreated,
		"item_errors", len(result.ItemErrors),
		"errors", len(result.Errors),
		"duration", result.Duration.String(),
	)
	for _, stepErr := range result.Errors {
		s.logger.Errorw("sweep step failed", "step", stepErr.Step, "error", stepErr.Err)
	}
	for _, itemErr := range result.ItemErrors {
		s.logger.Warnw("sweep item failed", "id", itemErr.ID, "error", itemErr.Error)
	}
}
