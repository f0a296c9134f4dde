package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "famfin/internal/errors"
	"famfin/internal/events"
	"famfin/internal/models"
	"famfin/internal/testutil"
)

// stubAggregator fails every recompute with err.
type stubAggregator struct {
	err   error
	calls []string
}

func (s *stubAggregator) Recompute(_ context.Context, id string) (*models.PeriodProjection, error) {
	s.calls = append(s.calls, id)
	return nil, s.err
}

func (s *stubAggregator) RecomputeMany(_ context.Context, ids []string) []ItemError {
	out := []ItemError{}
	for _, id := range ids {
		s.calls = append(s.calls, id)
		out = append(out, ItemError{ID: id, Error: s.err.Error()})
	}
	return out
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"missing_obligation", apperrors.ErrObligationNotFound, false},
		{"inactive_obligation", apperrors.ErrObligationInactive, false},
		{"missing_projection", fmt.Errorf("projection x: %w", apperrors.ErrProjectionNotFound), false},
		{"bad_period", apperrors.WithMessage(apperrors.ErrPeriodNotFound, "2025Q1"), false},
		{"bad_frequency", apperrors.Wrap(apperrors.ErrInvalidFrequency, errors.New("unknown")), false},
		{"contention", apperrors.Wrap(apperrors.ErrVersionConflict, errStaleVersion), true},
		{"database", apperrors.Wrap(apperrors.ErrInternalServer, errors.New("connection reset")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestEventHandler_Worker(t *testing.T) {
	setNow(t, testutil.Date(2025, 1, 10))

	t.Run("obligation_created_materializes", func(t *testing.T) {
		env := newTestEnv(t)
		h := NewEventHandler(env.materializer, env.aggregator, env.reconciler, false)
		bill := testutil.CreateTestOutflow(t, env.db, testutil.NewPrincipalID(), "monthly", 1000, testutil.Date(2025, 1, 15))

		ev := events.New(events.ObligationCreated)
		ev.ObligationID = bill.ID
		testutil.AssertNoError(t, h.Handle(ctx, ev))

		if env.countProjections(t, bill.ID) == 0 {
			t.Error("expected projections after handling the event")
		}
		// Redelivery is harmless.
		before := env.countProjections(t, bill.ID)
		testutil.AssertNoError(t, h.Handle(ctx, ev))
		if after := env.countProjections(t, bill.ID); after != before {
			t.Errorf("expected %d projections after redelivery, got %d", before, after)
		}
	})

	t.Run("permanent_failures_are_dropped", func(t *testing.T) {
		env := newTestEnv(t)
		h := NewEventHandler(env.materializer, env.aggregator, env.reconciler, false)

		created := events.New(events.ObligationCreated)
		created.ObligationID = testutil.NewPrincipalID()
		if err := h.Handle(ctx, created); err != nil {
			t.Errorf("expected a missing obligation to be dropped, got %v", err)
		}

		changed := events.New(events.TransactionChanged)
		changed.ProjectionIDs = []string{"gone_2025M01"}
		if err := h.Handle(ctx, changed); err != nil {
			t.Errorf("expected a missing projection to be dropped, got %v", err)
		}
	})

	t.Run("contention_is_redelivered", func(t *testing.T) {
		env := newTestEnv(t)
		agg := &stubAggregator{err: apperrors.Wrap(apperrors.ErrVersionConflict, errStaleVersion)}
		h := NewEventHandler(env.materializer, agg, env.reconciler, false)

		ev := events.New(events.TransactionChanged)
		ev.ProjectionIDs = []string{"a_2025M01", "b_2025M01", "a_2025M01"}
		err := h.Handle(ctx, ev)
		if !errors.Is(err, apperrors.ErrVersionConflict) {
			t.Errorf("expected a version conflict, got %v", err)
		}
		if len(agg.calls) != 2 {
			t.Errorf("expected each projection tried once, got %v", agg.calls)
		}
	})

	t.Run("best_effort_swallows_contention", func(t *testing.T) {
		env := newTestEnv(t)
		agg := &stubAggregator{err: apperrors.Wrap(apperrors.ErrVersionConflict, errStaleVersion)}
		h := NewEventHandler(env.materializer, agg, env.reconciler, true)

		ev := events.New(events.TransactionChanged)
		ev.ProjectionIDs = []string{"a_2025M01"}
		testutil.AssertNoError(t, h.Handle(ctx, ev))
		if len(agg.calls) != 1 {
			t.Errorf("expected one attempt, got %v", agg.calls)
		}
	})

	t.Run("obligation_updated_reconciles", func(t *testing.T) {
		env := newTestEnv(t)
		h := NewEventHandler(env.materializer, env.aggregator, env.reconciler, false)
		bill := materializedBill(t, env, testutil.NewPrincipalID(), 1000)
		bumpObligation(t, env.db, bill, map[string]any{"amount_cents": 1500})

		ev := events.New(events.ObligationUpdated)
		ev.ObligationID = bill.ID
		testutil.AssertNoError(t, h.Handle(ctx, ev))

		if p := env.projection(t, bill.ID, "2025M01"); p.TotalAmountDue != 1500 || p.ObligationVersion != 2 {
			t.Errorf("expected January re-derived to 1500 at version 2, got %d at %d", p.TotalAmountDue, p.ObligationVersion)
		}
	})

	t.Run("unknown_type_is_ignored", func(t *testing.T) {
		env := newTestEnv(t)
		h := NewEventHandler(env.materializer, env.aggregator, env.reconciler, false)

		testutil.AssertNoError(t, h.Handle(ctx, events.Event{ID: "x", Type: "budget.exploded"}))
	})
}
