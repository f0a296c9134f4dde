package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "famfin/internal/errors"
	"famfin/internal/events"
	"famfin/internal/logger"
)

// EventHandler routes change notifications to the materializer, the reconciler and the
// aggregator.
//
// In best-effort mode, used when notifications are dispatched inline with the API
// write, every failure is logged and swallowed. Otherwise retryable failures are
// returned so the broker redelivers the notification.
type EventHandler struct {
	materializer MaterializerServicer
	aggregator   AggregatorServicer
	reconciler   ReconcileServicer
	bestEffort   bool
}

var _ events.Handler = (*EventHandler)(nil)

// NewEventHandler creates a new EventHandler.
func NewEventHandler(materializer MaterializerServicer, aggregator AggregatorServicer, reconciler ReconcileServicer, bestEffort bool) *EventHandler {
	return &EventHandler{
		materializer: materializer,
		aggregator:   aggregator,
		reconciler:   reconciler,
		bestEffort:   bestEffort,
	}
}

// Handle processes one notification.
func (h *EventHandler) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.ObligationCreated:
		if h.bestEffort {
			h.materializer.MaterializeBestEffort(ctx, e.ObligationID)
			return nil
		}
		_, err := h.materializer.Materialize(ctx, e.ObligationID, MaterializeOptions{})
		return h.settle(e, err)

	case events.ObligationUpdated:
		_, rerr := h.reconciler.ReconcileObligation(ctx, e.ObligationID)
		// An edit can move the end date, so the horizon may need new projections.
		_, merr := h.materializer.Materialize(ctx, e.ObligationID, MaterializeOptions{})
		return errors.Join(h.settle(e, rerr), h.settle(e, merr))

	case events.TransactionChanged:
		if h.bestEffort {
			failures := h.aggregator.RecomputeMany(ctx, e.ProjectionIDs)
			if len(failures) > 0 {
				logger.Named("events").Warnw("projections left stale",
					"transaction_id", e.TransactionID,
					"failed", len(failures),
				)
			}
			return nil
		}
		var errs []error
		for _, id := range dedupe(e.ProjectionIDs) {
			if _, err := h.aggregator.Recompute(ctx, id); err != nil {
				errs = append(errs, h.settle(e, fmt.Errorf("projection %s: %w", id, err)))
			}
		}
		return errors.Join(errs...)
	}

	logger.Named("events").Warnw("ignoring unknown event", "type", e.Type, "event_id", e.ID)
	return nil
}

// settle decides whether a failure is worth a redelivery.
func (h *EventHandler) settle(e events.Event, err error) error {
	if err == nil {
		return nil
	}
	log := logger.Named("events")
	if h.bestEffort || !retryable(err) {
		log.Errorw("event handling failed",
			"type", e.Type,
			"event_id", e.ID,
			"obligation_id", e.ObligationID,
			"error", err,
		)
		return nil
	}
	return err
}

// retryable reports whether err may clear up on redelivery. Missing or inactive records
// and invalid obligation data never will.
func retryable(err error) bool {
	for _, permanent := range []*apperrors.AppError{
		apperrors.ErrObligationNotFound,
		apperrors.ErrObligationInactive,
		apperrors.ErrProjectionNotFound,
		apperrors.ErrPeriodNotFound,
		apperrors.ErrInvalidFrequency,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
