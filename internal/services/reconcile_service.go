package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/period"
	"famfin/internal/proration"
)

// reconcileService brings projections made from an older obligation version up to date.
type reconcileService struct {
	db         *gorm.DB
	aggregator AggregatorServicer
}

// NewReconcileService creates a new ReconcileServicer.
func NewReconcileService(db *gorm.DB, aggregator AggregatorServicer) ReconcileServicer {
	return &reconcileService{db: db, aggregator: aggregator}
}

// ReconcileObligation refreshes the denormalized copy on every projection behind the
// obligation's version. Projections whose window has not ended also get their amounts
// and occurrence schedule re-derived, keeping paid slots whose due date survives, and
// are then recomputed. Closed windows keep the amounts they were settled with.
func (s *reconcileService) ReconcileObligation(ctx context.Context, obligationID string) (*ReconcileResult, error) {
	var o models.Obligation
	if err := s.db.WithContext(ctx).Where("id = ?", obligationID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrObligationNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var stale []models.PeriodProjection
	if err := s.db.WithContext(ctx).
		Where("obligation_id = ? AND obligation_version < ?", o.ID, o.Version).
		Order("period_start ASC").
		Find(&stale).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := &ReconcileResult{ObligationID: o.ID}
	var failures itemErrors
	var rederived []string
	today := period.DateOf(timeNow())

	for i := range stale {
		p := &stale[i]
		open := !period.DateOf(p.PeriodEnd).Before(today)

		if err := s.reconcileProjection(ctx, &o, p, open); err != nil {
			failures.add("reconcile", p.ID, err)
			continue
		}
		result.Refreshed++
		if open {
			rederived = append(rederived, p.ID)
		}
	}

	for _, ie := range s.aggregator.RecomputeMany(ctx, rederived) {
		failures.add("reconcile", ie.ID, errors.New(ie.Error))
	}
	result.Rederived = len(rederived)
	result.Errors = failures.list()

	if len(stale) > 0 {
		logger.Named("reconcile").Infow("obligation reconciled",
			"obligation_id", o.ID,
			"version", o.Version,
			"refreshed", result.Refreshed,
			"rederived", result.Rederived,
			"errors", len(result.Errors),
		)
	}
	return result, nil
}

func (s *reconcileService) reconcileProjection(ctx context.Context, o *models.Obligation, p *models.PeriodProjection, open bool) error {
	readVersion := p.Version
	copyObligationFields(p, o)

	updates := map[string]any{
		"owner_id":           p.OwnerID,
		"group_id":           p.GroupID,
		"name":               p.Name,
		"category":           p.Category,
		"obligation_version": p.ObligationVersion,
		"version":            readVersion + 1,
	}

	if open {
		if err := rederive(o, p); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidFrequency, err)
		}
		updates["allocated_amount"] = p.AllocatedAmount
		updates["nominal_amount"] = p.NominalAmount
		updates["is_due_period"] = p.IsDuePeriod
		updates["due_date"] = p.DueDate
		updates["occurrence_due_dates"] = p.OccurrenceDueDates
		updates["occurrence_amounts"] = p.OccurrenceAmounts
		updates["occurrence_paid_flags"] = p.OccurrencePaidFlags
		updates["occurrence_transaction_ids"] = p.OccurrenceTransactionIDs
	}

	res := s.db.WithContext(ctx).Model(&models.PeriodProjection{}).
		Where("id = ? AND version = ?", p.ID, readVersion).
		Updates(updates)
	if res.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Wrap(apperrors.ErrVersionConflict, errStaleVersion)
	}
	return nil
}

// rederive recomputes the prorated amounts and occurrence slots of p from o.
func rederive(o *models.Obligation, p *models.PeriodProjection) error {
	w, err := period.ParseID(p.SourcePeriodID)
	if err != nil {
		return err
	}
	strategy, err := o.Strategy()
	if err != nil {
		return err
	}
	alloc, err := strategy.Allocate(proration.Window{Type: w.Type, Start: w.Start, End: w.End})
	if err != nil {
		return err
	}
	p.AllocatedAmount = alloc.Allocated
	p.NominalAmount = alloc.Nominal

	if !p.IsOccurrenceStyle() {
		return nil
	}
	dates, err := occurrenceDates(o, w)
	if err != nil {
		return err
	}
	keep := make(map[string]string, len(p.OccurrenceDueDates))
	for i, d := range p.OccurrenceDueDates {
		if i < len(p.OccurrenceTransactionIDs) && p.OccurrenceTransactionIDs[i] != "" {
			keep[period.DateOf(d).Format(time.DateOnly)] = p.OccurrenceTransactionIDs[i]
		}
	}
	setOccurrences(p, dates, o.AmountCents, keep)
	return nil
}

// ReconcileStale reconciles every obligation that has projections behind its version.
func (s *reconcileService) ReconcileStale(ctx context.Context) (*ReconcileSummary, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.PeriodProjection{}).
		Joins("JOIN obligations ON obligations.id = period_projections.obligation_id").
		Where("obligations.deleted_at IS NULL AND period_projections.obligation_version < obligations.version").
		Distinct().
		Pluck("period_projections.obligation_id", &ids).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summary := &ReconcileSummary{Errors: []ItemError{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		res, err := s.ReconcileObligation(ctx, id)
		summary.Obligations++
		if err != nil {
			summary.Errors = append(summary.Errors, ItemError{ID: id, Error: err.Error()})
			continue
		}
		summary.Projections += res.Refreshed
		for _, ie := range res.Errors {
			summary.Errors = append(summary.Errors, ItemError{ID: ie.ID, Error: fmt.Sprintf("obligation %s: %s", id, ie.Error)})
		}
	}
	return summary, nil
}
