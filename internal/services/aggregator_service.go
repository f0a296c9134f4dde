package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"famfin/internal/config"
	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
	"famfin/internal/models"
)

// errStaleVersion signals that a projection changed between read and write.
var errStaleVersion = errors.New("projection version changed")

// aggregatorService keeps projection aggregates in step with their attributed splits.
type aggregatorService struct {
	db          *gorm.DB
	dueSoonDays int
	maxAttempts int
	baseBackoff time.Duration
	concurrency int
}

// NewAggregatorService creates a new AggregatorServicer.
func NewAggregatorService(db *gorm.DB, cfg *config.Config) AggregatorServicer {
	return &aggregatorService{
		db:          db,
		dueSoonDays: cfg.DueSoonDays,
		maxAttempts: max(cfg.RecomputeMaxAttempts, 1),
		baseBackoff: cfg.RecomputeBaseBackoff,
		concurrency: max(cfg.RecomputeConcurrency, 1),
	}
}

// Recompute rebuilds a projection's aggregates from scratch. The write is guarded by the
// projection version; on a conflicting write the whole read-compute-write cycle is
// retried with exponential backoff until the attempts run out.
func (s *aggregatorService) Recompute(ctx context.Context, projectionID string) (*models.PeriodProjection, error) {
	backoff := s.baseBackoff
	for attempt := 1; ; attempt++ {
		p, err := s.recomputeOnce(ctx, projectionID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, errStaleVersion) {
			return nil, err
		}
		if attempt >= s.maxAttempts {
			logger.Named("aggregator").Warnw("giving up on contended projection",
				"projection_id", projectionID,
				"attempts", attempt,
			)
			return nil, apperrors.Wrap(apperrors.ErrVersionConflict, err)
		}

		logger.Named("aggregator").Debugw("version conflict, retrying",
			"projection_id", projectionID,
			"attempt", attempt,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *aggregatorService) recomputeOnce(ctx context.Context, projectionID string) (*models.PeriodProjection, error) {
	db := s.db.WithContext(ctx)

	var p models.PeriodProjection
	if err := db.Where("id = ?", projectionID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProjectionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	events, err := s.attributedEvents(ctx, projectionID)
	if err != nil {
		return nil, err
	}

	readVersion := p.Version
	Aggregate(&p, events, timeNow(), s.dueSoonDays)
	p.Version = readVersion + 1

	res := db.Model(&models.PeriodProjection{}).
		Where("id = ? AND version = ?", p.ID, readVersion).
		Updates(aggregateColumns(&p))
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errStaleVersion
	}
	return &p, nil
}

// attributedEvents loads the live transactions with splits pointing at the projection.
func (s *aggregatorService) attributedEvents(ctx context.Context, projectionID string) ([]AttributedEvent, error) {
	db := s.db.WithContext(ctx)

	var splits []models.TransactionSplit
	if err := db.Where("projection_id = ?", projectionID).Find(&splits).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(splits) == 0 {
		return nil, nil
	}

	amounts := make(map[string]int64, len(splits))
	ids := make([]string, 0, len(splits))
	for _, sp := range splits {
		if _, ok := amounts[sp.TransactionID]; !ok {
			ids = append(ids, sp.TransactionID)
		}
		amounts[sp.TransactionID] += sp.AmountCents
	}

	var txs []models.Transaction
	if err := db.Where("id IN ?", ids).Order("date ASC, id ASC").Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	events := make([]AttributedEvent, 0, len(txs))
	for _, tx := range txs {
		events = append(events, AttributedEvent{
			TransactionID: tx.ID,
			Date:          tx.Date,
			AmountCents:   amounts[tx.ID],
		})
	}
	return events, nil
}

// aggregateColumns lists every column a recompute owns.
func aggregateColumns(p *models.PeriodProjection) map[string]any {
	return map[string]any{
		"actual_amount":              p.ActualAmount,
		"total_amount_due":           p.TotalAmountDue,
		"total_amount_paid":          p.TotalAmountPaid,
		"total_amount_unpaid":        p.TotalAmountUnpaid,
		"occurrence_amounts":         p.OccurrenceAmounts,
		"occurrence_paid_flags":      p.OccurrencePaidFlags,
		"occurrence_transaction_ids": p.OccurrenceTransactionIDs,
		"extra_transaction_ids":      p.ExtraTransactionIDs,
		"paid_count":                 p.PaidCount,
		"unpaid_count":               p.UnpaidCount,
		"percent_paid_count":         p.PercentPaidCount,
		"percent_paid_amount":        p.PercentPaidAmount,
		"is_fully_paid":              p.IsFullyPaid,
		"next_unpaid_due_date":       p.NextUnpaidDueDate,
		"status":                     p.Status,
		"is_over_budget":             p.IsOverBudget,
		"version":                    p.Version,
		"last_calculated":            p.LastCalculated,
	}
}

// RecomputeMany recomputes each projection independently. A failing projection is
// reported and never stops its siblings.
func (s *aggregatorService) RecomputeMany(ctx context.Context, projectionIDs []string) []ItemError {
	var failures itemErrors

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range dedupe(projectionIDs) {
		g.Go(func() error {
			if _, err := s.Recompute(gctx, id); err != nil {
				failures.add("aggregator", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return failures.list()
}

// dedupe drops empty and repeated ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
