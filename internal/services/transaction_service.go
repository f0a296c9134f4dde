package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "famfin/internal/errors"
	"famfin/internal/events"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
)

// transactionService handles transaction-related business logic.
type transactionService struct {
	db           *gorm.DB
	obligations  ObligationServicer
	materializer MaterializerServicer
	publisher    events.Publisher
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, obligations ObligationServicer, materializer MaterializerServicer, publisher events.Publisher) TransactionServicer {
	return &transactionService{
		db:           db,
		obligations:  obligations,
		materializer: materializer,
		publisher:    publisher,
	}
}

// Create records a transaction with its splits. The projections it touches are
// recomputed after the write; their failures never undo it.
func (s *transactionService) Create(ctx context.Context, p Principal, in TransactionInput) (*models.Transaction, error) {
	splits, err := s.resolveSplits(ctx, p, in)
	if err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		OwnerID:     p.ID,
		AccountID:   in.AccountID,
		AmountCents: in.AmountCents,
		Date:        period.DateOf(in.Date),
		Description: in.Description,
		StreamID:    in.StreamID,
		ExternalID:  in.ExternalID,
		Splits:      splits,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(transaction).Error
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.announce(ctx, transaction.ID, transaction.ProjectionIDs())
	return transaction, nil
}

// resolveSplits validates the input and attaches each split to its projection.
func (s *transactionService) resolveSplits(ctx context.Context, p Principal, in TransactionInput) ([]models.TransactionSplit, error) {
	if in.AmountCents <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Amount must be greater than zero")
	}
	if in.Date.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Date is required")
	}
	if len(in.Splits) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidSplit, "At least one split is required")
	}

	var total int64
	for _, sp := range in.Splits {
		if sp.AmountCents <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidSplit, "Split amounts must be greater than zero")
		}
		if sp.ObligationID == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidSplit, "Each split must name an obligation")
		}
		total += sp.AmountCents
	}
	if total > in.AmountCents {
		return nil, apperrors.ErrSplitExceedsTotal
	}

	out := make([]models.TransactionSplit, 0, len(in.Splits))
	for _, sp := range in.Splits {
		o, err := s.obligations.Get(ctx, p, sp.ObligationID)
		if err != nil {
			return nil, err
		}
		projectionID, err := s.resolveProjection(ctx, o, sp.ProjectionID, in.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, models.TransactionSplit{
			ObligationID: o.ID,
			ProjectionID: projectionID,
			AmountCents:  sp.AmountCents,
		})
	}
	return out, nil
}

// resolveProjection returns the explicit projection when it belongs to o, else o's
// projection in its primary lattice containing date, backfilling it when missing.
func (s *transactionService) resolveProjection(ctx context.Context, o *models.Obligation, projectionID string, date time.Time) (string, error) {
	if projectionID != "" {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.PeriodProjection{}).
			Where("id = ? AND obligation_id = ?", projectionID, o.ID).
			Count(&count).Error; err != nil {
			return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count == 0 {
			return "", apperrors.ErrProjectionNotFound
		}
		return projectionID, nil
	}

	t, err := o.PrimaryPeriodType()
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidFrequency, err)
	}
	containing, err := period.Containing(t, date)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidPeriodType, err)
	}

	res, err := s.materializer.FillGap(ctx, o.ID, containing.ID)
	if err != nil {
		return "", err
	}
	if res.Status == FillGapSkipped {
		return "", apperrors.WithMessagef(apperrors.ErrProjectionNotFound,
			"Obligation has no projection for %s (%s)", containing.ID, res.Reason)
	}
	return res.ProjectionID, nil
}

// Get returns one of the principal's transactions with its splits.
func (s *transactionService) Get(ctx context.Context, p Principal, id string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.WithContext(ctx).Preload("Splits").
		Where("id = ? AND owner_id = ?", id, p.ID).
		First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// List returns a paginated, filtered list of the principal's transactions.
func (s *transactionService) List(ctx context.Context, p Principal, filter TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Normalize()

	base := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("owner_id = ?", p.ID)
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Preload("Splits").
		Scopes(pagination.Paginate(page)).
		Order("date DESC, id DESC").
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", period.DateOf(*f.FromDate))
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", period.DateOf(*f.ToDate))
	}
	if f.ObligationID != nil {
		q = q.Where("id IN (SELECT transaction_id FROM transaction_splits WHERE obligation_id = ?)", *f.ObligationID)
	}
	return q
}

// Update replaces a transaction's fields and splits. The projections it leaves are
// recomputed separately from the ones it joins.
func (s *transactionService) Update(ctx context.Context, p Principal, id string, in TransactionInput) (*models.Transaction, error) {
	existing, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	oldIDs := existing.ProjectionIDs()

	splits, err := s.resolveSplits(ctx, p, in)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"amount_cents": in.AmountCents,
		"date":         period.DateOf(in.Date),
		"description":  in.Description,
		"account_id":   in.AccountID,
	}
	if in.StreamID != nil {
		updates["stream_id"] = *in.StreamID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transaction_id = ?", existing.ID).Delete(&models.TransactionSplit{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		for i := range splits {
			splits[i].TransactionID = existing.ID
		}
		return tx.Create(&splits).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	updated, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	newIDs := updated.ProjectionIDs()
	if left := difference(oldIDs, newIDs); len(left) > 0 {
		s.announce(ctx, updated.ID, left)
	}
	s.announce(ctx, updated.ID, newIDs)
	return updated, nil
}

// Delete soft-deletes a transaction and drops its splits, reversing its contribution to
// every projection it was attributed to.
func (s *transactionService) Delete(ctx context.Context, p Principal, id string) error {
	existing, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	oldIDs := existing.ProjectionIDs()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transaction_id = ?", existing.ID).Delete(&models.TransactionSplit{}).Error; err != nil {
			return err
		}
		return tx.Delete(existing).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.announce(ctx, existing.ID, oldIDs)
	return nil
}

func (s *transactionService) announce(ctx context.Context, transactionID string, projectionIDs []string) {
	if len(projectionIDs) == 0 {
		return
	}
	ev := events.New(events.TransactionChanged)
	ev.TransactionID = transactionID
	ev.ProjectionIDs = projectionIDs
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Named("transactions").Errorw("failed to publish transaction event",
			"transaction_id", transactionID,
			"projections", projectionIDs,
			"error", err,
		)
	}
}

// difference returns the ids in a that are not in b.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, id := range b {
		in[id] = true
	}
	var out []string
	for _, id := range a {
		if !in[id] {
			out = append(out, id)
		}
	}
	return out
}
