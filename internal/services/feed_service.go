package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/period"
	"famfin/internal/proration"
	"famfin/internal/schedule"
)

// feedService records events from the external transaction feed against the
// obligations linked to their recurrence streams.
type feedService struct {
	db           *gorm.DB
	transactions TransactionServicer
}

// NewFeedService creates a new FeedServicer.
func NewFeedService(db *gorm.DB, transactions TransactionServicer) FeedServicer {
	return &feedService{db: db, transactions: transactions}
}

// IngestFeedEvent records ev once per external id and advances the linked obligation's
// next-due estimate along the reported cadence.
func (s *feedService) IngestFeedEvent(ctx context.Context, p Principal, ev FeedEvent) (*FeedResult, error) {
	if ev.ExternalID == "" || ev.StreamID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "external_id and stream_id are required")
	}

	var o models.Obligation
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND stream_id = ? AND kind IN ?", p.ID, ev.StreamID,
			[]models.ObligationKind{models.ObligationKindOutflow, models.ObligationKindInflow}).
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrStreamNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	// Deleted transactions keep their external id so a replayed event stays a duplicate.
	var existing models.Transaction
	err := s.db.WithContext(ctx).Unscoped().
		Where("owner_id = ? AND external_id = ?", p.ID, ev.ExternalID).
		First(&existing).Error
	if err == nil {
		logger.Named("feed").Infow("duplicate feed event", "external_id", ev.ExternalID, "transaction_id", existing.ID)
		return &FeedResult{Transaction: &existing, Duplicate: true}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	externalID, streamID := ev.ExternalID, ev.StreamID
	tx, err := s.transactions.Create(ctx, p, TransactionInput{
		AmountCents: ev.AmountCents,
		Date:        ev.Date,
		Description: ev.Description,
		AccountID:   ev.AccountID,
		StreamID:    &streamID,
		ExternalID:  &externalID,
		Splits:      []SplitInput{{ObligationID: o.ID, AmountCents: ev.AmountCents}},
	})
	if err != nil {
		return nil, err
	}

	result := &FeedResult{Transaction: tx}
	next, err := nextDueDate(ev.Cadence, o.Frequency, ev.Date)
	if err != nil {
		logger.Named("feed").Warnw("cannot estimate next due date",
			"obligation_id", o.ID,
			"cadence", ev.Cadence,
			"error", err,
		)
		return result, nil
	}
	if o.NextDueDate == nil || next.After(*o.NextDueDate) {
		if err := s.db.WithContext(ctx).Model(&o).Update("next_due_date", next).Error; err != nil {
			logger.Named("feed").Errorw("failed to update next due date", "obligation_id", o.ID, "error", err)
			return result, nil
		}
	}
	result.NextDueDate = &next
	return result, nil
}

// nextDueDate projects the occurrence after date along cadence, falling back to the
// obligation's own frequency when the feed reports none.
func nextDueDate(cadence, fallback string, date time.Time) (time.Time, error) {
	if cadence == "" {
		cadence = fallback
	}
	sched, err := schedule.New(proration.Frequency(cadence), date)
	if err != nil {
		return time.Time{}, err
	}
	return period.DateOf(sched.After(date)), nil
}
