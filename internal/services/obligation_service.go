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

// obligationService implements ObligationServicer.
type obligationService struct {
	db        *gorm.DB
	periods   SourcePeriodServicer
	publisher events.Publisher
}

// NewObligationService creates a new ObligationServicer.
func NewObligationService(db *gorm.DB, periods SourcePeriodServicer, publisher events.Publisher) ObligationServicer {
	return &obligationService{db: db, periods: periods, publisher: publisher}
}

// Create persists a new obligation and announces it so its projections get
// materialized. The obligation is created even when that announcement fails.
func (s *obligationService) Create(ctx context.Context, p Principal, in CreateObligationInput) (*models.Obligation, error) {
	if in.AmountCents <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Amount must be greater than zero")
	}
	if !models.ValidFrequency(in.Kind, in.Frequency) {
		return nil, apperrors.ErrInvalidFrequency
	}
	if in.Kind == models.ObligationKindBudget && in.StreamID != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Budgets cannot be linked to a recurrence stream")
	}

	start, err := s.resolveStart(ctx, in)
	if err != nil {
		return nil, err
	}
	if in.EndDate != nil && period.DateOf(*in.EndDate).Before(start) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "End date must not precede the start date")
	}

	o := &models.Obligation{
		Kind:        in.Kind,
		OwnerID:     p.ID,
		Name:        in.Name,
		Category:    in.Category,
		AmountCents: in.AmountCents,
		Frequency:   in.Frequency,
		StartDate:   start,
		EndDate:     dateOrNil(in.EndDate),
		NextDueDate: dateOrNil(in.NextDueDate),
		StreamID:    in.StreamID,
		AccountID:   in.AccountID,
		IsActive:    true,
		Version:     1,
	}
	if in.Shared {
		if p.GroupID == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Cannot share without a group")
		}
		group := p.GroupID
		o.GroupID = &group
	}
	if o.Kind != models.ObligationKindBudget && o.NextDueDate == nil {
		next := start
		o.NextDueDate = &next
	}

	if o.StreamID != nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Obligation{}).
			Where("owner_id = ? AND stream_id = ?", p.ID, *o.StreamID).
			Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Recurrence stream is already linked to another obligation")
		}
	}

	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.announce(ctx, events.ObligationCreated, o)
	return o, nil
}

// resolveStart picks the explicit start date, else the start of the chosen anchor
// period, else today.
func (s *obligationService) resolveStart(ctx context.Context, in CreateObligationInput) (time.Time, error) {
	if in.StartDate != nil {
		return period.DateOf(*in.StartDate), nil
	}
	if in.AnchorPeriodID != "" {
		sp, err := s.periods.GetByID(ctx, in.AnchorPeriodID)
		if err != nil {
			return time.Time{}, err
		}
		return period.DateOf(sp.StartDate), nil
	}
	return period.DateOf(timeNow()), nil
}

// Get returns an obligation visible to the principal.
func (s *obligationService) Get(ctx context.Context, p Principal, id string) (*models.Obligation, error) {
	var o models.Obligation
	if err := s.db.WithContext(ctx).Scopes(visibleTo(p)).Where("id = ?", id).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrObligationNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &o, nil
}

// List returns a paginated list of the obligations visible to the principal.
func (s *obligationService) List(ctx context.Context, p Principal, filter ObligationFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Obligation], error) {
	page.Normalize()

	base := s.db.WithContext(ctx).Model(&models.Obligation{}).Scopes(visibleTo(p))
	if filter.Kind != nil {
		base = base.Where("kind = ?", *filter.Kind)
	}
	if filter.IsActive != nil {
		base = base.Where("is_active = ?", *filter.IsActive)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var obligations []models.Obligation
	if err := base.Scopes(pagination.Paginate(page)).
		Order("created_at DESC").
		Find(&obligations).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(obligations, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// Update applies an edit and bumps the obligation version, which marks every existing
// projection's denormalized copy as stale until reconciled.
func (s *obligationService) Update(ctx context.Context, p Principal, id string, in UpdateObligationInput) (*models.Obligation, error) {
	o, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !o.IsActive {
		return nil, apperrors.ErrObligationInactive
	}

	updates := map[string]any{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Category != nil {
		updates["category"] = *in.Category
	}
	if in.AmountCents != nil {
		if *in.AmountCents <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Amount must be greater than zero")
		}
		updates["amount_cents"] = *in.AmountCents
	}
	if in.Frequency != nil {
		if !models.ValidFrequency(o.Kind, *in.Frequency) {
			return nil, apperrors.ErrInvalidFrequency
		}
		updates["frequency"] = *in.Frequency
	}
	if in.EndDate != nil {
		end := period.DateOf(*in.EndDate)
		if end.Before(period.DateOf(o.StartDate)) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "End date must not precede the start date")
		}
		updates["end_date"] = end
	}
	if in.NextDueDate != nil {
		updates["next_due_date"] = period.DateOf(*in.NextDueDate)
	}
	if len(updates) == 0 {
		return o, nil
	}
	updates["version"] = gorm.Expr("version + 1")

	if err := s.db.WithContext(ctx).Model(o).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	updated, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, events.ObligationUpdated, updated)
	return updated, nil
}

// Deactivate stops an obligation without removing it, so its history of projections
// stays readable.
func (s *obligationService) Deactivate(ctx context.Context, p Principal, id string) (*models.Obligation, error) {
	o, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !o.IsActive {
		return o, nil
	}
	if err := s.db.WithContext(ctx).Model(o).Update("is_active", false).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	o.IsActive = false
	return o, nil
}

func (s *obligationService) announce(ctx context.Context, t events.Type, o *models.Obligation) {
	ev := events.New(t)
	ev.ObligationID = o.ID
	ev.Version = o.Version
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Named("obligations").Errorw("failed to publish obligation event",
			"type", t,
			"obligation_id", o.ID,
			"error", err,
		)
	}
}

func dateOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := period.DateOf(*t)
	return &d
}
