package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "famfin/internal/errors"
	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
)

// projectionService reads period projections through their denormalized owner fields.
type projectionService struct {
	db          *gorm.DB
	obligations ObligationServicer
}

// NewProjectionService creates a new ProjectionServicer.
func NewProjectionService(db *gorm.DB, obligations ObligationServicer) ProjectionServicer {
	return &projectionService{db: db, obligations: obligations}
}

// Get returns a projection visible to the principal.
func (s *projectionService) Get(ctx context.Context, p Principal, id string) (*models.PeriodProjection, error) {
	var proj models.PeriodProjection
	if err := s.db.WithContext(ctx).Scopes(visibleTo(p)).Where("id = ?", id).First(&proj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProjectionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &proj, nil
}

// ListForObligation returns a paginated list of an obligation's projections in
// chronological order.
func (s *projectionService) ListForObligation(ctx context.Context, p Principal, obligationID string, filter ProjectionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.PeriodProjection], error) {
	if _, err := s.obligations.Get(ctx, p, obligationID); err != nil {
		return nil, err
	}
	page.Normalize()

	base := s.db.WithContext(ctx).Model(&models.PeriodProjection{}).Where("obligation_id = ?", obligationID)
	if filter.PeriodType != nil {
		base = base.Where("period_type = ?", *filter.PeriodType)
	}
	if filter.From != nil {
		base = base.Where("period_end >= ?", period.DateOf(*filter.From))
	}
	if filter.To != nil {
		base = base.Where("period_start <= ?", period.DateOf(*filter.To))
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var projections []models.PeriodProjection
	if err := base.Scopes(pagination.Paginate(page)).
		Order("period_start ASC, period_type ASC").
		Find(&projections).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(projections, page.Page, page.PageSize, totalItems)
	return &result, nil
}
