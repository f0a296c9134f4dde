package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"famfin/internal/database"
	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
)

// sourcePeriodService persists and queries the shared period lattice.
type sourcePeriodService struct {
	db        *gorm.DB
	batchSize int
}

// NewSourcePeriodService creates a new SourcePeriodServicer.
func NewSourcePeriodService(db *gorm.DB, batchSize int) SourcePeriodServicer {
	return &sourcePeriodService{db: db, batchSize: batchSize}
}

// GeneratePeriods upserts the lattice of type t covering [anchor, horizonEnd] and
// returns how many periods were new. Malformed periods are logged and skipped.
func (s *sourcePeriodService) GeneratePeriods(ctx context.Context, t period.Type, anchor, horizonEnd time.Time) (int64, error) {
	if !t.Valid() {
		return 0, apperrors.ErrInvalidPeriodType
	}

	periods, skipped := period.Generate(t, anchor, horizonEnd)
	for _, err := range skipped {
		logger.Named("periods").Warnw("skipping malformed period", "type", t, "error", err)
	}
	if len(periods) == 0 {
		return 0, nil
	}

	rows := make([]models.SourcePeriod, len(periods))
	for i, p := range periods {
		rows[i] = models.NewSourcePeriod(p)
	}

	created, err := database.UpsertInBatches(s.db.WithContext(ctx), rows, s.batchSize)
	if err != nil {
		logger.Named("periods").Errorw("period generation stopped",
			"type", t,
			"created", created,
			"error", err,
		)
		return created, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return created, nil
}

// EnsureRange generates all three lattices over [from, to].
func (s *sourcePeriodService) EnsureRange(ctx context.Context, from, to time.Time) (int64, error) {
	var total int64
	for _, t := range period.Types {
		n, err := s.GeneratePeriods(ctx, t, from, to)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// EnsureHorizon keeps the lattice generated from the start of last month to
// leadMonths ahead of now.
func (s *sourcePeriodService) EnsureHorizon(ctx context.Context, now time.Time, leadMonths int) (int64, error) {
	today := period.DateOf(now)
	from := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	return s.EnsureRange(ctx, from, today.AddDate(0, leadMonths, 0))
}

// SweepCurrent recomputes is_current for every lattice from scratch by window
// containment. A lattice with zero or several candidates is logged and still gets the
// best available determination.
func (s *sourcePeriodService) SweepCurrent(ctx context.Context, now time.Time) (*SweepResult, error) {
	today := period.DateOf(now)
	log := logger.Named("periods")
	result := &SweepResult{Types: make([]SweepTypeResult, 0, len(period.Types))}

	for _, t := range period.Types {
		if _, err := s.GeneratePeriods(ctx, t, today, today); err != nil {
			return result, err
		}

		var candidates []models.SourcePeriod
		if err := s.db.WithContext(ctx).
			Where("type = ? AND start_date <= ? AND end_date >= ?", t, today, today).
			Order("period_index ASC").
			Find(&candidates).Error; err != nil {
			return result, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if len(candidates) != 1 {
			log.Warnw("unexpected current period candidates", "type", t, "count", len(candidates), "date", today.Format(time.DateOnly))
		}
		if len(candidates) == 0 {
			result.Types = append(result.Types, SweepTypeResult{Type: t})
			continue
		}

		chosen := candidates[0]
		if expected, err := period.Containing(t, today); err == nil {
			for _, c := range candidates {
				if c.ID == expected.ID {
					chosen = c
					break
				}
			}
		}

		var cleared int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.SourcePeriod{}).
				Where("type = ? AND is_current = ? AND id <> ?", t, true, chosen.ID).
				Update("is_current", false)
			if res.Error != nil {
				return res.Error
			}
			cleared = res.RowsAffected
			return tx.Model(&models.SourcePeriod{}).Where("id = ?", chosen.ID).Update("is_current", true).Error
		})
		if err != nil {
			return result, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if cleared > 0 {
			log.Infow("current period advanced", "type", t, "current", chosen.ID, "cleared", cleared)
		}
		result.Types = append(result.Types, SweepTypeResult{
			Type:       t,
			CurrentID:  chosen.ID,
			Candidates: len(candidates),
			Cleared:    cleared,
		})
	}
	return result, nil
}

// GetCurrent returns the period of type t containing now. The is_current flag is only
// a hint: a flagged period is preferred when its window holds now, then any stored
// period holding now, then the computed lattice period, which is returned unsaved.
func (s *sourcePeriodService) GetCurrent(ctx context.Context, t period.Type, now time.Time) (*models.SourcePeriod, error) {
	if !t.Valid() {
		return nil, apperrors.ErrInvalidPeriodType
	}
	today := period.DateOf(now)
	base := s.db.WithContext(ctx).Model(&models.SourcePeriod{}).
		Where("type = ? AND start_date <= ? AND end_date >= ?", t, today, today)

	var flagged models.SourcePeriod
	err := base.Session(&gorm.Session{}).Where("is_current = ?", true).First(&flagged).Error
	if err == nil {
		return &flagged, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var stored models.SourcePeriod
	err = base.Session(&gorm.Session{}).Order("period_index ASC").First(&stored).Error
	if err == nil {
		logger.Named("periods").Warnw("current flag is stale", "type", t, "period", stored.ID)
		stored.IsCurrent = true
		return &stored, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	p, err := period.Containing(t, today)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidPeriodType, err)
	}
	computed := models.NewSourcePeriod(p)
	computed.IsCurrent = true
	return &computed, nil
}

// GetByID returns a stored source period.
func (s *sourcePeriodService) GetByID(ctx context.Context, id string) (*models.SourcePeriod, error) {
	var sp models.SourcePeriod
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPeriodNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &sp, nil
}

// InWindow returns the stored periods of type t that intersect [from, to], in order.
func (s *sourcePeriodService) InWindow(ctx context.Context, t period.Type, from, to time.Time) ([]models.SourcePeriod, error) {
	var periods []models.SourcePeriod
	if err := s.db.WithContext(ctx).
		Where("type = ? AND end_date >= ? AND start_date <= ?", t, period.DateOf(from), period.DateOf(to)).
		Order("period_index ASC").
		Find(&periods).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return periods, nil
}

// List returns a paginated list of source periods ordered by start date.
func (s *sourcePeriodService) List(ctx context.Context, filter PeriodFilter, page pagination.PageRequest) (*pagination.PageResponse[models.SourcePeriod], error) {
	page.Normalize()

	base := s.db.WithContext(ctx).Model(&models.SourcePeriod{})
	if filter.Type != nil {
		base = base.Where("type = ?", *filter.Type)
	}
	if filter.From != nil {
		base = base.Where("end_date >= ?", period.DateOf(*filter.From))
	}
	if filter.To != nil {
		base = base.Where("start_date <= ?", period.DateOf(*filter.To))
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var periods []models.SourcePeriod
	if err := base.Scopes(pagination.Paginate(page)).
		Order("start_date ASC, type ASC").
		Find(&periods).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(periods, page.Page, page.PageSize, totalItems)
	return &result, nil
}
