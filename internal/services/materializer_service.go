package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"famfin/internal/config"
	"famfin/internal/database"
	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
	"famfin/internal/proration"
	"famfin/internal/schedule"
)

// materializerService projects obligations onto the period lattices.
type materializerService struct {
	db                   *gorm.DB
	periods              SourcePeriodServicer
	batchSize            int
	ongoingHorizonMonths int
	maxHorizonMonths     int
	dueSoonDays          int
	concurrency          int
}

// NewMaterializerService creates a new MaterializerServicer.
func NewMaterializerService(db *gorm.DB, periods SourcePeriodServicer, cfg *config.Config) MaterializerServicer {
	return &materializerService{
		db:                   db,
		periods:              periods,
		batchSize:            cfg.BatchSize,
		ongoingHorizonMonths: cfg.OngoingHorizonMonths,
		maxHorizonMonths:     cfg.MaxHorizonMonths,
		dueSoonDays:          cfg.DueSoonDays,
		concurrency:          max(cfg.RecomputeConcurrency, 1),
	}
}

func (s *materializerService) loadObligation(ctx context.Context, id string) (*models.Obligation, error) {
	var o models.Obligation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrObligationNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &o, nil
}

// Materialize creates the projections an obligation should have between its anchor and
// its horizon. Existing projections are left untouched, so the call is idempotent.
func (s *materializerService) Materialize(ctx context.Context, obligationID string, opts MaterializeOptions) (*MaterializeResult, error) {
	o, err := s.loadObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if !o.IsActive {
		return nil, apperrors.ErrObligationInactive
	}

	anchor, err := s.resolveAnchor(ctx, o, opts.AnchorPeriodID)
	if err != nil {
		return nil, err
	}
	horizonEnd := s.resolveHorizon(o, anchor, opts.HorizonMonths)
	result := &MaterializeResult{ObligationID: o.ID, Anchor: anchor, HorizonEnd: horizonEnd}
	if horizonEnd.Before(anchor) {
		return result, nil
	}

	windows, err := s.windows(ctx, o, anchor, horizonEnd)
	if err != nil {
		return nil, err
	}

	now := timeNow()
	rows := make([]models.PeriodProjection, 0, len(windows))
	for _, w := range windows {
		p, err := s.buildProjection(o, w, now)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidFrequency, err)
		}
		rows = append(rows, p)
	}

	created, err := database.UpsertInBatches(s.db.WithContext(ctx), rows, s.batchSize)
	result.Created = created
	result.Existing = int64(len(rows)) - created
	if err != nil {
		return result, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	logger.Named("materializer").Infow("obligation materialized",
		"obligation_id", o.ID,
		"kind", o.Kind,
		"anchor", anchor.Format(time.DateOnly),
		"horizon_end", horizonEnd.Format(time.DateOnly),
		"created", created,
		"existing", result.Existing,
	)
	return result, nil
}

// resolveAnchor picks the first day to materialize: the obligation's start date, else
// the start of the caller-chosen period, else today. A caller-chosen period that starts
// later than the obligation narrows the run to begin there.
func (s *materializerService) resolveAnchor(ctx context.Context, o *models.Obligation, anchorPeriodID string) (time.Time, error) {
	var anchor time.Time
	if !o.StartDate.IsZero() {
		anchor = period.DateOf(o.StartDate)
	}
	if anchorPeriodID != "" {
		sp, err := s.periods.GetByID(ctx, anchorPeriodID)
		if err != nil {
			return time.Time{}, err
		}
		if start := period.DateOf(sp.StartDate); anchor.IsZero() || start.After(anchor) {
			anchor = start
		}
	}
	if anchor.IsZero() {
		anchor = period.DateOf(timeNow())
	}
	return anchor, nil
}

// resolveHorizon returns the last day to materialize. Ongoing obligations reach
// horizonMonths past the later of anchor and today; bounded ones reach their end date,
// capped at the maximum horizon.
func (s *materializerService) resolveHorizon(o *models.Obligation, anchor time.Time, horizonMonths int) time.Time {
	base := anchor
	if today := period.DateOf(timeNow()); today.After(base) {
		base = today
	}
	if horizonMonths <= 0 {
		horizonMonths = s.ongoingHorizonMonths
	}
	limit := base.AddDate(0, min(horizonMonths, s.maxHorizonMonths), 0)

	if o.IsOngoing() {
		return limit
	}
	end := period.DateOf(*o.EndDate)
	maxEnd := base.AddDate(0, s.maxHorizonMonths, 0)
	if end.After(maxEnd) {
		return maxEnd
	}
	return end
}

// windows lists the lattice periods to project onto. Budgets generate the lattices
// directly; cadence obligations read the stored lattice after making sure it covers the
// range.
func (s *materializerService) windows(ctx context.Context, o *models.Obligation, anchor, horizonEnd time.Time) ([]period.Period, error) {
	var out []period.Period
	if o.Kind == models.ObligationKindBudget {
		for _, t := range period.Types {
			periods, skipped := period.Generate(t, anchor, horizonEnd)
			for _, err := range skipped {
				logger.Named("materializer").Warnw("skipping malformed period", "obligation_id", o.ID, "type", t, "error", err)
			}
			out = append(out, periods...)
		}
		return out, nil
	}

	if _, err := s.periods.EnsureRange(ctx, anchor, horizonEnd); err != nil {
		return nil, err
	}
	for _, t := range period.Types {
		stored, err := s.periods.InWindow(ctx, t, anchor, horizonEnd)
		if err != nil {
			return nil, err
		}
		for i := range stored {
			out = append(out, stored[i].Period())
		}
	}
	return out, nil
}

// buildProjection computes a fresh projection of o onto window w.
func (s *materializerService) buildProjection(o *models.Obligation, w period.Period, now time.Time) (models.PeriodProjection, error) {
	strategy, err := o.Strategy()
	if err != nil {
		return models.PeriodProjection{}, err
	}
	alloc, err := strategy.Allocate(proration.Window{Type: w.Type, Start: w.Start, End: w.End})
	if err != nil {
		return models.PeriodProjection{}, err
	}

	p := models.PeriodProjection{
		ID:                models.ProjectionID(o.ID, w.ID),
		ObligationID:      o.ID,
		SourcePeriodID:    w.ID,
		Kind:              o.Kind,
		PeriodType:        w.Type,
		PeriodStart:       w.Start,
		PeriodEnd:         w.End,
		ObligationVersion: o.Version,
		AllocatedAmount:   alloc.Allocated,
		NominalAmount:     alloc.Nominal,
		Status:            models.ProjectionStatusPending,
		Version:           1,
	}
	copyObligationFields(&p, o)

	if o.Kind != models.ObligationKindBudget {
		dates, err := occurrenceDates(o, w)
		if err != nil {
			return models.PeriodProjection{}, err
		}
		setOccurrences(&p, dates, o.AmountCents, nil)
	}

	Aggregate(&p, nil, now, s.dueSoonDays)
	return p, nil
}

// copyObligationFields refreshes the denormalized copy of the obligation.
func copyObligationFields(p *models.PeriodProjection, o *models.Obligation) {
	p.OwnerID = o.OwnerID
	p.GroupID = o.GroupID
	p.Name = o.Name
	p.Category = o.Category
	p.ObligationVersion = o.Version
}

// occurrenceDates returns the due dates of o inside w and inside its active range.
func occurrenceDates(o *models.Obligation, w period.Period) ([]time.Time, error) {
	start, end, ok := o.ActiveRange().Clip(proration.Window{Type: w.Type, Start: w.Start, End: w.End})
	if !ok {
		return nil, nil
	}
	sched, err := schedule.New(proration.Frequency(o.Frequency), o.StartDate)
	if err != nil {
		return nil, err
	}
	return sched.Between(start, end), nil
}

// setOccurrences lays out one slot per due date. keep maps a due date to the
// transaction that filled it before; matching slots keep their transaction.
func setOccurrences(p *models.PeriodProjection, dates []time.Time, amountCents int64, keep map[string]string) {
	n := len(dates)
	dueDates := make([]time.Time, n)
	amounts := make([]int64, n)
	flags := make([]bool, n)
	txIDs := make([]string, n)
	for i, d := range dates {
		dueDates[i] = period.DateOf(d)
		amounts[i] = amountCents
		if id, ok := keep[dueDates[i].Format(time.DateOnly)]; ok {
			txIDs[i] = id
			flags[i] = true
		}
	}

	p.OccurrenceDueDates = datatypes.NewJSONSlice(dueDates)
	p.OccurrenceAmounts = datatypes.NewJSONSlice(amounts)
	p.OccurrencePaidFlags = datatypes.NewJSONSlice(flags)
	p.OccurrenceTransactionIDs = datatypes.NewJSONSlice(txIDs)
	if p.ExtraTransactionIDs == nil {
		p.ExtraTransactionIDs = datatypes.NewJSONSlice([]string{})
	}

	p.IsDuePeriod = n > 0
	p.DueDate = nil
	if n > 0 {
		first := dueDates[0]
		p.DueDate = &first
	}
}

// MaterializeMany materializes each obligation independently with bounded concurrency.
func (s *materializerService) MaterializeMany(ctx context.Context, obligationIDs []string) *MaterializeSummary {
	var (
		failures  itemErrors
		created   atomic.Int64
		processed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range dedupe(obligationIDs) {
		g.Go(func() error {
			res, err := s.Materialize(gctx, id, MaterializeOptions{})
			processed.Add(1)
			if res != nil {
				created.Add(res.Created)
			}
			if err != nil {
				failures.add("materializer", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return &MaterializeSummary{
		Processed: int(processed.Load()),
		Created:   created.Load(),
		Errors:    failures.list(),
	}
}

// MaterializeAllActive walks every active obligation in id order, one page at a time,
// extending each to the current horizon.
func (s *materializerService) MaterializeAllActive(ctx context.Context) (*MaterializeSummary, error) {
	summary := &MaterializeSummary{Errors: []ItemError{}}

	var lastID string
	for {
		var ids []string
		if err := s.db.WithContext(ctx).Model(&models.Obligation{}).
			Where("is_active = ?", true).
			Scopes(pagination.AfterID(lastID, s.batchSize)).
			Pluck("id", &ids).Error; err != nil {
			return summary, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(ids) == 0 {
			return summary, nil
		}

		page := s.MaterializeMany(ctx, ids)
		summary.Processed += page.Processed
		summary.Created += page.Created
		summary.Errors = append(summary.Errors, page.Errors...)

		if err := ctx.Err(); err != nil {
			return summary, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		lastID = ids[len(ids)-1]
	}
}

// MaterializeBestEffort materializes after an obligation write. Failures are logged and
// never reach the writer.
func (s *materializerService) MaterializeBestEffort(ctx context.Context, obligationID string) {
	if _, err := s.Materialize(ctx, obligationID, MaterializeOptions{}); err != nil {
		logger.Named("materializer").Errorw("best-effort materialization failed",
			"obligation_id", obligationID,
			"error", err,
			"cause", errors.Unwrap(err),
		)
	}
}

// FillGap creates the single projection of an obligation onto periodID when it is
// missing and the period overlaps the obligation's active range. A period straddling
// the start date is filled, as Materialize does for the period containing the anchor;
// only periods ending before the start are skipped as before_start.
func (s *materializerService) FillGap(ctx context.Context, obligationID, periodID string) (*FillGapResult, error) {
	o, err := s.loadObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}

	w, err := s.resolvePeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	result := &FillGapResult{ProjectionID: models.ProjectionID(o.ID, w.ID)}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PeriodProjection{}).
		Where("id = ?", result.ProjectionID).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		result.Status = FillGapExists
		return result, nil
	}

	r := o.ActiveRange()
	switch {
	case !o.IsActive:
		result.Status, result.Reason = FillGapSkipped, SkipInactive
	case w.End.Before(r.Start):
		result.Status, result.Reason = FillGapSkipped, SkipBeforeStart
	case r.End != nil && w.Start.After(*r.End):
		result.Status, result.Reason = FillGapSkipped, SkipAfterEnd
	}
	if result.Status == FillGapSkipped {
		logger.Named("materializer").Infow("gap fill skipped",
			"obligation_id", o.ID,
			"period_id", w.ID,
			"reason", result.Reason,
		)
		return result, nil
	}

	p, err := s.buildProjection(o, w, timeNow())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidFrequency, err)
	}
	created, err := database.UpsertInBatches(s.db.WithContext(ctx), []models.PeriodProjection{p}, 1)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if created == 0 {
		result.Status = FillGapExists
		return result, nil
	}

	result.Status = FillGapCreated
	return result, nil
}

// resolvePeriod finds a stored period, falling back to the lattice definition for ids
// that have not been generated yet.
func (s *materializerService) resolvePeriod(ctx context.Context, periodID string) (period.Period, error) {
	sp, err := s.periods.GetByID(ctx, periodID)
	if err == nil {
		return sp.Period(), nil
	}
	if !errors.Is(err, apperrors.ErrPeriodNotFound) {
		return period.Period{}, err
	}
	p, perr := period.ParseID(periodID)
	if perr != nil {
		return period.Period{}, apperrors.WithMessage(apperrors.ErrPeriodNotFound, perr.Error())
	}
	return p, nil
}
