package services

import (
	"context"
	"time"

	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
)

// timeNow is the services' clock. Tests replace it to pin "today".
var timeNow = time.Now

// Principal is the authenticated caller as reported by the identity provider.
type Principal struct {
	ID      string
	GroupID string
	Role    string
}

// ItemError records one failed item of a bulk or best-effort operation.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SweepTypeResult reports the current-period determination for one lattice.
type SweepTypeResult struct {
	Type       period.Type `json:"type"`
	CurrentID  string      `json:"current_id"`
	Candidates int         `json:"candidates"`
	Cleared    int64       `json:"cleared"`
}

// SweepResult is the outcome of one current-period sweep.
type SweepResult struct {
	Types []SweepTypeResult `json:"types"`
}

// SourcePeriodServicer defines the contract for the persisted period lattice.
type SourcePeriodServicer interface {
	GeneratePeriods(ctx context.Context, t period.Type, anchor, horizonEnd time.Time) (int64, error)
	EnsureRange(ctx context.Context, from, to time.Time) (int64, error)
	EnsureHorizon(ctx context.Context, now time.Time, leadMonths int) (int64, error)
	SweepCurrent(ctx context.Context, now time.Time) (*SweepResult, error)
	GetCurrent(ctx context.Context, t period.Type, now time.Time) (*models.SourcePeriod, error)
	GetByID(ctx context.Context, id string) (*models.SourcePeriod, error)
	InWindow(ctx context.Context, t period.Type, from, to time.Time) ([]models.SourcePeriod, error)
	List(ctx context.Context, filter PeriodFilter, page pagination.PageRequest) (*pagination.PageResponse[models.SourcePeriod], error)
}

// PeriodFilter holds optional filter parameters for listing source periods.
type PeriodFilter struct {
	Type *period.Type
	From *time.Time
	To   *time.Time
}

// CreateObligationInput holds the fields of a new obligation. StartDate falls back to
// the start of AnchorPeriodID, then to today.
type CreateObligationInput struct {
	Kind           models.ObligationKind
	Name           string
	Category       string
	AmountCents    int64
	Frequency      string
	StartDate      *time.Time
	EndDate        *time.Time
	NextDueDate    *time.Time
	StreamID       *string
	AccountID      *string
	Shared         bool
	AnchorPeriodID string
}

// UpdateObligationInput holds the editable fields; nil leaves a field unchanged.
type UpdateObligationInput struct {
	Name        *string
	Category    *string
	AmountCents *int64
	Frequency   *string
	EndDate     *time.Time
	NextDueDate *time.Time
}

// ObligationFilter holds optional filter parameters for listing obligations.
type ObligationFilter struct {
	Kind     *models.ObligationKind
	IsActive *bool
}

// ObligationServicer defines the contract for obligation-related business logic.
type ObligationServicer interface {
	Create(ctx context.Context, p Principal, in CreateObligationInput) (*models.Obligation, error)
	Get(ctx context.Context, p Principal, id string) (*models.Obligation, error)
	List(ctx context.Context, p Principal, filter ObligationFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Obligation], error)
	Update(ctx context.Context, p Principal, id string, in UpdateObligationInput) (*models.Obligation, error)
	Deactivate(ctx context.Context, p Principal, id string) (*models.Obligation, error)
}

// ProjectionFilter holds optional filter parameters for listing projections.
type ProjectionFilter struct {
	PeriodType *period.Type
	From       *time.Time
	To         *time.Time
}

// ProjectionServicer defines the contract for reading period projections.
type ProjectionServicer interface {
	Get(ctx context.Context, p Principal, id string) (*models.PeriodProjection, error)
	ListForObligation(ctx context.Context, p Principal, obligationID string, filter ProjectionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.PeriodProjection], error)
}

// MaterializeOptions tunes one materialization. Zero values use the configured defaults.
type MaterializeOptions struct {
	AnchorPeriodID string
	HorizonMonths  int
}

// MaterializeResult reports one obligation's materialization.
type MaterializeResult struct {
	ObligationID string    `json:"obligation_id"`
	Anchor       time.Time `json:"anchor"`
	HorizonEnd   time.Time `json:"horizon_end"`
	Created      int64     `json:"created"`
	Existing     int64     `json:"existing"`
}

// MaterializeSummary reports a multi-obligation materialization.
type MaterializeSummary struct {
	Processed int         `json:"processed"`
	Created   int64       `json:"created"`
	Errors    []ItemError `json:"errors"`
}

// Gap-fill outcomes.
const (
	FillGapCreated = "created"
	FillGapExists  = "exists"
	FillGapSkipped = "skipped"

	SkipBeforeStart = "before_start"
	SkipAfterEnd    = "after_end"
	SkipInactive    = "inactive"
)

// FillGapResult reports a single-period backfill.
type FillGapResult struct {
	ProjectionID string `json:"projection_id"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// MaterializerServicer defines the contract for creating period projections.
type MaterializerServicer interface {
	Materialize(ctx context.Context, obligationID string, opts MaterializeOptions) (*MaterializeResult, error)
	MaterializeMany(ctx context.Context, obligationIDs []string) *MaterializeSummary
	MaterializeAllActive(ctx context.Context) (*MaterializeSummary, error)
	MaterializeBestEffort(ctx context.Context, obligationID string)
	FillGap(ctx context.Context, obligationID, periodID string) (*FillGapResult, error)
}

// AggregatorServicer defines the contract for recomputing projection aggregates.
type AggregatorServicer interface {
	Recompute(ctx context.Context, projectionID string) (*models.PeriodProjection, error)
	RecomputeMany(ctx context.Context, projectionIDs []string) []ItemError
}

// SplitInput attributes part of a transaction to an obligation. ProjectionID is
// optional; without it the split lands in the obligation's projection containing the
// transaction date.
type SplitInput struct {
	ObligationID string
	ProjectionID string
	AmountCents  int64
}

// TransactionInput holds the fields of a new or replaced transaction.
type TransactionInput struct {
	AmountCents int64
	Date        time.Time
	Description string
	AccountID   *string
	StreamID    *string
	ExternalID  *string
	Splits      []SplitInput
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate     *time.Time
	ToDate       *time.Time
	ObligationID *string
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	Create(ctx context.Context, p Principal, in TransactionInput) (*models.Transaction, error)
	Get(ctx context.Context, p Principal, id string) (*models.Transaction, error)
	List(ctx context.Context, p Principal, filter TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	Update(ctx context.Context, p Principal, id string, in TransactionInput) (*models.Transaction, error)
	Delete(ctx context.Context, p Principal, id string) error
}

// FeedEvent is one dated monetary event from the external transaction feed.
type FeedEvent struct {
	ExternalID  string
	AmountCents int64
	Date        time.Time
	StreamID    string
	Cadence     string
	AccountID   *string
	Description string
}

// FeedResult reports an ingested feed event.
type FeedResult struct {
	Transaction *models.Transaction `json:"transaction"`
	Duplicate   bool                `json:"duplicate"`
	NextDueDate *time.Time          `json:"next_due_date,omitempty"`
}

// FeedServicer defines the contract for ingesting the external transaction feed.
type FeedServicer interface {
	IngestFeedEvent(ctx context.Context, p Principal, ev FeedEvent) (*FeedResult, error)
}

// ReconcileResult reports the repair of one obligation's projections.
type ReconcileResult struct {
	ObligationID string      `json:"obligation_id"`
	Refreshed    int         `json:"refreshed"`
	Rederived    int         `json:"rederived"`
	Errors       []ItemError `json:"errors"`
}

// ReconcileSummary reports a stale-projection repair run.
type ReconcileSummary struct {
	Obligations int         `json:"obligations"`
	Projections int         `json:"projections"`
	Errors      []ItemError `json:"errors"`
}

// ReconcileServicer defines the contract for repairing stale denormalized projections.
type ReconcileServicer interface {
	ReconcileObligation(ctx context.Context, obligationID string) (*ReconcileResult, error)
	ReconcileStale(ctx context.Context) (*ReconcileSummary, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(principalID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
