package models

import (
	"time"

	"famfin/internal/period"

	"gorm.io/datatypes"
)

// ProjectionStatus is the derived payment state of a projection
type ProjectionStatus string

const (
	ProjectionStatusPending ProjectionStatus = "pending"
	ProjectionStatusDueSoon ProjectionStatus = "due_soon"
	ProjectionStatusPartial ProjectionStatus = "partial"
	ProjectionStatusPaid    ProjectionStatus = "paid"
	ProjectionStatusOverdue ProjectionStatus = "overdue"
)

// PeriodProjection maps one obligation onto one source period. The owner, group,
// name and category are copies of the obligation taken at ObligationVersion.
//
// Amounts are cents. TotalAmountPaid + TotalAmountUnpaid == TotalAmountDue after every
// recompute, and the four occurrence arrays always have equal length, ordered by due date.
type PeriodProjection struct {
	ID             string         `gorm:"primaryKey;size:64" json:"id"`
	ObligationID   string         `gorm:"not null;index" json:"obligation_id"`
	SourcePeriodID string         `gorm:"not null;size:16;index" json:"source_period_id"`
	Kind           ObligationKind `gorm:"not null;size:16" json:"kind"`
	PeriodType     period.Type    `gorm:"not null;size:16;index" json:"period_type"`
	PeriodStart    time.Time      `gorm:"not null;index" json:"period_start"`
	PeriodEnd      time.Time      `gorm:"not null;index" json:"period_end"`

	// Denormalized from the obligation
	OwnerID           string  `gorm:"not null;index" json:"owner_id"`
	GroupID           *string `gorm:"index" json:"group_id,omitempty"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	ObligationVersion int64   `gorm:"not null;default:1" json:"obligation_version"`

	AllocatedAmount   int64 `gorm:"type:bigint;not null;default:0" json:"allocated_amount"`
	NominalAmount     int64 `gorm:"type:bigint;not null;default:0" json:"nominal_amount"`
	TotalAmountDue    int64 `gorm:"type:bigint;not null;default:0" json:"total_amount_due"`
	TotalAmountPaid   int64 `gorm:"type:bigint;not null;default:0" json:"total_amount_paid"`
	TotalAmountUnpaid int64 `gorm:"type:bigint;not null;default:0" json:"total_amount_unpaid"`
	ActualAmount      int64 `gorm:"type:bigint;not null;default:0" json:"actual_amount"`

	IsDuePeriod bool       `gorm:"not null;default:false" json:"is_due_period"`
	DueDate     *time.Time `json:"due_date,omitempty"`

	// Occurrence slots; an empty transaction id marks an unfilled slot
	OccurrenceDueDates       datatypes.JSONSlice[time.Time] `json:"occurrence_due_dates"`
	OccurrenceAmounts        datatypes.JSONSlice[int64]     `json:"occurrence_amounts"`
	OccurrencePaidFlags      datatypes.JSONSlice[bool]      `json:"occurrence_paid_flags"`
	OccurrenceTransactionIDs datatypes.JSONSlice[string]    `json:"occurrence_transaction_ids"`
	ExtraTransactionIDs      datatypes.JSONSlice[string]    `json:"extra_transaction_ids"`

	PaidCount         int              `gorm:"not null;default:0" json:"paid_count"`
	UnpaidCount       int              `gorm:"not null;default:0" json:"unpaid_count"`
	PercentPaidCount  float64          `gorm:"not null;default:0" json:"percent_paid_count"`
	PercentPaidAmount float64          `gorm:"not null;default:0" json:"percent_paid_amount"`
	IsFullyPaid       bool             `gorm:"not null;default:false" json:"is_fully_paid"`
	NextUnpaidDueDate *time.Time       `json:"next_unpaid_due_date,omitempty"`
	Status            ProjectionStatus `gorm:"not null;size:16;default:'pending'" json:"status"`
	IsOverBudget      bool             `gorm:"not null;default:false" json:"is_over_budget"`

	Version        int64      `gorm:"not null;default:1" json:"version"`
	LastCalculated *time.Time `json:"last_calculated,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ProjectionID derives the projection id from its obligation and period, so that
// re-materializing the same pair always targets the same row.
func ProjectionID(obligationID, sourcePeriodID string) string {
	return obligationID + "_" + sourcePeriodID
}

// Window returns the projection's inclusive date range.
func (p *PeriodProjection) Window() (time.Time, time.Time) {
	return period.DateOf(p.PeriodStart), period.DateOf(p.PeriodEnd)
}

// IsOccurrenceStyle reports whether the projection tracks occurrence slots rather than
// a running budget total.
func (p *PeriodProjection) IsOccurrenceStyle() bool {
	return p.Kind != ObligationKindBudget
}
