package models

import (
	"fmt"
	"time"

	"famfin/internal/period"
	"famfin/internal/proration"
)

// ObligationKind tags the three variants of a recurring obligation
type ObligationKind string

const (
	ObligationKindBudget  ObligationKind = "budget"
	ObligationKindOutflow ObligationKind = "outflow"
	ObligationKindInflow  ObligationKind = "inflow"
)

// Budget periods. Outflows and inflows use the proration.Frequency values instead.
const (
	BudgetPeriodWeekly    = "weekly"
	BudgetPeriodBiMonthly = "bi_monthly"
	BudgetPeriodMonthly   = "monthly"
)

// Obligation is a user-owned recurring budget, bill or income stream.
// AmountCents is always a non-negative magnitude; the direction follows from Kind.
type Obligation struct {
	Base
	Kind        ObligationKind `gorm:"not null;size:16;index" json:"kind"`
	OwnerID     string         `gorm:"not null;index;uniqueIndex:idx_obligations_owner_stream,priority:1" json:"owner_id"`
	GroupID     *string        `gorm:"index" json:"group_id,omitempty"`
	Name        string         `gorm:"not null" json:"name"`
	Category    string         `json:"category"`
	AmountCents int64          `gorm:"type:bigint;not null" json:"amount_cents"`
	Frequency   string         `gorm:"not null;size:16" json:"frequency"`
	StartDate   time.Time      `gorm:"not null" json:"start_date"`
	EndDate     *time.Time     `json:"end_date,omitempty"`
	NextDueDate *time.Time     `json:"next_due_date,omitempty"`
	StreamID    *string        `gorm:"uniqueIndex:idx_obligations_owner_stream,priority:2" json:"stream_id,omitempty"`
	AccountID   *string        `json:"account_id,omitempty"`
	IsActive    bool           `gorm:"not null;default:true;index" json:"is_active"`
	Version     int64          `gorm:"not null;default:1" json:"version"`
}

// IsOngoing reports whether the obligation has no end date.
func (o *Obligation) IsOngoing() bool {
	return o.EndDate == nil
}

// ActiveRange returns the obligation's lifetime for proration.
func (o *Obligation) ActiveRange() proration.ActiveRange {
	r := proration.ActiveRange{Start: period.DateOf(o.StartDate)}
	if o.EndDate != nil {
		end := period.DateOf(*o.EndDate)
		r.End = &end
	}
	return r
}

// PrimaryPeriodType is the lattice a transaction date is attributed in when a split
// names only the obligation.
func (o *Obligation) PrimaryPeriodType() (period.Type, error) {
	if o.Kind == ObligationKindBudget {
		t, ok := period.TypeForBudgetPeriod(o.Frequency)
		if !ok {
			return "", fmt.Errorf("unknown budget period %q", o.Frequency)
		}
		return t, nil
	}
	switch proration.Frequency(o.Frequency) {
	case proration.Weekly, proration.Biweekly:
		return period.Weekly, nil
	case proration.SemiMonthly:
		return period.BiMonthly, nil
	case proration.Monthly, proration.Annual:
		return period.Monthly, nil
	}
	return "", fmt.Errorf("unknown frequency %q", o.Frequency)
}

// Strategy returns the proration rule for the obligation's variant.
func (o *Obligation) Strategy() (proration.Strategy, error) {
	switch o.Kind {
	case ObligationKindBudget:
		t, ok := period.TypeForBudgetPeriod(o.Frequency)
		if !ok {
			return nil, fmt.Errorf("unknown budget period %q", o.Frequency)
		}
		return proration.BudgetStrategy{AmountCents: o.AmountCents, Period: t, Active: o.ActiveRange()}, nil
	case ObligationKindOutflow, ObligationKindInflow:
		f := proration.Frequency(o.Frequency)
		if !f.Valid() {
			return nil, fmt.Errorf("unknown frequency %q", o.Frequency)
		}
		return proration.CadenceStrategy{AmountCents: o.AmountCents, Frequency: f, Active: o.ActiveRange()}, nil
	}
	return nil, fmt.Errorf("unknown obligation kind %q", o.Kind)
}

// ValidFrequency reports whether frequency is allowed for kind.
func ValidFrequency(kind ObligationKind, frequency string) bool {
	switch kind {
	case ObligationKindBudget:
		_, ok := period.TypeForBudgetPeriod(frequency)
		return ok
	case ObligationKindOutflow, ObligationKindInflow:
		return proration.Frequency(frequency).Valid()
	}
	return false
}
