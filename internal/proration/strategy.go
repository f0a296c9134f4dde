package proration

import (
	"time"

	"famfin/internal/period"
)

// Window is the calendar range a projection covers.
type Window struct {
	Type  period.Type
	Start time.Time
	End   time.Time
}

// Allocation is the prorated share of an obligation for one window.
type Allocation struct {
	// Allocated is the amount attributable to the window: a budget's envelope, a bill's
	// withholding, or income earned.
	Allocated int64
	// Nominal is the budget multiplier envelope for a full period; zero for cadences.
	Nominal int64
}

// Strategy prorates one obligation variant.
type Strategy interface {
	Allocate(w Window) (Allocation, error)
}

// ActiveRange bounds an obligation in time. A nil End means ongoing.
type ActiveRange struct {
	Start time.Time
	End   *time.Time
}

// Clip intersects w with the range; ok is false when they do not overlap.
func (r ActiveRange) Clip(w Window) (start, end time.Time, ok bool) {
	start, end = period.DateOf(w.Start), period.DateOf(w.End)
	if s := period.DateOf(r.Start); !r.Start.IsZero() && s.After(start) {
		start = s
	}
	if r.End != nil {
		if e := period.DateOf(*r.End); e.Before(end) {
			end = e
		}
	}
	return start, end, !end.Before(start)
}

// BudgetStrategy allocates a budget with the calendar-day model and reports the
// multiplier-table envelope as the nominal amount.
type BudgetStrategy struct {
	AmountCents int64
	Period      period.Type
	Active      ActiveRange
}

func (s BudgetStrategy) Allocate(w Window) (Allocation, error) {
	nominal, err := BudgetEnvelope(s.AmountCents, s.Period, w.Type)
	if err != nil {
		return Allocation{}, err
	}
	start, end, ok := s.Active.Clip(w)
	if !ok {
		return Allocation{Nominal: nominal}, nil
	}
	monthly, err := MonthlyEquivalent(s.AmountCents, s.Period)
	if err != nil {
		return Allocation{}, err
	}
	return Allocation{Allocated: CalendarAllocation(monthly, start, end), Nominal: nominal}, nil
}

// CadenceStrategy allocates a bill or income stream with the daily-rate model.
type CadenceStrategy struct {
	AmountCents int64
	Frequency   Frequency
	Active      ActiveRange
}

func (s CadenceStrategy) Allocate(w Window) (Allocation, error) {
	rate, err := DailyRate(s.AmountCents, s.Frequency)
	if err != nil {
		return Allocation{}, err
	}
	start, end, ok := s.Active.Clip(w)
	if !ok {
		return Allocation{}, nil
	}
	return Allocation{Allocated: AmountForWindow(rate, start, end)}, nil
}
