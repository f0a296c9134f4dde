// Package proration computes how much of a recurring amount belongs to a calendar
// window. Bills and income use a daily-rate model with a fixed cycle-length table;
// budgets use a multiplier table to express their envelope in another lattice and a
// calendar-day model to allocate it across windows that straddle months.
//
// The models are deliberately separate: they round differently and disagree on what
// an "average month" is (30 days for bills, 30.44 for budgets).
//
// Amounts are integer cents. Intermediate arithmetic is decimal; each public result
// is rounded once, half-up, to a whole cent.
package proration

import (
	"fmt"
	"time"

	"famfin/internal/period"

	"github.com/shopspring/decimal"
)

// Frequency is the natural cadence of a bill or income stream.
type Frequency string

const (
	Weekly      Frequency = "weekly"
	Biweekly    Frequency = "biweekly"
	SemiMonthly Frequency = "semi_monthly"
	Monthly     Frequency = "monthly"
	Annual      Frequency = "annual"
)

// cycleDays approximates each cadence as a fixed number of days. Semi-monthly and
// monthly are flat approximations, not calendar lengths.
var cycleDays = map[Frequency]int64{
	Weekly:      7,
	Biweekly:    14,
	SemiMonthly: 15,
	Monthly:     30,
	Annual:      365,
}

// Valid reports whether f has an entry in the cycle table.
func (f Frequency) Valid() bool {
	_, ok := cycleDays[f]
	return ok
}

// CycleDays returns the fixed cycle length for f.
func CycleDays(f Frequency) (int64, error) {
	d, ok := cycleDays[f]
	if !ok {
		return 0, fmt.Errorf("unknown frequency %q", f)
	}
	return d, nil
}

// DailyRate returns amountCents spread evenly over one cycle of f, in cents per day.
func DailyRate(amountCents int64, f Frequency) (decimal.Decimal, error) {
	days, err := CycleDays(f)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(days)), nil
}

// AmountForWindow multiplies a daily rate by the inclusive day count of
// [windowStart, windowEnd] and rounds half-up to the cent.
func AmountForWindow(dailyRate decimal.Decimal, windowStart, windowEnd time.Time) int64 {
	days := period.DaysInclusive(windowStart, windowEnd)
	return roundCents(dailyRate.Mul(decimal.NewFromInt(int64(days))))
}

// IsCycleEventInWindow reports whether the calendar day of anchor lies inside the window.
func IsCycleEventInWindow(anchor, windowStart, windowEnd time.Time) bool {
	d := period.DateOf(anchor)
	return !d.Before(period.DateOf(windowStart)) && !d.After(period.DateOf(windowEnd))
}

func roundCents(cents decimal.Decimal) int64 {
	return cents.Round(0).IntPart()
}
