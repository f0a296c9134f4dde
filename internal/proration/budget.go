package proration

import (
	"fmt"
	"time"

	"famfin/internal/period"

	"github.com/shopspring/decimal"
)

// averageMonthDays is the budget model's month length. The bill model uses 30.
var averageMonthDays = decimal.RequireFromString("30.44")

// budgetMultipliers scale a monthly budget envelope to one period of each lattice.
var budgetMultipliers = map[period.Type]decimal.Decimal{
	period.Monthly:   decimal.NewFromInt(1),
	period.BiMonthly: decimal.RequireFromString("0.5"),
	period.Weekly:    decimal.NewFromInt(7).Div(averageMonthDays),
}

// BudgetMultiplier returns the share of a monthly budget that one period of t receives.
func BudgetMultiplier(t period.Type) (decimal.Decimal, error) {
	m, ok := budgetMultipliers[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("no budget multiplier for period type %q", t)
	}
	return m, nil
}

// MonthlyEquivalent converts a budget amount expressed per budgetPeriod into a
// per-month amount, in unrounded cents.
func MonthlyEquivalent(amountCents int64, budgetPeriod period.Type) (decimal.Decimal, error) {
	m, err := BudgetMultiplier(budgetPeriod)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(amountCents).Div(m), nil
}

// BudgetEnvelope re-expresses a budget amount defined per budgetPeriod as the nominal
// envelope of one full period of target, e.g. a 500.00 monthly budget gives 250.00 per
// bi-monthly period.
func BudgetEnvelope(amountCents int64, budgetPeriod, target period.Type) (int64, error) {
	monthly, err := MonthlyEquivalent(amountCents, budgetPeriod)
	if err != nil {
		return 0, err
	}
	m, err := BudgetMultiplier(target)
	if err != nil {
		return 0, err
	}
	return roundCents(monthly.Mul(m)), nil
}

// CalendarAllocation spreads a monthly amount over [start, end] day by day, each day
// receiving monthlyCents divided by the length of its own month. The sum is rounded
// once, so allocations over any partition of the same days agree to within a cent per
// part.
func CalendarAllocation(monthlyCents decimal.Decimal, start, end time.Time) int64 {
	start, end = period.DateOf(start), period.DateOf(end)
	if end.Before(start) {
		return 0
	}

	total := decimal.Zero
	for cur := start; !cur.After(end); {
		monthEnd := time.Date(cur.Year(), cur.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		segEnd := monthEnd
		if end.Before(segEnd) {
			segEnd = end
		}
		days := decimal.NewFromInt(int64(period.DaysInclusive(cur, segEnd)))
		dim := decimal.NewFromInt(int64(period.DaysInMonth(cur)))
		total = total.Add(monthlyCents.Mul(days).Div(dim))
		cur = segEnd.AddDate(0, 0, 1)
	}
	return roundCents(total)
}
