package proration

import (
	"testing"
	"time"

	"famfin/internal/period"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDailyRate(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		freq   Frequency
		want   string
	}{
		{"weekly", 7000, Weekly, "1000"},
		{"biweekly", 2800, Biweekly, "200"},
		{"semi_monthly", 1500, SemiMonthly, "100"},
		{"monthly_uses_thirty_days", 3000, Monthly, "100"},
		{"annual", 36500, Annual, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := DailyRate(tt.amount, tt.freq)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(rate), "got %s", rate)
		})
	}

	t.Run("unknown_frequency", func(t *testing.T) {
		_, err := DailyRate(100, Frequency("fortnightly"))
		assert.Error(t, err)
		assert.False(t, Frequency("fortnightly").Valid())
	})
}

func TestAmountForWindow(t *testing.T) {
	t.Run("full_month", func(t *testing.T) {
		rate, _ := DailyRate(7000, Weekly)
		assert.Equal(t, int64(31000), AmountForWindow(rate, date(2025, 1, 1), date(2025, 1, 31)))
	})

	t.Run("rounds_half_up", func(t *testing.T) {
		half := decimal.RequireFromString("0.5")
		assert.Equal(t, int64(1), AmountForWindow(half, date(2025, 1, 1), date(2025, 1, 1)))
	})

	t.Run("empty_window", func(t *testing.T) {
		rate, _ := DailyRate(3000, Monthly)
		assert.Equal(t, int64(0), AmountForWindow(rate, date(2025, 1, 2), date(2025, 1, 1)))
	})

	t.Run("first_half_of_month_bill", func(t *testing.T) {
		rate, _ := DailyRate(8999, Monthly)
		assert.Equal(t, int64(4500), AmountForWindow(rate, date(2025, 1, 1), date(2025, 1, 15)))
	})
}

func TestIsCycleEventInWindow(t *testing.T) {
	start, end := date(2025, 1, 1), date(2025, 1, 15)
	assert.True(t, IsCycleEventInWindow(date(2025, 1, 1), start, end))
	assert.True(t, IsCycleEventInWindow(date(2025, 1, 15).Add(23*time.Hour), start, end))
	assert.False(t, IsCycleEventInWindow(date(2025, 1, 16), start, end))
	assert.False(t, IsCycleEventInWindow(date(2024, 12, 31), start, end))
}

func TestBudgetEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		from   period.Type
		to     period.Type
		want   int64
	}{
		{"monthly_to_monthly", 50000, period.Monthly, period.Monthly, 50000},
		{"monthly_to_bimonthly", 50000, period.Monthly, period.BiMonthly, 25000},
		{"monthly_to_weekly", 50000, period.Monthly, period.Weekly, 11498},
		{"bimonthly_to_monthly", 10000, period.BiMonthly, period.Monthly, 20000},
		{"weekly_to_monthly", 10000, period.Weekly, period.Monthly, 43486},
		{"weekly_to_weekly", 10000, period.Weekly, period.Weekly, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BudgetEnvelope(tt.amount, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown_type", func(t *testing.T) {
		_, err := BudgetEnvelope(100, period.Type("DAILY"), period.Monthly)
		assert.Error(t, err)
	})
}

func TestCalendarAllocation(t *testing.T) {
	t.Run("week_straddling_month_end", func(t *testing.T) {
		// 6 days of January at 1/31 plus 1 day of February at 1/28.
		monthly, _ := MonthlyEquivalent(50000, period.Monthly)
		assert.Equal(t, int64(11463), CalendarAllocation(monthly, date(2025, 1, 26), date(2025, 2, 1)))

		monthly, _ = MonthlyEquivalent(10000, period.Monthly)
		assert.Equal(t, int64(2293), CalendarAllocation(monthly, date(2025, 1, 26), date(2025, 2, 1)))
	})

	t.Run("whole_month_is_exact", func(t *testing.T) {
		monthly := decimal.NewFromInt(12345)
		for m := time.January; m <= time.December; m++ {
			first := date(2024, m, 1)
			assert.Equal(t, int64(12345), CalendarAllocation(monthly, first, first.AddDate(0, 1, -1)), m.String())
		}
	})

	t.Run("reversed_range", func(t *testing.T) {
		assert.Equal(t, int64(0), CalendarAllocation(decimal.NewFromInt(100), date(2025, 2, 1), date(2025, 1, 1)))
	})
}

// The allocations of the periods that tile a month add back up to the monthly
// equivalent, within one cent of rounding per period.
func TestCalendarAllocation_SumLaw(t *testing.T) {
	monthly := decimal.NewFromInt(10000)
	for _, typ := range []period.Type{period.BiMonthly, period.Weekly} {
		t.Run(string(typ), func(t *testing.T) {
			periods, _ := period.Generate(typ, date(2024, 1, 1), date(2025, 12, 31))
			var sum int64
			for _, p := range periods {
				sum += CalendarAllocation(monthly, p.Start, p.End)
			}
			// Weekly lattices overhang the horizon on both sides, so compare against the
			// days actually covered.
			want := CalendarAllocation(monthly, periods[0].Start, periods[len(periods)-1].End)
			assert.InDelta(t, want, sum, float64(len(periods)))
		})
	}

	t.Run("bimonthly_halves_per_month", func(t *testing.T) {
		periods, _ := period.Generate(period.BiMonthly, date(2024, 1, 1), date(2025, 12, 31))
		for i := 0; i+1 < len(periods); i += 2 {
			a := CalendarAllocation(monthly, periods[i].Start, periods[i].End)
			b := CalendarAllocation(monthly, periods[i+1].Start, periods[i+1].End)
			assert.InDelta(t, 10000, a+b, 1, "%s + %s", periods[i].ID, periods[i+1].ID)
		}
	})
}

func TestBudgetStrategy(t *testing.T) {
	t.Run("bimonthly_budget_with_end_date", func(t *testing.T) {
		end := date(2025, 4, 13)
		s := BudgetStrategy{
			AmountCents: 10000,
			Period:      period.BiMonthly,
			Active:      ActiveRange{Start: date(2025, 2, 1), End: &end},
		}

		periods, _ := period.Generate(period.BiMonthly, date(2025, 2, 1), date(2025, 4, 30))
		var total int64
		for _, p := range periods {
			a, err := s.Allocate(Window{Type: p.Type, Start: p.Start, End: p.End})
			require.NoError(t, err)
			assert.Equal(t, int64(10000), a.Nominal, p.ID)
			total += a.Allocated
		}
		assert.Equal(t, int64(48667), total)
	})

	t.Run("window_after_end", func(t *testing.T) {
		end := date(2025, 1, 31)
		s := BudgetStrategy{AmountCents: 50000, Period: period.Monthly, Active: ActiveRange{Start: date(2025, 1, 1), End: &end}}
		a, err := s.Allocate(Window{Type: period.Monthly, Start: date(2025, 2, 1), End: date(2025, 2, 28)})
		require.NoError(t, err)
		assert.Equal(t, int64(0), a.Allocated)
		assert.Equal(t, int64(50000), a.Nominal)
	})
}

func TestCadenceStrategy(t *testing.T) {
	s := CadenceStrategy{AmountCents: 3000, Frequency: Monthly, Active: ActiveRange{Start: date(2025, 1, 10)}}

	t.Run("clipped_to_start", func(t *testing.T) {
		a, err := s.Allocate(Window{Type: period.Monthly, Start: date(2025, 1, 1), End: date(2025, 1, 31)})
		require.NoError(t, err)
		assert.Equal(t, int64(2200), a.Allocated)
		assert.Equal(t, int64(0), a.Nominal)
	})

	t.Run("ongoing", func(t *testing.T) {
		a, err := s.Allocate(Window{Type: period.Monthly, Start: date(2030, 3, 1), End: date(2030, 3, 31)})
		require.NoError(t, err)
		assert.Equal(t, int64(3100), a.Allocated)
	})

	t.Run("before_start", func(t *testing.T) {
		a, err := s.Allocate(Window{Type: period.Weekly, Start: date(2024, 12, 30), End: date(2025, 1, 5)})
		require.NoError(t, err)
		assert.Equal(t, int64(0), a.Allocated)
	})

	t.Run("unknown_frequency", func(t *testing.T) {
		bad := CadenceStrategy{AmountCents: 1, Frequency: "hourly"}
		_, err := bad.Allocate(Window{Type: period.Monthly, Start: date(2025, 1, 1), End: date(2025, 1, 31)})
		assert.Error(t, err)
	})
}
