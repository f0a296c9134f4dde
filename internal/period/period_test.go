package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestContaining(t *testing.T) {
	tests := []struct {
		name      string
		typ       Type
		instant   time.Time
		wantID    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"monthly_leap_february", Monthly, date(2024, 2, 10), "2024M02", date(2024, 2, 1), date(2024, 2, 29)},
		{"monthly_december", Monthly, date(2025, 12, 31), "2025M12", date(2025, 12, 1), date(2025, 12, 31)},
		{"bimonthly_first_half_edge", BiMonthly, date(2025, 3, 15), "2025BM03A", date(2025, 3, 1), date(2025, 3, 15)},
		{"bimonthly_second_half_edge", BiMonthly, date(2025, 3, 16), "2025BM03B", date(2025, 3, 16), date(2025, 3, 31)},
		{"bimonthly_february_second_half", BiMonthly, date(2025, 2, 20), "2025BM02B", date(2025, 2, 16), date(2025, 2, 28)},
		{"weekly_spanning_months", Weekly, date(2025, 1, 29), "2025W05", date(2025, 1, 27), date(2025, 2, 2)},
		{"weekly_sunday_belongs_to_previous_monday", Weekly, date(2025, 2, 2), "2025W05", date(2025, 1, 27), date(2025, 2, 2)},
		{"weekly_iso_year_rolls_back", Weekly, date(2021, 1, 1), "2020W53", date(2020, 12, 28), date(2021, 1, 3)},
		{"weekly_iso_year_rolls_forward", Weekly, date(2024, 12, 30), "2025W01", date(2024, 12, 30), date(2025, 1, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Containing(tt.typ, tt.instant.Add(13*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID)
			assert.True(t, tt.wantStart.Equal(p.Start), "start: want %s got %s", tt.wantStart, p.Start)
			assert.True(t, tt.wantEnd.Equal(p.End), "end: want %s got %s", tt.wantEnd, p.End)
		})
	}
}

func TestContaining_UnknownType(t *testing.T) {
	_, err := Containing(Type("QUARTERLY"), date(2025, 1, 1))
	require.Error(t, err)
}

func TestISOWeek_MatchesStandardLibrary(t *testing.T) {
	d := date(1999, 12, 1)
	for i := 0; i < 365*12; i++ {
		wantYear, wantWeek := d.ISOWeek()
		gotYear, gotWeek := ISOWeek(d)
		require.Equal(t, wantYear, gotYear, "year for %s", d.Format(time.DateOnly))
		require.Equal(t, wantWeek, gotWeek, "week for %s", d.Format(time.DateOnly))
		d = d.AddDate(0, 0, 1)
	}
}

func TestGenerate_Contiguity(t *testing.T) {
	anchor := date(2023, 11, 17)
	horizon := date(2026, 3, 4)

	for _, typ := range Types {
		t.Run(string(typ), func(t *testing.T) {
			periods, skipped := Generate(typ, anchor, horizon)
			require.Empty(t, skipped)
			require.NotEmpty(t, periods)

			assert.True(t, periods[0].Contains(anchor), "first period must contain the anchor")
			assert.True(t, periods[len(periods)-1].Contains(horizon), "last period must contain the horizon")

			seen := map[string]bool{}
			for i := 1; i < len(periods); i++ {
				prev, cur := periods[i-1], periods[i]
				assert.True(t, prev.End.AddDate(0, 0, 1).Equal(cur.Start), "gap or overlap between %s and %s", prev.ID, cur.ID)
				assert.Equal(t, prev.Index+1, cur.Index, "index must be monotonic at %s", cur.ID)
				assert.False(t, seen[cur.ID], "duplicate id %s", cur.ID)
				seen[cur.ID] = true
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	first, _ := Generate(BiMonthly, date(2025, 1, 10), date(2025, 12, 31))
	second, _ := Generate(BiMonthly, date(2025, 1, 10), date(2025, 12, 31))
	assert.Equal(t, first, second)
	assert.Len(t, first, 24)
}

func TestGenerate_HorizonBeforeAnchor(t *testing.T) {
	periods, skipped := Generate(Monthly, date(2025, 5, 1), date(2025, 4, 1))
	assert.Empty(t, periods)
	assert.Empty(t, skipped)
}

func TestGenerate_BiMonthlySecondHalfLengths(t *testing.T) {
	periods, _ := Generate(BiMonthly, date(2024, 1, 1), date(2025, 12, 31))
	lengths := map[string]int{}
	for _, p := range periods {
		if p.Half == 2 {
			lengths[p.ID] = p.Days()
		}
	}
	assert.Equal(t, 14, lengths["2024BM02B"], "leap February")
	assert.Equal(t, 13, lengths["2025BM02B"], "common February")
	assert.Equal(t, 15, lengths["2025BM04B"])
	assert.Equal(t, 16, lengths["2025BM01B"])
}

func TestValidate(t *testing.T) {
	good, _ := Containing(Monthly, date(2025, 1, 1))

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, Validate(good, nil))
	})

	t.Run("end_before_start", func(t *testing.T) {
		bad := good
		bad.End = bad.Start.AddDate(0, 0, -1)
		assert.Error(t, Validate(bad, nil))
	})

	t.Run("short_month", func(t *testing.T) {
		bad := good
		bad.End = date(2025, 1, 30)
		assert.Error(t, Validate(bad, nil))
	})

	t.Run("weekly_not_monday", func(t *testing.T) {
		w, _ := Containing(Weekly, date(2025, 1, 8))
		w.Start = w.Start.AddDate(0, 0, 1)
		w.End = w.End.AddDate(0, 0, 1)
		assert.Error(t, Validate(w, nil))
	})

	t.Run("not_contiguous", func(t *testing.T) {
		march, _ := Containing(Monthly, date(2025, 3, 1))
		var skip *SkipError
		err := Validate(march, &good)
		require.ErrorAs(t, err, &skip)
		assert.Equal(t, "2025M03", skip.ID)
	})
}

func TestParseID(t *testing.T) {
	t.Run("round_trip", func(t *testing.T) {
		for _, typ := range Types {
			periods, _ := Generate(typ, date(2020, 12, 1), date(2027, 1, 31))
			for _, want := range periods {
				got, err := ParseID(want.ID)
				require.NoError(t, err, want.ID)
				assert.Equal(t, want, got)
			}
		}
	})

	t.Run("rejects_malformed", func(t *testing.T) {
		for _, id := range []string{"", "2025", "2025M13", "2025BM01C", "2025W00", "2025W53", "25M01"} {
			_, err := ParseID(id)
			assert.Error(t, err, id)
		}
	})

	t.Run("accepts_53_week_year", func(t *testing.T) {
		p, err := ParseID("2020W53")
		require.NoError(t, err)
		assert.True(t, date(2020, 12, 28).Equal(p.Start))
	})
}

func TestTypeForBudgetPeriod(t *testing.T) {
	typ, ok := TypeForBudgetPeriod("bi_monthly")
	assert.True(t, ok)
	assert.Equal(t, BiMonthly, typ)

	_, ok = TypeForBudgetPeriod("yearly")
	assert.False(t, ok)
}
