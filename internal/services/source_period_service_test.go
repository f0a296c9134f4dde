package services

import (
	"testing"

	"famfin/internal/models"
	"famfin/internal/pagination"
	"famfin/internal/period"
	"famfin/internal/testutil"
)

func TestGeneratePeriods(t *testing.T) {
	t.Run("rerun_creates_nothing", func(t *testing.T) {
		env := newTestEnv(t)

		created, err := env.periods.GeneratePeriods(ctx, period.BiMonthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))
		testutil.AssertNoError(t, err)
		if created != 24 {
			t.Errorf("expected 24 periods, got %d", created)
		}

		created, err = env.periods.GeneratePeriods(ctx, period.BiMonthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))
		testutil.AssertNoError(t, err)
		if created != 0 {
			t.Errorf("expected rerun to create 0, got %d", created)
		}
	})

	t.Run("extends_existing_lattice", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.periods.GeneratePeriods(ctx, period.Monthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 6, 30))
		testutil.AssertNoError(t, err)
		created, err := env.periods.GeneratePeriods(ctx, period.Monthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))
		testutil.AssertNoError(t, err)
		if created != 6 {
			t.Errorf("expected 6 new months, got %d", created)
		}
	})

	t.Run("small_batches", func(t *testing.T) {
		env := newTestEnv(t)
		svc := NewSourcePeriodService(env.db, 7)

		created, err := svc.GeneratePeriods(ctx, period.Weekly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))
		testutil.AssertNoError(t, err)
		if created != 53 {
			t.Errorf("expected 53 weeks, got %d", created)
		}
	})

	t.Run("invalid_type", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.periods.GeneratePeriods(ctx, period.Type("DAILY"), testutil.Date(2025, 1, 1), testutil.Date(2025, 1, 31))
		testutil.AssertAppError(t, err, "INVALID_PERIOD_TYPE")
	})
}

func TestEnsureHorizon(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.periods.EnsureHorizon(ctx, testutil.Date(2025, 3, 10), 2)
	testutil.AssertNoError(t, err)

	for _, id := range []string{"2025M02", "2025M05", "2025BM02A", "2025BM05A", "2025W06", "2025W19"} {
		if _, err := env.periods.GetByID(ctx, id); err != nil {
			t.Errorf("expected %s to exist: %v", id, err)
		}
	}
	_, err = env.periods.GetByID(ctx, "2025M06")
	testutil.AssertAppError(t, err, "PERIOD_NOT_FOUND")
}

func TestSweepCurrent(t *testing.T) {
	t.Run("flags_one_period_per_type", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateTestSourcePeriods(t, env.db, period.Monthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))

		res, err := env.periods.SweepCurrent(ctx, testutil.Date(2025, 3, 20))
		testutil.AssertNoError(t, err)
		if len(res.Types) != 3 {
			t.Fatalf("expected a result per type, got %d", len(res.Types))
		}

		want := map[period.Type]string{period.Weekly: "2025W12", period.BiMonthly: "2025BM03B", period.Monthly: "2025M03"}
		for _, r := range res.Types {
			if r.CurrentID != want[r.Type] {
				t.Errorf("%s: expected %s, got %s", r.Type, want[r.Type], r.CurrentID)
			}
		}

		var flagged []models.SourcePeriod
		env.db.Where("is_current = ?", true).Find(&flagged)
		if len(flagged) != 3 {
			t.Errorf("expected 3 current periods, got %d", len(flagged))
		}
	})

	t.Run("moves_the_flag", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateTestSourcePeriods(t, env.db, period.Monthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))

		_, err := env.periods.SweepCurrent(ctx, testutil.Date(2025, 3, 31))
		testutil.AssertNoError(t, err)
		res, err := env.periods.SweepCurrent(ctx, testutil.Date(2025, 4, 1))
		testutil.AssertNoError(t, err)

		for _, r := range res.Types {
			if r.Type == period.Monthly && (r.CurrentID != "2025M04" || r.Cleared != 1) {
				t.Errorf("expected 2025M04 with 1 cleared, got %s with %d", r.CurrentID, r.Cleared)
			}
		}

		var count int64
		env.db.Model(&models.SourcePeriod{}).Where("type = ? AND is_current = ?", period.Monthly, true).Count(&count)
		if count != 1 {
			t.Errorf("expected exactly one current month, got %d", count)
		}
	})
}

func TestGetCurrent(t *testing.T) {
	t.Run("ignores_stale_flag", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateTestSourcePeriods(t, env.db, period.Monthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 6, 30))
		env.db.Model(&models.SourcePeriod{}).Where("id = ?", "2025M01").Update("is_current", true)

		sp, err := env.periods.GetCurrent(ctx, period.Monthly, testutil.Date(2025, 4, 2))
		testutil.AssertNoError(t, err)
		if sp.ID != "2025M04" {
			t.Errorf("expected 2025M04, got %s", sp.ID)
		}
	})

	t.Run("prefers_flagged_containing_period", func(t *testing.T) {
		env := newTestEnv(t)
		testutil.CreateTestSourcePeriods(t, env.db, period.Weekly, testutil.Date(2025, 1, 1), testutil.Date(2025, 1, 31))
		_, err := env.periods.SweepCurrent(ctx, testutil.Date(2025, 1, 15))
		testutil.AssertNoError(t, err)

		sp, err := env.periods.GetCurrent(ctx, period.Weekly, testutil.Date(2025, 1, 15))
		testutil.AssertNoError(t, err)
		if sp.ID != "2025W03" || !sp.IsCurrent {
			t.Errorf("expected flagged 2025W03, got %s (current %v)", sp.ID, sp.IsCurrent)
		}
	})

	t.Run("computes_missing_period", func(t *testing.T) {
		env := newTestEnv(t)

		sp, err := env.periods.GetCurrent(ctx, period.BiMonthly, testutil.Date(2031, 7, 16))
		testutil.AssertNoError(t, err)
		if sp.ID != "2031BM07B" {
			t.Errorf("expected 2031BM07B, got %s", sp.ID)
		}

		var count int64
		env.db.Model(&models.SourcePeriod{}).Count(&count)
		if count != 0 {
			t.Errorf("expected nothing persisted, got %d rows", count)
		}
	})
}

func TestListPeriods(t *testing.T) {
	env := newTestEnv(t)
	testutil.CreateTestSourcePeriods(t, env.db, period.Monthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))
	testutil.CreateTestSourcePeriods(t, env.db, period.BiMonthly, testutil.Date(2025, 1, 1), testutil.Date(2025, 12, 31))

	monthly := period.Monthly
	from, to := testutil.Date(2025, 3, 10), testutil.Date(2025, 5, 2)
	page, err := env.periods.List(ctx, PeriodFilter{Type: &monthly, From: &from, To: &to}, pagination.PageRequest{})
	testutil.AssertNoError(t, err)

	if page.TotalItems != 3 {
		t.Fatalf("expected 3 months, got %d", page.TotalItems)
	}
	if page.Data[0].ID != "2025M03" || page.Data[2].ID != "2025M05" {
		t.Errorf("unexpected order: %s..%s", page.Data[0].ID, page.Data[2].ID)
	}

	all, err := env.periods.List(ctx, PeriodFilter{}, pagination.PageRequest{Page: 2, PageSize: 10})
	testutil.AssertNoError(t, err)
	if all.TotalItems != 36 || all.TotalPages != 4 || len(all.Data) != 10 {
		t.Errorf("unexpected page: total %d pages %d len %d", all.TotalItems, all.TotalPages, len(all.Data))
	}
}
