package services

import (
	"testing"

	"gorm.io/gorm"

	"famfin/internal/models"
	"famfin/internal/testutil"
)

// bumpObligation edits an obligation behind the services' back, leaving its projections
// stale until reconciled.
func bumpObligation(t *testing.T, db *gorm.DB, o *models.Obligation, updates map[string]any) {
	t.Helper()
	updates["version"] = gorm.Expr("version + 1")
	if err := db.Model(o).Updates(updates).Error; err != nil {
		t.Fatalf("bump obligation: %v", err)
	}
}

func TestReconcileObligation(t *testing.T) {
	setNow(t, testutil.Date(2025, 2, 10))

	t.Run("past_windows_keep_their_amounts", func(t *testing.T) {
		env := newTestEnv(t)
		p := Principal{ID: testutil.NewPrincipalID()}
		bill := materializedBill(t, env, p.ID, 1000)
		bumpObligation(t, env.db, bill, map[string]any{"amount_cents": 2000, "name": "Water"})

		var total, open int64
		env.db.Model(&models.PeriodProjection{}).Where("obligation_id = ?", bill.ID).Count(&total)
		env.db.Model(&models.PeriodProjection{}).Where("obligation_id = ? AND period_end >= ?", bill.ID, testutil.Date(2025, 2, 10)).Count(&open)

		res, err := env.reconciler.ReconcileObligation(ctx, bill.ID)
		testutil.AssertNoError(t, err)

		if int64(res.Refreshed) != total || int64(res.Rederived) != open || len(res.Errors) != 0 {
			t.Errorf("expected %d refreshed and %d re-derived, got %+v", total, open, res)
		}

		jan := env.projection(t, bill.ID, "2025M01")
		if jan.TotalAmountDue != 1000 || jan.AllocatedAmount == 0 {
			t.Errorf("expected January to keep 1000 due, got %d", jan.TotalAmountDue)
		}
		if jan.Name != "Water" || jan.ObligationVersion != 2 {
			t.Errorf("expected January's copy refreshed, got %q at %d", jan.Name, jan.ObligationVersion)
		}

		feb := env.projection(t, bill.ID, "2025M02")
		if feb.TotalAmountDue != 2000 || feb.OccurrenceAmounts[0] != 2000 {
			t.Errorf("expected February re-derived to 2000, got %d", feb.TotalAmountDue)
		}
		assertAggregateInvariant(t, feb)

		again, err := env.reconciler.ReconcileObligation(ctx, bill.ID)
		testutil.AssertNoError(t, err)
		if again.Refreshed != 0 {
			t.Errorf("expected nothing left to reconcile, got %d", again.Refreshed)
		}
	})

	t.Run("paid_slots_survive_rederivation", func(t *testing.T) {
		env := newTestEnv(t)
		p := Principal{ID: testutil.NewPrincipalID()}
		bill := materializedBill(t, env, p.ID, 1000)

		tx, err := env.transactions.Create(ctx, p, TransactionInput{
			AmountCents: 1000,
			Date:        testutil.Date(2025, 2, 14),
			Splits:      []SplitInput{{ObligationID: bill.ID, AmountCents: 1000}},
		})
		testutil.AssertNoError(t, err)

		bumpObligation(t, env.db, bill, map[string]any{"category": "Home"})
		_, err = env.reconciler.ReconcileObligation(ctx, bill.ID)
		testutil.AssertNoError(t, err)

		feb := env.projection(t, bill.ID, "2025M02")
		if feb.OccurrenceTransactionIDs[0] != tx.ID || !feb.IsFullyPaid {
			t.Errorf("expected February still paid by %s, got %v", tx.ID, feb.OccurrenceTransactionIDs)
		}
		if feb.Category != "Home" {
			t.Errorf("expected category Home, got %q", feb.Category)
		}
	})

	t.Run("unknown_obligation", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.reconciler.ReconcileObligation(ctx, testutil.NewPrincipalID())
		testutil.AssertAppError(t, err, "OBLIGATION_NOT_FOUND")
	})
}

func TestReconcileStale(t *testing.T) {
	setNow(t, testutil.Date(2025, 1, 10))
	env := newTestEnv(t)
	owner := testutil.NewPrincipalID()
	edited := materializedBill(t, env, owner, 1000)
	untouched := materializedBill(t, env, owner, 1000)
	bumpObligation(t, env.db, edited, map[string]any{"name": "Renamed"})

	summary, err := env.reconciler.ReconcileStale(ctx)
	testutil.AssertNoError(t, err)

	if summary.Obligations != 1 || len(summary.Errors) != 0 {
		t.Fatalf("expected one obligation reconciled, got %+v", summary)
	}
	if int64(summary.Projections) != env.countProjections(t, edited.ID) {
		t.Errorf("expected every projection of the edited bill, got %d", summary.Projections)
	}
	if p := env.projection(t, untouched.ID, "2025M01"); p.ObligationVersion != 1 || p.Version != 1 {
		t.Errorf("expected the untouched bill left alone, got %d/%d", p.ObligationVersion, p.Version)
	}

	again, err := env.reconciler.ReconcileStale(ctx)
	testutil.AssertNoError(t, err)
	if again.Obligations != 0 {
		t.Errorf("expected a clean second run, got %d", again.Obligations)
	}
}
