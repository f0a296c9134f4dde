package services

import (
	"testing"

	"famfin/internal/models"
	"famfin/internal/testutil"
)

func TestFeedService_IngestFeedEvent(t *testing.T) {
	setNow(t, testutil.Date(2025, 1, 10))

	setup := func(t *testing.T) (*testEnv, Principal, *models.Obligation) {
		t.Helper()
		env := newTestEnv(t)
		p := Principal{ID: testutil.NewPrincipalID()}
		stream := "stream-isp"
		next := testutil.Date(2025, 1, 15)
		bill := testutil.CreateTestObligation(t, env.db, &models.Obligation{
			Kind:        models.ObligationKindOutflow,
			OwnerID:     p.ID,
			Name:        "Internet",
			AmountCents: 8999,
			Frequency:   "monthly",
			StartDate:   testutil.Date(2025, 1, 15),
			NextDueDate: &next,
			StreamID:    &stream,
		})
		if _, err := env.materializer.Materialize(ctx, bill.ID, MaterializeOptions{HorizonMonths: 3}); err != nil {
			t.Fatalf("materialize: %v", err)
		}
		return env, p, bill
	}

	t.Run("records_payment_and_advances_next_due", func(t *testing.T) {
		env, p, bill := setup(t)

		res, err := env.feed.IngestFeedEvent(ctx, p, FeedEvent{
			ExternalID:  "plaid-tx-1",
			AmountCents: 8999,
			Date:        testutil.Date(2025, 1, 15),
			StreamID:    "stream-isp",
			Cadence:     "monthly",
			Description: "ISP autopay",
		})
		testutil.AssertNoError(t, err)

		if res.Duplicate {
			t.Error("expected a new transaction")
		}
		if res.NextDueDate == nil || !res.NextDueDate.Equal(testutil.Date(2025, 2, 15)) {
			t.Errorf("expected next due 2025-02-15, got %v", res.NextDueDate)
		}

		var stored models.Obligation
		env.db.First(&stored, "id = ?", bill.ID)
		if stored.NextDueDate == nil || !stored.NextDueDate.Equal(testutil.Date(2025, 2, 15)) {
			t.Errorf("expected obligation next due 2025-02-15, got %v", stored.NextDueDate)
		}

		jan := env.projection(t, bill.ID, "2025M01")
		if !jan.IsFullyPaid || jan.OccurrenceTransactionIDs[0] != res.Transaction.ID {
			t.Errorf("expected January paid by the feed transaction, got %v %v", jan.IsFullyPaid, jan.OccurrenceTransactionIDs)
		}
	})

	t.Run("semi_monthly_cadence_advances_half_a_month", func(t *testing.T) {
		env, p, _ := setup(t)

		res, err := env.feed.IngestFeedEvent(ctx, p, FeedEvent{
			ExternalID:  "plaid-tx-semi",
			AmountCents: 8999,
			Date:        testutil.Date(2025, 1, 20),
			StreamID:    "stream-isp",
			Cadence:     "semi_monthly",
		})
		testutil.AssertNoError(t, err)
		if res.NextDueDate == nil {
			t.Fatal("expected a next due date")
		}
		testutil.AssertSameDay(t, "next due", *res.NextDueDate, testutil.Date(2025, 2, 5))
	})

	t.Run("replayed_event_is_a_duplicate", func(t *testing.T) {
		env, p, _ := setup(t)
		ev := FeedEvent{ExternalID: "plaid-tx-2", AmountCents: 8999, Date: testutil.Date(2025, 1, 15), StreamID: "stream-isp"}

		first, err := env.feed.IngestFeedEvent(ctx, p, ev)
		testutil.AssertNoError(t, err)
		second, err := env.feed.IngestFeedEvent(ctx, p, ev)
		testutil.AssertNoError(t, err)

		if !second.Duplicate || second.Transaction.ID != first.Transaction.ID {
			t.Errorf("expected the first transaction back as a duplicate, got %+v", second)
		}

		// Deleting the transaction does not make the event new again.
		testutil.AssertNoError(t, env.transactions.Delete(ctx, p, first.Transaction.ID))
		third, err := env.feed.IngestFeedEvent(ctx, p, ev)
		testutil.AssertNoError(t, err)
		if !third.Duplicate {
			t.Error("expected a duplicate after delete")
		}
	})

	t.Run("next_due_never_moves_backwards", func(t *testing.T) {
		env, p, bill := setup(t)
		env.db.Model(bill).Update("next_due_date", testutil.Date(2025, 6, 15))

		res, err := env.feed.IngestFeedEvent(ctx, p, FeedEvent{
			ExternalID: "late-import", AmountCents: 8999, Date: testutil.Date(2025, 1, 15), StreamID: "stream-isp",
		})
		testutil.AssertNoError(t, err)
		if res.NextDueDate == nil {
			t.Fatal("expected an estimate from the obligation frequency")
		}

		var stored models.Obligation
		env.db.First(&stored, "id = ?", bill.ID)
		if !stored.NextDueDate.Equal(testutil.Date(2025, 6, 15)) {
			t.Errorf("expected next due to stay 2025-06-15, got %v", stored.NextDueDate)
		}
	})

	t.Run("unknown_cadence_still_records", func(t *testing.T) {
		env, p, _ := setup(t)

		res, err := env.feed.IngestFeedEvent(ctx, p, FeedEvent{
			ExternalID: "odd-cadence", AmountCents: 8999, Date: testutil.Date(2025, 1, 15), StreamID: "stream-isp", Cadence: "every_full_moon",
		})
		testutil.AssertNoError(t, err)
		if res.Transaction == nil || res.NextDueDate != nil {
			t.Errorf("expected a transaction without an estimate, got %+v", res)
		}
	})

	t.Run("unknown_stream", func(t *testing.T) {
		env, p, _ := setup(t)

		_, err := env.feed.IngestFeedEvent(ctx, p, FeedEvent{
			ExternalID: "x", AmountCents: 100, Date: testutil.Date(2025, 1, 15), StreamID: "stream-gym",
		})
		testutil.AssertAppError(t, err, "STREAM_NOT_FOUND")
	})

	t.Run("other_owners_stream", func(t *testing.T) {
		env, _, _ := setup(t)

		_, err := env.feed.IngestFeedEvent(ctx, Principal{ID: testutil.NewPrincipalID()}, FeedEvent{
			ExternalID: "x", AmountCents: 100, Date: testutil.Date(2025, 1, 15), StreamID: "stream-isp",
		})
		testutil.AssertAppError(t, err, "STREAM_NOT_FOUND")
	})

	t.Run("missing_ids", func(t *testing.T) {
		env, p, _ := setup(t)

		_, err := env.feed.IngestFeedEvent(ctx, p, FeedEvent{AmountCents: 100, Date: testutil.Date(2025, 1, 15), StreamID: "stream-isp"})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
		_, err = env.feed.IngestFeedEvent(ctx, p, FeedEvent{ExternalID: "x", AmountCents: 100, Date: testutil.Date(2025, 1, 15)})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}
