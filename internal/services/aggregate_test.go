package services

import (
	"reflect"
	"testing"
	"time"

	"famfin/internal/models"
	"famfin/internal/testutil"

	"gorm.io/datatypes"
)

func occurrenceProjection(dates []time.Time, amounts []int64) *models.PeriodProjection {
	n := len(dates)
	return &models.PeriodProjection{
		ID:                       "obl_2025M01",
		Kind:                     models.ObligationKindOutflow,
		OccurrenceDueDates:       datatypes.NewJSONSlice(dates),
		OccurrenceAmounts:        datatypes.NewJSONSlice(amounts),
		OccurrencePaidFlags:      datatypes.NewJSONSlice(make([]bool, n)),
		OccurrenceTransactionIDs: datatypes.NewJSONSlice(make([]string, n)),
	}
}

func TestAggregate_Budget(t *testing.T) {
	now := testutil.Date(2025, 1, 20)

	tests := []struct {
		name       string
		events     []AttributedEvent
		wantPaid   int64
		wantUnpaid int64
		wantStatus models.ProjectionStatus
		wantOver   bool
	}{
		{"no_spending", nil, 0, 10000, models.ProjectionStatusPending, false},
		{
			"partly_spent",
			[]AttributedEvent{{"tx1", testutil.Date(2025, 1, 3), 3000}, {"tx2", testutil.Date(2025, 1, 9), 2000}},
			5000, 5000, models.ProjectionStatusPartial, false,
		},
		{
			"exactly_spent",
			[]AttributedEvent{{"tx1", testutil.Date(2025, 1, 3), 10000}},
			10000, 0, models.ProjectionStatusPaid, false,
		},
		{
			"over_budget_keeps_exact_remaining",
			[]AttributedEvent{{"tx1", testutil.Date(2025, 1, 3), 7000}, {"tx2", testutil.Date(2025, 1, 4), 5000}},
			12000, -2000, models.ProjectionStatusPaid, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &models.PeriodProjection{ID: "b_2025M01", Kind: models.ObligationKindBudget, AllocatedAmount: 10000}
			Aggregate(p, tt.events, now, 3)

			if p.TotalAmountDue != 10000 {
				t.Errorf("expected due 10000, got %d", p.TotalAmountDue)
			}
			if p.TotalAmountPaid != tt.wantPaid || p.ActualAmount != tt.wantPaid {
				t.Errorf("expected paid %d, got paid %d actual %d", tt.wantPaid, p.TotalAmountPaid, p.ActualAmount)
			}
			if p.TotalAmountUnpaid != tt.wantUnpaid {
				t.Errorf("expected unpaid %d, got %d", tt.wantUnpaid, p.TotalAmountUnpaid)
			}
			if p.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, p.Status)
			}
			if p.IsOverBudget != tt.wantOver {
				t.Errorf("expected over budget %v, got %v", tt.wantOver, p.IsOverBudget)
			}
			if p.LastCalculated == nil || !p.LastCalculated.Equal(now) {
				t.Errorf("expected last calculated %v, got %v", now, p.LastCalculated)
			}
			assertAggregateInvariant(t, p)
		})
	}
}

func TestAggregate_Occurrences(t *testing.T) {
	jan6, jan13, jan20 := testutil.Date(2025, 1, 6), testutil.Date(2025, 1, 13), testutil.Date(2025, 1, 20)

	t.Run("first_fit_fills_earliest_slot", func(t *testing.T) {
		p := occurrenceProjection([]time.Time{jan6, jan13}, []int64{1000, 1000})
		Aggregate(p, []AttributedEvent{{"tx1", testutil.Date(2025, 1, 12), 1000}}, testutil.Date(2025, 1, 12), 3)

		if !reflect.DeepEqual([]string(p.OccurrenceTransactionIDs), []string{"tx1", ""}) {
			t.Errorf("expected tx1 in the first slot, got %v", p.OccurrenceTransactionIDs)
		}
		if !reflect.DeepEqual([]bool(p.OccurrencePaidFlags), []bool{true, false}) {
			t.Errorf("unexpected paid flags %v", p.OccurrencePaidFlags)
		}
		if p.PaidCount != 1 || p.UnpaidCount != 1 {
			t.Errorf("expected 1 paid 1 unpaid, got %d/%d", p.PaidCount, p.UnpaidCount)
		}
		if p.TotalAmountDue != 2000 || p.TotalAmountPaid != 1000 || p.TotalAmountUnpaid != 1000 {
			t.Errorf("unexpected amounts due %d paid %d unpaid %d", p.TotalAmountDue, p.TotalAmountPaid, p.TotalAmountUnpaid)
		}
		if p.NextUnpaidDueDate == nil || !p.NextUnpaidDueDate.Equal(jan13) {
			t.Errorf("expected next unpaid %v, got %v", jan13, p.NextUnpaidDueDate)
		}
		if p.Status != models.ProjectionStatusPartial {
			t.Errorf("expected partial, got %s", p.Status)
		}
		if p.PercentPaidCount != 50 || p.PercentPaidAmount != 50 {
			t.Errorf("expected 50%%/50%%, got %v/%v", p.PercentPaidCount, p.PercentPaidAmount)
		}
	})

	t.Run("existing_assignments_are_kept", func(t *testing.T) {
		p := occurrenceProjection([]time.Time{jan6, jan13, jan20}, []int64{1000, 1000, 1000})
		p.OccurrenceTransactionIDs = datatypes.NewJSONSlice([]string{"", "tx-late", ""})

		Aggregate(p, []AttributedEvent{
			{"tx-late", testutil.Date(2025, 1, 14), 1000},
			{"tx-early", testutil.Date(2025, 1, 5), 1000},
		}, jan20, 3)

		if !reflect.DeepEqual([]string(p.OccurrenceTransactionIDs), []string{"tx-early", "tx-late", ""}) {
			t.Errorf("unexpected slots %v", p.OccurrenceTransactionIDs)
		}
	})

	t.Run("removed_transaction_frees_its_slot", func(t *testing.T) {
		p := occurrenceProjection([]time.Time{jan6}, []int64{8999})
		Aggregate(p, []AttributedEvent{{"tx1", jan6, 8999}}, jan6, 3)
		if !p.IsFullyPaid || p.Status != models.ProjectionStatusPaid {
			t.Fatalf("expected fully paid, got %v %s", p.IsFullyPaid, p.Status)
		}

		Aggregate(p, nil, jan6, 3)
		if p.IsFullyPaid {
			t.Error("expected not fully paid after removal")
		}
		if p.TotalAmountPaid != 0 || p.TotalAmountUnpaid != 8999 {
			t.Errorf("expected paid 0 unpaid 8999, got %d/%d", p.TotalAmountPaid, p.TotalAmountUnpaid)
		}
		if p.NextUnpaidDueDate == nil || !p.NextUnpaidDueDate.Equal(jan6) {
			t.Errorf("expected next unpaid %v, got %v", jan6, p.NextUnpaidDueDate)
		}
	})

	t.Run("events_beyond_last_slot_are_extras", func(t *testing.T) {
		p := occurrenceProjection([]time.Time{jan6}, []int64{1000})
		Aggregate(p, []AttributedEvent{
			{"tx2", testutil.Date(2025, 1, 8), 1000},
			{"tx1", testutil.Date(2025, 1, 7), 1000},
			{"tx3", testutil.Date(2025, 1, 9), 1000},
		}, jan20, 3)

		if p.OccurrenceTransactionIDs[0] != "tx1" {
			t.Errorf("expected earliest event in the slot, got %s", p.OccurrenceTransactionIDs[0])
		}
		if !reflect.DeepEqual([]string(p.ExtraTransactionIDs), []string{"tx2", "tx3"}) {
			t.Errorf("unexpected extras %v", p.ExtraTransactionIDs)
		}
		if p.ActualAmount != 3000 || p.TotalAmountPaid != 1000 {
			t.Errorf("expected actual 3000 paid 1000, got %d/%d", p.ActualAmount, p.TotalAmountPaid)
		}
	})

	t.Run("percentages_diverge_with_uneven_amounts", func(t *testing.T) {
		p := occurrenceProjection([]time.Time{jan6, jan20}, []int64{1000, 3000})
		Aggregate(p, []AttributedEvent{{"tx1", jan6, 1000}}, jan6, 3)

		if p.PercentPaidCount != 50 {
			t.Errorf("expected 50%% by count, got %v", p.PercentPaidCount)
		}
		if p.PercentPaidAmount != 25 {
			t.Errorf("expected 25%% by amount, got %v", p.PercentPaidAmount)
		}
	})

	t.Run("no_occurrences", func(t *testing.T) {
		p := occurrenceProjection(nil, nil)
		Aggregate(p, nil, jan6, 3)

		if p.Status != models.ProjectionStatusPending || p.IsFullyPaid || p.NextUnpaidDueDate != nil {
			t.Errorf("expected an idle pending projection, got %s fully paid %v", p.Status, p.IsFullyPaid)
		}
		assertAggregateInvariant(t, p)
	})
}

func TestAggregate_Status(t *testing.T) {
	due := testutil.Date(2025, 1, 15)

	tests := []struct {
		name string
		now  time.Time
		want models.ProjectionStatus
	}{
		{"overdue_after_due_date", testutil.Date(2025, 1, 16), models.ProjectionStatusOverdue},
		{"due_soon_on_due_date", due.Add(10 * time.Hour), models.ProjectionStatusDueSoon},
		{"due_soon_within_window", testutil.Date(2025, 1, 12), models.ProjectionStatusDueSoon},
		{"pending_before_window", testutil.Date(2025, 1, 11), models.ProjectionStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := occurrenceProjection([]time.Time{due}, []int64{8999})
			Aggregate(p, nil, tt.now, 3)
			if p.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, p.Status)
			}
		})
	}

	t.Run("partial_outranks_overdue", func(t *testing.T) {
		p := occurrenceProjection([]time.Time{testutil.Date(2025, 1, 1), due}, []int64{500, 500})
		Aggregate(p, []AttributedEvent{{"tx1", testutil.Date(2025, 1, 1), 500}}, testutil.Date(2025, 1, 31), 3)
		if p.Status != models.ProjectionStatusPartial {
			t.Errorf("expected partial, got %s", p.Status)
		}
	})
}

func TestAggregate_Idempotent(t *testing.T) {
	now := testutil.Date(2025, 1, 20)
	evs := []AttributedEvent{{"tx2", testutil.Date(2025, 1, 9), 1000}, {"tx1", testutil.Date(2025, 1, 2), 1000}}

	p := occurrenceProjection([]time.Time{testutil.Date(2025, 1, 6), testutil.Date(2025, 1, 13)}, []int64{1000, 1000})
	Aggregate(p, evs, now, 3)
	first := *p
	Aggregate(p, evs, now, 3)

	if !reflect.DeepEqual(first, *p) {
		t.Errorf("second pass changed the projection:\n%+v\n%+v", first, *p)
	}
}
