package app

import (
	"context"
	"testing"
	"time"

	"famfin/internal/config"
	"famfin/internal/events"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/period"
	"famfin/internal/services"
	"famfin/internal/testutil"
)

func init() {
	logger.Init("test")
}

func TestNewBus_Inline(t *testing.T) {
	bus, err := NewBus(config.Default())
	testutil.AssertNoError(t, err)

	if _, ok := bus.Publisher.(*events.Dispatcher); !ok {
		t.Fatalf("expected an in-process dispatcher, got %T", bus.Publisher)
	}
	if bus.Client() != nil {
		t.Error("expected no broker client")
	}

	var got []events.Type
	bus.Subscribe(events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = append(got, e.Type)
		return nil
	}))
	testutil.AssertNoError(t, bus.Publisher.Publish(context.Background(), events.New(events.TransactionChanged)))
	if len(got) != 1 || got[0] != events.TransactionChanged {
		t.Errorf("expected the subscriber to see one event, got %v", got)
	}
	testutil.AssertNoError(t, bus.Close())
}

func TestNewServices_InlineRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	cfg := config.Default()
	bus, err := NewBus(cfg)
	testutil.AssertNoError(t, err)
	svc := NewServices(db, cfg, bus.Publisher)
	bus.Subscribe(svc.EventHandler(true))

	ctx := context.Background()
	p := services.Principal{ID: testutil.NewPrincipalID()}
	start := period.DateOf(time.Now().AddDate(0, 0, 1))
	bill, err := svc.Obligations.Create(ctx, p, services.CreateObligationInput{
		Kind:        models.ObligationKindOutflow,
		Name:        "Water",
		AmountCents: 4000,
		Frequency:   "monthly",
		StartDate:   &start,
	})
	testutil.AssertNoError(t, err)

	var n int64
	db.Model(&models.PeriodProjection{}).Where("obligation_id = ?", bill.ID).Count(&n)
	if n == 0 {
		t.Fatal("expected projections for the new bill")
	}

	tx, err := svc.Transactions.Create(ctx, p, services.TransactionInput{
		AmountCents: 4000,
		Date:        start,
		Splits:      []services.SplitInput{{ObligationID: bill.ID, AmountCents: 4000}},
	})
	testutil.AssertNoError(t, err)

	var paid models.PeriodProjection
	testutil.AssertNoError(t, db.Where("obligation_id = ? AND is_fully_paid = ?", bill.ID, true).First(&paid).Error)
	testutil.AssertCents(t, "total_amount_paid", paid.TotalAmountPaid, 4000)
	testutil.AssertSameDay(t, "due_date", *paid.DueDate, start)
	if paid.OccurrenceTransactionIDs[0] != tx.ID {
		t.Errorf("expected the projection paid by %s, got %v", tx.ID, paid.OccurrenceTransactionIDs)
	}
}
