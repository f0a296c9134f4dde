package services

import (
	"context"
	"testing"
	"time"

	"famfin/internal/config"
	"famfin/internal/events"
	"famfin/internal/logger"
	"famfin/internal/models"
	"famfin/internal/testutil"

	"gorm.io/gorm"
)

func init() {
	logger.Init("test")
}

// testEnv wires every service over one test database with inline, best-effort change
// notifications, the way the API runs without a broker.
type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	periods      SourcePeriodServicer
	materializer MaterializerServicer
	aggregator   AggregatorServicer
	reconciler   ReconcileServicer
	obligations  ObligationServicer
	projections  ProjectionServicer
	transactions TransactionServicer
	feed         FeedServicer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	cfg := config.Default()
	cfg.RecomputeBaseBackoff = time.Millisecond

	dispatcher := events.NewDispatcher()
	env := &testEnv{db: db, cfg: cfg}
	env.periods = NewSourcePeriodService(db, cfg.BatchSize)
	env.materializer = NewMaterializerService(db, env.periods, cfg)
	env.aggregator = NewAggregatorService(db, cfg)
	env.reconciler = NewReconcileService(db, env.aggregator)
	env.obligations = NewObligationService(db, env.periods, dispatcher)
	env.projections = NewProjectionService(db, env.obligations)
	env.transactions = NewTransactionService(db, env.obligations, env.materializer, dispatcher)
	env.feed = NewFeedService(db, env.transactions)
	dispatcher.Subscribe(NewEventHandler(env.materializer, env.aggregator, env.reconciler, true))
	return env
}

// setNow pins the services' clock for the rest of the test.
func setNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = prev })
}

func (e *testEnv) projection(t *testing.T, obligationID, periodID string) *models.PeriodProjection {
	t.Helper()

	var p models.PeriodProjection
	if err := e.db.Where("id = ?", models.ProjectionID(obligationID, periodID)).First(&p).Error; err != nil {
		t.Fatalf("projection %s of %s not found: %v", periodID, obligationID, err)
	}
	return &p
}

func (e *testEnv) countProjections(t *testing.T, obligationID string) int64 {
	t.Helper()

	var n int64
	if err := e.db.Model(&models.PeriodProjection{}).Where("obligation_id = ?", obligationID).Count(&n).Error; err != nil {
		t.Fatalf("count projections: %v", err)
	}
	return n
}

func assertAggregateInvariant(t *testing.T, p *models.PeriodProjection) {
	t.Helper()

	if p.TotalAmountPaid+p.TotalAmountUnpaid != p.TotalAmountDue {
		t.Errorf("%s: paid %d + unpaid %d != due %d", p.ID, p.TotalAmountPaid, p.TotalAmountUnpaid, p.TotalAmountDue)
	}
	n := len(p.OccurrenceDueDates)
	if len(p.OccurrenceAmounts) != n || len(p.OccurrencePaidFlags) != n || len(p.OccurrenceTransactionIDs) != n {
		t.Errorf("%s: occurrence arrays differ in length: %d dates, %d amounts, %d flags, %d ids",
			p.ID, n, len(p.OccurrenceAmounts), len(p.OccurrencePaidFlags), len(p.OccurrenceTransactionIDs))
	}
}

var ctx = context.Background()
