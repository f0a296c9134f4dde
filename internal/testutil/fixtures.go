package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"famfin/internal/models"
	"famfin/internal/period"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Date returns the UTC midnight of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NewPrincipalID returns a fresh identity-provider subject.
func NewPrincipalID() string {
	return uuid.NewString()
}

// CreateTestObligation persists o after filling in a name, an owner and a start date
// when they are missing.
func CreateTestObligation(t *testing.T, db *gorm.DB, o *models.Obligation) *models.Obligation {
	t.Helper()

	if o.Name == "" {
		o.Name = fmt.Sprintf("Test Obligation %d", nextID())
	}
	if o.OwnerID == "" {
		o.OwnerID = NewPrincipalID()
	}
	if o.StartDate.IsZero() {
		o.StartDate = period.DateOf(time.Now())
	}
	if o.Version == 0 {
		o.Version = 1
	}
	o.IsActive = true
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("failed to create test obligation: %v", err)
	}
	return o
}

// CreateTestBudget creates a budget of amount cents per budgetPeriod.
func CreateTestBudget(t *testing.T, db *gorm.DB, ownerID, budgetPeriod string, amount int64, start time.Time) *models.Obligation {
	t.Helper()
	return CreateTestObligation(t, db, &models.Obligation{
		Kind:        models.ObligationKindBudget,
		OwnerID:     ownerID,
		Category:    "Groceries",
		AmountCents: amount,
		Frequency:   budgetPeriod,
		StartDate:   start,
	})
}

// CreateTestOutflow creates a bill of amount cents first due on start.
func CreateTestOutflow(t *testing.T, db *gorm.DB, ownerID, frequency string, amount int64, start time.Time) *models.Obligation {
	t.Helper()
	next := start
	return CreateTestObligation(t, db, &models.Obligation{
		Kind:        models.ObligationKindOutflow,
		OwnerID:     ownerID,
		Category:    "Utilities",
		AmountCents: amount,
		Frequency:   frequency,
		StartDate:   start,
		NextDueDate: &next,
	})
}

// CreateTestSourcePeriods persists the lattice of type typ covering [from, to].
func CreateTestSourcePeriods(t *testing.T, db *gorm.DB, typ period.Type, from, to time.Time) []models.SourcePeriod {
	t.Helper()

	periods, skipped := period.Generate(typ, from, to)
	if len(skipped) > 0 {
		t.Fatalf("unexpected skipped periods: %v", skipped)
	}
	rows := make([]models.SourcePeriod, len(periods))
	for i, p := range periods {
		rows[i] = models.NewSourcePeriod(p)
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("failed to create test source periods: %v", err)
	}
	return rows
}

// CreateTestTransaction records a transaction of amount cents on date with the given
// splits, bypassing validation and aggregation.
func CreateTestTransaction(t *testing.T, db *gorm.DB, ownerID string, amount int64, date time.Time, splits ...models.TransactionSplit) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		OwnerID:     ownerID,
		AmountCents: amount,
		Date:        period.DateOf(date),
		Description: fmt.Sprintf("Test Transaction %d", nextID()),
		Splits:      splits,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}
