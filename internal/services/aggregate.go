package services

import (
	"sort"
	"time"

	"famfin/internal/models"
	"famfin/internal/period"

	"github.com/shopspring/decimal"
)

// AttributedEvent is the part of one transaction attributed to a projection. Several
// splits of the same transaction into the same projection are summed into one event.
type AttributedEvent struct {
	TransactionID string
	Date          time.Time
	AmountCents   int64
}

// Aggregate recomputes every derived field of p from the full set of events currently
// attributed to it. It is pure and idempotent: running it twice with the same inputs
// leaves p unchanged.
func Aggregate(p *models.PeriodProjection, events []AttributedEvent, now time.Time, dueSoonDays int) {
	var actual int64
	for _, ev := range events {
		actual += ev.AmountCents
	}
	p.ActualAmount = actual

	if p.IsOccurrenceStyle() {
		aggregateOccurrences(p, events, now, dueSoonDays)
	} else {
		aggregateBudget(p, actual)
	}

	calculated := now
	p.LastCalculated = &calculated
}

func aggregateBudget(p *models.PeriodProjection, spent int64) {
	p.TotalAmountDue = p.AllocatedAmount
	p.TotalAmountPaid = spent
	p.TotalAmountUnpaid = p.TotalAmountDue - spent
	p.PaidCount, p.UnpaidCount = 0, 0
	p.PercentPaidCount = 0
	p.PercentPaidAmount = percent(spent, p.TotalAmountDue)
	p.IsOverBudget = spent > p.TotalAmountDue
	p.IsFullyPaid = p.TotalAmountDue > 0 && spent >= p.TotalAmountDue
	p.NextUnpaidDueDate = nil

	switch {
	case p.IsFullyPaid:
		p.Status = models.ProjectionStatusPaid
	case spent > 0:
		p.Status = models.ProjectionStatusPartial
	default:
		p.Status = models.ProjectionStatusPending
	}
}

func aggregateOccurrences(p *models.PeriodProjection, events []AttributedEvent, now time.Time, dueSoonDays int) {
	n := len(p.OccurrenceDueDates)
	slots := make([]string, n)
	copy(slots, p.OccurrenceTransactionIDs)

	present := make(map[string]bool, len(events))
	for _, ev := range events {
		present[ev.TransactionID] = true
	}

	// Keep the slots whose transaction is still attributed; free the rest.
	assigned := make(map[string]bool, n)
	for i, id := range slots {
		if id == "" || !present[id] || assigned[id] {
			slots[i] = ""
			continue
		}
		assigned[id] = true
	}

	pending := make([]AttributedEvent, 0, len(events))
	for _, ev := range events {
		if !assigned[ev.TransactionID] {
			pending = append(pending, ev)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].Date.Equal(pending[j].Date) {
			return pending[i].Date.Before(pending[j].Date)
		}
		return pending[i].TransactionID < pending[j].TransactionID
	})

	// First fit: each new event takes the earliest unfilled slot.
	var extras []string
	next := 0
	for _, ev := range pending {
		for next < n && slots[next] != "" {
			next++
		}
		if next == n {
			extras = append(extras, ev.TransactionID)
			continue
		}
		slots[next] = ev.TransactionID
		next++
	}

	amounts := make([]int64, n)
	copy(amounts, p.OccurrenceAmounts)
	flags := make([]bool, n)

	var due, paid int64
	var paidCount int
	var nextUnpaid *time.Time
	for i := 0; i < n; i++ {
		due += amounts[i]
		if slots[i] != "" {
			flags[i] = true
			paid += amounts[i]
			paidCount++
			continue
		}
		if nextUnpaid == nil {
			d := period.DateOf(p.OccurrenceDueDates[i])
			nextUnpaid = &d
		}
	}

	p.OccurrenceAmounts = amounts
	p.OccurrencePaidFlags = flags
	p.OccurrenceTransactionIDs = slots
	p.ExtraTransactionIDs = extras
	if p.ExtraTransactionIDs == nil {
		p.ExtraTransactionIDs = []string{}
	}

	p.TotalAmountDue = due
	p.TotalAmountPaid = paid
	p.TotalAmountUnpaid = due - paid
	p.PaidCount = paidCount
	p.UnpaidCount = n - paidCount
	p.PercentPaidCount = percent(int64(paidCount), int64(n))
	p.PercentPaidAmount = percent(paid, due)
	p.IsFullyPaid = n > 0 && paidCount == n
	p.NextUnpaidDueDate = nextUnpaid
	p.IsOverBudget = false
	p.Status = occurrenceStatus(p, now, dueSoonDays)
}

// occurrenceStatus applies the priority paid > partial > overdue > due soon > pending.
func occurrenceStatus(p *models.PeriodProjection, now time.Time, dueSoonDays int) models.ProjectionStatus {
	if len(p.OccurrenceDueDates) == 0 {
		return models.ProjectionStatusPending
	}
	if p.IsFullyPaid {
		return models.ProjectionStatusPaid
	}
	if p.PaidCount > 0 {
		return models.ProjectionStatusPartial
	}
	today := period.DateOf(now)
	if p.NextUnpaidDueDate != nil {
		if p.NextUnpaidDueDate.Before(today) {
			return models.ProjectionStatusOverdue
		}
		if !p.NextUnpaidDueDate.After(today.AddDate(0, 0, dueSoonDays)) {
			return models.ProjectionStatusDueSoon
		}
	}
	return models.ProjectionStatusPending
}

// percent returns part/whole as a percentage rounded to two decimals, 0 when whole is 0.
func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).
		Round(2).
		InexactFloat64()
}
