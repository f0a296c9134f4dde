package period

import (
	"fmt"
	"time"
)

// SkipError describes a generated period that failed validation and was left out.
type SkipError struct {
	ID     string
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("period %s skipped: %s", e.ID, e.Reason)
}

// Generate returns the periods of type t that intersect [anchor, horizonEnd], in order,
// starting with the period that contains anchor. The output depends only on its inputs,
// so callers can re-run it and upsert by id.
//
// A period failing validation is reported in the second return value and omitted;
// generation carries on with its successor.
func Generate(t Type, anchor, horizonEnd time.Time) ([]Period, []error) {
	if !t.Valid() {
		return nil, []error{fmt.Errorf("unknown period type %q", t)}
	}
	anchor, horizonEnd = DateOf(anchor), DateOf(horizonEnd)
	if horizonEnd.Before(anchor) {
		return nil, nil
	}

	var (
		out     []Period
		skipped []error
	)
	cur, _ := Containing(t, anchor)
	var prev *Period
	for !cur.Start.After(horizonEnd) {
		if err := Validate(cur, prev); err != nil {
			skipped = append(skipped, err)
		} else {
			out = append(out, cur)
		}
		p := cur
		prev = &p
		cur = Next(cur)
	}
	return out, skipped
}

// Validate checks the boundaries of p and, when prev is non-nil, that p starts the day
// after prev ends.
func Validate(p Period, prev *Period) error {
	if p.ID == "" {
		return &SkipError{ID: "<empty>", Reason: "missing id"}
	}
	if p.End.Before(p.Start) {
		return &SkipError{ID: p.ID, Reason: "end precedes start"}
	}

	days := p.Days()
	switch p.Type {
	case Weekly:
		if days != 7 || p.Start.Weekday() != time.Monday {
			return &SkipError{ID: p.ID, Reason: fmt.Sprintf("weekly window must be Monday-start 7 days, got %d days from %s", days, p.Start.Weekday())}
		}
	case BiMonthly:
		if p.Half == 1 && (p.Start.Day() != 1 || days != 15) {
			return &SkipError{ID: p.ID, Reason: "first half must cover days 1-15"}
		}
		if p.Half == 2 && (p.Start.Day() != 16 || p.End.Day() != DaysInMonth(p.Start) || days < 13 || days > 16) {
			return &SkipError{ID: p.ID, Reason: "second half must cover day 16 to month end"}
		}
	case Monthly:
		if p.Start.Day() != 1 || days != DaysInMonth(p.Start) {
			return &SkipError{ID: p.ID, Reason: "monthly window must cover the calendar month"}
		}
	default:
		return &SkipError{ID: p.ID, Reason: fmt.Sprintf("unknown type %q", p.Type)}
	}

	if prev != nil && !prev.End.AddDate(0, 0, 1).Equal(p.Start) {
		return &SkipError{ID: p.ID, Reason: fmt.Sprintf("not contiguous with %s", prev.ID)}
	}
	return nil
}

// TypeForBudgetPeriod maps a budget's own period onto the lattice it is tracked in.
func TypeForBudgetPeriod(budgetPeriod string) (Type, bool) {
	switch budgetPeriod {
	case "weekly":
		return Weekly, true
	case "bi_monthly":
		return BiMonthly, true
	case "monthly":
		return Monthly, true
	}
	return "", false
}
