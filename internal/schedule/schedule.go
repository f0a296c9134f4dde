// Package schedule expands a bill or income cadence into concrete due dates.
//
// Days that do not exist in a month are clamped to its last day, so a bill due on the
// 31st falls on Feb 28 and one due on Feb 29 falls on Feb 28 in common years.
package schedule

import (
	"fmt"
	"slices"
	"time"

	"famfin/internal/period"
	"famfin/internal/proration"

	"github.com/teambition/rrule-go"
)

// Schedule is the set of due dates generated from an anchor date. Semi-monthly
// cadences carry two monthly rules; an rrule.Set holds only one.
type Schedule struct {
	anchor time.Time
	rules  []*rrule.RRule
}

// New builds the schedule for freq whose first occurrence is anchor.
func New(freq proration.Frequency, anchor time.Time) (*Schedule, error) {
	anchor = period.DateOf(anchor)

	var opts []rrule.ROption
	switch freq {
	case proration.Weekly:
		opts = append(opts, rrule.ROption{Freq: rrule.WEEKLY, Interval: 1})
	case proration.Biweekly:
		opts = append(opts, rrule.ROption{Freq: rrule.WEEKLY, Interval: 2})
	case proration.SemiMonthly:
		low, high := anchor.Day(), anchor.Day()+15
		if low > 15 {
			low, high = low-15, low
		}
		opts = append(opts, monthDay(rrule.MONTHLY, low), monthDay(rrule.MONTHLY, high))
	case proration.Monthly:
		opts = append(opts, monthDay(rrule.MONTHLY, anchor.Day()))
	case proration.Annual:
		o := monthDay(rrule.YEARLY, anchor.Day())
		o.Bymonth = []int{int(anchor.Month())}
		opts = append(opts, o)
	default:
		return nil, fmt.Errorf("unknown frequency %q", freq)
	}

	rules := make([]*rrule.RRule, 0, len(opts))
	for _, o := range opts {
		o.Dtstart = anchor
		r, err := rrule.NewRRule(o)
		if err != nil {
			return nil, fmt.Errorf("build %s rule: %w", freq, err)
		}
		rules = append(rules, r)
	}
	return &Schedule{anchor: anchor, rules: rules}, nil
}

// monthDay selects day d of each month, or the month's last day when it is shorter.
func monthDay(freq rrule.Frequency, d int) rrule.ROption {
	if d <= 28 {
		return rrule.ROption{Freq: freq, Interval: 1, Bymonthday: []int{d}}
	}
	days := make([]int, 0, d-27)
	for i := 28; i <= d; i++ {
		days = append(days, i)
	}
	return rrule.ROption{Freq: freq, Interval: 1, Bymonthday: days, Bysetpos: []int{-1}}
}

// Anchor returns the first occurrence.
func (s *Schedule) Anchor() time.Time {
	return s.anchor
}

// Between returns the occurrences on days within [start, end], in order.
func (s *Schedule) Between(start, end time.Time) []time.Time {
	start, end = period.DateOf(start), period.DateOf(end)
	if end.Before(start) || end.Before(s.anchor) {
		return nil
	}
	var out []time.Time
	for _, r := range s.rules {
		out = append(out, r.Between(start, end, true)...)
	}
	if len(s.rules) > 1 {
		slices.SortFunc(out, time.Time.Compare)
		out = slices.CompactFunc(out, time.Time.Equal)
	}
	return out
}

// After returns the first occurrence strictly after the calendar day of t, or the zero
// time when there is none.
func (s *Schedule) After(t time.Time) time.Time {
	var next time.Time
	for _, r := range s.rules {
		cand := r.After(period.DateOf(t), false)
		if !cand.IsZero() && (next.IsZero() || cand.Before(next)) {
			next = cand
		}
	}
	return next
}
