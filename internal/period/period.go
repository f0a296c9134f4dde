// Package period builds the calendar lattice shared by every obligation: weekly
// (Monday-start), bi-monthly (1st-15th and 16th-end of month) and monthly periods,
// each with a stable human-readable id and a per-type monotonic index.
//
// All dates are UTC midnights and every range is inclusive on both ends.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Type identifies one of the three lattices.
type Type string

const (
	Weekly    Type = "WEEKLY"
	BiMonthly Type = "BI_MONTHLY"
	Monthly   Type = "MONTHLY"
)

// Types lists every lattice in a fixed order.
var Types = []Type{Weekly, BiMonthly, Monthly}

// Valid reports whether t is a known lattice type.
func (t Type) Valid() bool {
	switch t {
	case Weekly, BiMonthly, Monthly:
		return true
	}
	return false
}

const day = 24 * time.Hour

// epochMonday anchors the weekly index: week 0 starts on Monday 1970-01-05.
var epochMonday = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

// Period is one window of a lattice.
type Period struct {
	ID    string
	Type  Type
	Start time.Time
	End   time.Time
	Year  int // ISO week-year for weekly periods
	Month int // 0 for weekly periods
	Half  int // 1 or 2 for bi-monthly periods, 0 otherwise
	Week  int // ISO week for weekly periods, 0 otherwise
	Index int
}

// Days returns the inclusive day count of the window.
func (p Period) Days() int {
	return DaysInclusive(p.Start, p.End)
}

// Contains reports whether instant falls on a day inside the window.
func (p Period) Contains(instant time.Time) bool {
	d := DateOf(instant)
	return !d.Before(p.Start) && !d.After(p.End)
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysInclusive counts calendar days in [start, end]; it is 0 when end precedes start.
func DaysInclusive(start, end time.Time) int {
	s, e := DateOf(start), DateOf(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s)/day) + 1
}

// DaysInMonth returns the length of the month containing t.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Containing returns the period of type t whose window holds instant.
func Containing(t Type, instant time.Time) (Period, error) {
	d := DateOf(instant)
	switch t {
	case Monthly:
		return monthly(d.Year(), d.Month()), nil
	case BiMonthly:
		half := 1
		if d.Day() > 15 {
			half = 2
		}
		return biMonthly(d.Year(), d.Month(), half), nil
	case Weekly:
		offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
		return weekly(d.AddDate(0, 0, -offset)), nil
	}
	return Period{}, fmt.Errorf("unknown period type %q", t)
}

// Next returns the period that immediately follows p in its lattice.
func Next(p Period) Period {
	// Containing cannot fail for a period built by this package.
	n, _ := Containing(p.Type, p.End.Add(day))
	return n
}

func monthly(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Period{
		ID:    fmt.Sprintf("%04dM%02d", year, int(month)),
		Type:  Monthly,
		Start: start,
		End:   end,
		Year:  year,
		Month: int(month),
		Index: monthIndex(year, month),
	}
}

func biMonthly(year int, month time.Month, half int) Period {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	start, end := first, first.AddDate(0, 0, 14)
	suffix := "A"
	if half == 2 {
		start = first.AddDate(0, 0, 15)
		end = first.AddDate(0, 1, -1)
		suffix = "B"
	}
	return Period{
		ID:    fmt.Sprintf("%04dBM%02d%s", year, int(month), suffix),
		Type:  BiMonthly,
		Start: start,
		End:   end,
		Year:  year,
		Month: int(month),
		Half:  half,
		Index: monthIndex(year, month)*2 + half - 1,
	}
}

func weekly(monday time.Time) Period {
	year, week := ISOWeek(monday)
	return Period{
		ID:    WeekID(monday),
		Type:  Weekly,
		Start: monday,
		End:   monday.AddDate(0, 0, 6),
		Year:  year,
		Week:  week,
		Index: floorDiv(int(monday.Sub(epochMonday)/day), 7),
	}
}

func monthIndex(year int, month time.Month) int {
	return year*12 + int(month) - 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ISOWeek computes the ISO-8601 week-year and week of d using the nearest-Thursday
// rule: move to the Thursday of d's Monday-start week, then count whole weeks from
// that Thursday's Jan 1.
func ISOWeek(d time.Time) (year, week int) {
	d = DateOf(d)
	isoWeekday := (int(d.Weekday())+6)%7 + 1 // Monday=1 ... Sunday=7
	thursday := d.AddDate(0, 0, 4-isoWeekday)
	return thursday.Year(), (thursday.YearDay()-1)/7 + 1
}

// WeekID returns the weekly period id for the week containing d, e.g. "2025W05".
func WeekID(d time.Time) string {
	year, week := ISOWeek(d)
	return fmt.Sprintf("%04dW%02d", year, week)
}

var idPattern = regexp.MustCompile(`^(\d{4})(?:M(\d{2})|BM(\d{2})([AB])|W(\d{2}))$`)

// ParseID decodes a period id back into its period. Weekly ids resolve through the
// ISO calendar: week 1 is the week holding the year's first Thursday.
func ParseID(id string) (Period, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return Period{}, fmt.Errorf("malformed period id %q", id)
	}
	year, _ := strconv.Atoi(m[1])

	switch {
	case m[2] != "":
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("malformed period id %q: month out of range", id)
		}
		return monthly(year, time.Month(month)), nil
	case m[3] != "":
		month, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("malformed period id %q: month out of range", id)
		}
		half := 1
		if m[4] == "B" {
			half = 2
		}
		return biMonthly(year, time.Month(month), half), nil
	default:
		week, _ := strconv.Atoi(m[5])
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		firstMonday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
		monday := firstMonday.AddDate(0, 0, 7*(week-1))
		p := weekly(monday)
		if week < 1 || p.Year != year {
			return Period{}, fmt.Errorf("malformed period id %q: week out of range", id)
		}
		return p, nil
	}
}
