package models

import (
	"time"

	"famfin/internal/period"
)

// SourcePeriod is the persisted form of one lattice period. Rows are generated ahead
// of need and never deleted; IsCurrent is the only field a sweep mutates.
type SourcePeriod struct {
	ID        string      `gorm:"primaryKey;size:16" json:"id"`
	Type      period.Type `gorm:"not null;size:16;uniqueIndex:idx_source_periods_type_index,priority:1" json:"type"`
	StartDate time.Time   `gorm:"not null;index" json:"start_date"`
	EndDate   time.Time   `gorm:"not null;index" json:"end_date"`
	Year      int         `gorm:"not null" json:"year"`
	Month     int         `gorm:"not null;default:0" json:"month"`
	Half      int         `gorm:"not null;default:0" json:"half"`
	Week      int         `gorm:"not null;default:0" json:"week"`
	Index     int         `gorm:"column:period_index;not null;uniqueIndex:idx_source_periods_type_index,priority:2" json:"index"`
	IsCurrent bool        `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewSourcePeriod converts a lattice period into its row.
func NewSourcePeriod(p period.Period) SourcePeriod {
	return SourcePeriod{
		ID:        p.ID,
		Type:      p.Type,
		StartDate: p.Start,
		EndDate:   p.End,
		Year:      p.Year,
		Month:     p.Month,
		Half:      p.Half,
		Week:      p.Week,
		Index:     p.Index,
	}
}

// Period converts the row back into a lattice period.
func (s *SourcePeriod) Period() period.Period {
	return period.Period{
		ID:    s.ID,
		Type:  s.Type,
		Start: period.DateOf(s.StartDate),
		End:   period.DateOf(s.EndDate),
		Year:  s.Year,
		Month: s.Month,
		Half:  s.Half,
		Week:  s.Week,
		Index: s.Index,
	}
}

// Contains reports whether instant falls on a day inside the period's window.
func (s *SourcePeriod) Contains(instant time.Time) bool {
	return s.Period().Contains(instant)
}
