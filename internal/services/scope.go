package services

import (
	"errors"
	"sync"

	"gorm.io/gorm"

	"famfin/internal/logger"
)

// visibleTo restricts a query on a table with owner_id and group_id columns to the rows
// the principal owns or shares through its group.
func visibleTo(p Principal) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p.GroupID != "" {
			return db.Where("(owner_id = ? OR group_id = ?)", p.ID, p.GroupID)
		}
		return db.Where("owner_id = ?", p.ID)
	}
}

// itemErrors collects per-item failures from concurrent workers.
type itemErrors struct {
	mu    sync.Mutex
	items []ItemError
}

func (e *itemErrors) add(component, id string, err error) {
	logger.Named(component).Errorw("item failed", "id", id, "error", err, "cause", errors.Unwrap(err))
	e.mu.Lock()
	e.items = append(e.items, ItemError{ID: id, Error: err.Error()})
	e.mu.Unlock()
}

func (e *itemErrors) list() []ItemError {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.items == nil {
		return []ItemError{}
	}
	return append([]ItemError(nil), e.items...)
}
