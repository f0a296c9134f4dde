package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transaction is an observed, dated money movement, optionally split across obligations.
// AmountCents is an unsigned magnitude.
type Transaction struct {
	Base
	OwnerID     string    `gorm:"not null;index;uniqueIndex:idx_transactions_owner_external,priority:1" json:"owner_id"`
	AccountID   *string   `json:"account_id,omitempty"`
	AmountCents int64     `gorm:"type:bigint;not null" json:"amount_cents"`
	Date        time.Time `gorm:"not null;index" json:"date"`
	Description string    `json:"description"`
	StreamID    *string   `gorm:"index" json:"stream_id,omitempty"`
	ExternalID  *string   `gorm:"uniqueIndex:idx_transactions_owner_external,priority:2" json:"external_id,omitempty"`

	// Relationships
	Splits []TransactionSplit `gorm:"foreignKey:TransactionID" json:"splits"`
}

// SplitTotal sums the split amounts.
func (t *Transaction) SplitTotal() int64 {
	var total int64
	for _, s := range t.Splits {
		total += s.AmountCents
	}
	return total
}

// ProjectionIDs returns the distinct projections the splits are attributed to.
func (t *Transaction) ProjectionIDs() []string {
	seen := make(map[string]bool, len(t.Splits))
	var ids []string
	for _, s := range t.Splits {
		if s.ProjectionID == "" || seen[s.ProjectionID] {
			continue
		}
		seen[s.ProjectionID] = true
		ids = append(ids, s.ProjectionID)
	}
	return ids
}

// TransactionSplit attributes part of a transaction to one obligation's projection.
type TransactionSplit struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string    `gorm:"type:uuid;not null;index" json:"transaction_id"`
	ObligationID  string    `gorm:"type:uuid;not null;index" json:"obligation_id"`
	ProjectionID  string    `gorm:"not null;size:64;index" json:"projection_id"`
	AmountCents   int64     `gorm:"type:bigint;not null" json:"amount_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// BeforeCreate hook generates a UUIDv7 for new splits
func (s *TransactionSplit) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		s.ID = id.String()
	}
	return nil
}
