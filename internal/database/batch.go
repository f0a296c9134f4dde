package database

import (
	"fmt"

	"famfin/internal/config"
	"famfin/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels lists every persisted model, in dependency order.
func AllModels() []any {
	return []any{
		&models.SourcePeriod{},
		&models.Obligation{},
		&models.PeriodProjection{},
		&models.Transaction{},
		&models.TransactionSplit{},
		&models.AuditLog{},
	}
}

// BatchError reports a chunk that failed after earlier chunks were committed.
type BatchError struct {
	Chunk     int
	Committed int64
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after %d rows committed: %v", e.Chunk, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// UpsertInBatches inserts rows in sequential atomic chunks of at most batchSize,
// skipping rows whose primary key already exists. It returns the number of rows
// actually inserted. A failing chunk stops the run; earlier chunks stay committed,
// so callers must treat the write as at-least-once and idempotent by id.
func UpsertInBatches[T any](db *gorm.DB, rows []T, batchSize int) (int64, error) {
	if batchSize < 1 || batchSize > config.MaxBatchSize {
		batchSize = config.MaxBatchSize
	}

	var inserted int64
	for start, chunk := 0, 0; start < len(rows); start, chunk = start+batchSize, chunk+1 {
		end := min(start+batchSize, len(rows))
		part := rows[start:end]

		var affected int64
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).Create(&part)
			if res.Error != nil {
				return res.Error
			}
			affected = res.RowsAffected
			return nil
		})
		if err != nil {
			return inserted, &BatchError{Chunk: chunk, Committed: inserted, Err: err}
		}
		inserted += affected
	}
	return inserted, nil
}
