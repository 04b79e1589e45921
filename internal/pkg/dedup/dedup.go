// Package dedup records applied side effects so a retried operation runs its
// body at most once.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// idempotencyLog is one applied operation.
type idempotencyLog struct {
	IdempotencyKey string `gorm:"primaryKey;type:varchar(128)"`
	CreatedAt      time.Time
}

func (idempotencyLog) TableName() string { return "idempotency_logs" }

// AutoMigrate creates the ledger table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&idempotencyLog{})
}

// Execute inserts key and runs operation in the same transaction. When key is
// already recorded operation is skipped and Execute reports applied=false.
// An operation error rolls back the key as well, so the next attempt runs it
// again.
func Execute(ctx context.Context, db *gorm.DB, key string, operation func(tx *gorm.DB) error) (applied bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&idempotencyLog{IdempotencyKey: key})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			slog.Debug("idempotency key already applied", slog.String("key", key))
			return nil
		}
		applied = true
		return operation(tx)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Applied reports whether key has been recorded.
func Applied(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&idempotencyLog{}).
		Where("idempotency_key = ?", key).
		Count(&n).Error
	return n > 0, err
}
