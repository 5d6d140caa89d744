package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ovenly/backend/pkg/enums"
)

// IdempotencyRecord guards one (scope, key) mutating operation and stores its result for replay.
type IdempotencyRecord struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Scope       string                  `gorm:"column:scope;not null;uniqueIndex:idx_idempotency_scope_key"`
	Key         string                  `gorm:"column:idempotency_key;not null;uniqueIndex:idx_idempotency_scope_key"`
	Status      enums.IdempotencyStatus `gorm:"column:status;type:idempotency_status;not null"`
	RequestHash *string                 `gorm:"column:request_hash"`
	Result      *string                 `gorm:"column:result;type:jsonb"`
	ExpiresAt   time.Time               `gorm:"column:expires_at;not null"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

// Expired reports whether the record can be reclaimed by a new caller.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
