// Package idempotency guards mutating operations keyed by a caller-supplied
// idempotency key. The unique (scope, key) row is the mutual exclusion
// primitive; its stored result is replayed verbatim to retries.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgdb "github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/db/models"
	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

const (
	DefaultTTL = 15 * time.Minute
	// expired rows are reclaimed at most this many times per Begin call
	maxReclaims = 1
)

// Ticket is the result of Begin. Exactly one of ID (the caller owns the row)
// or Replay (a previous caller finished) is set.
type Ticket struct {
	ID     uuid.UUID
	Replay *Replay
}

// Replay is a stored outcome of an earlier call with the same key.
type Replay struct {
	Status enums.IdempotencyStatus
	Result json.RawMessage
}

// Store persists idempotency records through gorm.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewStore builds a store. A zero ttl falls back to DefaultTTL.
func NewStore(db *gorm.DB, ttl time.Duration) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Begin claims (scope, key) for the caller.
func (s *Store) Begin(ctx context.Context, scope, key, requestHash string) (*Ticket, error) {
	scope = strings.TrimSpace(scope)
	key = strings.TrimSpace(key)
	if scope == "" || key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency scope and key required")
	}
	return s.begin(ctx, scope, key, requestHash, 0)
}

func (s *Store) begin(ctx context.Context, scope, key, requestHash string, reclaims int) (*Ticket, error) {
	now := s.now()
	record := models.IdempotencyRecord{
		ID:        uuid.New(),
		Scope:     scope,
		Key:       key,
		Status:    enums.IdempotencyStatusProcessing,
		ExpiresAt: now.Add(s.ttl),
	}
	if requestHash != "" {
		record.RequestHash = &requestHash
	}

	err := s.db.WithContext(ctx).Create(&record).Error
	if err == nil {
		return &Ticket{ID: record.ID}, nil
	}
	if !pkgdb.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert idempotency record")
	}

	var existing models.IdempotencyRecord
	err = s.db.WithContext(ctx).
		Where("scope = ? AND idempotency_key = ?", scope, key).
		First(&existing).Error
	if err != nil {
		if pkgdb.IsNotFound(err) && reclaims < maxReclaims {
			return s.begin(ctx, scope, key, requestHash, reclaims+1)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
	}

	if existing.Expired(now) {
		if reclaims >= maxReclaims {
			return nil, pkgerrors.New(pkgerrors.CodeInProgress, "request already in progress")
		}
		if err := s.db.WithContext(ctx).
			Where("id = ? AND expires_at <= ?", existing.ID, now).
			Delete(&models.IdempotencyRecord{}).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reclaim expired idempotency record")
		}
		return s.begin(ctx, scope, key, requestHash, reclaims+1)
	}

	if existing.Result != nil && existing.Status != enums.IdempotencyStatusProcessing {
		if requestHash != "" && existing.RequestHash != nil && *existing.RequestHash != requestHash {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key reused with a different request")
		}
		return &Ticket{Replay: &Replay{Status: existing.Status, Result: json.RawMessage(*existing.Result)}}, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodeInProgress, "request already in progress")
}

// Complete stores result for replay and marks the record completed.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, result any) error {
	return s.finish(ctx, id, enums.IdempotencyStatusCompleted, result)
}

// Fail stores a deterministic failure so retries observe the same error.
func (s *Store) Fail(ctx context.Context, id uuid.UUID, result any) error {
	return s.finish(ctx, id, enums.IdempotencyStatusFailed, result)
}

// Release drops the record so the same key can be retried immediately.
func (s *Store) Release(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.IdempotencyRecord{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release idempotency record")
	}
	return nil
}

func (s *Store) finish(ctx context.Context, id uuid.UUID, status enums.IdempotencyStatus, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency result")
	}
	stored := string(payload)
	now := s.now()
	err = s.db.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"result":     stored,
			"expires_at": now.Add(s.ttl),
			"updated_at": now,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store idempotency result")
	}
	return nil
}
