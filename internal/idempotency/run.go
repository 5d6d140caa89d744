package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ovenly/backend/pkg/enums"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

// storedError is the replayable shape of a deterministic failure.
type storedError struct {
	Code    pkgerrors.Code  `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Run executes fn at most once per (scope, key). A blank key or nil store
// runs fn unguarded. Completed results and deterministic failures are replayed;
// retryable failures release the key.
func Run[T any](ctx context.Context, store *Store, logg *logger.Logger, scope, key, requestHash string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if store == nil || strings.TrimSpace(key) == "" {
		return fn(ctx)
	}

	ticket, err := store.Begin(ctx, scope, key, requestHash)
	if err != nil {
		return zero, err
	}
	if ticket.Replay != nil {
		return replay[T](ticket.Replay)
	}

	result, runErr := fn(ctx)

	// the outcome must be recorded even if the caller went away
	finishCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if replayable(runErr) {
			if err := store.Fail(finishCtx, ticket.ID, toStoredError(runErr)); err != nil {
				logFailure(finishCtx, logg, "store idempotent failure", err)
			}
		} else if err := store.Release(finishCtx, ticket.ID); err != nil {
			logFailure(finishCtx, logg, "release idempotency key", err)
		}
		return zero, runErr
	}

	if err := store.Complete(finishCtx, ticket.ID, result); err != nil {
		logFailure(finishCtx, logg, "store idempotent result", err)
	}
	return result, nil
}

// HashRequest fingerprints a request payload for key reuse detection.
func HashRequest(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func replay[T any](r *Replay) (T, error) {
	var out T
	if r.Status == enums.IdempotencyStatusFailed {
		var stored storedError
		if err := json.Unmarshal(r.Result, &stored); err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored failure")
		}
		replayed := pkgerrors.New(stored.Code, stored.Message)
		if len(stored.Details) > 0 {
			var details any
			if err := json.Unmarshal(stored.Details, &details); err == nil {
				replayed = replayed.WithDetails(details)
			}
		}
		return out, replayed
	}
	if err := json.Unmarshal(r.Result, &out); err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored result")
	}
	return out, nil
}

func replayable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() == pkgerrors.CodeInternal {
		return false
	}
	return !pkgerrors.MetadataFor(typed.Code()).Retryable
}

func toStoredError(err error) storedError {
	typed := pkgerrors.As(err)
	stored := storedError{Code: typed.Code(), Message: typed.Message()}
	if details := typed.Details(); details != nil {
		if data, marshalErr := json.Marshal(details); marshalErr == nil {
			stored.Details = data
		}
	}
	return stored
}

func logFailure(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
