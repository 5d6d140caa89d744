package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ovenly/backend/api/responses"
	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/logger"
)

const (
	IdempotencyHeader       = "Idempotency-Key"
	maxIdempotencyKeyLength = 128
)

// IdempotencyKey validates the Idempotency-Key header and exposes it through
// IdempotencyKeyFromContext. Replay itself happens in the services, which
// persist the outcome alongside the write.
func IdempotencyKey(required bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" {
				if required {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !validIdempotencyKey(key) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key must be 1-128 printable characters"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxIdempotencyKey, key)
			if logg != nil {
				ctx = logg.WithField(ctx, "idempotency_key", key)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validIdempotencyKey(key string) bool {
	if len(key) > maxIdempotencyKeyLength {
		return false
	}
	for _, c := range key {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
