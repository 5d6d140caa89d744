package validators

import (
	"net/http"
	"strconv"

	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

// QueryString returns a sanitized query value capped at maxRunes.
func QueryString(r *http.Request, key string, maxRunes int) string {
	return SanitizeString(r.URL.Query().Get(key), maxRunes)
}

// ParseQueryInt reads an optional integer in [min, max]; absent means fallback.
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := QueryString(r, key, 20)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, queryError(key, "must be a whole number", nil)
	case n < min || n > max:
		return 0, queryError(key, "out of range", map[string]any{"min": min, "max": max})
	}
	return n, nil
}

func queryError(key, reason string, extra map[string]any) error {
	details := map[string]any{"field": key, "reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter "+key).WithDetails(details)
}
