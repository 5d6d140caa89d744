package mpesa

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ResultCode is a provider result code that may arrive as a JSON number,
// a numeric string, or be absent altogether.
type ResultCode struct {
	Value int
	Valid bool
}

// Code builds a present result code.
func Code(v int) ResultCode {
	return ResultCode{Value: v, Valid: true}
}

func (c *ResultCode) UnmarshalJSON(data []byte) error {
	*c = ResultCode{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	raw := strings.Trim(string(trimmed), `"`)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// non-numeric codes are treated as absent so callers fall back to the description
		return nil
	}
	c.Value = n
	c.Valid = true
	return nil
}

func (c ResultCode) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

// Ptr returns the code as a pointer, nil when absent.
func (c ResultCode) Ptr() *int {
	if !c.Valid {
		return nil
	}
	v := c.Value
	return &v
}
