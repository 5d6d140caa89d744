package orders

import (
	"context"
	"strings"

	pkgerrors "github.com/ovenly/backend/pkg/errors"
	"github.com/ovenly/backend/pkg/enums"
	"github.com/ovenly/backend/pkg/pagination"
)

// ListInput filters the staff order board. Cursor is the opaque value
// returned with the previous page.
type ListInput struct {
	Status enums.OrderStatus
	Limit  int
	Cursor string
}

// ListResult is one page of the order board, newest first.
type ListResult struct {
	Orders []OrderSnapshot `json:"orders"`
	Cursor string          `json:"cursor"`
}

func (s *Service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	filter := ListFilter{Limit: input.Limit}
	if status := enums.OrderStatus(strings.TrimSpace(string(input.Status))); status != "" {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
				WithDetails(map[string]any{"status": string(status)})
		}
		filter.Status = &status
	}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		filter.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	result := &ListResult{Orders: make([]OrderSnapshot, 0, len(rows))}
	for i := range rows {
		result.Orders = append(result.Orders, snapshotOrder(&rows[i]))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}
