// Package sheets defines the spreadsheet mirror the worker keeps in step
// with the expense store.
package sheets

import (
	"context"
	"fmt"

	"otakuwallet/internal/core"
)

// Ports for outbound adapters.
type (
	// Mirror holds one row per stored expense, keyed by RowKey. It reflects
	// current state only.
	Mirror interface {
		// Upsert writes e's row, replacing an existing row with the same key.
		Upsert(ctx context.Context, e core.Expense) error
		// Remove deletes the row for owner/id. A missing row is not an error.
		Remove(ctx context.Context, owner string, id int64) error
	}
)

// RowKey identifies an expense row across owners.
func RowKey(owner string, id int64) string {
	return fmt.Sprintf("%s/%d", owner, id)
}
