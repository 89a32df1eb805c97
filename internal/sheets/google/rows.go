package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"otakuwallet/internal/core"
	ports "otakuwallet/internal/sheets"
)

// Mirror columns A..K.
const lastColumn = "K"

func headerRow() []any {
	return []any{
		"Key", "Purchase Date", "Title", "Category", "Category Label",
		"Amount", "Display Amount", "Rating", "Satisfied", "Description", "Updated At",
	}
}

// expenseRow renders e in column order. Amounts use thousands separators so
// the sheet reads like the app.
func expenseRow(e core.Expense) []any {
	satisfied := "no"
	if e.IsSatisfied {
		satisfied = "yes"
	}
	return []any{
		ports.RowKey(e.Owner, e.ID),
		e.PurchaseDate.String(),
		e.Title,
		e.Category.String(),
		strings.TrimSpace(e.Category.Emoji() + " " + e.Category.Label()),
		core.FormatAmount(e.Amount),
		core.FormatAmount(e.DisplayAmount),
		strconv.Itoa(e.SatisfactionRating),
		satisfied,
		e.Description,
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// indexKeys maps each non-empty key in a column-A read to its 1-based row.
// The first occurrence wins.
func indexKeys(values [][]any) map[string]int {
	out := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		key := strings.TrimSpace(fmt.Sprint(row[0]))
		if key == "" {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = i + 1
		}
	}
	return out
}
