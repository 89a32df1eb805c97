package core

// Statistics is the aggregate view of one owner's expenses.
type Statistics struct {
	TotalAmount    int64
	DisplayAmount  int64
	SavedAmount    int64
	SatisfiedCount int64
	TotalCount     int64
}

// CategorySummary aggregates the expenses of a single category.
type CategorySummary struct {
	Category      Category
	Count         int64
	TotalAmount   int64
	DisplayAmount int64
}

// NewStatistics builds the aggregate from raw sums and counts.
func NewStatistics(total, display, satisfied, count int64) Statistics {
	return Statistics{
		TotalAmount:    total,
		DisplayAmount:  display,
		SavedAmount:    total - display,
		SatisfiedCount: satisfied,
		TotalCount:     count,
	}
}

// Summarize reduces a list of expenses to its statistics.
func Summarize(items []Expense) Statistics {
	var total, display, satisfied int64
	for _, e := range items {
		total += e.Amount
		display += e.DisplayAmount
		if e.SatisfactionRating == SatisfiedRating {
			satisfied++
		}
	}
	return NewStatistics(total, display, satisfied, int64(len(items)))
}

// SummarizeByCategory returns one entry per category in declaration order,
// including categories without expenses.
func SummarizeByCategory(items []Expense) []CategorySummary {
	idx := make(map[Category]int, len(categoryOrder))
	out := make([]CategorySummary, len(categoryOrder))
	for i, c := range categoryOrder {
		idx[c] = i
		out[i].Category = c
	}
	for _, e := range items {
		i, ok := idx[e.Category]
		if !ok {
			continue
		}
		out[i].Count++
		out[i].TotalAmount += e.Amount
		out[i].DisplayAmount += e.DisplayAmount
	}
	return out
}
