package http

import (
	"time"

	"otakuwallet/internal/core"
)

// ExpenseView is the wire form of an expense. The owner is never exposed.
type ExpenseView struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Amount             int64     `json:"amount"`
	DisplayAmount      int64     `json:"displayAmount"`
	Category           string    `json:"category"`
	CategoryLabel      string    `json:"categoryLabel"`
	CategoryEmoji      string    `json:"categoryEmoji"`
	SatisfactionRating int       `json:"satisfactionRating"`
	IsSatisfied        bool      `json:"isSatisfied"`
	Description        string    `json:"description"`
	PurchaseDate       core.Date `json:"purchaseDate"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type StatisticsView struct {
	TotalAmount    int64 `json:"totalAmount"`
	DisplayAmount  int64 `json:"displayAmount"`
	SavedAmount    int64 `json:"savedAmount"`
	SatisfiedCount int64 `json:"satisfiedCount"`
	TotalCount     int64 `json:"totalCount"`
}

type CategorySummaryView struct {
	Category      string `json:"category"`
	CategoryLabel string `json:"categoryLabel"`
	CategoryEmoji string `json:"categoryEmoji"`
	Count         int64  `json:"count"`
	TotalAmount   int64  `json:"totalAmount"`
	DisplayAmount int64  `json:"displayAmount"`
}

type CategoryView struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

func newExpenseView(e core.Expense) ExpenseView {
	return ExpenseView{
		ID:                 e.ID,
		Title:              e.Title,
		Amount:             e.Amount,
		DisplayAmount:      e.DisplayAmount,
		Category:           e.Category.String(),
		CategoryLabel:      e.Category.Label(),
		CategoryEmoji:      e.Category.Emoji(),
		SatisfactionRating: e.SatisfactionRating,
		IsSatisfied:        e.IsSatisfied,
		Description:        e.Description,
		PurchaseDate:       e.PurchaseDate,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

// newExpenseViews never returns nil so an empty list encodes as [].
func newExpenseViews(items []core.Expense) []ExpenseView {
	out := make([]ExpenseView, 0, len(items))
	for _, e := range items {
		out = append(out, newExpenseView(e))
	}
	return out
}

func newStatisticsView(s core.Statistics) StatisticsView {
	return StatisticsView{
		TotalAmount:    s.TotalAmount,
		DisplayAmount:  s.DisplayAmount,
		SavedAmount:    s.SavedAmount,
		SatisfiedCount: s.SatisfiedCount,
		TotalCount:     s.TotalCount,
	}
}

func newCategorySummaryViews(rows []core.CategorySummary) []CategorySummaryView {
	out := make([]CategorySummaryView, 0, len(rows))
	for _, r := range rows {
		out = append(out, CategorySummaryView{
			Category:      r.Category.String(),
			CategoryLabel: r.Category.Label(),
			CategoryEmoji: r.Category.Emoji(),
			Count:         r.Count,
			TotalAmount:   r.TotalAmount,
			DisplayAmount: r.DisplayAmount,
		})
	}
	return out
}

func categoryViews() []CategoryView {
	cats := core.Categories()
	out := make([]CategoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryView{Name: c.String(), Label: c.Label(), Emoji: c.Emoji()})
	}
	return out
}
