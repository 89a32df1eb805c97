package core

import "testing"

func mustExpense(t *testing.T, amount int64, rating int, cat Category) Expense {
	t.Helper()
	e, err := NewExpense("o", ExpenseInput{
		Title:              "x",
		Amount:             amount,
		Category:           cat,
		SatisfactionRating: rating,
		PurchaseDate:       NewDate(2024, 12, 1),
	})
	if err != nil {
		t.Fatalf("new expense: %v", err)
	}
	return e
}

func TestSummarize(t *testing.T) {
	items := []Expense{
		mustExpense(t, 50000, 5, Goods),
		mustExpense(t, 30000, 4, Goods),
		mustExpense(t, 40000, 2, Game),
	}
	got := Summarize(items)
	want := Statistics{TotalAmount: 120000, DisplayAmount: 70000, SavedAmount: 50000, SatisfiedCount: 1, TotalCount: 3}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got := Summarize(nil); got != (Statistics{}) {
		t.Fatalf("empty summary = %+v", got)
	}
}

func TestSummarizeByCategory(t *testing.T) {
	items := []Expense{
		mustExpense(t, 50000, 5, Goods),
		mustExpense(t, 30000, 4, Goods),
		mustExpense(t, 40000, 2, Game),
	}
	got := SummarizeByCategory(items)
	if len(got) != len(Categories()) {
		t.Fatalf("expected one entry per category, got %d", len(got))
	}
	if got[0].Category != Goods || got[0].Count != 2 || got[0].TotalAmount != 80000 || got[0].DisplayAmount != 30000 {
		t.Fatalf("goods = %+v", got[0])
	}
	if got[3].Category != Game || got[3].TotalAmount != 40000 {
		t.Fatalf("game = %+v", got[3])
	}
	if got[1].Count != 0 || got[1].TotalAmount != 0 {
		t.Fatalf("event should be empty: %+v", got[1])
	}
}
