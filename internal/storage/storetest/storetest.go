// Package storetest holds the behavioral suite every expense store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"otakuwallet/internal/core"
	"otakuwallet/internal/storage"
)

// Factory builds an empty store that stamps records with clock.
type Factory func(t *testing.T, clock storage.Clock) storage.ExpenseStore

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Run executes the full contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, storage.ExpenseStore, *FakeClock)
	}{
		{"InsertAssignsIdentity", testInsertAssignsIdentity},
		{"InsertRequiresOwner", testInsertRequiresOwner},
		{"GetByIDRoundTrip", testGetByIDRoundTrip},
		{"Statistics", testStatistics},
		{"EmptyOwnerAggregates", testEmptyOwnerAggregates},
		{"ListFilters", testListFilters},
		{"DateRangeInclusive", testDateRangeInclusive},
		{"OrderedByDateDesc", testOrderedByDateDesc},
		{"UpdateRecomputesDisplay", testUpdateRecomputesDisplay},
		{"UpdatePreservesIdentity", testUpdatePreservesIdentity},
		{"UpdateAbortsOnMutatorError", testUpdateAbortsOnMutatorError},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteThenGet", testDeleteThenGet},
		{"OwnerIsolation", testOwnerIsolation},
		{"ConcurrentUpdates", testConcurrentUpdates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewFakeClock()
			s := newStore(t, clock.Now)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s, clock)
		})
	}
}

func newExpense(t *testing.T, owner string, amount int64, rating int, cat core.Category, date core.Date) core.Expense {
	t.Helper()
	e, err := core.NewExpense(owner, core.ExpenseInput{
		Title:              fmt.Sprintf("%s %d", cat, amount),
		Amount:             amount,
		Category:           cat,
		SatisfactionRating: rating,
		PurchaseDate:       date,
	})
	if err != nil {
		t.Fatalf("new expense: %v", err)
	}
	return e
}

func insert(t *testing.T, s storage.ExpenseStore, e core.Expense) core.Expense {
	t.Helper()
	out, err := s.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return out
}

func ids(items []core.Expense) []int64 {
	out := make([]int64, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testInsertAssignsIdentity(t *testing.T, s storage.ExpenseStore, clock *FakeClock) {
	a := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 1)))
	b := insert(t, s, newExpense(t, "alice", 2000, 3, core.Goods, core.NewDate(2024, 12, 1)))
	if a.ID <= 0 || b.ID <= a.ID {
		t.Fatalf("ids must be positive and increasing: %d, %d", a.ID, b.ID)
	}
	if !a.CreatedAt.Equal(clock.Now()) || !a.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("timestamps = %v / %v, want %v", a.CreatedAt, a.UpdatedAt, clock.Now())
	}
}

func testInsertRequiresOwner(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	e := newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 1))
	e.Owner = ""
	_, err := s.Insert(context.Background(), e)
	var ve *core.ValidationError
	if !errors.As(err, &ve) || ve.Field != "owner" {
		t.Fatalf("expected owner validation error, got %v", err)
	}
	if _, err := s.ListAll(context.Background(), ""); !errors.As(err, &ve) {
		t.Fatalf("reads must also reject an empty owner, got %v", err)
	}
}

func testGetByIDRoundTrip(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	in := newExpense(t, "alice", 50000, 5, core.Event, core.NewDate(2024, 12, 24))
	in.Description = "콘서트 티켓"
	saved := insert(t, s, in)

	got, err := s.GetByID(context.Background(), "alice", saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != in.Title || got.Amount != 50000 || got.DisplayAmount != 0 || !got.IsSatisfied ||
		got.Category != core.Event || got.SatisfactionRating != 5 || got.Description != "콘서트 티켓" ||
		got.PurchaseDate != core.NewDate(2024, 12, 24) || got.Owner != "alice" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}

	_, err = s.GetByID(context.Background(), "alice", saved.ID+1000)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testStatistics(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	d := core.NewDate(2024, 12, 1)
	insert(t, s, newExpense(t, "alice", 50000, 5, core.Goods, d))
	insert(t, s, newExpense(t, "alice", 30000, 4, core.Book, d))
	insert(t, s, newExpense(t, "alice", 40000, 2, core.Game, d))

	total, err := s.SumAmount(ctx, "alice")
	if err != nil || total != 120000 {
		t.Fatalf("SumAmount = %d, %v", total, err)
	}
	display, err := s.SumDisplayAmount(ctx, "alice")
	if err != nil || display != 70000 {
		t.Fatalf("SumDisplayAmount = %d, %v", display, err)
	}
	satisfied, err := s.CountByRating(ctx, "alice", 5)
	if err != nil || satisfied != 1 {
		t.Fatalf("CountByRating(5) = %d, %v", satisfied, err)
	}
	count, err := s.CountAll(ctx, "alice")
	if err != nil || count != 3 {
		t.Fatalf("CountAll = %d, %v", count, err)
	}
	if total-display != 50000 {
		t.Fatalf("saved = %d, want 50000", total-display)
	}
}

func testEmptyOwnerAggregates(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	for name, fn := range map[string]func(context.Context, string) (int64, error){
		"SumAmount":        s.SumAmount,
		"SumDisplayAmount": s.SumDisplayAmount,
		"CountAll":         s.CountAll,
	} {
		v, err := fn(ctx, "nobody")
		if err != nil || v != 0 {
			t.Fatalf("%s on empty owner = %d, %v", name, v, err)
		}
	}
	items, err := s.ListAll(ctx, "nobody")
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("ListAll on empty owner = %v, %v", items, err)
	}
}

func testListFilters(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	d := core.NewDate(2024, 12, 1)
	a := insert(t, s, newExpense(t, "alice", 1000, 5, core.Goods, d))
	b := insert(t, s, newExpense(t, "alice", 2000, 3, core.Game, d))
	c := insert(t, s, newExpense(t, "alice", 3000, 5, core.Goods, d))

	all, err := s.ListAll(ctx, "alice")
	if err != nil || !sameIDs(ids(all), []int64{a.ID, b.ID, c.ID}) {
		t.Fatalf("ListAll = %v, %v", ids(all), err)
	}
	goods, err := s.ListByCategory(ctx, "alice", core.Goods)
	if err != nil || !sameIDs(ids(goods), []int64{a.ID, c.ID}) {
		t.Fatalf("ListByCategory = %v, %v", ids(goods), err)
	}
	five, err := s.ListByRating(ctx, "alice", 5)
	if err != nil || !sameIDs(ids(five), []int64{a.ID, c.ID}) {
		t.Fatalf("ListByRating = %v, %v", ids(five), err)
	}
	none, err := s.ListByCategory(ctx, "alice", core.Food)
	if err != nil || len(none) != 0 {
		t.Fatalf("ListByCategory(FOOD) = %v, %v", ids(none), err)
	}
}

func testDateRangeInclusive(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 15)))
	b := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 20)))
	c := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 25)))

	got, err := s.ListByDateRange(context.Background(), "alice", core.NewDate(2024, 12, 18), core.NewDate(2024, 12, 31))
	if err != nil || !sameIDs(ids(got), []int64{b.ID, c.ID}) {
		t.Fatalf("range [18,31] = %v, %v", ids(got), err)
	}

	got, err = s.ListByDateRange(context.Background(), "alice", core.NewDate(2024, 12, 15), core.NewDate(2024, 12, 20))
	if err != nil || len(got) != 2 {
		t.Fatalf("bounds must be inclusive, got %v, %v", ids(got), err)
	}
}

func testOrderedByDateDesc(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	first := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 1)))
	latest := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 20)))
	mid := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 15)))
	tie := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 15)))

	got, err := s.ListOrderedByDateDesc(context.Background(), "alice")
	want := []int64{latest.ID, mid.ID, tie.ID, first.ID}
	if err != nil || !sameIDs(ids(got), want) {
		t.Fatalf("order = %v, want %v (%v)", ids(got), want, err)
	}
}

func testUpdateRecomputesDisplay(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	saved := insert(t, s, newExpense(t, "alice", 30000, 4, core.Goods, core.NewDate(2024, 12, 1)))

	got, err := s.Update(ctx, "alice", saved.ID, func(cur core.Expense) (core.Expense, error) {
		return cur.Apply(core.ExpensePatch{SatisfactionRating: core.Some(5)})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayAmount != 0 || !got.IsSatisfied || got.Amount != 30000 {
		t.Fatalf("updated = %+v", got)
	}
	stored, _ := s.GetByID(ctx, "alice", saved.ID)
	if stored.DisplayAmount != 0 || !stored.IsSatisfied || stored.SatisfactionRating != 5 {
		t.Fatalf("stored = %+v", stored)
	}
}

func testUpdatePreservesIdentity(t *testing.T, s storage.ExpenseStore, clock *FakeClock) {
	ctx := context.Background()
	saved := insert(t, s, newExpense(t, "alice", 30000, 4, core.Goods, core.NewDate(2024, 12, 1)))
	clock.Advance(time.Hour)

	got, err := s.Update(ctx, "alice", saved.ID, func(cur core.Expense) (core.Expense, error) {
		cur.ID = 999999
		cur.Owner = "mallory"
		cur.CreatedAt = time.Time{}
		cur.Title = "renamed"
		return cur, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.ID != saved.ID || got.Owner != "alice" || !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("identity not preserved: %+v", got)
	}
	if !got.UpdatedAt.Equal(clock.Now()) || !got.UpdatedAt.After(saved.UpdatedAt) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, clock.Now())
	}
	stored, err := s.GetByID(ctx, "alice", saved.ID)
	if err != nil || stored.Title != "renamed" {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
}

func testUpdateAbortsOnMutatorError(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	saved := insert(t, s, newExpense(t, "alice", 30000, 4, core.Goods, core.NewDate(2024, 12, 1)))
	boom := errors.New("boom")
	_, err := s.Update(ctx, "alice", saved.ID, func(cur core.Expense) (core.Expense, error) {
		cur.Title = "never"
		return cur, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	stored, _ := s.GetByID(ctx, "alice", saved.ID)
	if stored.Title == "never" {
		t.Fatalf("aborted update was written")
	}
}

func testUpdateMissing(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	_, err := s.Update(context.Background(), "alice", 42, func(cur core.Expense) (core.Expense, error) {
		t.Fatalf("mutator must not run for a missing record")
		return cur, nil
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testDeleteThenGet(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	saved := insert(t, s, newExpense(t, "alice", 1000, 3, core.Goods, core.NewDate(2024, 12, 1)))
	if err := s.Delete(ctx, "alice", saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetByID(ctx, "alice", saved.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if err := s.Delete(ctx, "alice", saved.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func testOwnerIsolation(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	a := insert(t, s, newExpense(t, "alice", 1000, 5, core.Goods, core.NewDate(2024, 12, 1)))
	insert(t, s, newExpense(t, "bob", 7000, 5, core.Goods, core.NewDate(2024, 12, 1)))

	if _, err := s.GetByID(ctx, "bob", a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("bob must not see alice's record: %v", err)
	}
	if err := s.Delete(ctx, "bob", a.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("bob must not delete alice's record: %v", err)
	}
	if _, err := s.Update(ctx, "bob", a.ID, func(c core.Expense) (core.Expense, error) { return c, nil }); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("bob must not update alice's record: %v", err)
	}
	items, _ := s.ListAll(ctx, "alice")
	if len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("alice sees %v", ids(items))
	}
	sum, _ := s.SumAmount(ctx, "alice")
	if sum != 1000 {
		t.Fatalf("alice sum = %d", sum)
	}
	count, _ := s.CountByRating(ctx, "bob", 5)
	if count != 1 {
		t.Fatalf("bob satisfied count = %d", count)
	}
}

func testConcurrentUpdates(t *testing.T, s storage.ExpenseStore, _ *FakeClock) {
	ctx := context.Background()
	saved := insert(t, s, newExpense(t, "alice", 1, 3, core.Goods, core.NewDate(2024, 12, 1)))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "alice", saved.ID, func(cur core.Expense) (core.Expense, error) {
				return cur.Apply(core.ExpensePatch{Amount: core.Some(cur.Amount + 1)})
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}
	got, _ := s.GetByID(ctx, "alice", saved.ID)
	if got.Amount != 1+workers || got.DisplayAmount != got.Amount {
		t.Fatalf("lost update: amount=%d display=%d", got.Amount, got.DisplayAmount)
	}
}
