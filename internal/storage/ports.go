package storage

import (
	"context"
	"time"

	"otakuwallet/internal/core"
)

// Ports implemented by every expense backend. Every method is scoped to a
// single owner; records of other owners are invisible.
type (
	ExpenseWriter interface {
		// Insert assigns ID and timestamps and returns the stored record.
		Insert(ctx context.Context, e core.Expense) (core.Expense, error)
		// Update runs mutate on the current record and persists the result
		// atomically. ID, Owner and CreatedAt are preserved.
		Update(ctx context.Context, owner string, id int64, mutate UpdateFunc) (core.Expense, error)
		Delete(ctx context.Context, owner string, id int64) error
	}

	ExpenseReader interface {
		GetByID(ctx context.Context, owner string, id int64) (core.Expense, error)
		ListAll(ctx context.Context, owner string) ([]core.Expense, error)
		ListByCategory(ctx context.Context, owner string, c core.Category) ([]core.Expense, error)
		ListByRating(ctx context.Context, owner string, rating int) ([]core.Expense, error)
		// ListByDateRange includes both bounds.
		ListByDateRange(ctx context.Context, owner string, start, end core.Date) ([]core.Expense, error)
		// ListOrderedByDateDesc sorts by purchase date, newest first; ties keep insertion order.
		ListOrderedByDateDesc(ctx context.Context, owner string) ([]core.Expense, error)
	}

	// ExpenseAggregator answers aggregate queries. Sums of an empty set are 0.
	ExpenseAggregator interface {
		CountByRating(ctx context.Context, owner string, rating int) (int64, error)
		CountAll(ctx context.Context, owner string) (int64, error)
		SumAmount(ctx context.Context, owner string) (int64, error)
		SumDisplayAmount(ctx context.Context, owner string) (int64, error)
	}

	ExpenseStore interface {
		ExpenseWriter
		ExpenseReader
		ExpenseAggregator
		Ping(ctx context.Context) error
		Close() error
	}
)

// UpdateFunc computes the new state of a record. Returning an error aborts
// the update without writing.
type UpdateFunc func(current core.Expense) (core.Expense, error)

// Clock supplies the timestamps stores assign.
type Clock func() time.Time

// SystemClock returns the current UTC time at microsecond precision, the
// finest resolution every backend round-trips.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// PrepareInsert checks the owner and stamps creation times.
func PrepareInsert(e core.Expense, now time.Time) (core.Expense, error) {
	if err := core.RequireOwner(e.Owner); err != nil {
		return core.Expense{}, err
	}
	e.ID = 0
	e.CreatedAt = now
	e.UpdatedAt = now
	return e, nil
}

// Reconcile keeps the identity of current on next and refreshes UpdatedAt.
func Reconcile(current, next core.Expense, now time.Time) core.Expense {
	next.ID = current.ID
	next.Owner = current.Owner
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = now
	return next
}
