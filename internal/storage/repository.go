package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"otakuwallet/internal/core"

	_ "modernc.org/sqlite"
)

var _ ExpenseStore = (*SQLiteRepository)(nil)

const (
	timestampLayout = time.RFC3339Nano
	dateLayout      = "2006-01-02"

	expenseColumns = `id, owner, title, amount, display_amount, category,
		satisfaction_rating, is_satisfied, description, purchase_date, created_at, updated_at`
)

type SQLiteRepository struct {
	db  *sql.DB
	now Clock
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps update transactions atomic.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: SystemClock}, nil
}

// SetClock overrides the timestamp source.
func (r *SQLiteRepository) SetClock(c Clock) {
	r.now = c
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	e, err := PrepareInsert(e, r.now())
	if err != nil {
		return core.Expense{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (owner, title, amount, display_amount, category,
			satisfaction_rating, is_satisfied, description, purchase_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Owner, e.Title, e.Amount, e.DisplayAmount, string(e.Category),
		e.SatisfactionRating, e.IsSatisfied, e.Description, e.PurchaseDate.Format(dateLayout),
		e.CreatedAt.Format(timestampLayout), e.UpdatedAt.Format(timestampLayout))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("read inserted id: %w", err)
	}
	e.ID = id

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"category", e.Category,
		"amount", e.Amount,
		"rating", e.SatisfactionRating)

	return e, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, owner string, id int64) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner = ? AND id = ?`, owner, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context, owner string) ([]core.Expense, error) {
	return r.list(ctx, owner, "", "id ASC")
}

func (r *SQLiteRepository) ListByCategory(ctx context.Context, owner string, c core.Category) ([]core.Expense, error) {
	return r.list(ctx, owner, "category = ?", "id ASC", string(c))
}

func (r *SQLiteRepository) ListByRating(ctx context.Context, owner string, rating int) ([]core.Expense, error) {
	return r.list(ctx, owner, "satisfaction_rating = ?", "id ASC", rating)
}

func (r *SQLiteRepository) ListByDateRange(ctx context.Context, owner string, start, end core.Date) ([]core.Expense, error) {
	return r.list(ctx, owner, "purchase_date BETWEEN ? AND ?", "id ASC",
		start.Format(dateLayout), end.Format(dateLayout))
}

func (r *SQLiteRepository) ListOrderedByDateDesc(ctx context.Context, owner string) ([]core.Expense, error) {
	return r.list(ctx, owner, "", "purchase_date DESC, id ASC")
}

func (r *SQLiteRepository) list(ctx context.Context, owner, cond, order string, args ...any) ([]core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return nil, err
	}
	q := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner = ?`
	if cond != "" {
		q += ` AND ` + cond
	}
	q += ` ORDER BY ` + order

	rows, err := r.db.QueryContext(ctx, q, append([]any{owner}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CountByRating(ctx context.Context, owner string, rating int) (int64, error) {
	return r.scalar(ctx, owner, `SELECT COUNT(*) FROM expenses WHERE owner = ? AND satisfaction_rating = ?`, rating)
}

func (r *SQLiteRepository) CountAll(ctx context.Context, owner string) (int64, error) {
	return r.scalar(ctx, owner, `SELECT COUNT(*) FROM expenses WHERE owner = ?`)
}

func (r *SQLiteRepository) SumAmount(ctx context.Context, owner string) (int64, error) {
	return r.scalar(ctx, owner, `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE owner = ?`)
}

func (r *SQLiteRepository) SumDisplayAmount(ctx context.Context, owner string) (int64, error) {
	return r.scalar(ctx, owner, `SELECT COALESCE(SUM(display_amount), 0) FROM expenses WHERE owner = ?`)
}

func (r *SQLiteRepository) scalar(ctx context.Context, owner, q string, args ...any) (int64, error) {
	if err := core.RequireOwner(owner); err != nil {
		return 0, err
	}
	var v int64
	if err := r.db.QueryRowContext(ctx, q, append([]any{owner}, args...)...).Scan(&v); err != nil {
		return 0, fmt.Errorf("aggregate expenses: %w", err)
	}
	return v, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, owner string, id int64) error {
	if err := core.RequireOwner(owner); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n == 0 {
		return &core.NotFoundError{ID: id}
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, owner string, id int64, mutate UpdateFunc) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := scanExpense(tx.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner = ? AND id = ?`, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("load expense %d: %w", id, err)
	}

	next, err := mutate(current)
	if err != nil {
		return core.Expense{}, err
	}
	next = Reconcile(current, next, r.now())

	_, err = tx.ExecContext(ctx, `
		UPDATE expenses SET title = ?, amount = ?, display_amount = ?, category = ?,
			satisfaction_rating = ?, is_satisfied = ?, description = ?, purchase_date = ?, updated_at = ?
		WHERE owner = ? AND id = ?`,
		next.Title, next.Amount, next.DisplayAmount, string(next.Category),
		next.SatisfactionRating, next.IsSatisfied, next.Description, next.PurchaseDate.Format(dateLayout),
		next.UpdatedAt.Format(timestampLayout), owner, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e                          core.Expense
		category                   string
		purchase, created, updated string
	)
	err := s.Scan(&e.ID, &e.Owner, &e.Title, &e.Amount, &e.DisplayAmount, &category,
		&e.SatisfactionRating, &e.IsSatisfied, &e.Description, &purchase, &created, &updated)
	if err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	if e.PurchaseDate, err = core.ParseDate(purchase); err != nil {
		return core.Expense{}, err
	}
	if e.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return core.Expense{}, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(timestampLayout, updated); err != nil {
		return core.Expense{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return e, nil
}
