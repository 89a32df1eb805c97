// Package postgres implements the expense store on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"otakuwallet/internal/core"
	"otakuwallet/internal/storage"
)

var _ storage.ExpenseStore = (*Store)(nil)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const expenseColumns = `id, owner, title, amount, display_amount, category,
	satisfaction_rating, is_satisfied, description, purchase_date, created_at, updated_at`

// Store keeps expenses in PostgreSQL. The pool reuses connections across requests.
type Store struct {
	pool *pgxpool.Pool
	now  storage.Clock
}

// New connects to connStr, applies pending migrations and returns a ready store.
func New(ctx context.Context, connStr string) (*Store, error) {
	if err := RunMigrations(connStr); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, now: storage.SystemClock}, nil
}

// RunMigrations applies the embedded schema migrations to the database at connStr.
func RunMigrations(connStr string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(connStr))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres URL to the scheme of the pgx/v5 migrate driver.
func migrateURL(connStr string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(connStr, prefix) {
			return "pgx5://" + strings.TrimPrefix(connStr, prefix)
		}
	}
	return connStr
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(c storage.Clock) {
	s.now = c
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Insert(ctx context.Context, e core.Expense) (core.Expense, error) {
	e, err := storage.PrepareInsert(e, s.now())
	if err != nil {
		return core.Expense{}, err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO expenses (owner, title, amount, display_amount, category,
			satisfaction_rating, is_satisfied, description, purchase_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		e.Owner, e.Title, e.Amount, e.DisplayAmount, string(e.Category),
		e.SatisfactionRating, e.IsSatisfied, e.Description, e.PurchaseDate.Time,
		e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (s *Store) GetByID(ctx context.Context, owner string, id int64) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	e, err := scanExpense(s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner = $1 AND id = $2`, owner, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (s *Store) ListAll(ctx context.Context, owner string) ([]core.Expense, error) {
	return s.list(ctx, owner, "", "id ASC")
}

func (s *Store) ListByCategory(ctx context.Context, owner string, c core.Category) ([]core.Expense, error) {
	return s.list(ctx, owner, "category = $2", "id ASC", string(c))
}

func (s *Store) ListByRating(ctx context.Context, owner string, rating int) ([]core.Expense, error) {
	return s.list(ctx, owner, "satisfaction_rating = $2", "id ASC", rating)
}

func (s *Store) ListByDateRange(ctx context.Context, owner string, start, end core.Date) ([]core.Expense, error) {
	return s.list(ctx, owner, "purchase_date BETWEEN $2 AND $3", "id ASC", start.Time, end.Time)
}

func (s *Store) ListOrderedByDateDesc(ctx context.Context, owner string) ([]core.Expense, error) {
	return s.list(ctx, owner, "", "purchase_date DESC, id ASC")
}

func (s *Store) list(ctx context.Context, owner, cond, order string, args ...any) ([]core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return nil, err
	}
	q := `SELECT ` + expenseColumns + ` FROM expenses WHERE owner = $1`
	if cond != "" {
		q += ` AND ` + cond
	}
	q += ` ORDER BY ` + order

	rows, err := s.pool.Query(ctx, q, append([]any{owner}, args...)...)
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

func (s *Store) CountByRating(ctx context.Context, owner string, rating int) (int64, error) {
	return s.scalar(ctx, owner, `SELECT COUNT(*) FROM expenses WHERE owner = $1 AND satisfaction_rating = $2`, rating)
}

func (s *Store) CountAll(ctx context.Context, owner string) (int64, error) {
	return s.scalar(ctx, owner, `SELECT COUNT(*) FROM expenses WHERE owner = $1`)
}

func (s *Store) SumAmount(ctx context.Context, owner string) (int64, error) {
	return s.scalar(ctx, owner, `SELECT COALESCE(SUM(amount), 0)::BIGINT FROM expenses WHERE owner = $1`)
}

func (s *Store) SumDisplayAmount(ctx context.Context, owner string) (int64, error) {
	return s.scalar(ctx, owner, `SELECT COALESCE(SUM(display_amount), 0)::BIGINT FROM expenses WHERE owner = $1`)
}

func (s *Store) scalar(ctx context.Context, owner, q string, args ...any) (int64, error) {
	if err := core.RequireOwner(owner); err != nil {
		return 0, err
	}
	var v int64
	if err := s.pool.QueryRow(ctx, q, append([]any{owner}, args...)...).Scan(&v); err != nil {
		return 0, fmt.Errorf("aggregate expenses: %w", err)
	}
	return v, nil
}

func (s *Store) Delete(ctx context.Context, owner string, id int64) error {
	if err := core.RequireOwner(owner); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM expenses WHERE owner = $1 AND id = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &core.NotFoundError{ID: id}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, owner string, id int64, mutate storage.UpdateFunc) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanExpense(tx.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE owner = $1 AND id = $2 FOR UPDATE`, owner, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("load expense %d: %w", id, err)
	}

	next, err := mutate(current)
	if err != nil {
		return core.Expense{}, err
	}
	next = storage.Reconcile(current, next, s.now())

	_, err = tx.Exec(ctx, `
		UPDATE expenses SET title = $1, amount = $2, display_amount = $3, category = $4,
			satisfaction_rating = $5, is_satisfied = $6, description = $7, purchase_date = $8, updated_at = $9
		WHERE owner = $10 AND id = $11`,
		next.Title, next.Amount, next.DisplayAmount, string(next.Category),
		next.SatisfactionRating, next.IsSatisfied, next.Description, next.PurchaseDate.Time,
		next.UpdatedAt, owner, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Expense{}, fmt.Errorf("commit update: %w", err)
	}
	return next, nil
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e        core.Expense
		category string
		purchase time.Time
	)
	err := row.Scan(&e.ID, &e.Owner, &e.Title, &e.Amount, &e.DisplayAmount, &category,
		&e.SatisfactionRating, &e.IsSatisfied, &e.Description, &purchase, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	e.PurchaseDate = core.DateOf(purchase)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}
