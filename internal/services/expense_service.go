package services

import (
	"context"
	"errors"
	"fmt"

	"otakuwallet/internal/amqp"
	"otakuwallet/internal/core"
	applog "otakuwallet/internal/log"
	"otakuwallet/internal/storage"
)

// EventPublisher delivers expense change notifications. *amqp.Client
// satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, ev amqp.ExpenseEvent) error
}

var _ EventPublisher = (*amqp.Client)(nil)

// ListFilter selects which of an owner's expenses List returns. At most one
// selector applies, checked in field order; the zero value lists everything
// in insertion order.
type ListFilter struct {
	Category      *core.Category
	Rating        *int
	SatisfiedOnly bool
	From, To      *core.Date
	SortDateDesc  bool
}

// ExpenseService is the command surface over the expense store. It validates
// input, classifies store failures, keeps the statistics cache coherent and
// announces every write on the event bus.
type ExpenseService struct {
	store     storage.ExpenseStore
	stats     *StatisticsAggregator
	publisher EventPublisher
	logger    *applog.Logger
	audit     *applog.StructuredLogger
}

type Option func(*ExpenseService)

// WithPublisher enables change events. Without it writes are not announced.
func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithStatistics replaces the default aggregator.
func WithStatistics(a *StatisticsAggregator) Option {
	return func(s *ExpenseService) { s.stats = a }
}

// WithLogger sets the logger used for audit and failure records.
func WithLogger(l *applog.Logger) Option {
	return func(s *ExpenseService) { s.logger = l.WithComponent(applog.ComponentExpense) }
}

func NewExpenseService(store storage.ExpenseStore, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		store:  store,
		logger: applog.Default(applog.ComponentExpense),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = NewStatisticsAggregator(store, DefaultStatisticsConfig())
	}
	s.audit = applog.NewStructuredLogger(s.logger)
	return s
}

// Create validates in, stores the new expense and returns it with its
// assigned ID and timestamps.
func (s *ExpenseService) Create(ctx context.Context, owner string, in core.ExpenseInput) (core.Expense, error) {
	e, err := core.NewExpense(owner, in)
	if err != nil {
		return core.Expense{}, err
	}
	saved, err := s.store.Insert(ctx, e)
	if err != nil {
		return core.Expense{}, s.storeFailure(ctx, applog.OpCreate, owner, 0, err)
	}
	s.afterWrite(ctx, amqp.EventCreated, applog.OpCreate, saved)
	return saved, nil
}

func (s *ExpenseService) Get(ctx context.Context, owner string, id int64) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	e, err := s.store.GetByID(ctx, owner, id)
	if err != nil {
		return core.Expense{}, s.storeFailure(ctx, applog.OpRead, owner, id, err)
	}
	return e, nil
}

func (s *ExpenseService) List(ctx context.Context, owner string, f ListFilter) ([]core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return nil, err
	}

	var (
		items []core.Expense
		err   error
	)
	switch {
	case f.Category != nil:
		items, err = s.store.ListByCategory(ctx, owner, *f.Category)
	case f.Rating != nil:
		if *f.Rating < core.MinRating || *f.Rating > core.MaxRating {
			return nil, &core.ValidationError{Field: "satisfactionRating",
				Message: fmt.Sprintf("must be between %d and %d", core.MinRating, core.MaxRating)}
		}
		items, err = s.store.ListByRating(ctx, owner, *f.Rating)
	case f.SatisfiedOnly:
		items, err = s.store.ListByRating(ctx, owner, core.SatisfiedRating)
	case f.From != nil || f.To != nil:
		if f.From == nil || f.To == nil {
			return nil, &core.ValidationError{Field: "date", Message: "from and to must be given together"}
		}
		if f.From.After(*f.To) {
			return nil, &core.ValidationError{Field: "date", Message: "from must not be after to"}
		}
		items, err = s.store.ListByDateRange(ctx, owner, *f.From, *f.To)
	case f.SortDateDesc:
		items, err = s.store.ListOrderedByDateDesc(ctx, owner)
	default:
		items, err = s.store.ListAll(ctx, owner)
	}
	if err != nil {
		return nil, s.storeFailure(ctx, applog.OpList, owner, 0, err)
	}
	return items, nil
}

// Update applies patch to the stored expense. Absent fields keep their
// current value; an invalid field rejects the whole patch.
func (s *ExpenseService) Update(ctx context.Context, owner string, id int64, patch core.ExpensePatch) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	// Nothing to write: no timestamp bump, no event.
	if patch.Empty() {
		return s.Get(ctx, owner, id)
	}
	updated, err := s.store.Update(ctx, owner, id, func(current core.Expense) (core.Expense, error) {
		return current.Apply(patch)
	})
	if err != nil {
		return core.Expense{}, s.storeFailure(ctx, applog.OpUpdate, owner, id, err)
	}
	s.afterWrite(ctx, amqp.EventUpdated, applog.OpUpdate, updated)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, owner string, id int64) error {
	if err := core.RequireOwner(owner); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, owner, id); err != nil {
		return s.storeFailure(ctx, applog.OpDelete, owner, id, err)
	}
	s.afterWrite(ctx, amqp.EventDeleted, applog.OpDelete, core.Expense{ID: id, Owner: owner})
	return nil
}

func (s *ExpenseService) Statistics(ctx context.Context, owner string) (core.Statistics, error) {
	st, err := s.stats.Summarize(ctx, owner)
	if err != nil {
		return core.Statistics{}, s.storeFailure(ctx, applog.OpStats, owner, 0, err)
	}
	return st, nil
}

func (s *ExpenseService) CategoryBreakdown(ctx context.Context, owner string) ([]core.CategorySummary, error) {
	rows, err := s.stats.ByCategory(ctx, owner)
	if err != nil {
		return nil, s.storeFailure(ctx, applog.OpStats, owner, 0, err)
	}
	return rows, nil
}

// Ping reports whether the store is reachable.
func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the store. The publisher is owned by the caller.
func (s *ExpenseService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func (s *ExpenseService) afterWrite(ctx context.Context, t amqp.EventType, op string, e core.Expense) {
	s.stats.Invalidate(e.Owner)
	s.audit.LogExpenseChange(ctx, op, e.Owner, e.ID, string(e.Category), e.SatisfactionRating, e.Amount)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewExpenseEvent(t, e.Owner, e.ID)); err != nil {
		fields := applog.NewFields().WithOwner(e.Owner).WithErrorType(applog.ErrorTypeNetwork)
		fields[applog.FieldExpenseID] = e.ID
		fields[applog.FieldEventType] = string(t)
		s.audit.LogError(ctx, "Failed to publish expense event", err, applog.ComponentAMQP, applog.OpPublish, fields)
	}
}

// storeFailure passes validation and not-found errors through unchanged and
// wraps anything else as an internal error.
func (s *ExpenseService) storeFailure(ctx context.Context, op, owner string, id int64, err error) error {
	switch core.KindOf(err) {
	case core.KindValidation, core.KindNotFound:
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	fields := applog.NewFields().WithOwner(owner).WithErrorType(applog.ErrorTypeDatabase)
	if id != 0 {
		fields[applog.FieldExpenseID] = id
	}
	s.audit.LogError(ctx, "Expense store operation failed", err, applog.ComponentStorage, op, fields)
	return &core.InternalError{Op: op, Err: err}
}
