// Package memory provides an in-process expense store. Each owner gets its
// own partition with its own lock, so owners never contend with each other.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"otakuwallet/internal/core"
	"otakuwallet/internal/storage"
)

var _ storage.ExpenseStore = (*Store)(nil)

type Store struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	seq        atomic.Int64
	now        storage.Clock
}

type partition struct {
	mu    sync.RWMutex
	items map[int64]core.Expense
}

type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(c storage.Clock) Option {
	return func(s *Store) { s.now = c }
}

func New(opts ...Option) *Store {
	s := &Store{
		partitions: make(map[string]*partition),
		now:        storage.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup returns the owner's partition or nil when the owner has no records.
func (s *Store) lookup(owner string) *partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[owner]
}

func (s *Store) partitionFor(owner string) *partition {
	if p := s.lookup(owner); p != nil {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[owner]
	if !ok {
		p = &partition{items: make(map[int64]core.Expense)}
		s.partitions[owner] = p
	}
	return p
}

func (s *Store) Insert(_ context.Context, e core.Expense) (core.Expense, error) {
	e, err := storage.PrepareInsert(e, s.now())
	if err != nil {
		return core.Expense{}, err
	}
	p := s.partitionFor(e.Owner)
	p.mu.Lock()
	defer p.mu.Unlock()
	e.ID = s.seq.Add(1)
	p.items[e.ID] = e
	return e, nil
}

func (s *Store) GetByID(_ context.Context, owner string, id int64) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	p := s.lookup(owner)
	if p == nil {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.items[id]
	if !ok {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	return e, nil
}

// filter returns the owner's records accepted by keep, in ID order.
func (s *Store) filter(owner string, keep func(core.Expense) bool) ([]core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return nil, err
	}
	out := []core.Expense{}
	p := s.lookup(owner)
	if p == nil {
		return out, nil
	}
	p.mu.RLock()
	for _, e := range p.items {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListAll(_ context.Context, owner string) ([]core.Expense, error) {
	return s.filter(owner, nil)
}

func (s *Store) ListByCategory(_ context.Context, owner string, c core.Category) ([]core.Expense, error) {
	return s.filter(owner, func(e core.Expense) bool { return e.Category == c })
}

func (s *Store) ListByRating(_ context.Context, owner string, rating int) ([]core.Expense, error) {
	return s.filter(owner, func(e core.Expense) bool { return e.SatisfactionRating == rating })
}

func (s *Store) ListByDateRange(_ context.Context, owner string, start, end core.Date) ([]core.Expense, error) {
	return s.filter(owner, func(e core.Expense) bool { return e.PurchaseDate.Between(start, end) })
}

func (s *Store) ListOrderedByDateDesc(_ context.Context, owner string) ([]core.Expense, error) {
	out, err := s.filter(owner, nil)
	if err != nil {
		return nil, err
	}
	// filter returns ID order, so a stable sort keeps insertion order on ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PurchaseDate.After(out[j].PurchaseDate)
	})
	return out, nil
}

// fold visits every record of owner under the partition read lock.
func (s *Store) fold(owner string, visit func(core.Expense)) error {
	if err := core.RequireOwner(owner); err != nil {
		return err
	}
	p := s.lookup(owner)
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.items {
		visit(e)
	}
	return nil
}

func (s *Store) CountByRating(_ context.Context, owner string, rating int) (int64, error) {
	var n int64
	err := s.fold(owner, func(e core.Expense) {
		if e.SatisfactionRating == rating {
			n++
		}
	})
	return n, err
}

func (s *Store) CountAll(_ context.Context, owner string) (int64, error) {
	var n int64
	err := s.fold(owner, func(core.Expense) { n++ })
	return n, err
}

func (s *Store) SumAmount(_ context.Context, owner string) (int64, error) {
	var sum int64
	err := s.fold(owner, func(e core.Expense) { sum += e.Amount })
	return sum, err
}

func (s *Store) SumDisplayAmount(_ context.Context, owner string) (int64, error) {
	var sum int64
	err := s.fold(owner, func(e core.Expense) { sum += e.DisplayAmount })
	return sum, err
}

func (s *Store) Delete(_ context.Context, owner string, id int64) error {
	if err := core.RequireOwner(owner); err != nil {
		return err
	}
	p := s.lookup(owner)
	if p == nil {
		return &core.NotFoundError{ID: id}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return &core.NotFoundError{ID: id}
	}
	delete(p.items, id)
	return nil
}

func (s *Store) Update(_ context.Context, owner string, id int64, mutate storage.UpdateFunc) (core.Expense, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Expense{}, err
	}
	p := s.lookup(owner)
	if p == nil {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.items[id]
	if !ok {
		return core.Expense{}, &core.NotFoundError{ID: id}
	}
	next, err := mutate(current)
	if err != nil {
		return core.Expense{}, err
	}
	next = storage.Reconcile(current, next, s.now())
	p.items[id] = next
	return next, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
