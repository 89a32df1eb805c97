package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"otakuwallet/internal/cache"
	"otakuwallet/internal/core"
	"otakuwallet/internal/storage"
)

// StatisticsSource is the part of the store the aggregator reads from.
type StatisticsSource interface {
	storage.ExpenseAggregator
	ListAll(ctx context.Context, owner string) ([]core.Expense, error)
}

type StatisticsConfig struct {
	TTL     time.Duration
	MaxSize int
}

func DefaultStatisticsConfig() StatisticsConfig {
	return StatisticsConfig{TTL: 30 * time.Second, MaxSize: 1000}
}

// StatisticsAggregator answers summary questions for one owner at a time.
// Results are cached per owner until the TTL passes or Invalidate is called;
// concurrent misses for the same owner share a single store round trip.
type StatisticsAggregator struct {
	source     StatisticsSource
	totals     *cache.LRUCache[core.Statistics]
	categories *cache.LRUCache[[]core.CategorySummary]
	group      singleflight.Group

	// loads tracks owners with a load in flight. Invalidate bumps the
	// owner's generation so a load that started before a write never
	// caches its stale result. Entries go away with the last load.
	mu    sync.Mutex
	loads map[string]*ownerLoads
}

type ownerLoads struct {
	inflight   int
	generation uint64
}

// loadTimeout bounds a shared load, which no longer follows any single
// caller's cancellation.
const loadTimeout = 30 * time.Second

// NewStatisticsAggregator builds an aggregator. A non-positive TTL disables caching.
func NewStatisticsAggregator(source StatisticsSource, cfg StatisticsConfig) *StatisticsAggregator {
	a := &StatisticsAggregator{source: source, loads: make(map[string]*ownerLoads)}
	if cfg.TTL > 0 {
		a.totals = cache.NewLRUCache[core.Statistics](cfg.MaxSize, cfg.TTL)
		a.categories = cache.NewLRUCache[[]core.CategorySummary](cfg.MaxSize, cfg.TTL)
	}
	return a
}

// Register hands the aggregator's caches to m for periodic expiry sweeps.
func (a *StatisticsAggregator) Register(m *cache.Manager) {
	if a.totals == nil {
		return
	}
	m.Register(a.totals)
	m.Register(a.categories)
}

// Summarize returns total, display and saved amounts plus counts for owner.
// An owner without expenses gets all zeroes.
func (a *StatisticsAggregator) Summarize(ctx context.Context, owner string) (core.Statistics, error) {
	if err := core.RequireOwner(owner); err != nil {
		return core.Statistics{}, err
	}
	if a.totals != nil {
		if st, ok := a.totals.Get(owner); ok {
			return st, nil
		}
	}

	v, err := a.shared(ctx, "totals:", owner, func(ctx context.Context) (any, error) {
		return a.load(ctx, owner)
	}, func(v any) {
		a.totals.Set(owner, v.(core.Statistics))
	})
	if err != nil {
		return core.Statistics{}, err
	}
	return v.(core.Statistics), nil
}

func (a *StatisticsAggregator) load(ctx context.Context, owner string) (core.Statistics, error) {
	total, err := a.source.SumAmount(ctx, owner)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("sum amount: %w", err)
	}
	display, err := a.source.SumDisplayAmount(ctx, owner)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("sum display amount: %w", err)
	}
	satisfied, err := a.source.CountByRating(ctx, owner, core.SatisfiedRating)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("count satisfied: %w", err)
	}
	count, err := a.source.CountAll(ctx, owner)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("count expenses: %w", err)
	}
	return core.NewStatistics(total, display, satisfied, count), nil
}

// ByCategory returns per-category totals for every category in declaration order.
func (a *StatisticsAggregator) ByCategory(ctx context.Context, owner string) ([]core.CategorySummary, error) {
	if err := core.RequireOwner(owner); err != nil {
		return nil, err
	}
	if a.categories != nil {
		if rows, ok := a.categories.Get(owner); ok {
			return cloneSummaries(rows), nil
		}
	}

	v, err := a.shared(ctx, "categories:", owner, func(ctx context.Context) (any, error) {
		items, err := a.source.ListAll(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		return core.SummarizeByCategory(items), nil
	}, func(v any) {
		a.categories.Set(owner, v.([]core.CategorySummary))
	})
	if err != nil {
		return nil, err
	}
	return cloneSummaries(v.([]core.CategorySummary)), nil
}

// shared runs load once for all concurrent callers of the same key. The
// load runs detached from ctx, so a caller that gives up only fails
// itself. fill caches the result unless owner was invalidated meanwhile.
func (a *StatisticsAggregator) shared(ctx context.Context, prefix, owner string, load func(context.Context) (any, error), fill func(any)) (any, error) {
	ch := a.group.DoChan(prefix+owner, func() (any, error) {
		gen := a.beginLoad(owner)
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		v, err := load(loadCtx)
		a.endLoad(owner, gen, func() {
			if err == nil && a.totals != nil {
				fill(v)
			}
		})
		return v, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *StatisticsAggregator) beginLoad(owner string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.loads[owner]
	if !ok {
		l = &ownerLoads{}
		a.loads[owner] = l
	}
	l.inflight++
	return l.generation
}

// endLoad runs fill under the lock when owner's generation is still gen,
// so an Invalidate cannot slip between the check and the cache write.
func (a *StatisticsAggregator) endLoad(owner string, gen uint64, fill func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l := a.loads[owner]
	if l.generation == gen {
		fill()
	}
	l.inflight--
	if l.inflight == 0 {
		delete(a.loads, owner)
	}
}

// Invalidate drops cached results for owner.
func (a *StatisticsAggregator) Invalidate(owner string) {
	if a.totals == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.loads[owner]; ok {
		l.generation++
	}
	a.totals.Delete(owner)
	a.categories.Delete(owner)
	a.group.Forget("totals:" + owner)
	a.group.Forget("categories:" + owner)
}

// CacheStats reports hit and miss counters of the totals cache.
func (a *StatisticsAggregator) CacheStats() cache.Stats {
	if a.totals == nil {
		return cache.Stats{}
	}
	return a.totals.Stats()
}

func cloneSummaries(rows []core.CategorySummary) []core.CategorySummary {
	out := make([]core.CategorySummary, len(rows))
	copy(out, rows)
	return out
}
