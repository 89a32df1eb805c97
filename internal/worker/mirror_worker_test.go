package worker

import (
	"context"
	"errors"
	"io"
	"testing"

	"otakuwallet/internal/amqp"
	"otakuwallet/internal/core"
	applog "otakuwallet/internal/log"
	mirrormem "otakuwallet/internal/sheets/memory"
	"otakuwallet/internal/storage/memory"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Format: "text", Output: io.Discard})
}

func insert(t *testing.T, store *memory.Store, owner, title string, rating int) core.Expense {
	t.Helper()
	e, err := core.NewExpense(owner, core.ExpenseInput{
		Title:              title,
		Amount:             30000,
		Category:           core.Goods,
		SatisfactionRating: rating,
		PurchaseDate:       core.NewDate(2024, 6, 1),
	})
	if err != nil {
		t.Fatalf("NewExpense() error = %v", err)
	}
	saved, err := store.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return saved
}

// sliceSource replays a fixed list of events and then behaves like a
// cancelled consumer.
type sliceSource struct {
	events []amqp.ExpenseEvent
	errs   []error
}

func (s *sliceSource) Consume(ctx context.Context, handler amqp.EventHandler) error {
	for _, ev := range s.events {
		s.errs = append(s.errs, handler(ctx, ev))
	}
	return context.Canceled
}

type failingMirror struct{}

func (failingMirror) Upsert(context.Context, core.Expense) error { return errors.New("sheet offline") }
func (failingMirror) Remove(context.Context, string, int64) error { return errors.New("sheet offline") }

func TestMirrorWorker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := mirrormem.New()
	w := NewMirrorWorker(store, mirror, quietLogger())

	e := insert(t, store, "alice", "Acrylic stand", 3)
	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventCreated, "alice", e.ID)); err != nil {
		t.Fatalf("HandleEvent(created) error = %v", err)
	}
	rows := mirror.Rows()
	if len(rows) != 1 || rows[0].Title != "Acrylic stand" || rows[0].DisplayAmount != 30000 {
		t.Fatalf("rows after create = %+v", rows)
	}

	if _, err := store.Update(ctx, "alice", e.ID, func(cur core.Expense) (core.Expense, error) {
		return cur.Apply(core.ExpensePatch{SatisfactionRating: core.Some(5)})
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventUpdated, "alice", e.ID)); err != nil {
		t.Fatalf("HandleEvent(updated) error = %v", err)
	}
	rows = mirror.Rows()
	if len(rows) != 1 || !rows[0].IsSatisfied || rows[0].DisplayAmount != 0 {
		t.Fatalf("rows after update = %+v", rows)
	}

	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventDeleted, "alice", e.ID)); err != nil {
		t.Fatalf("HandleEvent(deleted) error = %v", err)
	}
	if mirror.Len() != 0 {
		t.Errorf("mirror still holds %d rows after delete", mirror.Len())
	}

	if s := w.Stats(); s.Processed != 3 || s.Failed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestMirrorWorker_CreatedButAlreadyDeleted(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := mirrormem.New()
	w := NewMirrorWorker(store, mirror, quietLogger())

	e := insert(t, store, "alice", "Ticket", 4)
	_ = mirror.Upsert(ctx, e)
	if err := store.Delete(ctx, "alice", e.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventUpdated, "alice", e.ID)); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if mirror.Len() != 0 {
		t.Errorf("stale row kept for a deleted expense")
	}
}

func TestMirrorWorker_OwnerScoped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := mirrormem.New()
	w := NewMirrorWorker(store, mirror, quietLogger())

	e := insert(t, store, "alice", "Figure", 2)
	// An event naming the wrong owner must not leak alice's record.
	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventCreated, "mallory", e.ID)); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if mirror.Len() != 0 {
		t.Errorf("mirror rows = %+v", mirror.Rows())
	}
}

func TestMirrorWorker_Failures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewMirrorWorker(store, failingMirror{}, quietLogger())

	e := insert(t, store, "alice", "Concert", 1)
	if err := w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.EventCreated, "alice", e.ID)); err == nil {
		t.Error("HandleEvent() should surface mirror failures")
	}
	if err := w.HandleEvent(ctx, amqp.ExpenseEvent{Type: "renamed", Owner: "alice", ExpenseID: e.ID}); err == nil {
		t.Error("HandleEvent() should reject unknown event types")
	}
	if s := w.Stats(); s.Failed != 2 || s.Processed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestMirrorWorker_NoMirrorAcknowledges(t *testing.T) {
	w := NewMirrorWorker(memory.New(), nil, quietLogger())
	if err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.EventDeleted, "alice", 9)); err != nil {
		t.Errorf("HandleEvent() error = %v", err)
	}
	if s := w.Stats(); s.Processed != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestMirrorWorker_Run(t *testing.T) {
	store := memory.New()
	mirror := mirrormem.New()
	w := NewMirrorWorker(store, mirror, quietLogger())

	a := insert(t, store, "alice", "Manga", 4)
	b := insert(t, store, "bob", "Game", 5)
	src := &sliceSource{events: []amqp.ExpenseEvent{
		amqp.NewExpenseEvent(amqp.EventCreated, "alice", a.ID),
		amqp.NewExpenseEvent(amqp.EventCreated, "bob", b.ID),
		amqp.NewExpenseEvent(amqp.EventDeleted, "alice", a.ID),
	}}

	if err := w.Run(context.Background(), src); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancellation", err)
	}
	for i, err := range src.errs {
		if err != nil {
			t.Errorf("event %d: %v", i, err)
		}
	}
	rows := mirror.Rows()
	if len(rows) != 1 || rows[0].Owner != "bob" {
		t.Errorf("rows = %+v", rows)
	}
}
