package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"otakuwallet/internal/amqp"
	"otakuwallet/internal/core"
	applog "otakuwallet/internal/log"
	"otakuwallet/internal/sheets"
	"otakuwallet/internal/storage"
)

// EventSource delivers expense events until ctx ends.
type EventSource interface {
	Consume(ctx context.Context, handler amqp.EventHandler) error
}

// MirrorWorker keeps the spreadsheet mirror in step with the expense store.
// Events only name a record; the current state is always read back from the
// store so out-of-order deliveries converge.
type MirrorWorker struct {
	store  storage.ExpenseReader
	mirror sheets.Mirror
	logger *applog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// Stats counts handled events.
type Stats struct {
	Processed int64
	Failed    int64
}

// NewMirrorWorker creates a worker. A nil mirror makes the worker log and
// acknowledge every event.
func NewMirrorWorker(store storage.ExpenseReader, mirror sheets.Mirror, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &MirrorWorker{
		store:  store,
		mirror: mirror,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// Run consumes events from src until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, src EventSource) error {
	err := src.Consume(ctx, w.HandleEvent)
	s := w.Stats()
	w.logger.InfoContext(ctx, "Mirror worker stopped",
		"processed", s.Processed,
		"failed", s.Failed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleEvent applies a single event to the mirror.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	fields := applog.NewFields().
		WithOperation(string(ev.Type)).
		WithOwner(ev.Owner)
	fields[applog.FieldExpenseID] = ev.ExpenseID

	if w.mirror == nil {
		w.logger.LogFieldsContext(ctx, slog.LevelInfo, "No mirror configured, acknowledging event", fields)
		w.processed.Add(1)
		return nil
	}

	if err := w.apply(ctx, ev); err != nil {
		w.failed.Add(1)
		w.logger.LogFieldsContext(ctx, slog.LevelError, "Failed to mirror expense", fields.WithError(err))
		return err
	}
	w.processed.Add(1)
	w.logger.LogFieldsContext(ctx, slog.LevelInfo, "Mirrored expense", fields)
	return nil
}

func (w *MirrorWorker) apply(ctx context.Context, ev amqp.ExpenseEvent) error {
	switch ev.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		e, err := w.store.GetByID(ctx, ev.Owner, ev.ExpenseID)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before this event was handled.
			return w.remove(ctx, ev)
		}
		if err != nil {
			return fmt.Errorf("read expense %d: %w", ev.ExpenseID, err)
		}
		if err := w.mirror.Upsert(ctx, e); err != nil {
			return fmt.Errorf("upsert mirror row: %w", err)
		}
		return nil
	case amqp.EventDeleted:
		return w.remove(ctx, ev)
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}

func (w *MirrorWorker) remove(ctx context.Context, ev amqp.ExpenseEvent) error {
	if err := w.mirror.Remove(ctx, ev.Owner, ev.ExpenseID); err != nil {
		return fmt.Errorf("remove mirror row: %w", err)
	}
	return nil
}

// Stats returns counters for events handled so far.
func (w *MirrorWorker) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load()}
}
