package services

import (
	"context"
	"errors"
	"fmt"

	"budgetnest/internal/amqp"
	"budgetnest/internal/cache"
	"budgetnest/internal/core"
	"budgetnest/internal/log"
	"budgetnest/internal/period"
	"budgetnest/internal/store"
)

// ErrOwnerMismatch is returned when a caller submits a record for another owner.
var ErrOwnerMismatch = errors.New("record owner does not match the signed-in user")

// EventPublisher receives record events after successful writes.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, ev *amqp.RecordEvent) error
}

// View is what a manager shows for one owner and month.
type View[T core.Record] struct {
	Month   string
	Range   core.DateRange
	Records []T
	Total   core.Money
	// Stale is set when the store failed and Records is the last good list.
	Stale bool
}

// EntryManager fetches, creates and deletes one kind of record for the
// signed-in owner. Every write is followed by a fresh fetch.
type EntryManager[T core.Record] struct {
	kind      string
	store     store.RecordStore[T]
	snapshots cache.Cache[[]T]
	publisher EventPublisher
	logger    *log.Logger
}

// NewEntryManager wires a manager. publisher may be nil.
func NewEntryManager[T core.Record](kind string, st store.RecordStore[T], snapshots cache.Cache[[]T], publisher EventPublisher, logger *log.Logger) *EntryManager[T] {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &EntryManager[T]{
		kind:      kind,
		store:     st,
		snapshots: snapshots,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentEntries).With(log.FieldRecordKind, kind),
	}
}

// Kind returns the record kind this manager handles ("income" or "expenses").
func (m *EntryManager[T]) Kind() string { return m.kind }

func (m *EntryManager[T]) snapshotKey(owner, month string) string {
	return owner + "|" + m.kind + "|" + month
}

// Fetch loads the owner's records for month ("YYYY-MM"), newest first. A store
// failure yields the last good list marked stale. A cancelled context
// discards whatever the store returned and leaves the snapshot untouched.
func (m *EntryManager[T]) Fetch(ctx context.Context, owner, month string) (View[T], error) {
	rng, err := period.MonthRange(month)
	if err != nil {
		return View[T]{}, fmt.Errorf("fetch %s: %w", m.kind, err)
	}
	if err := ctx.Err(); err != nil {
		return View[T]{}, err
	}

	view := View[T]{Month: month, Range: rng}
	key := m.snapshotKey(owner, month)

	recs, err := m.store.SelectByOwnerAndRange(ctx, owner, rng)
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.logger.DebugContext(ctx, "Discarding fetch result after cancellation", log.FieldUserID, owner, log.FieldMonth, month)
		return View[T]{}, ctxErr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return View[T]{}, err
		}
		m.logger.ErrorContext(ctx, "Fetch failed, serving last good list",
			log.FieldUserID, owner, log.FieldMonth, month, log.FieldError, err)
		view.Stale = true
		if m.snapshots != nil {
			if prev, ok := m.snapshots.Get(key); ok {
				view.Records = prev
			}
		}
		if view.Records == nil {
			view.Records = []T{}
		}
		view.Total = sum(view.Records)
		return view, nil
	}

	if recs == nil {
		recs = []T{}
	}
	if m.snapshots != nil {
		m.snapshots.Set(key, recs)
	}
	view.Records = recs
	view.Total = sum(recs)
	return view, nil
}

// Create validates rec, stores it and returns the refreshed month view.
// Nothing reaches the store when validation fails.
func (m *EntryManager[T]) Create(ctx context.Context, owner string, rec T, month string) (T, View[T], error) {
	var zero T
	if err := rec.Validate(); err != nil {
		return zero, View[T]{}, err
	}
	if rec.Owner() != owner {
		return zero, View[T]{}, ErrOwnerMismatch
	}

	saved, err := m.store.Insert(ctx, rec)
	if err != nil {
		m.logger.ErrorContext(ctx, "Insert failed", log.FieldUserID, owner, log.FieldError, err)
		return zero, View[T]{}, fmt.Errorf("create %s: %w", m.kind, err)
	}

	m.logger.InfoContext(ctx, "Record created",
		log.NewFields().WithRecord(m.kind, saved.RecordID(), owner, saved.RecordAmount().Cents).ToSlice()...)
	m.publish(ctx, amqp.ActionCreated, saved)

	view, err := m.Fetch(ctx, owner, month)
	return saved, view, err
}

// Delete removes the owner's record id and returns the refreshed month view.
func (m *EntryManager[T]) Delete(ctx context.Context, owner, id, month string) (View[T], error) {
	var removed T
	found := false
	if m.snapshots != nil {
		if prev, ok := m.snapshots.Get(m.snapshotKey(owner, month)); ok {
			for _, r := range prev {
				if r.RecordID() == id {
					removed, found = r, true
					break
				}
			}
		}
	}

	if err := m.store.DeleteByID(ctx, owner, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View[T]{}, err
		}
		m.logger.ErrorContext(ctx, "Delete failed", log.FieldUserID, owner, log.FieldRecordID, id, log.FieldError, err)
		return View[T]{}, fmt.Errorf("delete %s: %w", m.kind, err)
	}

	m.logger.InfoContext(ctx, "Record deleted", log.FieldUserID, owner, log.FieldRecordID, id)
	if found {
		m.publish(ctx, amqp.ActionDeleted, removed)
	} else {
		m.publishEvent(ctx, amqp.NewRecordEvent(m.kind, amqp.ActionDeleted, owner, id))
	}

	return m.Fetch(ctx, owner, month)
}

// Forget drops every snapshot held for owner.
func (m *EntryManager[T]) Forget(owner string) {
	if m.snapshots == nil || owner == "" {
		return
	}
	if n := m.snapshots.DeletePrefix(owner + "|" + m.kind + "|"); n > 0 {
		m.logger.Debug("Snapshots dropped", log.FieldUserID, owner, "count", n)
	}
}

func (m *EntryManager[T]) publish(ctx context.Context, action string, rec T) {
	m.publishEvent(ctx, RecordEventFor(m.kind, action, rec))
}

func (m *EntryManager[T]) publishEvent(ctx context.Context, ev *amqp.RecordEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishRecordEvent(ctx, ev); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish record event",
			log.FieldEventID, ev.EventID, log.FieldRecordID, ev.RecordID, log.FieldError, err)
	}
}

// RecordEventFor builds the event describing action on rec.
func RecordEventFor[T core.Record](kind, action string, rec T) *amqp.RecordEvent {
	ev := amqp.NewRecordEvent(kind, action, rec.Owner(), rec.RecordID())
	ev.Date = rec.RecordDate().String()
	ev.AmountCents = rec.RecordAmount().Cents
	switch r := any(rec).(type) {
	case core.Income:
		ev.Label = r.Source
	case core.Expense:
		ev.Label = string(r.Category)
		ev.Description = r.Description
	}
	return ev
}

func sum[T core.Record](recs []T) core.Money {
	var total core.Money
	for _, r := range recs {
		total = total.Add(r.RecordAmount())
	}
	return total
}
