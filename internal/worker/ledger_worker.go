// Package worker turns record events into ledger rows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"budgetnest/internal/amqp"
	"budgetnest/internal/core"
	"budgetnest/internal/log"
	"budgetnest/internal/sheets"
)

// headerWriter is implemented by ledgers that keep a header row.
type headerWriter interface {
	EnsureHeader(ctx context.Context) error
}

// Stats counts what the worker did since it was created.
type Stats struct {
	Appended   int64 `json:"appended"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// LedgerWorker appends one ledger row per record event. Events already in
// the ledger are skipped.
type LedgerWorker struct {
	ledger sheets.Ledger
	logger *log.Logger

	appended   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

func NewLedgerWorker(ledger sheets.Ledger, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerWorker{
		ledger: ledger,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// StartupCheck prepares the ledger before the first message is consumed.
func (w *LedgerWorker) StartupCheck(ctx context.Context) error {
	hw, ok := w.ledger.(headerWriter)
	if !ok {
		return nil
	}
	if err := hw.EnsureHeader(ctx); err != nil {
		return fmt.Errorf("ensure ledger header: %w", err)
	}
	return nil
}

// HandleRecordEvent mirrors ev into the ledger.
func (w *LedgerWorker) HandleRecordEvent(ctx context.Context, ev *amqp.RecordEvent) error {
	if ev == nil {
		return errors.New("nil record event")
	}
	if err := ev.Validate(); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("invalid record event: %w", err)
	}

	w.logger.InfoContext(ctx, "Processing record event",
		log.FieldEventID, ev.EventID,
		log.FieldRecordKind, ev.Kind,
		"action", ev.Action,
		log.FieldRecordID, ev.RecordID)

	seen, err := w.ledger.HasEvent(ctx, ev.EventID)
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("check ledger for event: %w", err)
	}
	if seen {
		w.duplicates.Add(1)
		w.logger.InfoContext(ctx, "Event already in ledger, skipping", log.FieldEventID, ev.EventID)
		return nil
	}

	ref, err := w.ledger.AppendRow(ctx, RowFromEvent(ev))
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("append ledger row: %w", err)
	}

	w.appended.Add(1)
	w.logger.InfoContext(ctx, "Mirrored record event",
		log.FieldEventID, ev.EventID,
		log.FieldRecordID, ev.RecordID,
		log.FieldSheetsRef, ref)
	return nil
}

func (w *LedgerWorker) Stats() Stats {
	return Stats{
		Appended:   w.appended.Load(),
		Duplicates: w.duplicates.Load(),
		Failed:     w.failed.Load(),
	}
}

// RowFromEvent maps an event onto the ledger columns.
func RowFromEvent(ev *amqp.RecordEvent) sheets.LedgerRow {
	return sheets.LedgerRow{
		OccurredAt:  ev.OccurredAt.UTC(),
		Kind:        ev.Kind,
		Action:      ev.Action,
		RecordID:    ev.RecordID,
		OwnerID:     ev.OwnerID,
		Date:        ev.Date,
		Label:       ev.Label,
		Description: ev.Description,
		Amount:      core.Money{Cents: ev.AmountCents},
		EventID:     ev.EventID,
	}
}
