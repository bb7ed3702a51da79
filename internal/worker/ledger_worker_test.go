package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetnest/internal/amqp"
	"budgetnest/internal/log"
	"budgetnest/internal/sheets"
	"budgetnest/internal/sheets/memory"
)

func expenseEvent() *amqp.RecordEvent {
	ev := amqp.NewRecordEvent(amqp.KindExpenses, amqp.ActionCreated, "u1", "r1")
	ev.Date = "2025-07-03"
	ev.Label = "Food"
	ev.Description = "Groceries"
	ev.AmountCents = 1250
	ev.OccurredAt = time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)
	return ev
}

func TestLedgerWorker_AppendsOncePerEvent(t *testing.T) {
	ledger := memory.New()
	w := NewLedgerWorker(ledger, log.Discard())
	ctx := context.Background()
	ev := expenseEvent()

	require.NoError(t, w.HandleRecordEvent(ctx, ev))
	require.NoError(t, w.HandleRecordEvent(ctx, ev))

	rows, err := ledger.ListRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Food", rows[0].Label)
	assert.Equal(t, int64(1250), rows[0].Amount.Cents)
	assert.Equal(t, ev.EventID, rows[0].EventID)

	assert.Equal(t, Stats{Appended: 1, Duplicates: 1}, w.Stats())
}

func TestLedgerWorker_RejectsInvalidEvent(t *testing.T) {
	w := NewLedgerWorker(memory.New(), log.Discard())

	assert.Error(t, w.HandleRecordEvent(context.Background(), nil))

	ev := expenseEvent()
	ev.Kind = "transfers"
	assert.Error(t, w.HandleRecordEvent(context.Background(), ev))
	assert.Equal(t, int64(1), w.Stats().Failed)
}

type brokenLedger struct {
	sheets.Ledger
	hasErr    error
	appendErr error
	headers   int
}

func (b *brokenLedger) HasEvent(ctx context.Context, id string) (bool, error) {
	if b.hasErr != nil {
		return false, b.hasErr
	}
	return b.Ledger.HasEvent(ctx, id)
}

func (b *brokenLedger) AppendRow(ctx context.Context, row sheets.LedgerRow) (string, error) {
	if b.appendErr != nil {
		return "", b.appendErr
	}
	return b.Ledger.AppendRow(ctx, row)
}

func (b *brokenLedger) EnsureHeader(context.Context) error {
	b.headers++
	return nil
}

func TestLedgerWorker_SurfacesLedgerErrors(t *testing.T) {
	ledger := &brokenLedger{Ledger: memory.New(), hasErr: errors.New("quota exceeded")}
	w := NewLedgerWorker(ledger, log.Discard())

	err := w.HandleRecordEvent(context.Background(), expenseEvent())
	assert.ErrorContains(t, err, "quota exceeded")

	ledger.hasErr = nil
	ledger.appendErr = errors.New("503")
	err = w.HandleRecordEvent(context.Background(), expenseEvent())
	assert.ErrorContains(t, err, "append ledger row")
	assert.Equal(t, int64(2), w.Stats().Failed)
}

func TestLedgerWorker_StartupCheck(t *testing.T) {
	ledger := &brokenLedger{Ledger: memory.New()}
	w := NewLedgerWorker(ledger, log.Discard())
	require.NoError(t, w.StartupCheck(context.Background()))
	assert.Equal(t, 1, ledger.headers)

	plain := NewLedgerWorker(memory.New(), log.Discard())
	assert.NoError(t, plain.StartupCheck(context.Background()))
}

func TestRowFromEvent(t *testing.T) {
	ev := expenseEvent()
	ev.Action = amqp.ActionDeleted
	row := RowFromEvent(ev)
	assert.Equal(t, "deleted", row.Action)
	assert.Equal(t, "u1", row.OwnerID)
	assert.Equal(t, "2025-07-03", row.Date)
	assert.Equal(t, "12.50", row.Amount.String())
}
