// Package sheets declares the ledger mirror ports. Every record event ends
// up as one row of an append-only ledger.
package sheets

import (
	"context"
	"time"

	"budgetnest/internal/core"
)

// LedgerHeader names the ledger columns in order.
var LedgerHeader = []string{
	"occurred_at", "kind", "action", "record_id", "owner_id",
	"date", "label", "description", "amount", "event_id",
}

// LedgerRow is one appended line.
type LedgerRow struct {
	OccurredAt  time.Time
	Kind        string
	Action      string
	RecordID    string
	OwnerID     string
	Date        string
	Label       string
	Description string
	Amount      core.Money
	EventID     string
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		// AppendRow writes row at the end of the ledger and returns a
		// reference to where it landed.
		AppendRow(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	LedgerReader interface {
		// HasEvent reports whether a row for eventID was already written.
		HasEvent(ctx context.Context, eventID string) (bool, error)
		ListRows(ctx context.Context) ([]LedgerRow, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerReader
	}
)

// Cells renders row in LedgerHeader order.
func (r LedgerRow) Cells() []any {
	return []any{
		r.OccurredAt.UTC().Format(time.RFC3339),
		r.Kind,
		r.Action,
		r.RecordID,
		r.OwnerID,
		r.Date,
		r.Label,
		r.Description,
		r.Amount.String(),
		r.EventID,
	}
}
