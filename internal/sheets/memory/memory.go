// Package memory is an in-process ledger used when no spreadsheet is
// configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"budgetnest/internal/sheets"
)

type Ledger struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

var _ sheets.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (l *Ledger) AppendRow(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.RecordID == "" {
		return "", errors.New("ledger row needs a record id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, row)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

func (l *Ledger) HasEvent(_ context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		if r.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

// ListRows returns a copy of every row in append order.
func (l *Ledger) ListRows(_ context.Context) ([]sheets.LedgerRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.LedgerRow(nil), l.rows...), nil
}
