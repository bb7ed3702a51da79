package google

import (
	"fmt"
	"strings"
	"time"

	"budgetnest/internal/core"
	ports "budgetnest/internal/sheets"
)

// parseLedger converts a values matrix (as returned by the Sheets API) into
// ledger rows. The header row and rows without a record id are skipped.
func parseLedger(values [][]any) []ports.LedgerRow {
	out := make([]ports.LedgerRow, 0, len(values))
	for i, raw := range values {
		cols := toStrings(raw)
		if i == 0 && strings.EqualFold(safeGet(cols, 0), ports.LedgerHeader[0]) {
			continue
		}
		row := ports.LedgerRow{
			Kind:        safeGet(cols, 1),
			Action:      safeGet(cols, 2),
			RecordID:    safeGet(cols, 3),
			OwnerID:     safeGet(cols, 4),
			Date:        safeGet(cols, 5),
			Label:       safeGet(cols, 6),
			Description: safeGet(cols, 7),
			EventID:     safeGet(cols, 9),
		}
		if row.RecordID == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, safeGet(cols, 0)); err == nil {
			row.OccurredAt = t
		}
		if cents, err := core.ParseDecimalToCents(safeGet(cols, 8)); err == nil {
			row.Amount = core.Money{Cents: cents}
		}
		out = append(out, row)
	}
	return out
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
