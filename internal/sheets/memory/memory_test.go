package memory

import (
	"context"
	"testing"
	"time"

	"budgetnest/internal/core"
	"budgetnest/internal/sheets"
)

func TestLedgerAppendAndList(t *testing.T) {
	l := New()
	ctx := context.Background()

	row := sheets.LedgerRow{
		OccurredAt: time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC),
		Kind:       "expenses",
		Action:     "created",
		RecordID:   "r1",
		OwnerID:    "u1",
		Date:       "2025-07-03",
		Label:      "Food",
		Amount:     core.Money{Cents: 1250},
		EventID:    "e1",
	}

	ref, err := l.AppendRow(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = l.AppendRow(ctx, sheets.LedgerRow{RecordID: "r2", EventID: "e2"})
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	rows, err := l.ListRows(ctx)
	if err != nil || len(rows) != 2 || rows[0].Label != "Food" {
		t.Fatalf("unexpected rows: %v err=%v", rows, err)
	}

	// mutating the copy must not touch the ledger
	rows[0].Label = "changed"
	again, _ := l.ListRows(ctx)
	if again[0].Label != "Food" {
		t.Error("ListRows should return a copy")
	}
}

func TestLedgerHasEvent(t *testing.T) {
	l := New()
	ctx := context.Background()
	if _, err := l.AppendRow(ctx, sheets.LedgerRow{RecordID: "r1", EventID: "e1"}); err != nil {
		t.Fatal(err)
	}

	for id, want := range map[string]bool{"e1": true, "e2": false, "": false} {
		got, err := l.HasEvent(ctx, id)
		if err != nil || got != want {
			t.Errorf("HasEvent(%q) = %v, %v; want %v", id, got, err, want)
		}
	}
}

func TestLedgerRejectsRowWithoutRecord(t *testing.T) {
	if _, err := New().AppendRow(context.Background(), sheets.LedgerRow{}); err == nil {
		t.Error("expected error for empty row")
	}
}
