package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"budgetnest/internal/core"
	"budgetnest/internal/store"
)

func TestDateBoundsClampsMonthEnd(t *testing.T) {
	tests := []struct {
		name      string
		rng       core.DateRange
		wantStart string
		wantEnd   string
	}{
		{"february", core.DateRange{Start: "2025-02-01", End: "2025-02-31"}, "2025-02-01", "2025-02-28"},
		{"leap february", core.DateRange{Start: "2024-02-01", End: "2024-02-31"}, "2024-02-01", "2024-02-29"},
		{"april", core.DateRange{Start: "2025-04-01", End: "2025-04-31"}, "2025-04-01", "2025-04-30"},
		{"july untouched", core.DateRange{Start: "2025-07-01", End: "2025-07-31"}, "2025-07-01", "2025-07-31"},
		{"week", core.DateRange{Start: "2025-06-30", End: "2025-07-06"}, "2025-06-30", "2025-07-06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := DateBounds(tt.rng)
			if err != nil {
				t.Fatalf("DateBounds() error = %v", err)
			}
			if got := start.Format(core.DateLayout); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if got := end.Format(core.DateLayout); got != tt.wantEnd {
				t.Errorf("end = %s, want %s", got, tt.wantEnd)
			}
		})
	}
}

func TestDateBoundsRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2025-13-01", "2025-01-00", "nope"} {
		_, _, err := DateBounds(core.DateRange{Start: s, End: "2025-01-31"})
		if !errors.Is(err, core.ErrInvalidDate) {
			t.Errorf("DateBounds(%q) error = %v, want ErrInvalidDate", s, err)
		}
	}
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/budget?sslmode=disable", "pgx5://u:p@localhost:5432/budget?sslmode=disable", false},
		{"postgresql://localhost/budget", "pgx5://localhost/budget", false},
		{"mysql://localhost/budget", "", true},
	}

	for _, tt := range tests {
		got, err := migrateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("migrateURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// The cases below never reach the pool, so a zero Repository is enough.

func TestDeleteByIDUnknownShapesAreNotFound(t *testing.T) {
	r := &Repository{}
	owner := uuid.NewString()
	ctx := context.Background()

	tests := []struct {
		name  string
		owner string
		id    string
	}{
		{"non uuid id", owner, "not-a-uuid"},
		{"empty id", owner, ""},
		{"non uuid owner", "someone", uuid.NewString()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Income().DeleteByID(ctx, tt.owner, tt.id); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("income DeleteByID() error = %v, want ErrNotFound", err)
			}
			if err := r.Expenses().DeleteByID(ctx, tt.owner, tt.id); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expenses DeleteByID() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSelectDegenerateRangeMatchesNothing(t *testing.T) {
	r := &Repository{}
	ctx := context.Background()
	july := core.DateRange{Start: "2025-07-01", End: "2025-07-31"}

	tests := []struct {
		name  string
		owner string
		rng   core.DateRange
	}{
		{"empty range", uuid.NewString(), core.DateRange{}},
		{"non uuid owner", "someone", july},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			income, err := r.Income().SelectByOwnerAndRange(ctx, tt.owner, tt.rng)
			if err != nil || income == nil || len(income) != 0 {
				t.Errorf("income = %v, %v; want empty", income, err)
			}
			expenses, err := r.Expenses().SelectByOwnerAndRange(ctx, tt.owner, tt.rng)
			if err != nil || expenses == nil || len(expenses) != 0 {
				t.Errorf("expenses = %v, %v; want empty", expenses, err)
			}
		})
	}
}
