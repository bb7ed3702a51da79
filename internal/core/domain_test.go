package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-07-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-07-03" || d.MonthKey() != "2025-07" {
		t.Fatalf("unexpected date %s / %s", d.String(), d.MonthKey())
	}
	if _, err := ParseDate(""); !errors.Is(err, ErrMissingDate) {
		t.Fatalf("expected ErrMissingDate, got %v", err)
	}
	if _, err := ParseDate("2025-13-01"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if (Date{}).String() != "" {
		t.Fatalf("zero date should render empty")
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{Start: "2025-02-01", End: "2025-02-31"}
	for _, in := range []string{"2025-02-01", "2025-02-28"} {
		if !r.Contains(in) {
			t.Errorf("expected %s inside %v", in, r)
		}
	}
	for _, out := range []string{"2025-01-31", "2025-03-01", ""} {
		if r.Contains(out) {
			t.Errorf("expected %s outside %v", out, r)
		}
	}
	if (DateRange{}).Contains("2025-02-01") {
		t.Errorf("degenerate range must match nothing")
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" food ")
	if err != nil || c != CategoryFood {
		t.Fatalf("expected Food, got %q (%v)", c, err)
	}
	if _, err := ParseCategory(""); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected ErrEmptyCategory, got %v", err)
	}
	if _, err := ParseCategory("Travel"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		OwnerID:     "u1",
		Category:    CategoryFood,
		Description: "Groceries",
		Amount:      Money{Cents: 1250},
		Date:        NewDate(2025, 7, 3),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Expense)
		want   error
	}{
		{"missing owner", func(e *Expense) { e.OwnerID = "" }, ErrMissingOwner},
		{"missing category", func(e *Expense) { e.Category = "" }, ErrEmptyCategory},
		{"unknown category", func(e *Expense) { e.Category = "Travel" }, ErrInvalidCategory},
		{"blank description", func(e *Expense) { e.Description = "  " }, ErrEmptyDescription},
		{"zero amount", func(e *Expense) { e.Amount = Money{} }, ErrInvalidAmount},
		{"missing date", func(e *Expense) { e.Date = Date{} }, ErrMissingDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := good
			tc.mutate(&e)
			if err := e.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestIncomeValidate(t *testing.T) {
	good := Income{OwnerID: "u1", Source: "Salary", Amount: Money{Cents: 100}, Date: NewDate(2025, 7, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Income{
		{OwnerID: "u1", Source: "", Amount: Money{Cents: 1}, Date: NewDate(2025, 1, 1)},
		{OwnerID: "u1", Source: "a", Amount: Money{Cents: 0}, Date: NewDate(2025, 1, 1)},
		{OwnerID: "u1", Source: "a", Amount: Money{Cents: 1}},
	}
	for i, in := range bads {
		if err := in.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestOverview(t *testing.T) {
	o := Overview("2025-07",
		[]Income{{Amount: Money{Cents: 10000}}},
		[]Expense{{Amount: Money{Cents: 1250}}, {Amount: Money{Cents: 250}}},
	)
	if o.Income.Cents != 10000 || o.Expenses.Cents != 1500 || o.Balance().Cents != 8500 {
		t.Fatalf("unexpected overview %+v balance %d", o, o.Balance().Cents)
	}
}
