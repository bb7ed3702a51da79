package http

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetnest/internal/core"
	"budgetnest/internal/insights"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "₹12.50", formatMoney(core.Money{Cents: 1250}))
	assert.Equal(t, "₹0.00", formatMoney(core.Money{}))
	assert.Equal(t, "-₹3.05", formatMoney(core.Money{Cents: -305}))
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Salary  ", "Salary"},
		{"<b>Rent</b> & more", "Rent & more"},
		{"<script>alert(1)</script>Bus", "Bus"},
		{"Tea\x00\x07", "Tea"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeInput(tt.in), "input %q", tt.in)
	}
}

func TestExpenseForm_Valid(t *testing.T) {
	form := readExpenseForm(url.Values{
		"category":    {"food"},
		"description": {"Groceries"},
		"amount":      {"12,50"},
		"date":        {"2025-07-03"},
	})

	rec, errs := form.Expense("u1")

	require.False(t, errs.Any(), "unexpected errors: %v", errs)
	assert.Equal(t, core.CategoryFood, rec.Category)
	assert.Equal(t, int64(1250), rec.Amount.Cents)
	assert.Equal(t, "2025-07-03", rec.Date.String())
	assert.Equal(t, "u1", rec.OwnerID)
}

func TestExpenseForm_CollectsEveryError(t *testing.T) {
	form := readExpenseForm(url.Values{
		"category": {""},
		"amount":   {"-4"},
		"date":     {"2025-13-01"},
	})

	_, errs := form.Expense("u1")

	assert.Equal(t, "Choose a category.", errs["category"])
	assert.Equal(t, "Description is required.", errs["description"])
	assert.Equal(t, "Enter an amount of at least 0.01.", errs["amount"])
	assert.Equal(t, "Enter a valid date.", errs["date"])
}

func TestIncomeForm_TooLongSource(t *testing.T) {
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	form := incomeForm{Source: string(long), Amount: "10", Date: "2025-07-01"}

	_, errs := form.Income("u1")

	assert.Contains(t, errs["source"], "200 characters")
}

func TestFieldErrors_KeepsFirstMessage(t *testing.T) {
	errs := fieldErrors{}
	errs.add("amount", "first")
	errs.add("amount", "second")
	assert.Equal(t, "first", errs["amount"])
	assert.False(t, errs.addErr(assert.AnError))
}

func TestPercentOf(t *testing.T) {
	top := core.Money{Cents: 10000}
	assert.Equal(t, 50, percentOf(core.Money{Cents: 5000}, top))
	assert.Equal(t, 1, percentOf(core.Money{Cents: 1}, top))
	assert.Equal(t, 0, percentOf(core.Money{}, top))
	assert.Equal(t, 0, percentOf(core.Money{Cents: 10}, core.Money{}))
}

func TestBuildSlices(t *testing.T) {
	slices := buildSlices([]insights.CategoryTotal{
		{Category: "Food", Amount: core.Money{Cents: 7500}},
		{Category: "Rent", Amount: core.Money{Cents: 2500}},
	})

	require.Len(t, slices, 2)
	assert.Equal(t, "75.0", slices[0].Percent)
	assert.Equal(t, "75.00 25.00", slices[0].Dash)
	assert.Equal(t, "25.00", slices[0].Offset)
	assert.Equal(t, insights.Color(0), slices[0].Color)

	assert.Equal(t, "25.00 75.00", slices[1].Dash)
	assert.Equal(t, "-50.00", slices[1].Offset)
	assert.Equal(t, insights.Color(1), slices[1].Color)

	assert.Nil(t, buildSlices(nil))
}
