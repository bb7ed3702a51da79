// Package insights turns fetched income and expense records into chart-ready
// series. Every function here is pure.
package insights

import (
	"sort"

	"budgetnest/internal/core"
	"budgetnest/internal/period"
)

// Bucket is one bar of the income/expense chart.
type Bucket struct {
	Label   string     `json:"label"`
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
}

// CategoryTotal is one slice of the expense breakdown.
type CategoryTotal struct {
	Category string     `json:"label"`
	Amount   core.Money `json:"amount"`
}

// Palette holds the chart colours, cycled by slice index.
var Palette = []string{"#16a34a", "#22d3ee", "#a3e635", "#ef4444", "#facc15"}

// Color returns the palette entry for the i-th slice.
func Color(i int) string {
	return Palette[i%len(Palette)]
}

// BucketKey derives the grouping key for a record date. Month views group by
// day of month; week and day views by the full date. Empty dates share the
// "" bucket.
func BucketKey(date string, kind period.Kind) string {
	if date == "" {
		return ""
	}
	if kind == period.Month && len(date) >= 10 {
		return date[8:10]
	}
	return date
}

// BuildTimeSeries sums incomes and expenses per bucket and returns the
// buckets sorted ascending by label.
func BuildTimeSeries(incomes []core.Income, expenses []core.Expense, kind period.Kind) []Bucket {
	groups := newOrderedMap[string, Bucket]()

	for _, in := range incomes {
		key := BucketKey(in.Date.String(), kind)
		b := groups.upsert(key)
		b.Label = key
		b.Income = b.Income.Add(in.Amount)
	}
	for _, ex := range expenses {
		key := BucketKey(ex.Date.String(), kind)
		b := groups.upsert(key)
		b.Label = key
		b.Expense = b.Expense.Add(ex.Amount)
	}

	out := make([]Bucket, 0, groups.len())
	groups.each(func(_ string, b Bucket) {
		out = append(out, b)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Label < out[j].Label
	})
	return out
}

// BuildCategoryBreakdown sums expenses per category in first-seen order.
func BuildCategoryBreakdown(expenses []core.Expense) []CategoryTotal {
	groups := newOrderedMap[core.Category, core.Money]()
	for _, ex := range expenses {
		total := groups.upsert(ex.Category)
		*total = total.Add(ex.Amount)
	}

	out := make([]CategoryTotal, 0, groups.len())
	groups.each(func(c core.Category, amount core.Money) {
		out = append(out, CategoryTotal{Category: string(c), Amount: amount})
	})
	return out
}

// Max returns the largest single value across the series, for bar scaling.
func Max(series []Bucket) core.Money {
	var top core.Money
	for _, b := range series {
		if b.Income.Cents > top.Cents {
			top = b.Income
		}
		if b.Expense.Cents > top.Cents {
			top = b.Expense
		}
	}
	return top
}

// Total sums the category breakdown.
func Total(categories []CategoryTotal) core.Money {
	var total core.Money
	for _, c := range categories {
		total = total.Add(c.Amount)
	}
	return total
}
