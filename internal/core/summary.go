package core

// MonthOverview totals a month of records for the dashboard header.
type MonthOverview struct {
	Month    string // YYYY-MM
	Income   Money
	Expenses Money
}

// Balance is income minus expenses and may be negative.
func (o MonthOverview) Balance() Money {
	return o.Income.Sub(o.Expenses)
}

// Overview sums the given records.
func Overview(month string, incomes []Income, expenses []Expense) MonthOverview {
	o := MonthOverview{Month: month}
	for _, i := range incomes {
		o.Income = o.Income.Add(i.Amount)
	}
	for _, e := range expenses {
		o.Expenses = o.Expenses.Add(e.Amount)
	}
	return o
}
