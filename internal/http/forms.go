package http

import (
	"net/url"

	"budgetnest/internal/core"
)

const maxTextLength = 200

// incomeForm holds the submitted income values so a rejected form can be
// shown again exactly as typed.
type incomeForm struct {
	Source string
	Amount string
	Date   string
}

type expenseForm struct {
	Category    string
	Description string
	Amount      string
	Date        string
}

func readIncomeForm(form url.Values) incomeForm {
	return incomeForm{
		Source: sanitizeInput(form.Get("source")),
		Amount: sanitizeInput(form.Get("amount")),
		Date:   sanitizeInput(form.Get("date")),
	}
}

func readExpenseForm(form url.Values) expenseForm {
	return expenseForm{
		Category:    sanitizeInput(form.Get("category")),
		Description: sanitizeInput(form.Get("description")),
		Amount:      sanitizeInput(form.Get("amount")),
		Date:        sanitizeInput(form.Get("date")),
	}
}

// Income converts the form into a record for owner, collecting every field
// problem instead of stopping at the first.
func (f incomeForm) Income(owner string) (core.Income, fieldErrors) {
	errs := fieldErrors{}
	rec := core.Income{OwnerID: owner, Source: f.Source}

	if f.Source == "" {
		errs.addErr(core.ErrEmptySource)
	} else if len(f.Source) > maxTextLength {
		errs.add("source", "Keep the source under 200 characters.")
	}
	rec.Amount, rec.Date = parseAmountAndDate(f.Amount, f.Date, errs)

	if !errs.Any() {
		if err := rec.Validate(); err != nil && !errs.addErr(err) {
			errs.add("form", err.Error())
		}
	}
	return rec, errs
}

func (f expenseForm) Expense(owner string) (core.Expense, fieldErrors) {
	errs := fieldErrors{}
	rec := core.Expense{OwnerID: owner, Description: f.Description}

	if cat, err := core.ParseCategory(f.Category); err != nil {
		errs.addErr(err)
	} else {
		rec.Category = cat
	}
	if f.Description == "" {
		errs.addErr(core.ErrEmptyDescription)
	} else if len(f.Description) > maxTextLength {
		errs.add("description", "Keep the description under 200 characters.")
	}
	rec.Amount, rec.Date = parseAmountAndDate(f.Amount, f.Date, errs)

	if !errs.Any() {
		if err := rec.Validate(); err != nil && !errs.addErr(err) {
			errs.add("form", err.Error())
		}
	}
	return rec, errs
}

func parseAmountAndDate(amount, date string, errs fieldErrors) (core.Money, core.Date) {
	var m core.Money
	if cents, err := core.ParseDecimalToCents(amount); err != nil {
		errs.addErr(err)
	} else {
		m = core.Money{Cents: cents}
	}

	d, err := core.ParseDate(date)
	if err != nil {
		errs.addErr(err)
	}
	return m, d
}
