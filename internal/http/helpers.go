package http

import (
	"errors"
	"html"
	"net/http"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"budgetnest/internal/core"
)

const currencySymbol = "₹"

var strictPolicy = bluemonday.StrictPolicy()

// formatMoney renders an amount as "₹12.50" (or "-₹12.50").
func formatMoney(m core.Money) string {
	if m.Cents < 0 {
		return "-" + currencySymbol + core.Money{Cents: -m.Cents}.String()
	}
	return currencySymbol + m.String()
}

// sanitizeInput strips markup and control characters from free text. The
// policy escapes what it keeps, so entities are decoded again before the
// value reaches the store; templates escape on output.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// fieldErrors maps a form field name to the message shown under it.
type fieldErrors map[string]string

func (f fieldErrors) Any() bool { return len(f) > 0 }

// add keeps the first message recorded for a field.
func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

// addErr maps a validation error onto its field.
func (f fieldErrors) addErr(err error) bool {
	switch {
	case errors.Is(err, core.ErrEmptySource):
		f.add("source", "Source is required.")
	case errors.Is(err, core.ErrEmptyCategory):
		f.add("category", "Choose a category.")
	case errors.Is(err, core.ErrInvalidCategory):
		f.add("category", "Choose one of the listed categories.")
	case errors.Is(err, core.ErrEmptyDescription):
		f.add("description", "Description is required.")
	case errors.Is(err, core.ErrInvalidAmount):
		f.add("amount", "Enter an amount of at least 0.01.")
	case errors.Is(err, core.ErrMissingDate):
		f.add("date", "Date is required.")
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidDay), errors.Is(err, core.ErrInvalidMonth):
		f.add("date", "Enter a valid date.")
	default:
		return false
	}
	return true
}
