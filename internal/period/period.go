// Package period resolves period selections (day, week, month plus an offset
// from now) into inclusive date ranges and display labels.
package period

import (
	"fmt"
	"strings"
	"time"

	"budgetnest/internal/core"
)

// Kind selects the aggregation granularity.
type Kind string

const (
	Day   Kind = "day"
	Week  Kind = "week"
	Month Kind = "month"
)

// Kinds returns the supported kinds in selector order.
func Kinds() []Kind {
	return []Kind{Month, Week, Day}
}

// ParseKind accepts "day", "week" or "month" in any case.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Day, Week, Month:
		return k, true
	default:
		return "", false
	}
}

// Title is the selector caption for the kind.
func (k Kind) Title() string {
	switch k {
	case Day:
		return "Daily"
	case Week:
		return "Weekly"
	case Month:
		return "Monthly"
	default:
		return ""
	}
}

const (
	monthLabelLayout = "January 2006"
	dayLabelLayout   = "Jan 2, 2006"
)

// ResolveRange computes the inclusive range selected by kind and offset
// relative to now. Month ranges always end on day "31"; the bound is only
// compared lexicographically against real dates. Unknown kinds yield the
// empty range.
func ResolveRange(kind Kind, offset int, now time.Time) core.DateRange {
	switch kind {
	case Month:
		m := monthStart(now, offset)
		prefix := m.Format("2006-01")
		return core.DateRange{Start: prefix + "-01", End: prefix + "-31"}
	case Week:
		start := weekStart(now, offset)
		return core.DateRange{
			Start: start.Format(core.DateLayout),
			End:   start.AddDate(0, 0, 6).Format(core.DateLayout),
		}
	case Day:
		d := dayOf(now).AddDate(0, 0, offset).Format(core.DateLayout)
		return core.DateRange{Start: d, End: d}
	default:
		return core.DateRange{}
	}
}

// FormatLabel renders the caption for the same selection ResolveRange covers,
// e.g. "July 2025", "Week of Jul 7, 2025 – Jul 13, 2025" or "Jul 7, 2025".
func FormatLabel(kind Kind, offset int, now time.Time) string {
	switch kind {
	case Month:
		return monthStart(now, offset).Format(monthLabelLayout)
	case Week:
		start := weekStart(now, offset)
		return fmt.Sprintf("Week of %s – %s",
			start.Format(dayLabelLayout),
			start.AddDate(0, 0, 6).Format(dayLabelLayout))
	case Day:
		return dayOf(now).AddDate(0, 0, offset).Format(dayLabelLayout)
	default:
		return ""
	}
}

// MonthRange returns [YYYY-MM-01, YYYY-MM-31] for a "YYYY-MM" string.
func MonthRange(month string) (core.DateRange, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return core.DateRange{}, fmt.Errorf("invalid month %q: %w", month, err)
	}
	return ResolveRange(Month, 0, t), nil
}

// CurrentMonth returns now as "YYYY-MM".
func CurrentMonth(now time.Time) string {
	return now.Format("2006-01")
}

// ShiftMonth moves a "YYYY-MM" string by delta months.
func ShiftMonth(month string, delta int) (string, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return "", fmt.Errorf("invalid month %q: %w", month, err)
	}
	return monthStart(t, delta).Format("2006-01"), nil
}

// MonthLabel renders "YYYY-MM" as "July 2025".
func MonthLabel(month string) string {
	t, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return month
	}
	return t.Format(monthLabelLayout)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// monthStart shifts from the first of the month so a day-31 "now" never
// overflows into the following month.
func monthStart(now time.Time, offset int) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
}

// weekStart returns the Monday on or before now, shifted by offset weeks.
func weekStart(now time.Time, offset int) time.Time {
	d := dayOf(now)
	diff := 1 - int(d.Weekday())
	if d.Weekday() == time.Sunday {
		diff = -6
	}
	return d.AddDate(0, 0, diff+offset*7)
}

// Resolver binds the period functions to a clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver uses time.Now when now is nil.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

func (r *Resolver) Now() time.Time {
	return r.now()
}

func (r *Resolver) Range(kind Kind, offset int) core.DateRange {
	return ResolveRange(kind, offset, r.now())
}

func (r *Resolver) Label(kind Kind, offset int) string {
	return FormatLabel(kind, offset, r.now())
}

func (r *Resolver) CurrentMonth() string {
	return CurrentMonth(r.now())
}
