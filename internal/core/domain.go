package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for storage, ranges and forms.
const DateLayout = "2006-01-02"

// Category is one of the fixed expense categories.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryRent          Category = "Rent"
	CategoryUtilities     Category = "Utilities"
	CategoryMiscellaneous Category = "Miscellaneous"
)

// Categories returns the closed set of expense categories in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransport,
		CategoryRent,
		CategoryUtilities,
		CategoryMiscellaneous,
	}
}

// ParseCategory matches s against the known categories, ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyCategory
	}
	for _, c := range Categories() {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type (
	// Date is a calendar day with no time component.
	Date struct {
		time.Time
	}

	// DateRange is an inclusive pair of YYYY-MM-DD strings.
	DateRange struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}

	Income struct {
		ID        string
		OwnerID   string
		Source    string
		Amount    Money
		Date      Date
		CreatedAt time.Time
	}

	Expense struct {
		ID          string
		OwnerID     string
		Category    Category
		Description string
		Amount      Money
		Date        Date
		CreatedAt   time.Time
	}
)

// Record is implemented by every stored entry kind.
type Record interface {
	RecordID() string
	Owner() string
	RecordDate() Date
	RecordAmount() Money
	Created() time.Time
	Validate() error
}

var (
	_ Record = Income{}
	_ Record = Expense{}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingDate      = errors.New("date is required")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptySource      = errors.New("source is required")
	ErrEmptyDescription = errors.New("description is required")
	ErrEmptyCategory    = errors.New("category is required")
	ErrInvalidCategory  = errors.New("unknown category")
	ErrMissingOwner     = errors.New("owner is required")
	ErrTextTooLong      = errors.New("text too long (max 200 characters)")
)

const maxTextLength = 200

// ParseDate parses a YYYY-MM-DD string. An empty string yields ErrMissingDate.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// String returns YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM prefix of the date, or "" for the zero date.
func (d Date) MonthKey() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// IsZero reports whether the range is the degenerate empty range.
func (r DateRange) IsZero() bool {
	return r.Start == "" && r.End == ""
}

// Contains compares date strings lexicographically against the inclusive bounds.
// The degenerate range contains nothing.
func (r DateRange) Contains(date string) bool {
	if r.IsZero() {
		return false
	}
	return date >= r.Start && date <= r.End
}

func (i Income) RecordID() string    { return i.ID }
func (i Income) Owner() string       { return i.OwnerID }
func (i Income) RecordDate() Date    { return i.Date }
func (i Income) RecordAmount() Money { return i.Amount }
func (i Income) Created() time.Time  { return i.CreatedAt }

func (i Income) Validate() error {
	if strings.TrimSpace(i.OwnerID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(i.Source) == "" {
		return ErrEmptySource
	}
	if len(i.Source) > maxTextLength {
		return ErrTextTooLong
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	return i.Date.Validate()
}

func (e Expense) RecordID() string    { return e.ID }
func (e Expense) Owner() string       { return e.OwnerID }
func (e Expense) RecordDate() Date    { return e.Date }
func (e Expense) RecordAmount() Money { return e.Amount }
func (e Expense) Created() time.Time  { return e.CreatedAt }

func (e Expense) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrMissingOwner
	}
	if e.Category == "" {
		return ErrEmptyCategory
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > maxTextLength {
		return ErrTextTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	return e.Date.Validate()
}
