package core

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MinRating            = 1
	MaxRating            = 5

	// MaxAmount keeps per-owner sums well inside int64 on every backend.
	MaxAmount int64 = math.MaxInt32

	// SatisfiedRating marks a purchase whose cost is not counted.
	SatisfiedRating = MaxRating

	dateLayout = "2006-01-02"
)

type (
	// Date is a calendar date held at UTC midnight.
	Date struct {
		time.Time
	}

	Expense struct {
		ID                 int64
		Owner              string
		Title              string
		Amount             int64
		DisplayAmount      int64
		Category           Category
		SatisfactionRating int
		IsSatisfied        bool
		Description        string
		PurchaseDate       Date
		CreatedAt          time.Time
		UpdatedAt          time.Time
	}

	// ExpenseInput carries the caller-supplied fields of a new expense.
	ExpenseInput struct {
		Title              string
		Amount             int64
		Category           Category
		SatisfactionRating int
		Description        string
		PurchaseDate       Date
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
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

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

// Between reports whether d lies in [start, end].
func (d Date) Between(start, end Date) bool {
	return !d.Before(start) && !d.After(end)
}

// NewExpense validates in and returns an unsaved expense for owner with
// its derived fields populated.
func NewExpense(owner string, in ExpenseInput) (Expense, error) {
	if err := RequireOwner(owner); err != nil {
		return Expense{}, err
	}
	cat, err := ParseCategory(string(in.Category))
	if err != nil {
		return Expense{}, err
	}
	e := Expense{
		Owner:              owner,
		Title:              strings.TrimSpace(in.Title),
		Amount:             in.Amount,
		Category:           cat,
		SatisfactionRating: in.SatisfactionRating,
		Description:        in.Description,
		PurchaseDate:       in.PurchaseDate,
	}
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	e.derive()
	return e, nil
}

// Validate checks every caller-controlled field.
func (e Expense) Validate() error {
	if err := validateTitle(e.Title); err != nil {
		return err
	}
	if err := validateAmount(e.Amount); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return invalid("category", "unknown category %q", e.Category)
	}
	if err := validateRating(e.SatisfactionRating); err != nil {
		return err
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	return validatePurchaseDate(e.PurchaseDate)
}

// derive applies the display rule: a fully satisfying purchase costs nothing on display.
func (e *Expense) derive() {
	if e.SatisfactionRating == SatisfiedRating {
		e.DisplayAmount = 0
		e.IsSatisfied = true
		return
	}
	e.DisplayAmount = e.Amount
	e.IsSatisfied = false
}

// SavedAmount is the part of the cost hidden by the display rule.
func (e Expense) SavedAmount() int64 {
	return e.Amount - e.DisplayAmount
}

func validateTitle(s string) error {
	if utf8.RuneCountInString(s) > MaxTitleLength {
		return invalid("title", "must be at most %d characters", MaxTitleLength)
	}
	return nil
}

func validateAmount(v int64) error {
	if v <= 0 {
		return invalid("amount", "must be greater than 0")
	}
	if v > MaxAmount {
		return invalid("amount", "must be at most %d", MaxAmount)
	}
	return nil
}

func validateRating(v int) error {
	if v < MinRating || v > MaxRating {
		return invalid("satisfactionRating", "must be between %d and %d", MinRating, MaxRating)
	}
	return nil
}

func validateDescription(s string) error {
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		return invalid("description", "must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

func validatePurchaseDate(d Date) error {
	if d.IsZero() {
		return invalid("purchaseDate", "is required")
	}
	return nil
}
