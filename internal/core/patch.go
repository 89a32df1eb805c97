package core

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Optional distinguishes an absent field from a present zero value.
// A JSON null decodes as absent.
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool { return o.set }

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// ExpensePatch is a selective update. Absent fields are left untouched.
type ExpensePatch struct {
	Title              Optional[string]   `json:"title"`
	Amount             Optional[int64]    `json:"amount"`
	Category           Optional[Category] `json:"category"`
	Description        Optional[string]   `json:"description"`
	SatisfactionRating Optional[int]      `json:"satisfactionRating"`
	PurchaseDate       Optional[Date]     `json:"purchaseDate"`
}

// Empty reports whether the patch changes nothing.
func (p ExpensePatch) Empty() bool {
	return !p.Title.IsSet() && !p.Amount.IsSet() && !p.Category.IsSet() &&
		!p.Description.IsSet() && !p.SatisfactionRating.IsSet() && !p.PurchaseDate.IsSet()
}

// Apply returns e with the present fields of p written over it. Present
// fields are validated with the creation rules; on error e is unchanged.
// The display fields are recomputed last whenever the amount or the
// rating was touched.
func (e Expense) Apply(p ExpensePatch) (Expense, error) {
	out := e
	if v, ok := p.Title.Get(); ok {
		v = strings.TrimSpace(v)
		if err := validateTitle(v); err != nil {
			return e, err
		}
		out.Title = v
	}
	if v, ok := p.Amount.Get(); ok {
		if err := validateAmount(v); err != nil {
			return e, err
		}
		out.Amount = v
	}
	if v, ok := p.Category.Get(); ok {
		c, err := ParseCategory(string(v))
		if err != nil {
			return e, err
		}
		out.Category = c
	}
	if v, ok := p.Description.Get(); ok {
		if err := validateDescription(v); err != nil {
			return e, err
		}
		out.Description = v
	}
	if v, ok := p.PurchaseDate.Get(); ok {
		if err := validatePurchaseDate(v); err != nil {
			return e, err
		}
		out.PurchaseDate = v
	}
	if v, ok := p.SatisfactionRating.Get(); ok {
		if err := validateRating(v); err != nil {
			return e, err
		}
		out.SatisfactionRating = v
	}
	if p.Amount.IsSet() || p.SatisfactionRating.IsSet() {
		out.derive()
	}
	return out, nil
}
