// Package http serves the wallet's JSON API.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path ids and the list query string.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"otakuwallet/internal/core"
	"otakuwallet/internal/services"
)

// maxBodyBytes bounds request bodies; an expense is well under 2 KiB.
const maxBodyBytes = 64 << 10

// ErrMalformedBody reports a request body that is not a single JSON object
// of the expected shape.
var ErrMalformedBody = errors.New("malformed request body")

// createExpenseRequest is the body of POST /api/expenses.
type createExpenseRequest struct {
	Title              string        `json:"title"`
	Amount             int64         `json:"amount"`
	Category           core.Category `json:"category"`
	SatisfactionRating int           `json:"satisfactionRating"`
	Description        string        `json:"description"`
	PurchaseDate       core.Date     `json:"purchaseDate"`
}

func (req createExpenseRequest) input() core.ExpenseInput {
	return core.ExpenseInput{
		Title:              req.Title,
		Amount:             req.Amount,
		Category:           req.Category,
		SatisfactionRating: req.SatisfactionRating,
		Description:        req.Description,
		PurchaseDate:       req.PurchaseDate,
	}
}

// DecodeJSON reads exactly one JSON object from the body into dst. Unknown
// fields, trailing data and oversized bodies are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: body is empty", ErrMalformedBody)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body exceeds %d bytes", ErrMalformedBody, maxErr.Limit)
		default:
			return fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", ErrMalformedBody)
	}
	return nil
}

// ParseExpenseID parses a positive expense id from a path segment.
func ParseExpenseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: "id", Message: fmt.Sprintf("invalid expense id %q", raw)}
	}
	return id, nil
}

// ParseListFilter reads the list query string: category, rating,
// satisfied=true, from and to (YYYY-MM-DD) and sort=date_desc.
func ParseListFilter(q url.Values) (services.ListFilter, error) {
	var f services.ListFilter

	if v := strings.TrimSpace(q.Get("category")); v != "" {
		c, err := core.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}

	if v := strings.TrimSpace(q.Get("rating")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, &core.ValidationError{Field: "satisfactionRating", Message: fmt.Sprintf("invalid rating %q", v)}
		}
		f.Rating = &n
	}

	if v := strings.TrimSpace(q.Get("satisfied")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, &core.ValidationError{Field: "satisfied", Message: fmt.Sprintf("invalid boolean %q", v)}
		}
		f.SatisfiedOnly = b
	}

	for _, p := range []struct {
		key string
		dst **core.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		v := strings.TrimSpace(q.Get(p.key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return f, &core.ValidationError{Field: p.key, Message: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", v)}
		}
		*p.dst = &d
	}

	switch v := strings.TrimSpace(q.Get("sort")); v {
	case "":
	case "date_desc":
		f.SortDateDesc = true
	default:
		return f, &core.ValidationError{Field: "sort", Message: fmt.Sprintf("unsupported sort %q", v)}
	}

	return f, nil
}
