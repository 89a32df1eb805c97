package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"otakuwallet/internal/core"
)

func TestParseExpenseID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "1", want: 1},
		{raw: " 42 ", want: 42},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseExpenseID(tt.raw)
			if tt.wantErr {
				if core.KindOf(err) != core.KindValidation {
					t.Errorf("ParseExpenseID(%q) error = %v, want validation error", tt.raw, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseExpenseID(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
			}
		})
	}
}

func TestParseListFilter(t *testing.T) {
	f, err := ParseListFilter(url.Values{
		"category":  {"game"},
		"rating":    {"4"},
		"satisfied": {"true"},
		"from":      {"2024-01-01"},
		"to":        {"2024-01-31"},
		"sort":      {"date_desc"},
	})
	if err != nil {
		t.Fatalf("ParseListFilter() error = %v", err)
	}
	if f.Category == nil || *f.Category != core.Game {
		t.Errorf("Category = %v", f.Category)
	}
	if f.Rating == nil || *f.Rating != 4 {
		t.Errorf("Rating = %v", f.Rating)
	}
	if !f.SatisfiedOnly || !f.SortDateDesc {
		t.Errorf("flags = %+v", f)
	}
	if f.From == nil || f.To == nil || f.From.String() != "2024-01-01" || f.To.String() != "2024-01-31" {
		t.Errorf("range = %v..%v", f.From, f.To)
	}

	empty, err := ParseListFilter(url.Values{})
	if err != nil {
		t.Fatalf("ParseListFilter(empty) error = %v", err)
	}
	if empty.Category != nil || empty.Rating != nil || empty.SatisfiedOnly || empty.From != nil || empty.To != nil || empty.SortDateDesc {
		t.Errorf("empty query should give the zero filter, got %+v", empty)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"title":"x"}`},
		{name: "empty body", body: "", wantErr: true},
		{name: "unknown field", body: `{"nope":1}`, wantErr: true},
		{name: "two objects", body: `{"title":"x"}{"title":"y"}`, wantErr: true},
		{name: "wrong type", body: `{"title":5}`, wantErr: true},
		{name: "oversized", body: `{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst struct {
				Title string `json:"title"`
			}
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedBody) {
					t.Errorf("DecodeJSON() error = %v, want ErrMalformedBody", err)
				}
				return
			}
			if err != nil || dst.Title != "x" {
				t.Errorf("DecodeJSON() = %+v, %v", dst, err)
			}
		})
	}
}

func TestErrorFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/expenses/7", nil)
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantField  string
	}{
		{name: "validation", err: &core.ValidationError{Field: "amount", Message: "must be greater than 0"}, wantStatus: http.StatusBadRequest, wantField: "amount"},
		{name: "not found", err: &core.NotFoundError{ID: 7}, wantStatus: http.StatusNotFound},
		{name: "internal", err: &core.InternalError{Op: "read", Err: errors.New("boom")}, wantStatus: http.StatusInternalServerError},
		{name: "unclassified", err: errors.New("surprise"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ErrorFor(req, tt.err).Write(rec)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Field != tt.wantField || resp.Path != "/api/expenses/7" || resp.Status != tt.wantStatus {
				t.Errorf("body = %+v", resp)
			}
		})
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusAccepted).Header("X-Test", "1").Write(rec)

	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 || rec.Header().Get("X-Test") != "1" {
		t.Errorf("got %d %q headers %v", rec.Code, rec.Body.String(), rec.Header())
	}
}
