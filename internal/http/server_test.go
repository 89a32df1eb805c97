package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"otakuwallet/internal/cache"
	"otakuwallet/internal/core"
	"otakuwallet/internal/identity"
	applog "otakuwallet/internal/log"
	"otakuwallet/internal/services"
	"otakuwallet/internal/storage/memory"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Format: "text", Output: io.Discard, Component: applog.ComponentHTTP})
}

func newTestServer(t *testing.T, api ExpenseAPI, opts ...ServerOption) *Server {
	t.Helper()
	if api == nil {
		api = services.NewExpenseService(memory.New(), services.WithLogger(quietLogger()))
	}
	opts = append([]ServerOption{WithLogger(quietLogger())}, opts...)
	srv := NewServer(":0", api, identity.NewCookieProvider(""), opts...)
	t.Cleanup(srv.rateLimiter.Stop)
	return srv
}

// visitor replays the identity cookie the server issued on its first response.
type visitor struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func newVisitor(t *testing.T, srv *Server) *visitor {
	return &visitor{t: t, h: srv.Handler}
}

func (v *visitor) do(method, path, body string) *httptest.ResponseRecorder {
	v.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.cookie != nil {
		req.AddCookie(v.cookie)
	}
	rec := httptest.NewRecorder()
	v.h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.DefaultCookieName && c.MaxAge >= 0 {
			v.cookie = c
		}
	}
	return rec
}

func (v *visitor) create(title string, amount int64, category string, rating int, date string) ExpenseView {
	v.t.Helper()
	body := fmt.Sprintf(`{"title":%q,"amount":%d,"category":%q,"satisfactionRating":%d,"purchaseDate":%q}`,
		title, amount, category, rating, date)
	rec := v.do(http.MethodPost, "/api/expenses", body)
	if rec.Code != http.StatusCreated {
		v.t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decode[ExpenseView](v.t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %T: %v (body %s)", out, err, rec.Body.String())
	}
	return out
}

// stubAPI overrides selected service calls with failures.
type stubAPI struct {
	ExpenseAPI
	pingErr  error
	statsErr error
}

func (s stubAPI) Ping(context.Context) error { return s.pingErr }

func (s stubAPI) Statistics(context.Context, string) (core.Statistics, error) {
	return core.Statistics{}, s.statsErr
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := v.do(http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := newTestServer(t, stubAPI{pingErr: errors.New("database is locked")})

	rec := newVisitor(t, srv).do(http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Error("readiness body leaks the store error")
	}
}

func TestCreateAndGetExpense(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)

	got := v.create("Acrylic stand", 50000, "goods", 5, "2024-03-01")
	if got.ID <= 0 {
		t.Fatalf("id = %d, want positive", got.ID)
	}
	if got.DisplayAmount != 0 || !got.IsSatisfied {
		t.Errorf("rating 5 should display 0 and be satisfied: %+v", got)
	}
	if got.Category != "GOODS" || got.CategoryLabel != core.Goods.Label() || got.CategoryEmoji != core.Goods.Emoji() {
		t.Errorf("category fields = %s/%s/%s", got.Category, got.CategoryLabel, got.CategoryEmoji)
	}
	if !got.PurchaseDate.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Errorf("purchaseDate = %v", got.PurchaseDate)
	}
	if v.cookie == nil {
		t.Fatal("no visitor cookie issued")
	}

	rec := v.do(http.MethodGet, fmt.Sprintf("/api/expenses/%d", got.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if fetched := decode[ExpenseView](t, rec); fetched.Title != "Acrylic stand" || fetched.Amount != 50000 {
		t.Errorf("fetched = %+v", fetched)
	}

	stranger := newVisitor(t, srv)
	if rec := stranger.do(http.MethodGet, fmt.Sprintf("/api/expenses/%d", got.ID), ""); rec.Code != http.StatusNotFound {
		t.Errorf("another visitor got status %d, want 404", rec.Code)
	}
}

func TestCreateExpenseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "malformed JSON", body: `{"amount":`},
		{name: "unknown field", body: `{"amount":100,"category":"GAME","satisfactionRating":3,"purchaseDate":"2024-01-01","owner":"x"}`},
		{name: "trailing data", body: `{"amount":100,"category":"GAME","satisfactionRating":3,"purchaseDate":"2024-01-01"} {}`},
		{name: "bad date", body: `{"amount":100,"category":"GAME","satisfactionRating":3,"purchaseDate":"01/02/2024"}`},
		{name: "zero amount", body: `{"amount":0,"category":"GAME","satisfactionRating":3,"purchaseDate":"2024-01-01"}`, wantField: "amount"},
		{name: "unknown category", body: `{"amount":100,"category":"CAR","satisfactionRating":3,"purchaseDate":"2024-01-01"}`, wantField: "category"},
		{name: "rating too high", body: `{"amount":100,"category":"GAME","satisfactionRating":6,"purchaseDate":"2024-01-01"}`, wantField: "satisfactionRating"},
		{name: "missing purchase date", body: `{"amount":100,"category":"GAME","satisfactionRating":3}`, wantField: "purchaseDate"},
	}

	srv := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newVisitor(t, srv).do(http.MethodPost, "/api/expenses", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Status != http.StatusBadRequest || resp.Path != "/api/expenses" || resp.Timestamp.IsZero() {
				t.Errorf("error body = %+v", resp)
			}
			if resp.Field != tt.wantField {
				t.Errorf("field = %q, want %q", resp.Field, tt.wantField)
			}
		})
	}
}

func TestUpdateExpense(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)
	e := v.create("Live ticket", 88000, "EVENT", 3, "2024-05-05")
	path := fmt.Sprintf("/api/expenses/%d", e.ID)

	rec := v.do(http.MethodPatch, path, `{"satisfactionRating":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	patched := decode[ExpenseView](t, rec)
	if patched.DisplayAmount != 0 || !patched.IsSatisfied || patched.Amount != 88000 {
		t.Errorf("after rating 5: %+v", patched)
	}

	rec = v.do(http.MethodPut, path, `{"title":"Encore ticket"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	renamed := decode[ExpenseView](t, rec)
	if renamed.Title != "Encore ticket" || renamed.SatisfactionRating != 5 || renamed.Category != "EVENT" {
		t.Errorf("absent fields changed: %+v", renamed)
	}

	rec = v.do(http.MethodPatch, path, `{"amount":-1}`)
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Field != "amount" {
		t.Errorf("invalid patch status = %d body %s", rec.Code, rec.Body.String())
	}

	if rec := v.do(http.MethodPatch, "/api/expenses/9999", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
	rec = v.do(http.MethodPatch, "/api/expenses/abc", `{"title":"x"}`)
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Field != "id" {
		t.Errorf("bad id status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteExpense(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)
	e := v.create("", 1200, "FOOD", 2, "2024-02-02")
	path := fmt.Sprintf("/api/expenses/%d", e.ID)

	if rec := v.do(http.MethodDelete, path, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := v.do(http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	if rec := v.do(http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestListExpenses(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)
	v.create("Figure", 50000, "GOODS", 5, "2024-01-10")
	v.create("Manga", 40000, "BOOK", 3, "2024-02-10")
	v.create("Gacha", 30000, "GAME", 1, "2024-03-10")

	tests := []struct {
		query  string
		titles []string
	}{
		{query: "", titles: []string{"Figure", "Manga", "Gacha"}},
		{query: "?category=book", titles: []string{"Manga"}},
		{query: "?rating=1", titles: []string{"Gacha"}},
		{query: "?satisfied=true", titles: []string{"Figure"}},
		{query: "?from=2024-02-01&to=2024-03-31", titles: []string{"Manga", "Gacha"}},
		{query: "?sort=date_desc", titles: []string{"Gacha", "Manga", "Figure"}},
		{query: "?category=ETC", titles: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := v.do(http.MethodGet, "/api/expenses"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			items := decode[[]ExpenseView](t, rec)
			if len(items) != len(tt.titles) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.titles))
			}
			for i, want := range tt.titles {
				if items[i].Title != want {
					t.Errorf("items[%d] = %q, want %q", i, items[i].Title, want)
				}
			}
		})
	}

	if rec := v.do(http.MethodGet, "/api/expenses?category=ETC", ""); strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %q, want []", rec.Body.String())
	}
}

func TestListExpensesRejectsBadFilters(t *testing.T) {
	tests := []struct {
		query     string
		wantField string
	}{
		{query: "?from=2024-01-01", wantField: "date"},
		{query: "?from=2024-03-01&to=2024-01-01", wantField: "date"},
		{query: "?from=yesterday&to=2024-01-01", wantField: "from"},
		{query: "?rating=high", wantField: "satisfactionRating"},
		{query: "?rating=9", wantField: "satisfactionRating"},
		{query: "?category=CAR", wantField: "category"},
		{query: "?sort=amount", wantField: "sort"},
	}

	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := v.do(http.MethodGet, "/api/expenses"+tt.query, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decode[ErrorResponse](t, rec).Field; got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
		})
	}
}

func TestStatistics(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)

	empty := decode[StatisticsView](t, v.do(http.MethodGet, "/api/expenses/statistics", ""))
	if empty != (StatisticsView{}) {
		t.Errorf("empty statistics = %+v", empty)
	}

	v.create("Figure", 50000, "GOODS", 5, "2024-01-10")
	v.create("Manga", 40000, "BOOK", 3, "2024-02-10")
	v.create("Gacha", 30000, "GAME", 1, "2024-03-10")

	rec := v.do(http.MethodGet, "/api/expenses/statistics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := StatisticsView{TotalAmount: 120000, DisplayAmount: 70000, SavedAmount: 50000, SatisfiedCount: 1, TotalCount: 3}
	if got := decode[StatisticsView](t, rec); got != want {
		t.Errorf("statistics = %+v, want %+v", got, want)
	}

	rows := decode[[]CategorySummaryView](t, v.do(http.MethodGet, "/api/expenses/statistics/categories", ""))
	if len(rows) != len(core.Categories()) {
		t.Fatalf("got %d category rows, want %d", len(rows), len(core.Categories()))
	}
	if rows[0].Category != "GOODS" || rows[0].Count != 1 || rows[0].DisplayAmount != 0 || rows[0].TotalAmount != 50000 {
		t.Errorf("GOODS row = %+v", rows[0])
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	srv := newTestServer(t, stubAPI{statsErr: &core.InternalError{Op: "statistics", Err: errors.New("disk I/O error")}})

	rec := newVisitor(t, srv).do(http.MethodGet, "/api/expenses/statistics", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if strings.Contains(resp.Message, "disk") || resp.Message != "internal server error" {
		t.Errorf("message = %q", resp.Message)
	}
}

type brokenIdentity struct{}

func (brokenIdentity) Owner(http.ResponseWriter, *http.Request) (string, error) {
	return "", errors.New("entropy exhausted")
}

func (brokenIdentity) Clear(http.ResponseWriter, *http.Request) {}

func TestIdentityFailureUsesErrorBody(t *testing.T) {
	api := services.NewExpenseService(memory.New(), services.WithLogger(quietLogger()))
	srv := NewServer(":0", api, brokenIdentity{}, WithLogger(quietLogger()))
	t.Cleanup(srv.rateLimiter.Stop)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/expenses", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Status != http.StatusInternalServerError || resp.Path != "/api/expenses" || resp.Timestamp.IsZero() {
		t.Errorf("error body = %+v", resp)
	}
}

func TestListCategories(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := newVisitor(t, srv).do(http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	cats := decode[[]CategoryView](t, rec)
	if len(cats) != 7 {
		t.Fatalf("got %d categories, want 7", len(cats))
	}
	if cats[0].Name != "GOODS" || cats[6].Name != "ETC" || cats[0].Label == "" || cats[0].Emoji == "" {
		t.Errorf("categories = %+v", cats)
	}
}

func TestClearSession(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)
	first := v.create("Stream pass", 9900, "STREAMING", 4, "2024-04-01")

	rec := v.do(http.MethodDelete, "/api/session", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookie not expired: %+v", cookies)
	}

	fresh := newVisitor(t, srv)
	if rec := fresh.do(http.MethodGet, fmt.Sprintf("/api/expenses/%d", first.ID), ""); rec.Code != http.StatusNotFound {
		t.Errorf("new identity sees old expense: status %d", rec.Code)
	}
}

func TestResponseHeaders(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-trace-42")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-trace-42" {
		t.Errorf("X-Request-ID = %q, want echo of client id", got)
	}
	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Content-Type":           contentTypeJSON,
	} {
		if got := rec.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Errorf("unsafe request id was not replaced: %q", got)
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	srv := newTestServer(t, nil, WithRateLimit(2))
	v := newVisitor(t, srv)

	v.create("a", 100, "ETC", 3, "2024-01-01")
	v.create("b", 100, "ETC", 3, "2024-01-01")
	rec := v.do(http.MethodPost, "/api/expenses", `{"amount":100,"category":"ETC","satisfactionRating":3,"purchaseDate":"2024-01-01"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	for i := 0; i < 5; i++ {
		if rec := v.do(http.MethodGet, "/api/expenses", ""); rec.Code != http.StatusOK {
			t.Fatalf("read %d status = %d, reads must not be limited", i, rec.Code)
		}
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, nil, WithCacheStats(func() cache.Stats { return cache.Stats{Hits: 7, Misses: 2, Entries: 1} }))
	v := newVisitor(t, srv)
	v.do(http.MethodGet, "/healthz", "")

	rec := v.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"http_requests_total 2",
		`http_responses_total{class="2xx"} 1`,
		"statistics_cache_hits_total 7",
		"rate_limit_hits_total 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t, nil)
	v := newVisitor(t, srv)

	rec := v.do(http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound || decode[ErrorResponse](t, rec).Path != "/api/nope" {
		t.Errorf("unknown route: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := v.do("TRACE", "/healthz", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("TRACE status = %d, want 405", rec.Code)
	}
}
