package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"otakuwallet/internal/core"
	"otakuwallet/internal/identity"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}

	e, err := s.api.Create(r.Context(), identity.OwnerFromContext(r.Context()), req.input())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newExpenseView(e)).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseListFilter(r.URL.Query())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	items, err := s.api.List(r.Context(), identity.OwnerFromContext(r.Context()), filter)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(newExpenseViews(items)).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(chi.URLParam(r, "id"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	e, err := s.api.Get(r.Context(), identity.OwnerFromContext(r.Context()), id)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(newExpenseView(e)).Write(w)
}

// handleUpdateExpense serves both PUT and PATCH with selective semantics:
// fields absent from the body keep their stored value.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(chi.URLParam(r, "id"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	var patch core.ExpensePatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}

	e, err := s.api.Update(r.Context(), identity.OwnerFromContext(r.Context()), id, patch)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(newExpenseView(e)).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(chi.URLParam(r, "id"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	if err := s.api.Delete(r.Context(), identity.OwnerFromContext(r.Context()), id); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{"id": id, "deleted": true}).Write(w)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.api.Statistics(r.Context(), identity.OwnerFromContext(r.Context()))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(newStatisticsView(st)).Write(w)
}

func (s *Server) handleCategoryStatistics(w http.ResponseWriter, r *http.Request) {
	rows, err := s.api.CategoryBreakdown(r.Context(), identity.OwnerFromContext(r.Context()))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(newCategorySummaryViews(rows)).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Header("Cache-Control", "public, max-age=3600").
		Body(categoryViews()).
		Write(w)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	s.identity.Clear(w, r)
	w.WriteHeader(http.StatusNoContent)
}

