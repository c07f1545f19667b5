package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tirelire/internal/core"
	"tirelire/internal/session"
	"tirelire/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoIdentity):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrBudgetNotFound),
		errors.Is(err, core.ErrPeriodNotFound),
		errors.Is(err, core.ErrReferenceNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrAmbiguousReference):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// Amounts come in as decimal strings ("12.50" or "12,50") and leave as
// integer cents, so clients never do float money arithmetic.

type expenseRequest struct {
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	Date          string `json:"date,omitempty"`
	BudgetID      string `json:"budgetId"`
	BankAccountID string `json:"bankAccountId,omitempty"`
}

type budgetRequest struct {
	Title         string `json:"title"`
	Amount        string `json:"amount"`
	CategoryID    string `json:"categoryId"`
	BankAccountID string `json:"bankAccountId,omitempty"`
}

type referenceRequest struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title"`
	Amount     string `json:"amount"`
	CategoryID string `json:"categoryId"`
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Ledger(r.Context(), s.sessionFor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	e := core.Expense{
		Amount:        core.Money{Cents: cents},
		Description:   req.Description,
		BudgetID:      req.BudgetID,
		BankAccountID: req.BankAccountID,
	}
	if req.Date != "" {
		d, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			badRequest(w, "invalid date, want RFC3339")
			return
		}
		e.Date = d
	}

	sess := s.sessionFor(r)
	added, err := s.svc.AddExpense(r.Context(), sess, e)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	period, err := core.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess := s.sessionFor(r)
	if err := s.svc.DeleteExpense(r.Context(), sess, r.PathValue("id"), period); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddBudget(w http.ResponseWriter, r *http.Request) {
	b, ok := s.budgetFromRequest(w, r, "")
	if !ok {
		return
	}
	sess := s.sessionFor(r)
	added, err := s.svc.AddBudget(r.Context(), sess, b)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	b, ok := s.budgetFromRequest(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	sess := s.sessionFor(r)
	updated, err := s.svc.UpdateBudget(r.Context(), sess, b)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) budgetFromRequest(w http.ResponseWriter, r *http.Request, id string) (core.Budget, bool) {
	var req budgetRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return core.Budget{}, false
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, err)
		return core.Budget{}, false
	}
	return core.Budget{
		ID:            id,
		Title:         req.Title,
		Amount:        core.Money{Cents: cents},
		CategoryID:    req.CategoryID,
		BankAccountID: req.BankAccountID,
	}, true
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	if err := s.svc.DeleteBudget(r.Context(), sess, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetBudget(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	if err := s.svc.ResetBudget(r.Context(), sess, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	next, err := s.svc.Rollover(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	writeJSON(w, http.StatusOK, map[string]string{"currentPeriod": next.String()})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	key, err := sess.HouseholdKey()
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps, ok := s.historyCache.Get(key); ok {
		writeJSON(w, http.StatusOK, snaps)
		return
	}
	snaps, err := s.svc.History(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []core.PeriodSnapshot{}
	}
	s.historyCache.Set(key, snaps)
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleDeleteHistoryPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := core.ParsePeriod(r.PathValue("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess := s.sessionFor(r)
	if err := s.svc.DeleteHistory(r.Context(), sess, period); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	if err := s.svc.ClearHistory(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateHistory(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := s.svc.References(r.Context(), s.sessionFor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if refs == nil {
		refs = []core.ReferenceBudget{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handlePutReferences(w http.ResponseWriter, r *http.Request) {
	var reqs []referenceRequest
	if err := decodeBody(r, &reqs); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	refs := make([]core.ReferenceBudget, 0, len(reqs))
	for _, req := range reqs {
		cents, err := core.ParseDecimalToCents(req.Amount)
		if err != nil {
			writeError(w, fmt.Errorf("reference %q: %w", req.Title, err))
			return
		}
		refs = append(refs, core.ReferenceBudget{
			ID:         req.ID,
			Title:      req.Title,
			Amount:     core.Money{Cents: cents},
			CategoryID: req.CategoryID,
		})
	}
	sess := s.sessionFor(r)
	if err := s.svc.SaveReferences(r.Context(), sess, refs); err != nil {
		writeError(w, err)
		return
	}
	saved, err := s.svc.References(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(r)
	if err := s.svc.ForceSync(r.Context(), sess); err != nil {
		if errors.Is(err, session.ErrNoIdentity) || errors.Is(err, store.ErrNotFound) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) invalidateHistory(sess *session.Session) {
	if key, err := sess.HouseholdKey(); err == nil {
		s.historyCache.Delete(key)
	}
}
