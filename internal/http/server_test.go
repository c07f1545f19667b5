package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tirelire/internal/config"
	"tirelire/internal/core"
	"tirelire/internal/services"
	"tirelire/internal/store/memory"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Port:             "0",
		HistoryCacheSize: 16,
		HistoryCacheTTL:  time.Minute,
		SharedIdentities: []string{"alice", "bob"},
	}
	svc := services.NewLedgerService(memory.New(), services.Options{
		Now: func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) },
	})
	srv := NewServer(cfg, svc, nil)
	t.Cleanup(func() { srv.limiter.stop() })
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(identityHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/ledger", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHealthEndpointsNeedNoIdentity(t *testing.T) {
	h := newTestHandler(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		w := doJSON(t, h, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestBudgetLifecycle(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
		"title": "Courses", "amount": "400,00", "categoryId": "courant",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	b := decode[core.Budget](t, w)
	if b.Amount.Cents != 40000 {
		t.Errorf("Amount = %d, want 40000", b.Amount.Cents)
	}
	if b.BankAccountID != core.DefaultBankAccountID {
		t.Errorf("BankAccountID = %q, want default", b.BankAccountID)
	}

	w = doJSON(t, h, http.MethodPut, "/api/budgets/"+b.ID, "alice", map[string]string{
		"title": "Courses", "amount": "450.00", "categoryId": "courant",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body)
	}
	updated := decode[core.Budget](t, w)
	if updated.Amount.Cents != 45000 || updated.Remaining.Cents != 45000 {
		t.Errorf("updated amount/remaining = %d/%d, want 45000/45000",
			updated.Amount.Cents, updated.Remaining.Cents)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/budgets/"+b.ID, "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodDelete, "/api/budgets/"+b.ID, "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestUpdateUnknownBudgetIs404(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPut, "/api/budgets/nope", "alice", map[string]string{
		"title": "X", "amount": "1.00", "categoryId": "courant",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestInvalidAmountIs422(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
		"title": "X", "amount": "abc", "categoryId": "courant",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestExpenseFlowAndSharedHousehold(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
		"title": "Clope", "amount": "300.00", "categoryId": "mensuel",
	})
	b := decode[core.Budget](t, w)

	w = doJSON(t, h, http.MethodPost, "/api/expenses", "bob", map[string]string{
		"amount": "12.50", "description": "paquet", "budgetId": b.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expense status = %d: %s", w.Code, w.Body)
	}
	e := decode[core.Expense](t, w)
	if e.User != "bob" {
		t.Errorf("expense user = %q, want bob", e.User)
	}

	// alice and bob share the household, so alice sees bob's spend
	w = doJSON(t, h, http.MethodGet, "/api/ledger", "alice", nil)
	data := decode[core.AppData](t, w)
	if data.Budgets[0].Spent.Cents != 1250 {
		t.Errorf("Spent = %d, want 1250", data.Budgets[0].Spent.Cents)
	}

	// carol is not on the allow-list and gets her own empty ledger
	w = doJSON(t, h, http.MethodGet, "/api/ledger", "carol", nil)
	other := decode[core.AppData](t, w)
	if len(other.Budgets) != 0 {
		t.Errorf("carol sees %d budgets, want 0", len(other.Budgets))
	}
}

func TestExpenseWithoutDescriptionIs422(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
		"title": "Courses", "amount": "100.00", "categoryId": "courant",
	})
	b := decode[core.Budget](t, w)

	w = doJSON(t, h, http.MethodPost, "/api/expenses", "alice", map[string]string{
		"amount": "5.00", "description": "   ", "budgetId": b.ID,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestDeleteExpenseValidatesPeriod(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodDelete, "/api/expenses/x?period=2025-13", "alice", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad period status = %d, want 422", w.Code)
	}
	w = doJSON(t, h, http.MethodDelete, "/api/expenses/x?period=2025-03", "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("idempotent delete status = %d, want 204", w.Code)
	}
}

func TestRolloverArchivesAndAdvances(t *testing.T) {
	h := newTestHandler(t)

	doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
		"title": "Loyer", "amount": "900.00", "categoryId": "mensuel",
	})

	w := doJSON(t, h, http.MethodPost, "/api/rollover", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rollover status = %d: %s", w.Code, w.Body)
	}
	resp := decode[map[string]string](t, w)
	if resp["currentPeriod"] != "2025-04" {
		t.Errorf("currentPeriod = %q, want 2025-04", resp["currentPeriod"])
	}

	w = doJSON(t, h, http.MethodGet, "/api/history", "alice", nil)
	snaps := decode[[]core.PeriodSnapshot](t, w)
	if len(snaps) != 1 || snaps[0].Period != "2025-03" {
		t.Errorf("history = %+v, want one 2025-03 snapshot", snaps)
	}

	w = doJSON(t, h, http.MethodDelete, "/api/history/2025-03", "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete snapshot status = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodDelete, "/api/history/2025-03", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete missing snapshot status = %d, want 404", w.Code)
	}
}

func TestHistoryCacheInvalidatedByMutation(t *testing.T) {
	h := newTestHandler(t)

	doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
		"title": "Resto", "amount": "100.00", "categoryId": "courant",
	})

	w := doJSON(t, h, http.MethodGet, "/api/history", "alice", nil)
	if got := decode[[]core.PeriodSnapshot](t, w); len(got) != 0 {
		t.Fatalf("history = %+v, want empty", got)
	}

	doJSON(t, h, http.MethodPost, "/api/rollover", "alice", nil)

	w = doJSON(t, h, http.MethodGet, "/api/history", "alice", nil)
	if got := decode[[]core.PeriodSnapshot](t, w); len(got) != 1 {
		t.Errorf("history after rollover = %+v, want one snapshot (stale cache?)", got)
	}
}

func TestReferencesRoundTrip(t *testing.T) {
	h := newTestHandler(t)

	w := doJSON(t, h, http.MethodPut, "/api/references", "alice", []map[string]string{
		{"title": "Clope", "amount": "300.00", "categoryId": "mensuel"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put references status = %d: %s", w.Code, w.Body)
	}
	refs := decode[[]core.ReferenceBudget](t, w)
	if len(refs) != 1 || refs[0].ID == "" {
		t.Fatalf("refs = %+v, want one entry with id", refs)
	}

	w = doJSON(t, h, http.MethodGet, "/api/references", "alice", nil)
	got := decode[[]core.ReferenceBudget](t, w)
	if len(got) != 1 || got[0].Amount.Cents != 30000 {
		t.Errorf("got = %+v, want Clope at 30000", got)
	}
}

func TestForceSyncWithoutMirrorIs502(t *testing.T) {
	h := newTestHandler(t)
	doJSON(t, h, http.MethodGet, "/api/ledger", "alice", nil)

	w := doJSON(t, h, http.MethodPost, "/api/sync", "alice", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	h := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/healthz", "", nil)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	h := newTestHandler(t)

	var limited bool
	for i := 0; i < mutationsPerMinute+5; i++ {
		w := doJSON(t, h, http.MethodPost, "/api/budgets", "alice", map[string]string{
			"title": fmt.Sprintf("b%d", i), "amount": "1.00", "categoryId": "courant",
		})
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("mutations never rate limited")
	}

	// reads stay open
	w := doJSON(t, h, http.MethodGet, "/api/ledger", "alice", nil)
	if w.Code != http.StatusOK {
		t.Errorf("read status under limit = %d, want 200", w.Code)
	}
}
