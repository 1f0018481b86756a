package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"budgeteer/internal/core"
	"budgeteer/internal/kv"
	"budgeteer/internal/kv/memory"
	"budgeteer/internal/ledger"
	"budgeteer/internal/log"
	"budgeteer/internal/services"
	"budgeteer/internal/verdict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 10, 5, 12, 0, 0, 0, time.UTC)

// brokenStore accepts reads and fails every write.
type brokenStore struct{ *memory.Store }

func (brokenStore) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (brokenStore) Delete(context.Context, string) error      { return errors.New("quota exceeded") }

type fakeExporter struct {
	got []core.Transaction
	err error
}

func (f *fakeExporter) Export(ctx context.Context, txs []core.Transaction) (string, error) {
	f.got = txs
	return "Transactions!A1:E3", f.err
}

func newTestServer(t *testing.T, store kv.Store, opts ...Option) *Server {
	t.Helper()
	clock := func() time.Time { return testNow }
	l, err := ledger.Open(context.Background(), store, ledger.WithClock(clock))
	require.NoError(t, err)

	svc := services.NewLedgerService(l, services.WithClock(clock))
	opts = append([]Option{WithLogger(log.New(log.Config{Output: io.Discard}))}, opts...)
	return NewServer(":0", svc, opts...)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type createdResponse struct {
	Transaction core.Transaction `json:"transaction"`
	Warning     string           `json:"warning"`
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, memory.New())

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	}
}

func TestDashboardScenario(t *testing.T) {
	srv := newTestServer(t, memory.New())

	for _, body := range []string{
		`{"description":"lunch","amount":20,"category":"food","type":"expense"}`,
		`{"description":"groceries","amount":"40","category":"food"}`,
		`{"description":"salary","amount":1000,"category":"salary","type":"income"}`,
	} {
		rr := do(t, srv, http.MethodPost, "/api/transactions", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/api/settings/limit", `{"limit":100}`).Code)

	rr := do(t, srv, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	d := decode[services.Dashboard](t, rr)

	assert.Equal(t, core.Units(940), d.Totals.Balance)
	assert.Equal(t, core.Units(1000), d.Totals.Income)
	assert.Equal(t, core.Units(60), d.Totals.Expense)
	require.Len(t, d.Categories, 1)
	assert.Equal(t, "food", d.Categories[0].Name)
	assert.Equal(t, core.Units(60), d.Categories[0].Amount)
	require.Len(t, d.Calendar, 30)
	assert.Equal(t, "heavy", string(d.Calendar[4].Bucket))
	assert.InDelta(t, 60, d.Progress.Percentage, 1e-9)
	assert.Equal(t, core.Units(40), d.Progress.Remaining)
	assert.Equal(t, verdict.InProgress, d.State)
	assert.Len(t, d.Transactions, 3)
}

func TestDashboardSearch(t *testing.T) {
	srv := newTestServer(t, memory.New())
	do(t, srv, http.MethodPost, "/api/transactions", `{"description":"Lunch","amount":20,"category":"food"}`)
	do(t, srv, http.MethodPost, "/api/transactions", `{"description":"bus","amount":3,"category":"transport"}`)

	d := decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard?q=lunch", ""))
	assert.Len(t, d.Transactions, 1)
	assert.Equal(t, core.Units(23), d.Totals.Expense, "totals ignore the search")

	list := decode[struct {
		Transactions []core.Transaction `json:"transactions"`
		Count        int                `json:"count"`
	}](t, do(t, srv, http.MethodGet, "/api/transactions?q=BUS", ""))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "bus", list.Transactions[0].Description)
}

func TestCreateTransaction_Errors(t *testing.T) {
	srv := newTestServer(t, memory.New())

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"empty body", "", http.StatusBadRequest, ""},
		{"not json", "description=x", http.StatusBadRequest, ""},
		{"missing description", `{"amount":5}`, http.StatusUnprocessableEntity, "description"},
		{"bad amount", `{"description":"x","amount":"abc"}`, http.StatusUnprocessableEntity, "amount"},
		{"zero amount", `{"description":"x","amount":0}`, http.StatusUnprocessableEntity, "amount"},
		{"negative magnitude", `{"description":"x","amount":-5}`, http.StatusUnprocessableEntity, "amount"},
		{"unknown type", `{"description":"x","amount":5,"type":"sideways"}`, http.StatusUnprocessableEntity, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.field != "" {
				assert.Equal(t, tt.field, decode[map[string]string](t, rr)["field"])
			}
		})
	}
	assert.Empty(t, decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", "")).Transactions)
}

func TestCreateTransaction_PersistenceWarning(t *testing.T) {
	srv := newTestServer(t, brokenStore{memory.New()})

	rr := do(t, srv, http.MethodPost, "/api/transactions", `{"description":"lunch","amount":20,"category":"food"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	res := decode[createdResponse](t, rr)
	assert.Equal(t, persistenceWarning, res.Warning)
	assert.Equal(t, core.Units(-20), res.Transaction.Amount)
}

func TestDeleteTransaction(t *testing.T) {
	srv := newTestServer(t, memory.New())
	created := decode[createdResponse](t, do(t, srv, http.MethodPost, "/api/transactions",
		`{"description":"lunch","amount":20,"category":"food"}`))

	rr := do(t, srv, http.MethodDelete, "/api/transactions/"+strconv.FormatInt(created.Transaction.ID, 10), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", "")).Transactions)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/transactions/12345", "").Code,
		"unknown ids are a no-op")
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodDelete, "/api/transactions/abc", "").Code)
}

func TestVoice(t *testing.T) {
	srv := newTestServer(t, memory.New())

	rr := do(t, srv, http.MethodPost, "/api/voice", `{"transcript":"received 500 salary bonus","submit":true}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[struct {
		Draft       map[string]any    `json:"draft"`
		Transaction *core.Transaction `json:"transaction"`
	}](t, rr)
	assert.Equal(t, "Salary", res.Draft["category"])
	assert.Equal(t, "income", res.Draft["type"])
	require.NotNil(t, res.Transaction)
	assert.Equal(t, core.Units(500), res.Transaction.Amount)

	rr = do(t, srv, http.MethodPost, "/api/voice", `{"transcript":"coffee 4 food"}`)
	assert.Equal(t, http.StatusOK, rr.Code, "draft only without submit")

	rr = do(t, srv, http.MethodPost, "/api/voice", `{"transcript":"bought coffee","submit":true}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	warn := decode[map[string]any](t, rr)
	assert.NotEmpty(t, warn["warning"])
	assert.NotNil(t, warn["draft"])

	assert.Len(t, decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", "")).Transactions, 1)
}

func TestSettings(t *testing.T) {
	srv := newTestServer(t, memory.New())

	type settingsResponse struct {
		Settings core.Settings `json:"settings"`
	}

	rr := do(t, srv, http.MethodPut, "/api/settings/limit", `{"limit":"250.5"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.Money{Cents: 25050}, decode[settingsResponse](t, rr).Settings.MonthlyLimit)

	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodPut, "/api/settings/limit", `{"limit":-1}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodPut, "/api/settings/currency", `{"currency":"  "}`).Code)

	rr = do(t, srv, http.MethodPut, "/api/settings/currency", `{"currency":"€"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, srv, http.MethodPut, "/api/settings/theme", `{"theme":"dark"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	got := decode[settingsResponse](t, do(t, srv, http.MethodGet, "/api/settings", "")).Settings
	assert.Equal(t, core.Settings{MonthlyLimit: core.Money{Cents: 25050}, Currency: "€", Theme: core.ThemeDark}, got)

	rr = do(t, srv, http.MethodPut, "/api/settings/limit", `{"limit":null}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[settingsResponse](t, rr).Settings.LimitSet())
}

func TestMonthEndFlow(t *testing.T) {
	srv := newTestServer(t, memory.New())
	do(t, srv, http.MethodPost, "/api/transactions", `{"description":"lunch","amount":60,"category":"food"}`)

	rr := do(t, srv, http.MethodPost, "/api/month/evaluate", "")
	assert.Equal(t, http.StatusConflict, rr.Code, "no limit set")
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/month/acknowledge", `{"confirmed":true}`).Code)

	do(t, srv, http.MethodPut, "/api/settings/limit", `{"limit":100}`)
	rr = do(t, srv, http.MethodPost, "/api/month/evaluate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	v := decode[struct {
		Verdict verdict.Verdict `json:"verdict"`
	}](t, rr).Verdict
	assert.Equal(t, verdict.Win, v.Outcome)
	assert.Equal(t, "Win!", v.Title)

	d := decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	assert.Equal(t, verdict.ClosedWin, d.State)
	require.NotNil(t, d.Verdict)

	rr = do(t, srv, http.MethodPost, "/api/month/acknowledge", `{"confirmed":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", "")).Transactions, 1)

	rr = do(t, srv, http.MethodPost, "/api/month/acknowledge", `{"confirmed":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(verdict.InProgress), decode[map[string]any](t, rr)["state"])

	d = decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", ""))
	assert.Empty(t, d.Transactions)
	assert.Nil(t, d.Verdict)
	assert.Equal(t, core.Units(100), d.Settings.MonthlyLimit, "settings survive the reset")
}

func TestResetMonth(t *testing.T) {
	srv := newTestServer(t, memory.New())
	do(t, srv, http.MethodPost, "/api/transactions", `{"description":"lunch","amount":60,"category":"food"}`)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/month/reset", "").Code)
	assert.Empty(t, decode[services.Dashboard](t, do(t, srv, http.MethodGet, "/api/dashboard", "")).Transactions)
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t, memory.New())
	do(t, srv, http.MethodPost, "/api/transactions", `{"description":"lunch","amount":20.5,"category":"food"}`)

	rr := do(t, srv, http.MethodGet, "/api/export.csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="budget_data.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Date,Category,Description,Amount", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], ",10/5/2025,food,lunch,-20.5"), lines[1])
}

func TestExportSheets(t *testing.T) {
	srv := newTestServer(t, memory.New())
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/export/sheets", "").Code,
		"route is absent without an exporter")

	exp := &fakeExporter{}
	srv = newTestServer(t, memory.New(), WithSheetExporter(exp))
	do(t, srv, http.MethodPost, "/api/transactions", `{"description":"lunch","amount":20,"category":"food"}`)

	rr := do(t, srv, http.MethodPost, "/api/export/sheets", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Transactions!A1:E3", decode[map[string]string](t, rr)["updated_range"])
	assert.Len(t, exp.got, 1)

	exp.err = errors.New("permission denied")
	assert.Equal(t, http.StatusBadGateway, do(t, srv, http.MethodPost, "/api/export/sheets", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, memory.New())
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodGet, "/api/month/evaluate", "").Code)
}

func TestRateLimitOnMutations(t *testing.T) {
	srv := newTestServer(t, memory.New(), WithRateLimit(2))

	body := `{"description":"x","amount":1,"category":"food"}`
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/transactions", body).Code)
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/transactions", body).Code)

	rr := do(t, srv, http.MethodPost, "/api/transactions", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/dashboard", "").Code, "reads are not limited")
}

func TestBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, memory.New())
	huge := `{"description":"` + string(bytes.Repeat([]byte("a"), maxBodyBytes+1)) + `","amount":1}`
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/transactions", huge).Code)
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "lunch\twith\nfriends", sanitizeInput("  lunch\twith\nfriends\x00\x07 "))
}
