package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"envelopes/internal/log"
	"envelopes/internal/repository/memory"
)

const testUser = "user-1"

func newTestServer(t *testing.T, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Addr:               ":0",
		RateLimitPerMinute: 1000,
		WarningSessionTTL:  time.Hour,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	logger := log.New(log.Config{Level: log.DefaultConfig().Level, Output: io.Discard})
	srv := NewServer(cfg, memory.New(), nil, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

type call struct {
	method  string
	path    string
	body    string
	form    url.Values
	htmx    bool
	noUser  bool
	cookies []*http.Cookie
}

func do(t *testing.T, srv *Server, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch {
	case c.form != nil:
		body = strings.NewReader(c.form.Encode())
	case c.body != "":
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.RemoteAddr = "192.0.2.10:1234"
	if c.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.noUser {
		req.Header.Set(UserHeader, testUser)
	}
	if c.htmx {
		req.Header.Set("HX-Request", "true")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func createEnvelope(t *testing.T, srv *Server, body string) string {
	t.Helper()
	rr := do(t, srv, call{method: http.MethodPost, path: "/api/envelopes", body: body})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create envelope status=%d body=%s", rr.Code, rr.Body.String())
	}
	env := decode[map[string]any](t, rr)
	id, _ := env["id"].(string)
	if id == "" {
		t.Fatalf("envelope without id: %v", env)
	}
	return id
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, call{method: http.MethodGet, path: path, noUser: true})
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr := do(t, srv, call{method: http.MethodGet, path: "/metrics", noUser: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	for _, name := range []string{"http_requests_total", "expenses_created_total", "envelope_warnings_total"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Errorf("metrics missing %s:\n%s", name, rr.Body.String())
		}
	}
}

func TestRequestsWithoutUserAreRejected(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/", "/api/envelopes", "/api/summary/month"} {
		rr := do(t, srv, call{method: http.MethodGet, path: path, noUser: true})
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s status=%d, want 401", path, rr.Code)
		}
	}
}

func TestIndexRendersDashboard(t *testing.T) {
	srv := newTestServer(t)
	createEnvelope(t, srv, `{"title":"Groceries","fixed":true,"budget":"300"}`)

	rr := do(t, srv, call{method: http.MethodGet, path: "/"})
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"<h1>Envelopes</h1>", "Groceries", "$300.00 / month", "/ui/month-summary"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id not echoed")
	}
}

func TestEnvelopeCRUD(t *testing.T) {
	srv := newTestServer(t)
	id := createEnvelope(t, srv, `{"title":"Fun","fixed":false,"color":"#aabbcc"}`)

	rr := do(t, srv, call{method: http.MethodPut, path: "/api/envelopes/" + id, body: `{"title":"Leisure","fixed":true,"budget":"80"}`})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, call{method: http.MethodGet, path: "/api/envelopes"})
	list := decode[struct {
		Envelopes []struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			Fixed  bool   `json:"fixed"`
			Budget string `json:"budget"`
		} `json:"envelopes"`
	}](t, rr)
	if len(list.Envelopes) != 1 || list.Envelopes[0].Title != "Leisure" || !list.Envelopes[0].Fixed || list.Envelopes[0].Budget != "80" {
		t.Fatalf("unexpected envelopes %+v", list.Envelopes)
	}

	rr = do(t, srv, call{method: http.MethodDelete, path: "/api/envelopes/" + id})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = do(t, srv, call{method: http.MethodDelete, path: "/api/envelopes/" + id})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", rr.Code)
	}
}

func TestValidationErrorsMapTo422(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name string
		c    call
	}{
		{"fixed envelope without budget", call{method: http.MethodPost, path: "/api/envelopes", body: `{"title":"Rent","fixed":true}`}},
		{"empty envelope title", call{method: http.MethodPost, path: "/api/envelopes", body: `{"title":"  "}`}},
		{"negative budget", call{method: http.MethodPost, path: "/api/envelopes", body: `{"title":"X","budget":"-5"}`}},
		{"malformed json", call{method: http.MethodPost, path: "/api/envelopes", body: `{"title":`}},
		{"bad amount", call{method: http.MethodPost, path: "/api/expenses", body: `{"amount":"abc","location":"Shop"}`}},
		{"bad date", call{method: http.MethodPost, path: "/api/expenses", body: `{"amount":"5","date":"03/01/2025"}`}},
		{"bad month", call{method: http.MethodGet, path: "/api/summary/month?month=13"}},
		{"bad year", call{method: http.MethodGet, path: "/api/summary/year?year=abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.c)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d body=%s, want 422", rr.Code, rr.Body.String())
			}
			if e := decode[apiError](t, rr); e.Status != http.StatusUnprocessableEntity || e.Error == "" {
				t.Fatalf("unexpected error body %+v", e)
			}
		})
	}
}

func TestUpdateUnknownEnvelopeIs404(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, call{method: http.MethodPut, path: "/api/envelopes/missing", body: `{"title":"X"}`})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestCreateExpenseReturnsThresholdWarning(t *testing.T) {
	srv := newTestServer(t)
	id := createEnvelope(t, srv, `{"title":"Food","fixed":true,"budget":"100"}`)

	rr := do(t, srv, call{method: http.MethodPost, path: "/api/expenses",
		body: `{"amount":"50","date":"` + today() + `","envelopeId":"` + id + `","location":"Market"}`})
	if rr.Code != http.StatusCreated {
		t.Fatalf("first expense status=%d body=%s", rr.Code, rr.Body.String())
	}
	if _, ok := decode[map[string]any](t, rr)["warning"]; ok {
		t.Fatal("50 of 100 should not warn")
	}

	rr = do(t, srv, call{method: http.MethodPost, path: "/api/expenses",
		body: `{"amount":"30","date":"` + today() + `","envelopeId":"` + id + `","location":"Market"}`})
	got := decode[struct {
		Warning *struct {
			Kind  string `json:"kind"`
			Title string `json:"title"`
		} `json:"warning"`
	}](t, rr)
	if got.Warning == nil || got.Warning.Kind != "approaching" || got.Warning.Title != "Food" {
		t.Fatalf("expected approaching warning, got %s", rr.Body.String())
	}

	rr = do(t, srv, call{method: http.MethodPost, path: "/api/expenses", htmx: true,
		form: url.Values{"amount": {"30"}, "date": {today()}, "envelopeId": {id}, "location": {"Deli"}}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("htmx expense status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	var triggers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trigger), &triggers); err != nil {
		t.Fatalf("HX-Trigger not JSON: %q", trigger)
	}
	for _, name := range []string{"ledger:changed", "form:reset", "show-notification"} {
		if _, ok := triggers[name]; !ok {
			t.Errorf("HX-Trigger missing %s: %s", name, trigger)
		}
	}
	if !strings.Contains(string(triggers["show-notification"]), "over budget by $10.00") {
		t.Errorf("exceeded notification missing: %s", triggers["show-notification"])
	}
	if !strings.Contains(rr.Body.String(), "Expense saved") {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
}

func TestWarningsAreDeduplicatedPerSession(t *testing.T) {
	srv := newTestServer(t)
	id := createEnvelope(t, srv, `{"title":"Fuel","fixed":true,"budget":"100"}`)
	do(t, srv, call{method: http.MethodPost, path: "/api/expenses",
		body: `{"amount":"120","date":"` + today() + `","envelopeId":"` + id + `"}`})

	first := do(t, srv, call{method: http.MethodGet, path: "/api/warnings"})
	var session *http.Cookie
	for _, c := range first.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil {
		t.Fatal("no session cookie issued")
	}
	type warnings struct {
		Warnings []struct {
			Kind string `json:"kind"`
		} `json:"warnings"`
	}
	if w := decode[warnings](t, first); len(w.Warnings) != 1 || w.Warnings[0].Kind != "exceeded" {
		t.Fatalf("first load: %s", first.Body.String())
	}

	second := do(t, srv, call{method: http.MethodGet, path: "/api/warnings", cookies: []*http.Cookie{session}})
	if w := decode[warnings](t, second); len(w.Warnings) != 0 {
		t.Fatalf("same session warned twice: %s", second.Body.String())
	}

	other := do(t, srv, call{method: http.MethodGet, path: "/api/warnings"})
	if w := decode[warnings](t, other); len(w.Warnings) != 1 {
		t.Fatalf("new session should be warned: %s", other.Body.String())
	}
}

func TestMonthSummaryPartialCarriesWarnings(t *testing.T) {
	srv := newTestServer(t)
	id := createEnvelope(t, srv, `{"title":"Fuel","fixed":true,"budget":"40"}`)
	do(t, srv, call{method: http.MethodPost, path: "/api/expenses",
		body: `{"amount":"30","date":"` + today() + `","envelopeId":"` + id + `","location":"Station"}`})

	rr := do(t, srv, call{method: http.MethodGet, path: "/ui/month-summary", htmx: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Station") || !strings.Contains(rr.Body.String(), "$30.00") {
		t.Errorf("summary body missing data: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "approaching its budget") {
		t.Errorf("expected approaching notification, got %q", rr.Header().Get("HX-Trigger"))
	}
}

func TestSummariesJSON(t *testing.T) {
	srv := newTestServer(t)
	id := createEnvelope(t, srv, `{"title":"Food"}`)
	do(t, srv, call{method: http.MethodPost, path: "/api/incomes", body: `{"amount":"1500","date":"2025-03-01","source":"Salary"}`})
	do(t, srv, call{method: http.MethodPost, path: "/api/expenses", body: `{"amount":"12.50","date":"2025-03-04","envelopeId":"` + id + `","location":"Bakery"}`})
	do(t, srv, call{method: http.MethodPost, path: "/api/expenses", body: `{"amount":"10","date":"2025-02-20","envelopeId":"` + id + `","location":"Bakery"}`})

	rr := do(t, srv, call{method: http.MethodGet, path: "/api/summary/month?year=2025&month=3"})
	month := decode[struct {
		IncomeTotals          string  `json:"incomeTotals"`
		ExpenseTotals         string  `json:"expenseTotals"`
		SpendingComparison    float64 `json:"spendingComparison"`
		HighestEnvelopeTitle  string  `json:"highestEnvelopeTitle"`
		HighestSpendingPlace  string  `json:"highestSpendingLocation"`
	}](t, rr)
	if month.IncomeTotals != "1500" || month.ExpenseTotals != "12.5" || month.SpendingComparison != 25 {
		t.Fatalf("unexpected month summary %s", rr.Body.String())
	}
	if month.HighestEnvelopeTitle != "Food" || month.HighestSpendingPlace != "Bakery" {
		t.Fatalf("unexpected highlights %s", rr.Body.String())
	}

	rr = do(t, srv, call{method: http.MethodGet, path: "/api/summary/year?year=2025"})
	year := decode[struct {
		ExpenseTotals   string    `json:"expenseTotals"`
		MonthlyExpenses [12]string `json:"monthlyExpenses"`
	}](t, rr)
	if year.ExpenseTotals != "22.5" || year.MonthlyExpenses[1] != "10" || year.MonthlyExpenses[2] != "12.5" {
		t.Fatalf("unexpected year summary %s", rr.Body.String())
	}

	rr = do(t, srv, call{method: http.MethodGet, path: "/api/expenses?year=2025&month=2"})
	list := decode[struct {
		Expenses []struct {
			Date string `json:"date"`
		} `json:"expenses"`
	}](t, rr)
	if len(list.Expenses) != 1 || list.Expenses[0].Date != "2025-02-20" {
		t.Fatalf("month filter: %s", rr.Body.String())
	}
}

func TestUserDataIsIsolated(t *testing.T) {
	srv := newTestServer(t)
	createEnvelope(t, srv, `{"title":"Mine"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/envelopes", nil)
	req.Header.Set(UserHeader, "someone-else")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if !strings.Contains(rr.Body.String(), `"envelopes":[]`) {
		t.Fatalf("other user sees data: %s", rr.Body.String())
	}
}

func TestNotesAndIncomes(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, call{method: http.MethodPost, path: "/api/notes", body: `{"title":"Reminder","body":"Pay rent"}`})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create note status=%d body=%s", rr.Code, rr.Body.String())
	}
	noteID := decode[map[string]any](t, rr)["id"].(string)

	rr = do(t, srv, call{method: http.MethodGet, path: "/api/notes"})
	if !strings.Contains(rr.Body.String(), "Pay rent") {
		t.Fatalf("note not listed: %s", rr.Body.String())
	}
	if rr := do(t, srv, call{method: http.MethodDelete, path: "/api/notes/" + noteID}); rr.Code != http.StatusNoContent {
		t.Fatalf("delete note status=%d", rr.Code)
	}

	rr = do(t, srv, call{method: http.MethodPost, path: "/api/incomes", htmx: true, form: url.Values{"amount": {"200"}, "source": {"Gift"}}})
	if rr.Code != http.StatusCreated || !strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Fatalf("htmx income status=%d trigger=%q", rr.Code, rr.Header().Get("HX-Trigger"))
	}
	rr = do(t, srv, call{method: http.MethodGet, path: "/api/incomes"})
	if !strings.Contains(rr.Body.String(), today()) {
		t.Fatalf("income should default to today: %s", rr.Body.String())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestServer(t)
	id := createEnvelope(t, src, `{"title":"Food","fixed":true,"budget":"250"}`)
	do(t, src, call{method: http.MethodPost, path: "/api/expenses", body: `{"amount":"9.99","date":"2025-03-04","envelopeId":"` + id + `","location":"Cafe"}`})

	rr := do(t, src, call{method: http.MethodGet, path: "/api/export"})
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	backup := rr.Body.String()

	dst := newTestServer(t)
	rr = do(t, dst, call{method: http.MethodPost, path: "/api/import", body: backup})
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decode[map[string]int](t, rr)
	if res["envelopes"] != 1 || res["expenses"] != 1 {
		t.Fatalf("unexpected import result %v", res)
	}

	rr = do(t, dst, call{method: http.MethodPost, path: "/api/import", body: `{"version":99}`})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unsupported version status=%d, want 422", rr.Code)
	}

	rr = do(t, dst, call{method: http.MethodGet, path: "/api/summary/month?year=2025&month=3"})
	if !strings.Contains(rr.Body.String(), `"expenseTotals":"9.99"`) {
		t.Fatalf("imported data missing from summary: %s", rr.Body.String())
	}
}

func TestExportWorkbook(t *testing.T) {
	srv := newTestServer(t)
	createEnvelope(t, srv, `{"title":"Food","fixed":true,"budget":"100"}`)

	rr := do(t, srv, call{method: http.MethodGet, path: "/export/year.xlsx?year=2025"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != xlsxMediaType {
		t.Fatalf("content type %q", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Fatal("workbook is not a zip archive")
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rr := do(t, srv, call{method: http.MethodPost, path: "/api/notes", body: `{"title":"n"}`})
		if rr.Code != http.StatusCreated {
			t.Fatalf("write %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, call{method: http.MethodPost, path: "/api/notes", body: `{"title":"n"}`})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}

	// Reads are never limited.
	if rr := do(t, srv, call{method: http.MethodGet, path: "/api/notes"}); rr.Code != http.StatusOK {
		t.Fatalf("read status=%d", rr.Code)
	}
}

func TestPathTraversalIsBlocked(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, call{method: http.MethodGet, path: "/static/../../etc/passwd"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}
