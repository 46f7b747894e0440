package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/repository"
)

func triggersOf(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &m); err != nil {
		t.Fatalf("HX-Trigger %q: %v", w.Header().Get("HX-Trigger"), err)
	}
	return m
}

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Status(http.StatusCreated).BodyHTML("<p>ok</p>").Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("no triggers were queued")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().
		TriggerLedgerChanged(2025, 3).
		TriggerFormReset().
		TriggerSuccessNotification("Saved").
		Write(w)

	m := triggersOf(t, w)
	var period map[string]int
	if err := json.Unmarshal(m["ledger:changed"], &period); err != nil || period["year"] != 2025 || period["month"] != 3 {
		t.Fatalf("ledger:changed = %s", m["ledger:changed"])
	}
	if _, ok := m["form:reset"]; !ok {
		t.Error("form:reset missing")
	}
	var n Notification
	if err := json.Unmarshal(m["show-notification"], &n); err != nil {
		t.Fatalf("single notification should be an object: %s", m["show-notification"])
	}
	if n.Type != NotificationSuccess || n.Message != "Saved" || n.Duration != 3000 {
		t.Errorf("notification = %+v", n)
	}
}

func TestHTMXResponseBuilder_EnvelopeWarnings(t *testing.T) {
	signals := []budget.WarningSignal{
		{EnvelopeID: "a", Title: "Food", Kind: budget.Approaching,
			Budget: decimal.NewFromInt(100), Spent: decimal.NewFromInt(80), Threshold: decimal.NewFromInt(75)},
		{EnvelopeID: "b", Title: "Fuel", Kind: budget.Exceeded,
			Budget: decimal.NewFromInt(50), Spent: decimal.NewFromInt(60), Overage: decimal.NewFromInt(10)},
	}
	w := httptest.NewRecorder()
	NewHTMXResponse().TriggerEnvelopeWarnings(signals).Write(w)

	var list []Notification
	if err := json.Unmarshal(triggersOf(t, w)["show-notification"], &list); err != nil {
		t.Fatalf("several notifications should be a list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d notifications", len(list))
	}
	if list[0].Type != NotificationWarning || list[0].Duration != 6000 {
		t.Errorf("approaching = %+v", list[0])
	}
	if list[1].Type != NotificationError || list[1].Duration != 8000 {
		t.Errorf("exceeded = %+v", list[1])
	}
	if want := "Fuel is over budget by $10.00 ($60.00 of $50.00 spent)"; list[1].Message != want {
		t.Errorf("message = %q, want %q", list[1].Message, want)
	}
}

func TestWarningMessageFallsBackToUnknownEnvelope(t *testing.T) {
	msg := WarningMessage(budget.WarningSignal{Kind: budget.Approaching, Budget: decimal.NewFromInt(10), Spent: decimal.NewFromInt(8)})
	if !strings.HasPrefix(msg, core.UnknownEnvelope+" is approaching") {
		t.Fatalf("message = %q", msg)
	}
}

func TestErrorResponseEscapesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusBadRequest, "<script>x</script>").Write(w)
	if strings.Contains(w.Body.String(), "<script>") {
		t.Fatalf("message not escaped: %s", w.Body.String())
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrEmptyTitle, http.StatusUnprocessableEntity},
		{fmt.Errorf("save: %w", core.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{fmt.Errorf("get: %w", repository.ErrNotFound), http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteAPIErrorHidesInternalDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/envelopes", nil)
	w := httptest.NewRecorder()
	writeAPIError(w, req, "list", errors.New("connection refused to 10.0.0.3"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.3") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}

	req.Header.Set("HX-Request", "true")
	w = httptest.NewRecorder()
	writeAPIError(w, req, "list", core.ErrEmptyTitle)
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), `class="error"`) {
		t.Fatalf("htmx error = %d %s", w.Code, w.Body.String())
	}
	if _, ok := triggersOf(t, w)["show-notification"]; !ok {
		t.Fatal("htmx error should notify")
	}
}
