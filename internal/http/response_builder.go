// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing HTMX responses
// and the JSON helpers shared by the API handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/repository"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
// It encapsulates the construction of HX-Trigger headers and response bodies.
type HTMXResponseBuilder struct {
	triggers      map[string]any
	notifications []Notification
	statusCode    int
	body          []byte
	headers       map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerLedgerChanged tells the dashboard to reload the partials of a period.
func (b *HTMXResponseBuilder) TriggerLedgerChanged(year int, month int) *HTMXResponseBuilder {
	return b.Trigger("ledger:changed", map[string]int{"year": year, "month": month})
}

// TriggerFormReset adds the form:reset trigger.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is one toast shown by the dashboard.
type Notification struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration"`
}

// TriggerNotification queues a show-notification event. Several
// notifications in one response are delivered as a list.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	b.notifications = append(b.notifications, Notification{Type: notifType, Message: message, Duration: durationMs})
	return b
}

// TriggerSuccessNotification is a convenience method for success notifications.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// TriggerErrorNotification is a convenience method for error notifications.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// TriggerEnvelopeWarnings queues one notification per signal; exceeded
// envelopes are shown as errors and stay longer on screen.
func (b *HTMXResponseBuilder) TriggerEnvelopeWarnings(signals []budget.WarningSignal) *HTMXResponseBuilder {
	for _, sig := range signals {
		if sig.Kind == budget.Exceeded {
			b.TriggerNotification(NotificationError, WarningMessage(sig), 8000)
		} else {
			b.TriggerNotification(NotificationWarning, WarningMessage(sig), 6000)
		}
	}
	return b
}

// WarningMessage is the user facing text of a threshold signal.
func WarningMessage(sig budget.WarningSignal) string {
	title := sig.Title
	if title == "" {
		title = core.UnknownEnvelope
	}
	if sig.Kind == budget.Exceeded {
		return fmt.Sprintf("%s is over budget by %s (%s of %s spent)",
			title, core.FormatAmount(sig.Overage), core.FormatAmount(sig.Spent), core.FormatAmount(sig.Budget))
	}
	return fmt.Sprintf("%s is approaching its budget (%s of %s spent)",
		title, core.FormatAmount(sig.Spent), core.FormatAmount(sig.Budget))
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	triggers := b.triggers
	switch len(b.notifications) {
	case 0:
	case 1:
		triggers["show-notification"] = b.notifications[0]
	default:
		triggers["show-notification"] = b.notifications
	}
	if len(triggers) > 0 {
		if triggerJSON, err := json.Marshal(triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates a standard error response with HTML formatting.
// The message is HTML-escaped for safety.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`)
}

// apiError is the JSON error body.
type apiError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// Headers are already sent; an encode failure means the client went away.
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP statuses: validation problems are
// 422, missing records 404, anything else 500.
func statusFor(err error) int {
	switch {
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error details from clients.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return err.Error()
	case http.StatusNotFound:
		return "not found"
	default:
		return "internal error"
	}
}

// writeAPIError logs server side failures and answers with a JSON error,
// or with an HTML fragment and an error notification for HTMX requests.
func writeAPIError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= 500 {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err, log.FieldStatusCode, status)
	}

	msg := publicMessage(status, err)
	if isHTMX(r) {
		ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	writeJSON(w, status, apiError{Error: msg, Status: status})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
