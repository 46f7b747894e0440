package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: ComponentApp, Output: buf})
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).WithComponent(ComponentStorage)

	l.Info("saved", "id", "1")
	if !strings.Contains(buf.String(), "component=storage") {
		t.Fatalf("missing component in %q", buf.String())
	}

	buf.Reset()
	l.Info("override", FieldComponent, ComponentHTTP)
	if strings.Count(buf.String(), "component=") != 1 || !strings.Contains(buf.String(), "component=http") {
		t.Fatalf("explicit component should win without duplicates: %q", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected fallback logger %+v", l)
	}
}

func TestMiddlewareChainCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf)

	handler := Middleware(base)(
		ComponentMiddleware(ComponentHTTP)(
			RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					FromContext(r.Context()).Info("inside")
				}))))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") || !strings.Contains(out, "component=http") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	req := httptest.NewRequest(http.MethodGet, "/api/envelopes", nil)

	sl.LogHTTPEnd(context.Background(), req, http.StatusInternalServerError, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("5xx should log at error: %q", buf.String())
	}

	buf.Reset()
	sl.LogEnvelopeWarning(context.Background(), "u1", "env-1", "Food", "exceeded", "100", "120", "75")
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "signal=exceeded") || !strings.Contains(out, "user_id=u1") {
		t.Fatalf("unexpected warning log %q", out)
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("disk full"), ComponentStorage, OpCreate, nil)
	if !strings.Contains(buf.String(), `error="disk full"`) {
		t.Fatalf("error not logged: %q", buf.String())
	}
}
