package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"envelopes/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		query   url.Values
		want    MonthParams
		wantErr bool
	}{
		{"defaults to now", url.Values{}, MonthParams{2025, time.March}, false},
		{"explicit period", url.Values{"year": {"2024"}, "month": {"12"}}, MonthParams{2024, time.December}, false},
		{"month only", url.Values{"month": {"1"}}, MonthParams{2025, time.January}, false},
		{"blank values use defaults", url.Values{"year": {" "}, "month": {""}}, MonthParams{2025, time.March}, false},
		{"month zero", url.Values{"month": {"0"}}, MonthParams{}, true},
		{"month thirteen", url.Values{"month": {"13"}}, MonthParams{}, true},
		{"month not a number", url.Values{"month": {"march"}}, MonthParams{}, true},
		{"year too small", url.Values{"year": {"99"}}, MonthParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, now)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidField) {
					t.Fatalf("expected ErrInvalidField, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMonthParamsKey(t *testing.T) {
	if got := (MonthParams{Year: 2025, Month: time.March}).Key(); got != "2025-03" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestPeriodOrCurrent(t *testing.T) {
	now := time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		date string
		want MonthParams
	}{
		{"2024-11-05", MonthParams{2024, time.November}},
		{"", MonthParams{2025, time.March}},
		{"05/11/2024", MonthParams{2025, time.March}},
		{"2024-13-01", MonthParams{2025, time.March}},
	}
	for _, tt := range tests {
		if got := periodOrCurrent(tt.date, now); got != tt.want {
			t.Errorf("periodOrCurrent(%q) = %+v, want %+v", tt.date, got, tt.want)
		}
	}
}

func TestRequestBodyParser(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"  Food\u0007 ","fixed":true,"budget":120.5}`))
		req.Header.Set("Content-Type", "application/json")
		p := NewRequestBodyParser(req)
		if err := p.Parse(); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if !p.IsJSON() {
			t.Fatal("expected JSON")
		}
		if got := p.Get("title"); got != "Food" {
			t.Errorf("title = %q", got)
		}
		if !p.GetBool("fixed") {
			t.Error("fixed should be true")
		}
		if got := p.Get("budget"); got != "120.5" {
			t.Errorf("budget = %q", got)
		}
		if p.Has("color") {
			t.Error("color was not sent")
		}
	})

	t.Run("json detected without content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"5"}`))
		p := NewRequestBodyParser(req)
		if err := p.Parse(); err != nil || p.Get("amount") != "5" {
			t.Fatalf("parse: %v amount=%q", err, p.Get("amount"))
		}
	})

	t.Run("form body", func(t *testing.T) {
		form := url.Values{"amount": {"12,50"}, "fixed": {"on"}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		p := NewRequestBodyParser(req)
		if err := p.Parse(); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if p.IsJSON() {
			t.Fatal("form parsed as JSON")
		}
		if p.Get("amount") != "12,50" || !p.GetBool("fixed") || !p.Has("amount") {
			t.Fatalf("unexpected values amount=%q fixed=%v", p.Get("amount"), p.GetBool("fixed"))
		}
	})

	t.Run("malformed json is a validation error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
		err := NewRequestBodyParser(req).Parse()
		if !errors.Is(err, core.ErrInvalidField) {
			t.Fatalf("expected ErrInvalidField, got %v", err)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))
		if err := NewRequestBodyParser(req).Parse(); err == nil {
			t.Fatal("expected error for oversized body")
		}
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		p := NewRequestBodyParser(req)
		if err := p.Parse(); err != nil || p.Get("anything") != "" {
			t.Fatalf("parse: %v", err)
		}
	})
}

func TestSanitizeInput(t *testing.T) {
	tests := map[string]string{
		"  plain  ":      "plain",
		"tab\tkept":      "tab\tkept",
		"bell\a removed": "bell removed",
		"line\nkept":     "line\nkept",
	}
	for in, want := range tests {
		if got := sanitizeInput(in); got != want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", in, got, want)
		}
	}
}
