package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/log"
)

const (
	// UserHeader carries the user id set by the authenticating proxy.
	UserHeader    = "X-User-ID"
	sessionCookie = "envelopes_session"
	maxUserIDLen  = 128
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext returns the id resolved by requireUser.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireUser resolves the caller from UserHeader, registers unknown users
// and rejects anonymous requests with 401.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := sanitizeInput(r.Header.Get(UserHeader))
		if userID == "" || len(userID) > maxUserIDLen {
			msg := "missing or invalid " + UserHeader + " header"
			if isHTMX(r) {
				ErrorResponse(http.StatusUnauthorized, msg).Write(w)
			} else {
				writeJSON(w, http.StatusUnauthorized, apiError{Error: msg, Status: http.StatusUnauthorized})
			}
			return
		}

		ctx := r.Context()
		if _, known := s.knownUsers.Get(userID); !known {
			if _, err := s.ledger.EnsureUser(ctx, userID); err != nil {
				writeAPIError(w, r, log.OpCreate, fmt.Errorf("register user: %w", err))
				return
			}
			s.knownUsers.Set(userID, struct{}{})
		}

		logger := log.FromContext(ctx).With(log.FieldUserID, userID)
		ctx = log.WithLogger(context.WithValue(ctx, userIDKey, userID), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionID returns the caller's session cookie, issuing one when missing.
// Sessions only scope warning deduplication; they carry no identity.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func warnedKey(session, userID string, p MonthParams) string {
	return session + "|" + userID + "|" + p.Key()
}

// freshWarnings returns the threshold signals of the period that this
// session has not been shown yet and records them as shown.
func (s *Server) freshWarnings(w http.ResponseWriter, r *http.Request, userID string, p MonthParams) ([]budget.WarningSignal, error) {
	key := warnedKey(s.sessionID(w, r), userID, p)
	current, _ := s.warned.Get(key)

	signals, _, err := s.budgets.Warnings(r.Context(), userID, p.Year, p.Month, current)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, nil
	}

	// Concurrent requests of the same session may race; only the first
	// one to record an envelope reports it.
	var fresh []budget.WarningSignal
	s.warned.Update(key, func(cur budget.WarnedSet, _ bool) budget.WarnedSet {
		ids := make([]string, 0, len(signals))
		for _, sig := range signals {
			if !cur.Has(sig.EnvelopeID) {
				fresh = append(fresh, sig)
				ids = append(ids, sig.EnvelopeID)
			}
		}
		return cur.With(ids...)
	})
	return fresh, nil
}

// markWarned records a signal reported outside freshWarnings, such as the
// one returned when an expense is created.
func (s *Server) markWarned(w http.ResponseWriter, r *http.Request, userID string, p MonthParams, sig budget.WarningSignal) {
	key := warnedKey(s.sessionID(w, r), userID, p)
	s.warned.Update(key, func(cur budget.WarnedSet, _ bool) budget.WarnedSet {
		return cur.With(sig.EnvelopeID)
	})
}

func (s *Server) logWarnings(ctx context.Context, userID string, signals []budget.WarningSignal) {
	for _, sig := range signals {
		s.metrics.warningsIssued.Add(1)
		log.NewStructuredLogger(log.FromContext(ctx)).LogEnvelopeWarning(ctx, userID, sig.EnvelopeID, sig.Title, string(sig.Kind),
			sig.Budget.StringFixed(2), sig.Spent.StringFixed(2), sig.Threshold.StringFixed(2))
	}
}

func currentPeriod(now time.Time) MonthParams {
	return MonthParams{Year: now.Year(), Month: now.Month()}
}

func periodOf(date string) (MonthParams, bool) {
	d, ok := core.ParseDate(date)
	if !ok {
		return MonthParams{}, false
	}
	return MonthParams{Year: d.Year(), Month: d.Month()}, true
}

// periodOrCurrent is the month of date, or the month of now when date does not parse
func periodOrCurrent(date string, now time.Time) MonthParams {
	if p, ok := periodOf(date); ok {
		return p
	}
	return currentPeriod(now)
}

func trimID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
