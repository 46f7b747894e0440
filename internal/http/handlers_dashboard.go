package http

import (
	"bytes"
	"net/http"
	"time"

	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

type indexPage struct {
	UserID    string
	Year      int
	Month     time.Month
	Today     string
	Envelopes []core.Envelope
	Notes     []core.Note
}

type monthPartial struct {
	Summary  services.MonthOverview
	Warnings []budget.WarningSignal
}

type yearRow struct {
	Month      time.Month
	Income     string
	Expenses   string
	Difference string
}

type yearPartial struct {
	Summary services.YearOverview
	Rows    []yearRow
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	envs, err := s.ledger.Envelopes(ctx, userID)
	if err != nil {
		writeAPIError(w, r, log.OpRead, err)
		return
	}
	notes, err := s.ledger.Notes(ctx, userID)
	if err != nil {
		writeAPIError(w, r, log.OpRead, err)
		return
	}

	now := s.now()
	page := indexPage{
		UserID:    userID,
		Year:      now.Year(),
		Month:     now.Month(),
		Today:     now.Format("2006-01-02"),
		Envelopes: envs,
		Notes:     notes,
	}
	body, err := s.render("index", page)
	if err != nil {
		writeAPIError(w, r, log.OpRender, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

// handleMonthSummaryPartial renders the month card and announces threshold
// crossings this session has not seen yet.
func (s *Server) handleMonthSummaryPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeAPIError(w, r, log.OpSummarize, err)
		return
	}

	ov, err := s.budgets.MonthSummary(ctx, userID, p.Year, p.Month)
	if err != nil {
		writeAPIError(w, r, log.OpSummarize, err)
		return
	}

	var signals []budget.WarningSignal
	if p == currentPeriod(s.now()) {
		signals, err = s.freshWarnings(w, r, userID, p)
		if err != nil {
			// The summary is still useful without warnings.
			log.FromContext(ctx).ErrorContext(ctx, "Failed to evaluate envelope warnings",
				log.FieldError, err, log.FieldOperation, log.OpEvaluate)
			signals = nil
		}
		s.logWarnings(ctx, userID, signals)
	}

	body, err := s.render("month_summary", monthPartial{Summary: ov, Warnings: signals})
	if err != nil {
		writeAPIError(w, r, log.OpRender, err)
		return
	}
	NewHTMXResponse().
		TriggerEnvelopeWarnings(signals).
		BodyHTML(string(body)).
		Write(w)
}

func (s *Server) handleYearSummaryPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	year, err := ParseYearParam(r.URL.Query(), s.now())
	if err != nil {
		writeAPIError(w, r, log.OpSummarize, err)
		return
	}
	ov, err := s.budgets.YearSummary(ctx, UserIDFromContext(ctx), year)
	if err != nil {
		writeAPIError(w, r, log.OpSummarize, err)
		return
	}

	rows := make([]yearRow, 12)
	for i := range rows {
		in, out := ov.MonthlyIncome[i], ov.MonthlyExpenses[i]
		rows[i] = yearRow{
			Month:      time.Month(i + 1),
			Income:     core.FormatAmount(in),
			Expenses:   core.FormatAmount(out),
			Difference: core.FormatAmount(in.Sub(out)),
		}
	}
	body, err := s.render("year_summary", yearPartial{Summary: ov, Rows: rows})
	if err != nil {
		writeAPIError(w, r, log.OpRender, err)
		return
	}
	NewHTMXResponse().BodyHTML(string(body)).Write(w)
}

func (s *Server) render(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
