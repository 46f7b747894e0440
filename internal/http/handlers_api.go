package http

import (
	"fmt"
	"html/template"
	"net/http"

	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/log"
)

// parseBody reads a JSON or form body, answering 422 itself on failure.
func parseBody(w http.ResponseWriter, r *http.Request, op string) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, op, fmt.Errorf("%w: %v", core.ErrInvalidField, err))
		return nil, false
	}
	return p, true
}

func (s *Server) handleListEnvelopes(w http.ResponseWriter, r *http.Request) {
	envs, err := s.ledger.Envelopes(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeAPIError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"envelopes": nonNil(envs)})
}

func envelopeFromBody(p *RequestBodyParser, userID string) (core.Envelope, error) {
	b, err := core.ParseBudget(p.Get("budget"))
	if err != nil {
		return core.Envelope{}, fmt.Errorf("budget: %w", err)
	}
	return core.Envelope{
		UserID: userID,
		Title:  p.Get("title"),
		Fixed:  p.GetBool("fixed"),
		Budget: b,
		Color:  p.Get("color"),
	}, nil
}

func (s *Server) handleCreateEnvelope(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r, log.OpCreate)
	if !ok {
		return
	}
	ctx := r.Context()
	env, err := envelopeFromBody(p, UserIDFromContext(ctx))
	if err == nil {
		env, err = s.ledger.CreateEnvelope(ctx, env)
	}
	if err != nil {
		writeAPIError(w, r, log.OpCreate, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Envelope created",
		log.FieldEnvelopeID, env.ID, log.FieldEnvelopeTitle, env.Title, "fixed", env.Fixed)

	if isHTMX(r) {
		now := s.now()
		NewHTMXResponse().
			Status(http.StatusCreated).
			TriggerLedgerChanged(now.Year(), int(now.Month())).
			TriggerFormReset().
			TriggerSuccessNotification("Envelope " + env.Title + " created").
			BodyHTML(`<div class="success">Envelope created: ` + template.HTMLEscapeString(env.Title) + `</div>`).
			Write(w)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (s *Server) handleUpdateEnvelope(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r, log.OpUpdate)
	if !ok {
		return
	}
	ctx := r.Context()
	env, err := envelopeFromBody(p, UserIDFromContext(ctx))
	if err == nil {
		env.ID = trimID(r)
		err = s.ledger.UpdateEnvelope(ctx, env)
	}
	if err != nil {
		writeAPIError(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleDeleteEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.ledger.DeleteEnvelope(ctx, UserIDFromContext(ctx), trimID(r)); err != nil {
		writeAPIError(w, r, log.OpDelete, err)
		return
	}
	s.writeDeleted(w, r)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exps, err := s.ledger.Expenses(ctx, UserIDFromContext(ctx))
	if err != nil {
		writeAPIError(w, r, log.OpList, err)
		return
	}
	q := r.URL.Query()
	if q.Has("year") || q.Has("month") {
		p, err := ParseMonthParams(q, s.now())
		if err != nil {
			writeAPIError(w, r, log.OpList, err)
			return
		}
		exps = expensesIn(exps, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": nonNil(exps)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r, log.OpCreate)
	if !ok {
		return
	}
	ctx := r.Context()
	userID := UserIDFromContext(ctx)

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		writeAPIError(w, r, log.OpCreate, err)
		return
	}
	date := p.Get("date")
	if date == "" {
		date = core.NewDate(s.now().Year(), int(s.now().Month()), s.now().Day()).String()
	}

	saved, sig, err := s.expenses.CreateExpense(ctx, core.Expense{
		UserID:      userID,
		EnvelopeID:  p.Get("envelopeId"),
		Amount:      amount,
		Date:        date,
		Location:    p.Get("location"),
		Description: p.Get("description"),
	})
	if err != nil {
		writeAPIError(w, r, log.OpCreate, err)
		return
	}
	s.metrics.expensesCreated.Add(1)
	log.NewStructuredLogger(log.FromContext(ctx)).
		LogExpenseCreated(ctx, userID, saved.ID, saved.EnvelopeID, saved.Amount.StringFixed(2), saved.Date)

	var signals []budget.WarningSignal
	if sig != nil {
		// Warnings are only evaluated for the current month.
		s.markWarned(w, r, userID, currentPeriod(s.now()), *sig)
		s.logWarnings(ctx, userID, []budget.WarningSignal{*sig})
		signals = append(signals, *sig)
	}

	if isHTMX(r) {
		period := periodOrCurrent(saved.Date, s.now())
		NewHTMXResponse().
			Status(http.StatusCreated).
			TriggerLedgerChanged(period.Year, int(period.Month)).
			TriggerFormReset().
			TriggerSuccessNotification("Expense saved: " + core.FormatAmount(saved.Amount)).
			TriggerEnvelopeWarnings(signals).
			BodyHTML(`<div class="success">Expense saved: ` + template.HTMLEscapeString(core.FormatAmount(saved.Amount)) +
				` at ` + template.HTMLEscapeString(saved.Location) + `</div>`).
			Write(w)
		return
	}

	resp := map[string]any{"expense": saved}
	if sig != nil {
		resp["warning"] = sig
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.expenses.DeleteExpense(ctx, UserIDFromContext(ctx), trimID(r)); err != nil {
		writeAPIError(w, r, log.OpDelete, err)
		return
	}
	s.writeDeleted(w, r)
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	incs, err := s.ledger.Incomes(ctx, UserIDFromContext(ctx))
	if err != nil {
		writeAPIError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incomes": nonNil(incs)})
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r, log.OpCreate)
	if !ok {
		return
	}
	ctx := r.Context()
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		writeAPIError(w, r, log.OpCreate, err)
		return
	}
	date := p.Get("date")
	if date == "" {
		date = core.NewDate(s.now().Year(), int(s.now().Month()), s.now().Day()).String()
	}
	inc, err := s.ledger.CreateIncome(ctx, core.Income{
		UserID: UserIDFromContext(ctx),
		Amount: amount,
		Date:   date,
		Source: p.Get("source"),
	})
	if err != nil {
		writeAPIError(w, r, log.OpCreate, err)
		return
	}

	if isHTMX(r) {
		period := periodOrCurrent(inc.Date, s.now())
		NewHTMXResponse().
			Status(http.StatusCreated).
			TriggerLedgerChanged(period.Year, int(period.Month)).
			TriggerFormReset().
			TriggerSuccessNotification("Income saved: " + core.FormatAmount(inc.Amount)).
			Write(w)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.ledger.DeleteIncome(ctx, UserIDFromContext(ctx), trimID(r)); err != nil {
		writeAPIError(w, r, log.OpDelete, err)
		return
	}
	s.writeDeleted(w, r)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notes, err := s.ledger.Notes(ctx, UserIDFromContext(ctx))
	if err != nil {
		writeAPIError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": nonNil(notes)})
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r, log.OpCreate)
	if !ok {
		return
	}
	ctx := r.Context()
	note, err := s.ledger.CreateNote(ctx, core.Note{
		UserID: UserIDFromContext(ctx),
		Title:  p.Get("title"),
		Body:   p.Get("body"),
	})
	if err != nil {
		writeAPIError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.ledger.DeleteNote(ctx, UserIDFromContext(ctx), trimID(r)); err != nil {
		writeAPIError(w, r, log.OpDelete, err)
		return
	}
	s.writeDeleted(w, r)
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeAPIError(w, r, log.OpSummarize, err)
		return
	}
	ov, err := s.budgets.MonthSummary(ctx, UserIDFromContext(ctx), p.Year, p.Month)
	if err != nil {
		writeAPIError(w, r, log.OpSummarize, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleYearSummary(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, ov)
}

// handleWarnings lists the period's threshold signals not yet reported to
// this session.
func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeAPIError(w, r, log.OpEvaluate, err)
		return
	}
	userID := UserIDFromContext(ctx)
	signals, err := s.freshWarnings(w, r, userID, p)
	if err != nil {
		writeAPIError(w, r, log.OpEvaluate, err)
		return
	}
	s.logWarnings(ctx, userID, signals)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":     p.Year,
		"month":    int(p.Month),
		"warnings": nonNil(signals),
	})
}

func (s *Server) writeDeleted(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		now := s.now()
		NewHTMXResponse().TriggerLedgerChanged(now.Year(), int(now.Month())).Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func expensesIn(exps []core.Expense, p MonthParams) []core.Expense {
	out := make([]core.Expense, 0, len(exps))
	for _, e := range exps {
		if got, ok := periodOf(e.Date); ok && got == p {
			out = append(out, e)
		}
	}
	return out
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
