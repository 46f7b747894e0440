package http

import (
	"bytes"
	"fmt"
	"net/http"

	"envelopes/internal/export"
	"envelopes/internal/log"
)

const (
	maxImportSize = 10 << 20
	xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var buf bytes.Buffer
	if err := s.backups.WriteJSON(ctx, &buf, UserIDFromContext(ctx)); err != nil {
		writeAPIError(w, r, log.OpExport, err)
		return
	}
	filename := fmt.Sprintf("envelopes-backup-%s.json", s.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(buf.Bytes())
}

// handleImportJSON adds a backup's records to the caller's data under fresh
// ids.
func (s *Server) handleImportJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)
	body := http.MaxBytesReader(w, r.Body, maxImportSize)

	res, err := s.backups.ReadJSON(ctx, body, userID)
	if err != nil {
		writeAPIError(w, r, log.OpImport, err)
		return
	}
	s.metrics.imports.Add(1)
	log.FromContext(ctx).InfoContext(ctx, "Backup imported",
		log.FieldOperation, log.OpImport,
		"envelopes", res.Envelopes,
		"expenses", res.Expenses,
		"incomes", res.Incomes,
		"notes", res.Notes,
		"skipped", res.Skipped)

	if isHTMX(r) {
		now := s.now()
		NewHTMXResponse().
			TriggerLedgerChanged(now.Year(), int(now.Month())).
			TriggerSuccessNotification(fmt.Sprintf("Imported %d expenses and %d envelopes",
				res.Expenses, res.Envelopes)).
			Write(w)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)
	year, err := ParseYearParam(r.URL.Query(), s.now())
	if err != nil {
		writeAPIError(w, r, log.OpExport, err)
		return
	}
	ov, err := s.budgets.YearSummary(ctx, userID, year)
	if err != nil {
		writeAPIError(w, r, log.OpExport, err)
		return
	}
	envs, err := s.ledger.Envelopes(ctx, userID)
	if err != nil {
		writeAPIError(w, r, log.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteYearWorkbook(&buf, ov, envs); err != nil {
		writeAPIError(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", xlsxMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="envelopes-%d.xlsx"`, year))
	_, _ = w.Write(buf.Bytes())
}
