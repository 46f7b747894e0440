package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"envelopes/internal/services"
)

// SheetsConfig selects the target spreadsheet and its service account.
// CredentialsJSON wins over CredentialsFile when both are set.
type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	CredentialsJSON string
	// SheetBase is the tab name without year, "Summary" when empty.
	SheetBase string
}

// SheetsClient publishes yearly summaries into one tab per year.
type SheetsClient struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// NewSheetsClient builds a client authenticated with the configured service
// account. Extra options are appended after the credentials.
func NewSheetsClient(ctx context.Context, cfg SheetsConfig, opts ...goption.ClientOption) (*SheetsClient, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	var clientOpts []goption.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.DebugContext(ctx, "Using inline service account credentials", "component", "export")
		clientOpts = append(clientOpts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.DebugContext(ctx, "Reading service account credentials from file", "component", "export", "path", cfg.CredentialsFile)
		clientOpts = append(clientOpts, goption.WithCredentialsFile(cfg.CredentialsFile))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	clientOpts = append(clientOpts, goption.WithScopes(gsheet.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	base := strings.TrimSpace(cfg.SheetBase)
	if base == "" {
		base = summarySheet
	}
	return &SheetsClient{svc: svc, spreadsheetID: id, sheetBase: base}, nil
}

// PublishYear replaces the contents of the "<year> <base>" tab with the
// summary grid, creating the tab when missing. It returns the written range.
func (c *SheetsClient) PublishYear(ctx context.Context, summary services.YearOverview) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, summary.Year)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	quoted := quoteSheet(sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted+"!A:Z", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", sheet, err)
	}

	rows := yearRows(summary)
	rng := fmt.Sprintf("%s!A1:D%d", quoted, len(rows))
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Published yearly summary",
		"component", "export", "sheet", sheet, "updated_rows", resp.UpdatedRows)
	return rng, nil
}

func (c *SheetsClient) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created sheet", "component", "export", "sheet", title)
	return nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// Names with spaces must be quoted in A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
