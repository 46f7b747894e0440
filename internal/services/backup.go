package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"envelopes/internal/core"
	"envelopes/internal/repository"
)

// BackupVersion is bumped when the Backup layout changes incompatibly
const BackupVersion = 1

// Backup is the portable JSON form of one user's data
type Backup struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Envelopes  []core.Envelope `json:"envelopes"`
	Expenses   []core.Expense  `json:"expenses"`
	Incomes    []core.Income   `json:"incomes"`
	Notes      []core.Note     `json:"notes"`
}

// ImportResult counts what an import stored and skipped
type ImportResult struct {
	Envelopes int `json:"envelopes"`
	Expenses  int `json:"expenses"`
	Incomes   int `json:"incomes"`
	Notes     int `json:"notes"`
	Skipped   int `json:"skipped"`
}

// BackupService exports and imports user data
type BackupService struct {
	repo    repository.Repository
	budgets *BudgetService
	now     func() time.Time
}

func NewBackupService(repo repository.Repository, budgets *BudgetService) *BackupService {
	return &BackupService{repo: repo, budgets: budgets, now: time.Now}
}

// Export collects every record of userID
func (s *BackupService) Export(ctx context.Context, userID string) (Backup, error) {
	b := Backup{Version: BackupVersion, ExportedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.Envelopes, err = s.repo.ListEnvelopes(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		b.Expenses, err = s.repo.ListExpenses(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		b.Incomes, err = s.repo.ListIncomes(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		b.Notes, err = s.repo.ListNotes(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Backup{}, fmt.Errorf("export user data: %w", err)
	}
	return b, nil
}

// WriteJSON encodes an export of userID to w
func (s *BackupService) WriteJSON(ctx context.Context, w io.Writer, userID string) error {
	b, err := s.Export(ctx, userID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Import adds the records of b to userID under fresh ids. Expenses keep
// pointing at their envelope through the id remap; references to envelopes
// absent from the backup are kept as-is. Invalid records are skipped.
func (s *BackupService) Import(ctx context.Context, userID string, b Backup) (ImportResult, error) {
	if b.Version != BackupVersion {
		return ImportResult{}, fmt.Errorf("%w: unsupported backup version %d", core.ErrInvalidField, b.Version)
	}

	var res ImportResult
	remap := make(map[string]string, len(b.Envelopes))

	for _, e := range b.Envelopes {
		oldID := e.ID
		e.ID, e.UserID = uuid.NewString(), userID
		if _, err := s.repo.CreateEnvelope(ctx, e); err != nil {
			if skip(ctx, "envelope", oldID, err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		remap[oldID] = e.ID
		res.Envelopes++
	}

	for _, e := range b.Expenses {
		oldID := e.ID
		e.ID, e.UserID = "", userID
		if newID, ok := remap[e.EnvelopeID]; ok {
			e.EnvelopeID = newID
		}
		if _, err := s.repo.CreateExpense(ctx, e); err != nil {
			if skip(ctx, "expense", oldID, err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Expenses++
	}

	for _, i := range b.Incomes {
		oldID := i.ID
		i.ID, i.UserID = "", userID
		if _, err := s.repo.CreateIncome(ctx, i); err != nil {
			if skip(ctx, "income", oldID, err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Incomes++
	}

	for _, n := range b.Notes {
		oldID := n.ID
		n.ID, n.UserID = "", userID
		if _, err := s.repo.CreateNote(ctx, n); err != nil {
			if skip(ctx, "note", oldID, err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		res.Notes++
	}

	if s.budgets != nil {
		s.budgets.Invalidate(userID)
	}
	return res, nil
}

// ReadJSON decodes a backup from r and imports it
func (s *BackupService) ReadJSON(ctx context.Context, r io.Reader, userID string) (ImportResult, error) {
	var b Backup
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return ImportResult{}, fmt.Errorf("%w: decode backup: %v", core.ErrInvalidField, err)
	}
	return s.Import(ctx, userID, b)
}

// skip reports whether err is a validation failure worth skipping
func skip(ctx context.Context, kind, id string, err error) bool {
	if !core.IsValidation(err) {
		return false
	}
	slog.WarnContext(ctx, "Skipping invalid record during import",
		"component", "backup", "kind", kind, "id", id, "error", err)
	return true
}
