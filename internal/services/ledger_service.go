package services

import (
	"context"
	"fmt"

	"envelopes/internal/core"
	"envelopes/internal/repository"
)

// LedgerService covers envelope, income and note writes. Every write drops
// the user's cached summaries.
type LedgerService struct {
	repo    repository.Repository
	budgets *BudgetService
}

func NewLedgerService(repo repository.Repository, budgets *BudgetService) *LedgerService {
	return &LedgerService{repo: repo, budgets: budgets}
}

func (s *LedgerService) invalidate(userID string) {
	if s.budgets != nil {
		s.budgets.Invalidate(userID)
	}
}

func (s *LedgerService) Envelopes(ctx context.Context, userID string) ([]core.Envelope, error) {
	return s.repo.ListEnvelopes(ctx, userID)
}

func (s *LedgerService) CreateEnvelope(ctx context.Context, e core.Envelope) (core.Envelope, error) {
	saved, err := s.repo.CreateEnvelope(ctx, e)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("create envelope: %w", err)
	}
	s.invalidate(saved.UserID)
	return saved, nil
}

func (s *LedgerService) UpdateEnvelope(ctx context.Context, e core.Envelope) error {
	if err := s.repo.UpdateEnvelope(ctx, e); err != nil {
		return fmt.Errorf("update envelope: %w", err)
	}
	s.invalidate(e.UserID)
	return nil
}

// DeleteEnvelope removes the envelope only; its expenses stay and are
// reported under the unknown envelope label afterwards.
func (s *LedgerService) DeleteEnvelope(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteEnvelope(ctx, userID, id); err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	s.invalidate(userID)
	return nil
}

func (s *LedgerService) Expenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.repo.ListExpenses(ctx, userID)
}

func (s *LedgerService) Incomes(ctx context.Context, userID string) ([]core.Income, error) {
	return s.repo.ListIncomes(ctx, userID)
}

func (s *LedgerService) CreateIncome(ctx context.Context, i core.Income) (core.Income, error) {
	saved, err := s.repo.CreateIncome(ctx, i)
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	s.invalidate(saved.UserID)
	return saved, nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteIncome(ctx, userID, id); err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	s.invalidate(userID)
	return nil
}

func (s *LedgerService) Notes(ctx context.Context, userID string) ([]core.Note, error) {
	return s.repo.ListNotes(ctx, userID)
}

func (s *LedgerService) CreateNote(ctx context.Context, n core.Note) (core.Note, error) {
	saved, err := s.repo.CreateNote(ctx, n)
	if err != nil {
		return core.Note{}, fmt.Errorf("create note: %w", err)
	}
	return saved, nil
}

func (s *LedgerService) DeleteNote(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteNote(ctx, userID, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// EnsureUser registers userID on first sight
func (s *LedgerService) EnsureUser(ctx context.Context, userID string) (core.User, error) {
	return s.repo.EnsureUser(ctx, core.User{ID: userID})
}
