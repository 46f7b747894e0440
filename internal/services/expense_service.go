package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/repository"
)

// WarningPublisher hands envelope warnings to the notification worker
type WarningPublisher interface {
	PublishEnvelopeWarning(ctx context.Context, msg *amqp.EnvelopeWarningMessage) error
}

// ExpenseService stores expenses and reports fresh budget threshold crossings
type ExpenseService struct {
	repo      repository.Repository
	budgets   *BudgetService
	publisher WarningPublisher
	now       func() time.Time
}

// NewExpenseService wires the service; publisher may be nil
func NewExpenseService(repo repository.Repository, budgets *BudgetService, publisher WarningPublisher) *ExpenseService {
	return &ExpenseService{
		repo:      repo,
		budgets:   budgets,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateExpense saves e and, when it lands in the current month of a fixed
// envelope, returns the threshold signal this expense newly triggered. A
// signal is only returned when the envelope moves into a worse state
// (nothing to approaching, or anything to exceeded).
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, *budget.WarningSignal, error) {
	saved, err := s.repo.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("save expense: %w", err)
	}
	if s.budgets != nil {
		s.budgets.Invalidate(saved.UserID)
	}

	sig, err := s.evaluateAfterWrite(ctx, saved)
	if err != nil {
		// The expense is stored; a failed evaluation only loses the warning.
		slog.ErrorContext(ctx, "Failed to evaluate envelope threshold",
			"component", "expense", "envelope_id", saved.EnvelopeID, "error", err)
		return saved, nil, nil
	}
	if sig == nil {
		return saved, nil, nil
	}

	now := s.now()
	if err := s.publishWarning(ctx, saved.UserID, *sig, now.Year(), now.Month()); err != nil {
		slog.ErrorContext(ctx, "Failed to publish envelope warning",
			"component", "expense", "envelope_id", sig.EnvelopeID, "error", err)
	}
	return saved, sig, nil
}

// DeleteExpense removes one expense of userID
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if s.budgets != nil {
		s.budgets.Invalidate(userID)
	}
	return nil
}

func (s *ExpenseService) evaluateAfterWrite(ctx context.Context, saved core.Expense) (*budget.WarningSignal, error) {
	if saved.EnvelopeID == "" {
		return nil, nil
	}
	now := s.now()
	d, ok := core.ParseDate(saved.Date)
	if !ok || d.Year() != now.Year() || d.Month() != now.Month() {
		return nil, nil
	}

	env, err := s.repo.GetEnvelope(ctx, saved.UserID, saved.EnvelopeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get envelope: %w", err)
	}
	expenses, err := s.repo.ListExpenses(ctx, saved.UserID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	period := budget.FilterPeriodExpenses(expenses, env.ID, now.Year(), now.Month())
	after := budget.EvaluateEnvelopeThreshold(env, period)
	if after == nil {
		return nil, nil
	}

	before := budget.EvaluateEnvelopeThreshold(env, withoutExpense(period, saved.ID))
	if before != nil && (before.Kind == after.Kind || before.Kind == budget.Exceeded) {
		return nil, nil
	}
	return after, nil
}

func (s *ExpenseService) publishWarning(ctx context.Context, userID string, sig budget.WarningSignal, year int, month time.Month) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No warning publisher configured, skipping envelope warning",
			"component", "expense", "envelope_id", sig.EnvelopeID)
		return nil
	}
	return s.publisher.PublishEnvelopeWarning(ctx, amqp.NewEnvelopeWarningMessage(userID, sig, year, month))
}

func withoutExpense(expenses []core.Expense, id string) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
