package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"envelopes/internal/core"
	"envelopes/internal/repository"
)

func TestStoreExpensesScopedByUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	mine, err := s.CreateExpense(ctx, core.Expense{UserID: "u1", Amount: decimal.NewFromInt(5), Date: "2025-03-01", Location: "Cafe"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mine.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := s.CreateExpense(ctx, core.Expense{UserID: "u2", Amount: decimal.NewFromInt(7), Date: "2025-03-02"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, _ := s.ListExpenses(ctx, "u1")
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("unexpected list for u1: %+v", list)
	}

	if err := s.DeleteExpense(ctx, "u2", mine.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cross-user delete should be not found, got %v", err)
	}
	if err := s.DeleteExpense(ctx, "u1", mine.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestStoreRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.CreateExpense(ctx, core.Expense{UserID: "u1", Amount: decimal.Zero, Date: "2025-03-01"}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := s.CreateEnvelope(ctx, core.Envelope{UserID: "u1", Title: "Rent", Fixed: true}); !errors.Is(err, core.ErrMissingBudget) {
		t.Fatalf("expected ErrMissingBudget, got %v", err)
	}
}

func TestDeleteEnvelopeKeepsExpenses(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := decimal.NewFromInt(100)
	env, err := s.CreateEnvelope(ctx, core.Envelope{UserID: "u1", Title: "Food", Fixed: true, Budget: &b})
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}
	if _, err := s.CreateExpense(ctx, core.Expense{UserID: "u1", EnvelopeID: env.ID, Amount: decimal.NewFromInt(3), Date: "2025-03-01"}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if err := s.DeleteEnvelope(ctx, "u1", env.ID); err != nil {
		t.Fatalf("delete envelope: %v", err)
	}
	exps, _ := s.ListExpenses(ctx, "u1")
	envs, _ := s.ListEnvelopes(ctx, "u1")
	if len(exps) != 1 || len(envs) != 0 {
		t.Fatalf("expected dangling expense to survive, got %d expenses %d envelopes", len(exps), len(envs))
	}
	if got := core.EnvelopeTitle(envs, exps[0].EnvelopeID); got != core.UnknownEnvelope {
		t.Fatalf("title = %q, want %q", got, core.UnknownEnvelope)
	}
}

func TestUpdateEnvelope(t *testing.T) {
	ctx := context.Background()
	s := New()
	env, _ := s.CreateEnvelope(ctx, core.Envelope{UserID: "u1", Title: "Fun"})
	env.Title = "Leisure"
	if err := s.UpdateEnvelope(ctx, env); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetEnvelope(ctx, "u1", env.ID)
	if err != nil || got.Title != "Leisure" {
		t.Fatalf("unexpected envelope %+v err=%v", got, err)
	}
	env.UserID = "u2"
	if err := s.UpdateEnvelope(ctx, env); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for foreign user, got %v", err)
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, err := s.EnsureUser(ctx, core.User{ID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, _ := s.EnsureUser(ctx, core.User{ID: "u1", Name: "Other"})
	if second.Name != "Ada" || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("second ensure overwrote user: %+v", second)
	}
	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewFromFileSeeds(t *testing.T) {
	dir := t.TempDir()

	// Missing file -> empty store
	s, err := NewFromFile(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if envs, _ := s.ListEnvelopes(context.Background(), "u1"); len(envs) != 0 {
		t.Fatalf("expected empty store, got %v", envs)
	}

	path := filepath.Join(dir, "seed.yaml")
	seed := `users:
  - id: u1
    name: Ada
envelopes:
  - id: food
    user: u1
    title: Food
    fixed: true
    budget: "120.50"
  - id: misc
    user: u1
    title: Misc
expenses:
  - user: u1
    envelope: food
    amount: "12.10"
    date: 2025-03-04
    location: Market
incomes:
  - user: u1
    amount: "1500"
    date: 2025-03-01
    source: Salary
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	ctx := context.Background()
	envs, _ := s.ListEnvelopes(ctx, "u1")
	if len(envs) != 2 || envs[0].ID != "food" || envs[0].Budget == nil || !envs[0].Budget.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("unexpected envelopes: %+v", envs)
	}
	exps, _ := s.ListExpenses(ctx, "u1")
	if len(exps) != 1 || !exps[0].Amount.Equal(decimal.RequireFromString("12.10")) {
		t.Fatalf("unexpected expenses: %+v", exps)
	}
	incs, _ := s.ListIncomes(ctx, "u1")
	if len(incs) != 1 || incs[0].Source != "Salary" {
		t.Fatalf("unexpected incomes: %+v", incs)
	}
}

func TestNewFromFileRejectsBadAmount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := "expenses:\n  - user: u1\n    amount: lots\n    date: 2025-03-01\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatalf("expected error for unparsable amount")
	}
}
