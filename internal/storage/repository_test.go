package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"envelopes/internal/core"
	"envelopes/internal/repository"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != 1 || v2 != 1 {
		t.Fatalf("unexpected versions %d, %d", v1, v2)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	budget := decimal.RequireFromString("120.50")
	fixed, err := repo.CreateEnvelope(ctx, core.Envelope{UserID: "u1", Title: "Food", Fixed: true, Budget: &budget, Color: "#aabbcc"})
	if err != nil {
		t.Fatalf("create fixed: %v", err)
	}
	if _, err := repo.CreateEnvelope(ctx, core.Envelope{UserID: "u1", Title: "Misc"}); err != nil {
		t.Fatalf("create informational: %v", err)
	}
	if _, err := repo.CreateEnvelope(ctx, core.Envelope{UserID: "u2", Title: "Other"}); err != nil {
		t.Fatalf("create other user: %v", err)
	}

	envs, err := repo.ListEnvelopes(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %+v", envs)
	}
	if envs[0].Title != "Food" || envs[0].Budget == nil || !envs[0].Budget.Equal(budget) || !envs[0].Fixed {
		t.Fatalf("unexpected fixed envelope %+v", envs[0])
	}
	if envs[1].Budget != nil {
		t.Fatalf("informational envelope should have no budget, got %s", envs[1].Budget)
	}

	fixed.Title = "Groceries"
	if err := repo.UpdateEnvelope(ctx, fixed); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.GetEnvelope(ctx, "u1", fixed.ID)
	if err != nil || got.Title != "Groceries" {
		t.Fatalf("get after update: %+v %v", got, err)
	}
	if _, err := repo.GetEnvelope(ctx, "u2", fixed.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found across users, got %v", err)
	}
}

func TestDeleteEnvelopeKeepsExpenses(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	env, _ := repo.CreateEnvelope(ctx, core.Envelope{UserID: "u1", Title: "Fun"})
	exp, err := repo.CreateExpense(ctx, core.Expense{UserID: "u1", EnvelopeID: env.ID, Amount: decimal.RequireFromString("12.10"), Date: "2025-03-04", Location: "Cinema"})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if err := repo.DeleteEnvelope(ctx, "u1", env.ID); err != nil {
		t.Fatalf("delete envelope: %v", err)
	}
	if err := repo.DeleteEnvelope(ctx, "u1", env.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}

	exps, err := repo.ListExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(exps) != 1 || exps[0].ID != exp.ID || exps[0].EnvelopeID != env.ID {
		t.Fatalf("expense should survive envelope deletion: %+v", exps)
	}
	if !exps[0].Amount.Equal(decimal.RequireFromString("12.10")) {
		t.Fatalf("amount lost precision: %s", exps[0].Amount)
	}
}

func TestExpensesOrderedByDateDesc(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	for _, d := range []string{"2025-01-03", "2025-03-01", "2025-02-10"} {
		if _, err := repo.CreateExpense(ctx, core.Expense{UserID: "u1", Amount: decimal.NewFromInt(1), Date: d}); err != nil {
			t.Fatalf("create %s: %v", d, err)
		}
	}
	exps, _ := repo.ListExpenses(ctx, "u1")
	if len(exps) != 3 || exps[0].Date != "2025-03-01" || exps[2].Date != "2025-01-03" {
		t.Fatalf("unexpected order: %+v", exps)
	}
}

func TestIncomesAndNotes(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	inc, err := repo.CreateIncome(ctx, core.Income{UserID: "u1", Amount: decimal.NewFromInt(1500), Date: "2025-03-01", Source: "Salary"})
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	incs, _ := repo.ListIncomes(ctx, "u1")
	if len(incs) != 1 || incs[0].Source != "Salary" {
		t.Fatalf("unexpected incomes %+v", incs)
	}
	if err := repo.DeleteIncome(ctx, "u1", inc.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}

	older := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	if _, err := repo.CreateNote(ctx, core.Note{UserID: "u1", Title: "old", CreatedAt: older}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := repo.CreateNote(ctx, core.Note{UserID: "u1", Title: "new", CreatedAt: older.Add(time.Hour)}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	notes, _ := repo.ListNotes(ctx, "u1")
	if len(notes) != 2 || notes[0].Title != "new" || !notes[1].CreatedAt.Equal(older) {
		t.Fatalf("unexpected notes %+v", notes)
	}
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first, err := repo.EnsureUser(ctx, core.User{ID: "u1", Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := repo.EnsureUser(ctx, core.User{ID: "u1", Name: "Changed"})
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second.Name != "Ada" || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("existing user overwritten: %+v", second)
	}
	if _, err := repo.EnsureUser(ctx, core.User{ID: "u2", Email: "not-an-email"}); !errors.Is(err, core.ErrInvalidField) {
		t.Fatalf("expected invalid field, got %v", err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.CreateExpense(ctx, core.Expense{UserID: "u1", Amount: decimal.NewFromInt(1), Date: "03/01/2025"}); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if _, err := repo.CreateNote(ctx, core.Note{UserID: "u1", Title: "  "}); !errors.Is(err, core.ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
}
