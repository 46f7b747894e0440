package repository

import (
	"context"
	"errors"

	"envelopes/internal/core"
)

// ErrNotFound is returned when a record does not exist for the requesting user.
var ErrNotFound = errors.New("record not found")

// Ports for outbound adapters. Every read and write is scoped to one user.
type (
	UserStore interface {
		// EnsureUser creates the user on first sight and returns the stored record.
		EnsureUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	EnvelopeStore interface {
		ListEnvelopes(ctx context.Context, userID string) ([]core.Envelope, error)
		GetEnvelope(ctx context.Context, userID, id string) (core.Envelope, error)
		CreateEnvelope(ctx context.Context, e core.Envelope) (core.Envelope, error)
		UpdateEnvelope(ctx context.Context, e core.Envelope) error
		// DeleteEnvelope leaves the envelope's expenses in place.
		DeleteEnvelope(ctx context.Context, userID, id string) error
	}

	ExpenseStore interface {
		ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, userID, id string) error
	}

	IncomeStore interface {
		ListIncomes(ctx context.Context, userID string) ([]core.Income, error)
		CreateIncome(ctx context.Context, i core.Income) (core.Income, error)
		DeleteIncome(ctx context.Context, userID, id string) error
	}

	NoteStore interface {
		ListNotes(ctx context.Context, userID string) ([]core.Note, error)
		CreateNote(ctx context.Context, n core.Note) (core.Note, error)
		DeleteNote(ctx context.Context, userID, id string) error
	}

	// Repository is the full persistence surface used by the services.
	Repository interface {
		UserStore
		EnvelopeStore
		ExpenseStore
		IncomeStore
		NoteStore
		// Ping verifies the backend is reachable.
		Ping(ctx context.Context) error
	}
)
