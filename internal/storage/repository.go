package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"envelopes/internal/core"
	"envelopes/internal/repository"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before opening the pool so the schema is in place.
	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) EnsureUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Email, u.Name, u.CreatedAt.Format(timeLayout))
	if err != nil {
		return core.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return r.GetUser(ctx, u.ID)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, repository.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

func (r *SQLiteRepository) ListEnvelopes(ctx context.Context, userID string) ([]core.Envelope, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, fixed, budget, color FROM envelopes
		 WHERE user_id = ? ORDER BY title, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	defer rows.Close()

	var out []core.Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetEnvelope(ctx context.Context, userID, id string) (core.Envelope, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, fixed, budget, color FROM envelopes
		 WHERE user_id = ? AND id = ?`, userID, id)
	e, err := scanEnvelope(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Envelope{}, repository.ErrNotFound
	}
	if err != nil {
		return core.Envelope{}, fmt.Errorf("get envelope: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateEnvelope(ctx context.Context, e core.Envelope) (core.Envelope, error) {
	if err := e.Validate(); err != nil {
		return core.Envelope{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO envelopes (id, user_id, title, fixed, budget, color) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Fixed, nullBudget(e.Budget), e.Color)
	if err != nil {
		return core.Envelope{}, fmt.Errorf("create envelope: %w", err)
	}
	slog.DebugContext(ctx, "Envelope saved to SQLite", "id", e.ID, "user_id", e.UserID, "fixed", e.Fixed)
	return e, nil
}

func (r *SQLiteRepository) UpdateEnvelope(ctx context.Context, e core.Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE envelopes SET title = ?, fixed = ?, budget = ?, color = ?
		 WHERE user_id = ? AND id = ?`,
		e.Title, e.Fixed, nullBudget(e.Budget), e.Color, e.UserID, e.ID)
	if err != nil {
		return fmt.Errorf("update envelope: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteEnvelope(ctx context.Context, userID, id string) error {
	return r.deleteScoped(ctx, "envelopes", userID, id)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, envelope_id, amount, date, location, description FROM expenses
		 WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.EnvelopeID, &e.Amount, &e.Date, &e.Location, &e.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, envelope_id, amount, date, location, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.EnvelopeID, e.Amount.String(), e.Date, e.Location, e.Description, r.now().Format(timeLayout))
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"envelope_id", e.EnvelopeID,
		"amount", e.Amount.StringFixed(2),
		"date", e.Date)

	return e, nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	return r.deleteScoped(ctx, "expenses", userID, id)
}

func (r *SQLiteRepository) ListIncomes(ctx context.Context, userID string) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, date, source FROM incomes
		 WHERE user_id = ? ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		var i core.Income
		if err := rows.Scan(&i.ID, &i.UserID, &i.Amount, &i.Date, &i.Source); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateIncome(ctx context.Context, i core.Income) (core.Income, error) {
	if err := i.Validate(); err != nil {
		return core.Income{}, err
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO incomes (id, user_id, amount, date, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.Amount.String(), i.Date, i.Source, r.now().Format(timeLayout))
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	return i, nil
}

func (r *SQLiteRepository) DeleteIncome(ctx context.Context, userID, id string) error {
	return r.deleteScoped(ctx, "incomes", userID, id)
}

func (r *SQLiteRepository) ListNotes(ctx context.Context, userID string) ([]core.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, body, created_at FROM notes
		 WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []core.Note
	for rows.Next() {
		var (
			n       core.Note
			created string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &created); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateNote(ctx context.Context, n core.Note) (core.Note, error) {
	if err := n.Validate(); err != nil {
		return core.Note{}, err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Body, n.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return core.Note{}, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteNote(ctx context.Context, userID, id string) error {
	return r.deleteScoped(ctx, "notes", userID, id)
}

// deleteScoped removes one row of table owned by userID. table is always a
// package constant, never user input.
func (r *SQLiteRepository) deleteScoped(ctx context.Context, table, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(s rowScanner) (core.Envelope, error) {
	var (
		e      core.Envelope
		budget decimal.NullDecimal
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Title, &e.Fixed, &budget, &e.Color); err != nil {
		return core.Envelope{}, err
	}
	if budget.Valid {
		b := budget.Decimal
		e.Budget = &b
	}
	return e, nil
}

func nullBudget(b *decimal.Decimal) any {
	if b == nil {
		return nil
	}
	return b.String()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
