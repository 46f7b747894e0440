package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"envelopes/internal/core"
	"envelopes/internal/repository"
)

// Store keeps every record in process memory. It is the default backend for
// local development and the fake used by service and handler tests.
type Store struct {
	mu        sync.Mutex
	users     map[string]core.User
	envelopes []core.Envelope
	expenses  []core.Expense
	incomes   []core.Income
	notes     []core.Note
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{users: map[string]core.User{}}
}

// Seed is the YAML layout accepted by NewFromFile. Amounts are strings so
// that values like 12.10 keep their decimal precision.
type Seed struct {
	Users []struct {
		ID    string `yaml:"id"`
		Email string `yaml:"email"`
		Name  string `yaml:"name"`
	} `yaml:"users"`
	Envelopes []struct {
		ID     string `yaml:"id"`
		UserID string `yaml:"user"`
		Title  string `yaml:"title"`
		Fixed  bool   `yaml:"fixed"`
		Budget string `yaml:"budget"`
		Color  string `yaml:"color"`
	} `yaml:"envelopes"`
	Expenses []struct {
		UserID      string `yaml:"user"`
		EnvelopeID  string `yaml:"envelope"`
		Amount      string `yaml:"amount"`
		Date        string `yaml:"date"`
		Location    string `yaml:"location"`
		Description string `yaml:"description"`
	} `yaml:"expenses"`
	Incomes []struct {
		UserID string `yaml:"user"`
		Amount string `yaml:"amount"`
		Date   string `yaml:"date"`
		Source string `yaml:"source"`
	} `yaml:"incomes"`
}

// NewFromFile builds a store seeded from a YAML file. A missing file yields
// an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := s.load(seed); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load(seed Seed) error {
	ctx := context.Background()
	for _, u := range seed.Users {
		if _, err := s.EnsureUser(ctx, core.User{ID: u.ID, Email: u.Email, Name: u.Name}); err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	for _, e := range seed.Envelopes {
		b, err := core.ParseBudget(e.Budget)
		if err != nil {
			return fmt.Errorf("envelope %s budget: %w", e.Title, err)
		}
		env := core.Envelope{ID: e.ID, UserID: e.UserID, Title: e.Title, Fixed: e.Fixed, Budget: b, Color: e.Color}
		if _, err := s.CreateEnvelope(ctx, env); err != nil {
			return fmt.Errorf("envelope %s: %w", e.Title, err)
		}
	}
	for _, e := range seed.Expenses {
		amt, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return fmt.Errorf("expense amount %q: %w", e.Amount, err)
		}
		if _, err := s.CreateExpense(ctx, core.Expense{UserID: e.UserID, EnvelopeID: e.EnvelopeID, Amount: amt, Date: e.Date, Location: e.Location, Description: e.Description}); err != nil {
			return fmt.Errorf("expense %s: %w", e.Date, err)
		}
	}
	for _, i := range seed.Incomes {
		amt, err := decimal.NewFromString(i.Amount)
		if err != nil {
			return fmt.Errorf("income amount %q: %w", i.Amount, err)
		}
		if _, err := s.CreateIncome(ctx, core.Income{UserID: i.UserID, Amount: amt, Date: i.Date, Source: i.Source}); err != nil {
			return fmt.Errorf("income %s: %w", i.Date, err)
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) EnsureUser(_ context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		return existing, nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListEnvelopes(_ context.Context, userID string) ([]core.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := filterByUser(s.envelopes, userID, func(e core.Envelope) string { return e.UserID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *Store) GetEnvelope(_ context.Context, userID, id string) (core.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.envelopes {
		if e.ID == id && e.UserID == userID {
			return e, nil
		}
	}
	return core.Envelope{}, repository.ErrNotFound
}

func (s *Store) CreateEnvelope(_ context.Context, e core.Envelope) (core.Envelope, error) {
	if err := e.Validate(); err != nil {
		return core.Envelope{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, e)
	return e, nil
}

func (s *Store) UpdateEnvelope(_ context.Context, e core.Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.envelopes {
		if s.envelopes[i].ID == e.ID && s.envelopes[i].UserID == e.UserID {
			s.envelopes[i] = e
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) DeleteEnvelope(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	s.envelopes, ok = remove(s.envelopes, func(e core.Envelope) bool { return e.ID == id && e.UserID == userID })
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := filterByUser(s.expenses, userID, func(e core.Expense) string { return e.UserID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	s.expenses, ok = remove(s.expenses, func(e core.Expense) bool { return e.ID == id && e.UserID == userID })
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ListIncomes(_ context.Context, userID string) ([]core.Income, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := filterByUser(s.incomes, userID, func(i core.Income) string { return i.UserID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) CreateIncome(_ context.Context, i core.Income) (core.Income, error) {
	if err := i.Validate(); err != nil {
		return core.Income{}, err
	}
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomes = append(s.incomes, i)
	return i, nil
}

func (s *Store) DeleteIncome(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	s.incomes, ok = remove(s.incomes, func(i core.Income) bool { return i.ID == id && i.UserID == userID })
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) ListNotes(_ context.Context, userID string) ([]core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := filterByUser(s.notes, userID, func(n core.Note) string { return n.UserID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateNote(_ context.Context, n core.Note) (core.Note, error) {
	if err := n.Validate(); err != nil {
		return core.Note{}, err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *Store) DeleteNote(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ok bool
	s.notes, ok = remove(s.notes, func(n core.Note) bool { return n.ID == id && n.UserID == userID })
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func filterByUser[T any](in []T, userID string, owner func(T) string) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if owner(v) == userID {
			out = append(out, v)
		}
	}
	return out
}

func remove[T any](in []T, match func(T) bool) ([]T, bool) {
	for i, v := range in {
		if match(v) {
			return append(in[:i], in[i+1:]...), true
		}
	}
	return in, false
}
