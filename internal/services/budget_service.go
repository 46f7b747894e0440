package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"envelopes/internal/budget"
	"envelopes/internal/cache"
	"envelopes/internal/core"
	"envelopes/internal/repository"
)

const summaryCacheSize = 512

// MonthOverview is a monthly summary with envelope ids resolved to titles
type MonthOverview struct {
	budget.SummaryDetails
	HighestEnvelopeTitle  string `json:"highestEnvelopeTitle"`
	FrequentEnvelopeTitle string `json:"frequentEnvelopeTitle"`
}

// YearOverview is a yearly summary with envelope ids resolved to titles
type YearOverview struct {
	budget.YearlySummaryDetails
	HighestEnvelopeTitle  string `json:"highestEnvelopeTitle"`
	FrequentEnvelopeTitle string `json:"frequentEnvelopeTitle"`
}

// Ledger is everything the aggregator needs for one user
type Ledger struct {
	Envelopes []core.Envelope
	Expenses  []core.Expense
	Incomes   []core.Income
}

// BudgetService loads user data and runs the aggregator over it. Summaries
// are cached per user and period until a write invalidates them.
type BudgetService struct {
	repo   repository.Repository
	months *cache.LRUCache[MonthOverview]
	years  *cache.LRUCache[YearOverview]

	// generations counts invalidations per user. A summary is only cached
	// when no invalidation happened while it was being computed.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewBudgetService builds the service; a zero ttl disables summary caching
func NewBudgetService(repo repository.Repository, ttl time.Duration) *BudgetService {
	s := &BudgetService{repo: repo, generations: make(map[string]uint64)}
	if ttl > 0 {
		s.months = cache.NewLRUCache[MonthOverview](summaryCacheSize, ttl)
		s.years = cache.NewLRUCache[YearOverview](summaryCacheSize, ttl)
	}
	return s
}

// RegisterCaches hands the summary caches to a cleanup manager
func (s *BudgetService) RegisterCaches(m *cache.Manager) {
	if s.months == nil {
		return
	}
	m.Register("month_summaries", s.months)
	m.Register("year_summaries", s.years)
}

// Invalidate drops every cached summary of userID
func (s *BudgetService) Invalidate(userID string) {
	if s.months == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	prefix := userID + "|"
	s.months.DeletePrefix(prefix)
	s.years.DeletePrefix(prefix)
}

func (s *BudgetService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

// storeIfCurrent runs store only if userID has not been invalidated since gen
func (s *BudgetService) storeIfCurrent(userID string, gen uint64, store func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[userID] == gen {
		store()
	}
}

// LoadLedger reads envelopes, expenses and incomes of userID concurrently
func (s *BudgetService) LoadLedger(ctx context.Context, userID string) (Ledger, error) {
	var l Ledger
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		envs, err := s.repo.ListEnvelopes(gctx, userID)
		if err != nil {
			return fmt.Errorf("list envelopes: %w", err)
		}
		l.Envelopes = envs
		return nil
	})
	g.Go(func() error {
		exps, err := s.repo.ListExpenses(gctx, userID)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		l.Expenses = exps
		return nil
	})
	g.Go(func() error {
		incs, err := s.repo.ListIncomes(gctx, userID)
		if err != nil {
			return fmt.Errorf("list incomes: %w", err)
		}
		l.Incomes = incs
		return nil
	})
	if err := g.Wait(); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

// MonthSummary summarizes the given month against the one before it
func (s *BudgetService) MonthSummary(ctx context.Context, userID string, year int, month time.Month) (MonthOverview, error) {
	key := fmt.Sprintf("%s|%04d-%02d", userID, year, int(month))
	if s.months != nil {
		if v, ok := s.months.Get(key); ok {
			return v, nil
		}
	}

	gen := s.generation(userID)
	l, err := s.LoadLedger(ctx, userID)
	if err != nil {
		return MonthOverview{}, err
	}
	reference := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	details := budget.MonthlySummary(l.Incomes, l.Expenses, reference)
	out := MonthOverview{
		SummaryDetails:        details,
		HighestEnvelopeTitle:  envelopeLabel(l.Envelopes, details.HighestEnvelope),
		FrequentEnvelopeTitle: envelopeLabel(l.Envelopes, details.FrequentEnvelope),
	}

	if s.months != nil {
		s.storeIfCurrent(userID, gen, func() { s.months.Set(key, out) })
	}
	return out, nil
}

// YearSummary summarizes a calendar year with monthly buckets
func (s *BudgetService) YearSummary(ctx context.Context, userID string, year int) (YearOverview, error) {
	key := fmt.Sprintf("%s|%04d", userID, year)
	if s.years != nil {
		if v, ok := s.years.Get(key); ok {
			return v, nil
		}
	}

	gen := s.generation(userID)
	l, err := s.LoadLedger(ctx, userID)
	if err != nil {
		return YearOverview{}, err
	}
	details := budget.YearlySummary(l.Incomes, l.Expenses, year)
	out := YearOverview{
		YearlySummaryDetails:  details,
		HighestEnvelopeTitle:  envelopeLabel(l.Envelopes, details.HighestEnvelope),
		FrequentEnvelopeTitle: envelopeLabel(l.Envelopes, details.FrequentEnvelope),
	}

	if s.years != nil {
		s.storeIfCurrent(userID, gen, func() { s.years.Set(key, out) })
	}
	return out, nil
}

// Warnings evaluates every fixed envelope of userID for the month and returns
// signals not already in warned, plus the extended set. Callers own warned.
func (s *BudgetService) Warnings(ctx context.Context, userID string, year int, month time.Month, warned budget.WarnedSet) ([]budget.WarningSignal, budget.WarnedSet, error) {
	l, err := s.LoadLedger(ctx, userID)
	if err != nil {
		return nil, warned, err
	}
	signals, next := budget.EvaluateEnvelopes(l.Envelopes, l.Expenses, year, month, warned)
	return signals, next, nil
}

func envelopeLabel(envelopes []core.Envelope, id string) string {
	if id == budget.NotAvailable {
		return budget.NotAvailable
	}
	return core.EnvelopeTitle(envelopes, id)
}
