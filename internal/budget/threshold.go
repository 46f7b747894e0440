package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"envelopes/internal/core"
)

// SignalKind tells whether a fixed envelope is close to or past its budget.
type SignalKind string

const (
	Approaching SignalKind = "approaching"
	Exceeded    SignalKind = "exceeded"
)

// WarningSignal is produced for a fixed envelope whose period spend crossed
// its warning threshold.
type WarningSignal struct {
	EnvelopeID string          `json:"envelopeId"`
	Title      string          `json:"title"`
	Kind       SignalKind      `json:"kind"`
	Budget     decimal.Decimal `json:"budget"`
	Spent      decimal.Decimal `json:"spent"`
	Threshold  decimal.Decimal `json:"threshold"`
	// Overage is spent - budget for Exceeded signals, zero otherwise.
	Overage decimal.Decimal `json:"overage"`
}

var (
	smallBudgetLimit  = decimal.NewFromInt(50)
	mediumBudgetLimit = decimal.NewFromInt(200)

	smallBudgetRatio  = decimal.RequireFromString("0.67")
	mediumBudgetRatio = decimal.RequireFromString("0.75")
	largeBudgetRatio  = decimal.RequireFromString("0.90")
)

// ThresholdRatio returns the share of the budget at which an "approaching"
// warning fires. Smaller budgets warn relatively earlier.
func ThresholdRatio(budget decimal.Decimal) decimal.Decimal {
	switch {
	case budget.LessThanOrEqual(smallBudgetLimit):
		return smallBudgetRatio
	case budget.LessThanOrEqual(mediumBudgetLimit):
		return mediumBudgetRatio
	default:
		return largeBudgetRatio
	}
}

// EvaluateEnvelopeThreshold sums the period expenses attributed to envelope
// and returns a signal when a fixed budget is approached or exceeded. It
// returns nil for informational envelopes and envelopes without a positive
// budget.
func EvaluateEnvelopeThreshold(envelope core.Envelope, periodExpenses []core.Expense) *WarningSignal {
	if !envelope.Fixed || envelope.Budget == nil || !envelope.Budget.IsPositive() {
		return nil
	}
	budget := *envelope.Budget

	spent := decimal.Zero
	for _, e := range periodExpenses {
		spent = spent.Add(e.Amount)
	}
	threshold := budget.Mul(ThresholdRatio(budget))

	sig := &WarningSignal{
		EnvelopeID: envelope.ID,
		Title:      envelope.Title,
		Budget:     budget,
		Spent:      spent,
		Threshold:  threshold,
	}
	switch {
	case spent.GreaterThan(budget):
		sig.Kind = Exceeded
		sig.Overage = spent.Sub(budget)
	case spent.GreaterThanOrEqual(threshold):
		sig.Kind = Approaching
	default:
		return nil
	}
	return sig
}

// WarnedSet holds the envelope ids already signaled in one loaded view.
// Values are treated as immutable: With returns a new set.
type WarnedSet map[string]struct{}

// Has reports whether id was already warned.
func (w WarnedSet) Has(id string) bool {
	_, ok := w[id]
	return ok
}

// With returns a copy of the set extended with ids.
func (w WarnedSet) With(ids ...string) WarnedSet {
	out := make(WarnedSet, len(w)+len(ids))
	for id := range w {
		out[id] = struct{}{}
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// EvaluateEnvelopes evaluates every envelope against its expenses of the
// given month and returns the signals not yet present in warned, together
// with the warned set extended by those envelopes. warned is not modified.
func EvaluateEnvelopes(envelopes []core.Envelope, expenses []core.Expense, year int, month time.Month, warned WarnedSet) ([]WarningSignal, WarnedSet) {
	var (
		signals []WarningSignal
		fresh   []string
	)
	for _, env := range envelopes {
		if warned.Has(env.ID) {
			continue
		}
		sig := EvaluateEnvelopeThreshold(env, FilterPeriodExpenses(expenses, env.ID, year, month))
		if sig == nil {
			continue
		}
		signals = append(signals, *sig)
		fresh = append(fresh, env.ID)
	}
	return signals, warned.With(fresh...)
}
