// Package budget reduces a user's incomes and expenses into period summaries
// and evaluates envelope budget thresholds.
//
// Every function here is pure: inputs are only read, outputs are freshly
// allocated, nothing fails. Records whose date does not parse are left out
// of every period.
package budget

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"envelopes/internal/core"
)

// NotAvailable is reported for highest/frequent fields when a period has no data.
const NotAvailable = "N/A"

var hundred = decimal.NewFromInt(100)

// SummaryDetails describes one calendar month compared with the month before.
type SummaryDetails struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`

	IncomeTotals       decimal.Decimal `json:"incomeTotals"`
	ExpenseTotals      decimal.Decimal `json:"expenseTotals"`
	SpendingDifference decimal.Decimal `json:"spendingDifference"`

	LastMonthIncomeTotals  decimal.Decimal `json:"lastMonthIncomeTotals"`
	LastMonthExpenseTotals decimal.Decimal `json:"lastMonthExpenseTotals"`
	// SpendingComparison is the percentage change of expenses against last month.
	SpendingComparison float64 `json:"spendingComparison"`

	HighestEnvelope         string          `json:"highestEnvelope"`
	HighestAmount           decimal.Decimal `json:"highestAmount"`
	FrequentEnvelope        string          `json:"frequentEnvelope"`
	HighestSpendingLocation string          `json:"highestSpendingLocation"`
	HighestSpendingAmount   decimal.Decimal `json:"highestSpendingAmount"`
}

// YearlySummaryDetails describes one calendar year with per-month buckets.
type YearlySummaryDetails struct {
	Year int `json:"year"`

	IncomeTotals       decimal.Decimal `json:"incomeTotals"`
	ExpenseTotals      decimal.Decimal `json:"expenseTotals"`
	SpendingDifference decimal.Decimal `json:"spendingDifference"`

	HighestEnvelope         string          `json:"highestEnvelope"`
	HighestAmount           decimal.Decimal `json:"highestAmount"`
	FrequentEnvelope        string          `json:"frequentEnvelope"`
	HighestSpendingLocation string          `json:"highestSpendingLocation"`
	HighestSpendingAmount   decimal.Decimal `json:"highestSpendingAmount"`

	// Indexed by month, January = 0.
	MonthlyIncome   [12]decimal.Decimal `json:"monthlyIncome"`
	MonthlyExpenses [12]decimal.Decimal `json:"monthlyExpenses"`
}

// MonthlySummary summarizes the month containing reference and compares its
// expenses with the previous month.
func MonthlySummary(incomes []core.Income, expenses []core.Expense, reference time.Time) SummaryDetails {
	year, month := reference.Year(), reference.Month()
	prevYear, prevMonth := core.PreviousMonth(year, month)

	out := SummaryDetails{Year: year, Month: month}

	for _, in := range incomes {
		d, ok := core.ParseDate(in.Date)
		if !ok {
			continue
		}
		switch {
		case inMonth(d, year, month):
			out.IncomeTotals = out.IncomeTotals.Add(in.Amount)
		case inMonth(d, prevYear, prevMonth):
			out.LastMonthIncomeTotals = out.LastMonthIncomeTotals.Add(in.Amount)
		}
	}

	var current []core.Expense
	for _, e := range expenses {
		d, ok := core.ParseDate(e.Date)
		if !ok {
			continue
		}
		switch {
		case inMonth(d, year, month):
			current = append(current, e)
			out.ExpenseTotals = out.ExpenseTotals.Add(e.Amount)
		case inMonth(d, prevYear, prevMonth):
			out.LastMonthExpenseTotals = out.LastMonthExpenseTotals.Add(e.Amount)
		}
	}

	out.SpendingDifference = out.IncomeTotals.Sub(out.ExpenseTotals)
	out.SpendingComparison = PercentChange(out.ExpenseTotals, out.LastMonthExpenseTotals)

	h := computeHighlights(current)
	out.HighestEnvelope, out.HighestAmount = h.envelope, h.envelopeAmount
	out.FrequentEnvelope = h.frequent
	out.HighestSpendingLocation, out.HighestSpendingAmount = h.location, h.locationAmount
	return out
}

// YearlySummary summarizes every record dated in year.
func YearlySummary(incomes []core.Income, expenses []core.Expense, year int) YearlySummaryDetails {
	out := YearlySummaryDetails{Year: year}

	for _, in := range incomes {
		d, ok := core.ParseDate(in.Date)
		if !ok || d.Year() != year {
			continue
		}
		out.IncomeTotals = out.IncomeTotals.Add(in.Amount)
		idx := d.MonthIndex()
		out.MonthlyIncome[idx] = out.MonthlyIncome[idx].Add(in.Amount)
	}

	var current []core.Expense
	for _, e := range expenses {
		d, ok := core.ParseDate(e.Date)
		if !ok || d.Year() != year {
			continue
		}
		current = append(current, e)
		out.ExpenseTotals = out.ExpenseTotals.Add(e.Amount)
		idx := d.MonthIndex()
		out.MonthlyExpenses[idx] = out.MonthlyExpenses[idx].Add(e.Amount)
	}

	out.SpendingDifference = out.IncomeTotals.Sub(out.ExpenseTotals)

	h := computeHighlights(current)
	out.HighestEnvelope, out.HighestAmount = h.envelope, h.envelopeAmount
	out.FrequentEnvelope = h.frequent
	out.HighestSpendingLocation, out.HighestSpendingAmount = h.location, h.locationAmount
	return out
}

// PercentChange returns ((current - previous) / previous) * 100, or 0 when
// previous is zero.
func PercentChange(current, previous decimal.Decimal) float64 {
	if previous.IsZero() {
		return 0
	}
	return current.Sub(previous).Div(previous).Mul(hundred).InexactFloat64()
}

// FilterPeriodExpenses keeps the expenses of envelopeID dated in year/month.
func FilterPeriodExpenses(expenses []core.Expense, envelopeID string, year int, month time.Month) []core.Expense {
	var out []core.Expense
	for _, e := range expenses {
		if e.EnvelopeID != envelopeID {
			continue
		}
		if d, ok := core.ParseDate(e.Date); ok && inMonth(d, year, month) {
			out = append(out, e)
		}
	}
	return out
}

func inMonth(d core.Date, year int, month time.Month) bool {
	return d.Year() == year && d.Month() == month
}

type highlights struct {
	envelope       string
	envelopeAmount decimal.Decimal
	frequent       string
	location       string
	locationAmount decimal.Decimal
}

// computeHighlights groups expenses by envelope and by location. Expenses
// without an envelope or location do not form a group.
func computeHighlights(expenses []core.Expense) highlights {
	byEnvelope := map[string]decimal.Decimal{}
	countByEnvelope := map[string]int{}
	byLocation := map[string]decimal.Decimal{}

	for _, e := range expenses {
		if e.EnvelopeID != "" {
			byEnvelope[e.EnvelopeID] = byEnvelope[e.EnvelopeID].Add(e.Amount)
			countByEnvelope[e.EnvelopeID]++
		}
		if e.Location != "" {
			byLocation[e.Location] = byLocation[e.Location].Add(e.Amount)
		}
	}

	var h highlights
	h.envelope, h.envelopeAmount = maxBySum(byEnvelope)
	h.location, h.locationAmount = maxBySum(byLocation)
	h.frequent = maxByCount(countByEnvelope)
	return h
}

// maxBySum returns the key with the largest sum. Ties go to the
// lexicographically smallest key.
func maxBySum(groups map[string]decimal.Decimal) (string, decimal.Decimal) {
	key, best := NotAvailable, decimal.Zero
	found := false
	for _, k := range sortedKeys(groups) {
		if v := groups[k]; !found || v.GreaterThan(best) {
			key, best, found = k, v, true
		}
	}
	return key, best
}

func maxByCount(groups map[string]int) string {
	key, best := NotAvailable, 0
	for _, k := range sortedKeys(groups) {
		if v := groups[k]; v > best {
			key, best = k, v
		}
	}
	return key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
