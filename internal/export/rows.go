// Package export writes yearly budget summaries to spreadsheets, either as
// an .xlsx workbook or into a Google Sheets document.
package export

import (
	"time"

	"github.com/shopspring/decimal"

	"envelopes/internal/budget"
	"envelopes/internal/services"
)

var summaryHeader = []any{"Month", "Income", "Expenses", "Difference"}

// yearRows lays out a yearly summary as a grid shared by both exporters:
// header, twelve month rows, a total row, a blank row, then highlights.
func yearRows(s services.YearOverview) [][]any {
	rows := make([][]any, 0, 20)
	rows = append(rows, summaryHeader)
	for i := 0; i < 12; i++ {
		income := s.MonthlyIncome[i]
		expenses := s.MonthlyExpenses[i]
		rows = append(rows, []any{
			time.Month(i + 1).String(),
			money(income),
			money(expenses),
			money(income.Sub(expenses)),
		})
	}
	rows = append(rows,
		[]any{"Total", money(s.IncomeTotals), money(s.ExpenseTotals), money(s.SpendingDifference)},
		[]any{},
		[]any{"Highest envelope", s.HighestEnvelopeTitle, highlightAmount(s.HighestEnvelope, s.HighestAmount)},
		[]any{"Most frequent envelope", s.FrequentEnvelopeTitle},
		[]any{"Top location", s.HighestSpendingLocation, highlightAmount(s.HighestSpendingLocation, s.HighestSpendingAmount)},
	)
	return rows
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func highlightAmount(key string, amount decimal.Decimal) any {
	if key == budget.NotAvailable {
		return ""
	}
	return money(amount)
}
