// Package report renders budget summaries as terminal tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"envelopes/internal/budget"
	"envelopes/internal/core"
	"envelopes/internal/services"
)

// Options controls table rendering.
type Options struct {
	// Color enables ANSI colors for signs and warning kinds.
	Color bool
}

// RenderMonthly prints a month against the previous one plus its highlights.
func RenderMonthly(w io.Writer, s services.MonthOverview, opts Options) {
	fmt.Fprintf(w, "%s %d\n\n", s.Month, s.Year)

	t := newTable(w)
	t.AppendHeader(table.Row{"", "This month", "Last month"})
	t.AppendRow(table.Row{"Income", core.FormatAmount(s.IncomeTotals), core.FormatAmount(s.LastMonthIncomeTotals)})
	t.AppendRow(table.Row{"Expenses", core.FormatAmount(s.ExpenseTotals), core.FormatAmount(s.LastMonthExpenseTotals)})
	t.AppendSeparator()
	t.AppendFooter(table.Row{
		"Difference",
		signed(s.SpendingDifference, opts),
		"Spending " + percent(s.SpendingComparison),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()

	fmt.Fprintln(w)
	renderHighlights(w, highlights{
		envelope:        s.HighestEnvelopeTitle,
		envelopeAmount:  s.HighestAmount,
		frequent:        s.FrequentEnvelopeTitle,
		location:        s.HighestSpendingLocation,
		locationAmount:  s.HighestSpendingAmount,
		envelopeMissing: s.HighestEnvelope == budget.NotAvailable,
	})
}

// RenderYearly prints the per-month breakdown of a year with totals.
func RenderYearly(w io.Writer, s services.YearOverview, opts Options) {
	fmt.Fprintf(w, "Year %d\n\n", s.Year)

	t := newTable(w)
	t.AppendHeader(table.Row{"Month", "Income", "Expenses", "Difference"})
	for i := 0; i < 12; i++ {
		income, expenses := s.MonthlyIncome[i], s.MonthlyExpenses[i]
		t.AppendRow(table.Row{
			time.Month(i + 1).String(),
			core.FormatAmount(income),
			core.FormatAmount(expenses),
			signed(income.Sub(expenses), opts),
		})
	}
	t.AppendSeparator()
	t.AppendFooter(table.Row{
		"Total",
		core.FormatAmount(s.IncomeTotals),
		core.FormatAmount(s.ExpenseTotals),
		signed(s.SpendingDifference, opts),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()

	fmt.Fprintln(w)
	renderHighlights(w, highlights{
		envelope:        s.HighestEnvelopeTitle,
		envelopeAmount:  s.HighestAmount,
		frequent:        s.FrequentEnvelopeTitle,
		location:        s.HighestSpendingLocation,
		locationAmount:  s.HighestSpendingAmount,
		envelopeMissing: s.HighestEnvelope == budget.NotAvailable,
	})
}

// RenderWarnings lists fixed envelopes near or over budget. Nothing is
// printed besides a short line when there are no signals.
func RenderWarnings(w io.Writer, signals []budget.WarningSignal, opts Options) {
	if len(signals) == 0 {
		fmt.Fprintln(w, "All envelopes are within budget.")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Envelope", "Status", "Spent", "Budget", "Threshold", "Over by"})
	for _, s := range signals {
		status := "APPROACHING"
		over := "-"
		if s.Kind == budget.Exceeded {
			status = "EXCEEDED"
			over = core.FormatAmount(s.Overage)
		}
		if opts.Color {
			if s.Kind == budget.Exceeded {
				status = text.FgRed.Sprint(status)
			} else {
				status = text.FgYellow.Sprint(status)
			}
		}
		t.AppendRow(table.Row{
			s.Title,
			status,
			core.FormatAmount(s.Spent),
			core.FormatAmount(s.Budget),
			core.FormatAmount(s.Threshold),
			over,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}

type highlights struct {
	envelope        string
	envelopeAmount  decimal.Decimal
	frequent        string
	location        string
	locationAmount  decimal.Decimal
	envelopeMissing bool
}

func renderHighlights(w io.Writer, h highlights) {
	t := newTable(w)
	envAmount, locAmount := "", ""
	if !h.envelopeMissing {
		envAmount = core.FormatAmount(h.envelopeAmount)
	}
	if h.location != budget.NotAvailable {
		locAmount = core.FormatAmount(h.locationAmount)
	}
	t.AppendRow(table.Row{"Highest envelope", h.envelope, envAmount})
	t.AppendRow(table.Row{"Most frequent envelope", h.frequent, ""})
	t.AppendRow(table.Row{"Top location", h.location, locAmount})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func signed(d decimal.Decimal, opts Options) string {
	s := core.FormatAmount(d)
	if !opts.Color {
		return s
	}
	if d.IsNegative() {
		return text.FgRed.Sprint(s)
	}
	return text.FgGreen.Sprint(s)
}

func percent(p float64) string {
	return fmt.Sprintf("%+.1f%%", p)
}
