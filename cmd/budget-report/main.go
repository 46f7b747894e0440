package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/GiGurra/boa/pkg/boa"

	"envelopes/internal/budget"
	"envelopes/internal/cli"
	"envelopes/internal/export"
	"envelopes/internal/log"
	"envelopes/internal/report"
	"envelopes/internal/services"
)

type Params struct {
	User    string `descr:"User id whose ledger is summarized" positional:"true"`
	Period  string `descr:"Summary period" alts:"month,year" strict:"true" default:"month"`
	Year    int    `descr:"Year to summarize (default: current year)" optional:"true"`
	Month   int    `descr:"Month to summarize, 1-12 (default: current month)" optional:"true"`
	Xlsx    string `descr:"Also write the yearly workbook to this path" optional:"true"`
	Sheets  bool   `descr:"Also publish the yearly summary to Google Sheets" optional:"true"`
	NoColor bool   `descr:"Disable colored output" optional:"true"`
}

func main() {
	boa.NewCmdT[Params]("budget-report").
		WithShort("Print envelope budget summaries").
		WithLong("Summarizes one user's incomes and expenses for a month or a year, lists envelopes near or over budget, and optionally exports the year to a workbook or Google Sheets.").
		WithRunFunc(func(params *Params) {
			if err := run(params); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}

func run(p *Params) error {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("warn").WithComponent(log.ComponentReport)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backend := cli.InitBackend(ctx, logger, cfg)
	defer backend.Close()

	now := time.Now()
	year, month := now.Year(), now.Month()
	if p.Year != 0 {
		year = p.Year
	}
	if p.Month != 0 {
		if p.Month < 1 || p.Month > 12 {
			return fmt.Errorf("month %d out of range 1-12", p.Month)
		}
		month = time.Month(p.Month)
	}

	budgets := services.NewBudgetService(backend.Repository, 0)
	opts := report.Options{Color: !p.NoColor}
	out := os.Stdout

	if p.Period == "year" {
		ov, err := budgets.YearSummary(ctx, p.User, year)
		if err != nil {
			return fmt.Errorf("year summary: %w", err)
		}
		report.RenderYearly(out, ov, opts)
	} else {
		ov, err := budgets.MonthSummary(ctx, p.User, year, month)
		if err != nil {
			return fmt.Errorf("month summary: %w", err)
		}
		report.RenderMonthly(out, ov, opts)

		signals, _, err := budgets.Warnings(ctx, p.User, year, month, budget.WarnedSet{})
		if err != nil {
			return fmt.Errorf("envelope warnings: %w", err)
		}
		fmt.Fprintln(out)
		report.RenderWarnings(out, signals, opts)
	}

	if p.Xlsx == "" && !p.Sheets {
		return nil
	}
	yearly, err := budgets.YearSummary(ctx, p.User, year)
	if err != nil {
		return fmt.Errorf("year summary: %w", err)
	}

	if p.Xlsx != "" {
		envs, err := backend.Repository.ListEnvelopes(ctx, p.User)
		if err != nil {
			return fmt.Errorf("list envelopes: %w", err)
		}
		f, err := os.Create(p.Xlsx)
		if err != nil {
			return err
		}
		if err := export.WriteYearWorkbook(f, yearly, envs); err != nil {
			f.Close()
			return fmt.Errorf("write workbook: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Workbook written to %s\n", p.Xlsx)
	}

	if p.Sheets {
		if !cfg.SheetsEnabled() {
			return fmt.Errorf("google sheets publishing needs GOOGLE_SPREADSHEET_ID and service account credentials")
		}
		client, err := export.NewSheetsClient(ctx, export.SheetsConfig{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
		})
		if err != nil {
			return fmt.Errorf("sheets client: %w", err)
		}
		rng, err := client.PublishYear(ctx, yearly)
		if err != nil {
			return fmt.Errorf("publish to sheets: %w", err)
		}
		fmt.Fprintf(out, "Published %d summary to %s\n", year, rng)
	}
	return nil
}
