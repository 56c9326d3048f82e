// importctl imports one CSV file from the command line, auto-accepting every
// proposed mapping. Headers with unconfirmed required fields abort before
// anything is written; use the server API when a human needs to review the
// mapping first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/config"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
	"github.com/krwhynot/CRM-sub001/internal/importer"
	"github.com/krwhynot/CRM-sub001/internal/logging"
	"github.com/krwhynot/CRM-sub001/internal/mapper"
	"github.com/krwhynot/CRM-sub001/internal/store"
)

func main() {
	errorsOut := flag.String("errors", "", "write the excluded-row report to this CSV file")
	dryRun := flag.Bool("dry-run", false, "show the mapping and exit without writing")
	reset := flag.Bool("reset", false, "truncate the organizations table before importing")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: importctl [flags] <file.csv>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		fatal("load configuration: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read file: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		fatal("connect to database: %v", err)
	}
	defer pool.Close()

	cat := catalog.Organization()
	if err := store.EnsureSchema(ctx, pool); err != nil {
		fatal("ensure schema: %v", err)
	}

	st := store.NewPostgres(pool, cat)
	if *reset {
		if err := st.Reset(ctx); err != nil {
			fatal("reset organizations: %v", err)
		}
		color.Yellow("organizations table emptied")
	}

	service := importer.NewService(
		st,
		cat,
		nil,
		importer.Config{
			BatchSize:  cfg.Import.BatchSize,
			BatchPause: cfg.Import.BatchPause,
			AutoAccept: cfg.Mapper.AutoAccept,
			RunTimeout: cfg.Import.RunTimeout,
			Matcher:    mapper.Config{CandidateFloor: cfg.Mapper.CandidateFloor},
			ParseOptions: csvio.Options{
				MaxBytes:       cfg.Import.MaxFileSize,
				HeaderScanRows: cfg.Import.HeaderScanRows,
				SampleValues:   cfg.Import.SampleValues,
			},
		},
		slog.Default(),
	)

	importID, reviews, err := service.CreateImport(ctx, filepath.Base(path), data)
	if err != nil {
		fatal("create import: %v", err)
	}

	printMappings(reviews)

	// Accept every suggested mapping; a required field still unmapped after
	// this means the file genuinely lacks it.
	for _, review := range reviews {
		if review.State == mapper.StateSuggested {
			if err := service.ConfirmMapping(importID, review.Header); err != nil {
				fatal("confirm %q: %v", review.Header, err)
			}
		}
	}

	if *dryRun {
		color.Cyan("dry run, nothing written")
		return
	}

	if err := service.Start(importID); err != nil {
		fatal("start import: %v", err)
	}

	outcome, err := service.Result(ctx, importID)
	if err != nil {
		fatal("wait for result: %v", err)
	}

	printOutcome(outcome)

	if *errorsOut != "" && len(outcome.RowErrors) > 0 {
		report, err := service.ErrorReportCSV(importID)
		if err != nil {
			fatal("build error report: %v", err)
		}
		if err := os.WriteFile(*errorsOut, report, 0o644); err != nil {
			fatal("write error report: %v", err)
		}
		fmt.Printf("excluded-row report written to %s\n", *errorsOut)
	}

	if outcome.Status == importer.StatusFailed {
		os.Exit(1)
	}
}

func printMappings(reviews []mapper.HeaderReview) {
	color.Yellow("\nProposed Mappings")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Header", "Target Field", "Confidence", "State"})

	for _, review := range reviews {
		target, confidence := "-", "-"
		if review.Mapping != nil {
			target = review.Mapping.TargetField
			confidence = fmt.Sprintf("%.2f", review.Mapping.Confidence)
		}
		table.Append([]string{review.Header, target, confidence, string(review.State)})
	}
	table.Render()
}

func printOutcome(outcome importer.Outcome) {
	switch outcome.Status {
	case importer.StatusCompleted:
		color.Green("\nImport completed")
	case importer.StatusPartiallyCompleted:
		color.Yellow("\nImport partially completed")
	default:
		color.Red("\nImport failed: %s", outcome.Error)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rows", "Valid", "Inserted", "Updated", "Skipped", "Elapsed"})
	table.Append([]string{
		fmt.Sprintf("%d", outcome.TotalRows),
		fmt.Sprintf("%d", outcome.ValidRows),
		fmt.Sprintf("%d", outcome.Inserted),
		fmt.Sprintf("%d", outcome.Updated),
		fmt.Sprintf("%d", outcome.Skipped),
		outcome.Elapsed.String(),
	})
	table.Render()

	if len(outcome.RowErrors) > 0 {
		color.Red("%d rows excluded", len(outcome.RowErrors))
	}
}

func fatal(format string, args ...any) {
	color.Red(format, args...)
	os.Exit(1)
}
