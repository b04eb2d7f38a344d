package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/alejandroruanova/rowloader/internal/app"
	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	"github.com/alejandroruanova/rowloader/internal/pkg/config"
	"github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ingest --sheet NAME --action ACTION --file PATH [options]\n\n")
		fmt.Fprintf(os.Stderr, "ingest loads one tabular file into the entities of a configured sheet.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ingest -s products -a create -f products.csv\n")
		fmt.Fprintf(os.Stderr, "  ingest -s products -a update -f changes.xlsx --dry-run --json\n")
	}

	sheetsFlag := pflag.String("sheets", "", "Sheet definitions file (defaults to SHEETS_FILE)")
	sheetFlag := pflag.StringP("sheet", "s", "", "Sheet to load into")
	actionFlag := pflag.StringP("action", "a", "", "Action to run: create, update or delete")
	fileFlag := pflag.StringP("file", "f", "", "File to load")
	dryRunFlag := pflag.Bool("dry-run", false, "Process against an in-memory store and record nothing")
	jsonFlag := pflag.BoolP("json", "j", false, "Print the run result as JSON")
	helpFlag := pflag.BoolP("help", "h", false, "Show this help message")
	pflag.Parse()

	if *helpFlag {
		pflag.Usage()
		return
	}
	if *sheetFlag == "" || *actionFlag == "" || *fileFlag == "" {
		pflag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", logger.Err(err))
		os.Exit(1)
	}
	log := logger.Initialize(cfg.Environment, cfg.LogLevel)

	a, err := app.New(cfg, log, app.Options{DryRun: *dryRunFlag, SheetsFile: *sheetsFlag})
	if err != nil {
		log.Error("failed to initialize", logger.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	raw, err := os.ReadFile(*fileFlag)
	if err != nil {
		log.Error("failed to read input file", slog.String("file", *fileFlag), logger.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := ingest.Request{Sheet: *sheetFlag, Action: *actionFlag, File: *fileFlag}
	result, runErr := a.Service.RunBytes(ctx, req, raw)
	if result != nil && !*dryRunFlag {
		if err := a.Service.Flush(context.WithoutCancel(ctx), result); err != nil {
			log.Error("failed to record audit trail", logger.Err(err))
			if runErr == nil {
				runErr = err
			}
		}
	}

	if result != nil {
		printResult(result, *jsonFlag)
	}
	if runErr != nil {
		log.Error("run failed", logger.Err(runErr))
		os.Exit(1)
	}
	if len(result.Errors) > 0 {
		os.Exit(3)
	}
}

func printResult(result *ingest.Result, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	fmt.Printf("run %s: %s\n", result.RunID, result.Status)
	fmt.Printf("  rows: %d total, %d processed\n", result.TotalRows, result.Processed)
	fmt.Printf("  created %d, updated %d, deleted %d\n", result.Created, result.Updated, result.Deleted)
	for _, delta := range result.Deltas {
		fmt.Printf("  ~ %s %s: %q -> %q\n", delta.UniqueID, delta.FieldName, delta.From, delta.To)
	}
	for _, message := range result.Errors {
		fmt.Printf("  ! %s\n", message)
	}
}
