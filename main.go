package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/releve-converter/internal/api"
	"github.com/insightdelivered/releve-converter/internal/batch"
	"github.com/insightdelivered/releve-converter/internal/config"
	"github.com/insightdelivered/releve-converter/internal/extractor"
	"github.com/insightdelivered/releve-converter/internal/logger"
	"github.com/insightdelivered/releve-converter/internal/parser"
	"github.com/insightdelivered/releve-converter/internal/ui"
	"github.com/insightdelivered/releve-converter/internal/writer"
)

const version = "2.0.0"

func main() {
	// CLI flags
	configFlag := flag.String("config", "", "YAML configuration file (embedded defaults if omitted)")
	formatFlag := flag.String("format", "", "Output format: csv, xlsx, json (overrides config)")
	outputDirFlag := flag.String("output-dir", "", "Directory for output files (defaults to each input's directory)")
	headerFlag := flag.Bool("header", true, "Include currency and balance metadata rows in CSV")
	diagnosticFlag := flag.Bool("diagnostic", false, "Log amount and reconciliation failures instead of rejecting the statement")
	workersFlag := flag.Int("workers", 0, "Documents converted concurrently (overrides config)")
	logLevelFlag := flag.String("log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	serveFlag := flag.Bool("serve", false, "Run the HTTP API instead of converting files")
	addrFlag := flag.String("addr", ":8080", "Listen address for -serve")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `BNP Releve de Compte to CSV Converter
by Insight Delivered

Converts BNP Paribas account statements (PDF or pdftotext -layout text)
into reconciled CSV, XLSX or JSON files. A statement whose transactions
do not add up to the printed totals and balances is rejected.

Usage:
  releve-converter [flags] <releve.pdf|releve.txt> [more ...]
  releve-converter -serve [-addr :8080]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Convert one statement next to the input
  releve-converter releve_2019-03.pdf

  # Convert a year of statements to spreadsheets
  releve-converter -format=xlsx -output-dir=out releves/*.pdf

  # Investigate a rejected statement
  releve-converter -diagnostic -log-level=debug releve_2019-03.txt
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("releve-converter v%s\n", version)
		os.Exit(0)
	}

	if *helpFlag || (flag.NArg() == 0 && !*serveFlag) {
		flag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fatalf("%v\n", err)
	}
	if *formatFlag != "" {
		cfg.Output.Format = strings.ToLower(*formatFlag)
	}
	if *outputDirFlag != "" {
		cfg.Output.Dir = *outputDirFlag
	}
	if *diagnosticFlag {
		cfg.Reconciliation.Diagnostic = true
	}
	if *workersFlag > 0 {
		cfg.Batch.Workers = *workersFlag
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid configuration: %v\n", err)
	}

	log := newLogger(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	opts, err := cfg.ParserOptions()
	if err != nil {
		fatalf("invalid configuration: %v\n", err)
	}
	p, err := parser.New(opts)
	if err != nil {
		fatalf("%v\n", err)
	}

	if *serveFlag {
		if err := serve(ctx, p, cfg, log, *addrFlag); err != nil {
			fatalf("server: %v\n", err)
		}
		return
	}

	if failed := convert(ctx, p, cfg, flag.Args(), *headerFlag); failed > 0 {
		os.Exit(1)
	}
}

func newLogger(c config.Log) zerolog.Logger {
	level := logger.ParseLevel(c.Level)
	if c.Format == "json" {
		return logger.NewWithWriter(os.Stderr, level)
	}
	return logger.New(level)
}

// convert runs the batch and reports each document; it returns the number of
// documents that failed.
func convert(ctx context.Context, p *parser.Parser, cfg *config.Config, inputs []string, includeHeader bool) int {
	w, err := writer.New(cfg.Output.Format, cfg.CSVSeparator(), p.Options().Locale.Decimal)
	if err != nil {
		fatalf("%v\n", err)
	}
	if csvw, ok := w.(*writer.CSVWriter); ok {
		csvw.IncludeHeader = includeHeader
	}

	ui.Header(fmt.Sprintf("Releve Converter v%s", version))
	if cfg.Reconciliation.Diagnostic {
		ui.Warning("diagnostic mode: mismatching statements are written anyway")
	}

	jobs := make([]batch.Job, 0, len(inputs))
	for _, path := range inputs {
		if !extractor.Supported(path) {
			ui.Error(fmt.Sprintf("%s: expected .pdf or .txt file, got %q", path, filepath.Ext(path)))
			continue
		}
		jobs = append(jobs, batch.Job{
			Name: path,
			Load: func(ctx context.Context) ([]string, error) {
				return extractor.ExtractLines(ctx, path)
			},
		})
	}
	failed := len(inputs) - len(jobs)

	ui.Step(1, 2, fmt.Sprintf("Converting %d statement(s) with %d worker(s)", len(jobs), cfg.Batch.Workers))
	results, err := batch.Run(ctx, p, jobs, cfg.Batch.Workers)
	if err != nil {
		ui.Error(err.Error())
	}

	ui.Step(2, 2, "Writing output")
	for _, res := range results {
		if !res.OK() {
			failed++
			ui.Error(fmt.Sprintf("%s [%s]: %v", res.Name, parser.Kind(res.Err), res.Err))
			continue
		}
		outPath := outputPath(res.Name, cfg.Output.Dir, w.Extension())
		if err := writeResult(w, outPath, res); err != nil {
			failed++
			ui.Error(fmt.Sprintf("%s: %v", res.Name, err))
			continue
		}

		stmt := res.Statement
		ui.Success(fmt.Sprintf("%s → %s", res.Name, outPath))
		ui.Detail("transactions", len(stmt.Transactions()))
		ui.Detail("currency", stmt.Currency())
		ui.Detail("opening", stmt.Opening().Amount.StringFixed(2))
		ui.Detail("closing", stmt.Closing().Amount.StringFixed(2))
		ui.Detail("run", res.RunID)
	}

	if failed > 0 {
		ui.Warning(fmt.Sprintf("%d of %d statement(s) failed", failed, len(inputs)))
	} else {
		ui.Info(fmt.Sprintf("%d statement(s) converted", len(results)))
	}
	return failed
}

func writeResult(w writer.Writer, outPath string, res batch.Result) error {
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return writer.WriteToFile(w, outPath, res.Statement)
}

// outputPath replaces the input extension with ext, under dir when set.
func outputPath(input, dir, ext string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input)) + ext
	if dir == "" {
		return base
	}
	return filepath.Join(dir, filepath.Base(base))
}

func serve(ctx context.Context, p *parser.Parser, cfg *config.Config, log zerolog.Logger, addr string) error {
	app := api.NewApp(&api.Handler{
		Parser:       p,
		Log:          log,
		CSVSeparator: cfg.CSVSeparator(),
		Version:      version,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Str("version", version).Msg("listening")
	return app.Listen(addr)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
