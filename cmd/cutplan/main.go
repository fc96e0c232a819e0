// Command cutplan solves a demand list from a CSV or Excel file and prints
// the optimized and baseline cutting plans side by side.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-cutter/internal/application"
	"github.com/eugenenazirov/stock-cutter/internal/config"
	"github.com/eugenenazirov/stock-cutter/internal/cutting"
	"github.com/eugenenazirov/stock-cutter/internal/importer"
	"github.com/eugenenazirov/stock-cutter/internal/logging"
	"github.com/eugenenazirov/stock-cutter/internal/oracle"
	"github.com/eugenenazirov/stock-cutter/internal/report"
	"github.com/eugenenazirov/stock-cutter/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "cutplan: %v\n", err)
		os.Exit(1)
	}
}

type solveOptions struct {
	stock         cutting.RawStock
	demandsFile   string
	pdfPath       string
	method        string
	maxIterations int
	solverTimeout time.Duration
	engine        string
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	app := kingpin.New("cutplan", "Plans how to cut raw bars into demanded pieces with minimal waste")
	logLevel := app.Flag("log-level", "Minimum log level (debug, info, warn, error)").Default("warn").String()

	var opts solveOptions
	solveCmd := app.Command("solve", "Solve a demand list and print both plans")
	solveCmd.Flag("raw-length", "Raw bar length in mm").Default("6000").IntVar(&opts.stock.Length)
	solveCmd.Flag("waste-allowance", "Length lost per bar to kerf and trimming in mm").Default("0").IntVar(&opts.stock.WasteAllowance)
	solveCmd.Flag("available", "Bars in stock (0 if unknown)").Default("0").IntVar(&opts.stock.Available)
	solveCmd.Flag("pdf", "Write the chosen plan as a PDF cut list").StringVar(&opts.pdfPath)
	solveCmd.Flag("method", "Plan to export: optimal or baseline (default: recommended)").EnumVar(&opts.method, "optimal", "baseline")
	solveCmd.Flag("max-iterations", "Column generation iteration cap").Default(fmt.Sprint(cutting.DefaultMaxIterations)).IntVar(&opts.maxIterations)
	solveCmd.Flag("solver-timeout", "Time limit per LP/IP solve (0 disables)").Default("30s").DurationVar(&opts.solverTimeout)
	solveCmd.Flag("engine", "Integer programming engine").Default(string(oracle.BranchAndBoundEngine)).EnumVar(&opts.engine, string(oracle.BranchAndBoundEngine), string(oracle.PseudoBooleanEngine))
	solveCmd.Arg("demands", "CSV or XLSX demand list").Required().StringVar(&opts.demandsFile)

	templateCmd := app.Command("template", "Write an empty demand list template")
	templateOut := templateCmd.Arg("out", "Output file (.csv or .xlsx)").Required().String()

	command, err := app.Parse(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.WithConsole(), logging.WithLevel(*logLevel))
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case solveCmd.FullCommand():
		return solve(ctx, opts, stdout, logger)
	case templateCmd.FullCommand():
		if err := importer.WriteTemplate(*templateOut); err != nil {
			return err
		}
		logger.Info("template written", zap.String("path", *templateOut))
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func solve(ctx context.Context, opts solveOptions, stdout io.Writer, logger *zap.Logger) error {
	if err := storage.ValidateStock(opts.stock); err != nil {
		return err
	}

	result := importer.ImportFile(opts.demandsFile)
	for _, warning := range result.Warnings {
		logger.Warn("import warning", zap.String("file", opts.demandsFile), zap.String("detail", warning))
	}
	if !result.OK() {
		return fmt.Errorf("import %s: %s", opts.demandsFile, strings.Join(result.Errors, "; "))
	}

	cfg := config.Config{
		MaxIterations: opts.maxIterations,
		SolverTimeout: opts.solverTimeout,
		SolverEngine:  oracle.EngineKind(opts.engine),
	}
	planner := application.NewPlanner(cfg, logger)

	cmp, err := planner.Plan(ctx, result.Demands, opts.stock)
	if err != nil {
		return err
	}

	chosen, fallback := cmp.Recommended()
	method := chosen.Plan.Method
	switch cutting.Method(opts.method) {
	case cutting.MethodOptimal:
		chosen, method = cmp.Optimal, cutting.MethodOptimal
	case cutting.MethodBaseline:
		chosen, method = cmp.Baseline, cutting.MethodBaseline
	}
	if fallback {
		logger.Warn("optimized plan unavailable, using baseline", zap.Error(cmp.Optimal.Err))
	}

	if err := printComparison(stdout, cmp, chosen); err != nil {
		return err
	}

	if opts.pdfPath == "" {
		return nil
	}
	if chosen.Err != nil {
		return fmt.Errorf("cannot export %s plan: %w", method, chosen.Err)
	}
	header := report.Header{
		Stock:   opts.stock,
		Summary: cutting.Summarize(chosen.Plan, cmp.Demands, opts.stock),
	}
	if err := report.WriteFile(opts.pdfPath, chosen.Plan, header); err != nil {
		return err
	}
	logger.Info("cut list written", zap.String("path", opts.pdfPath))
	return nil
}

func printComparison(w io.Writer, cmp cutting.Comparison, chosen cutting.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "METHOD\tUNITS\tWASTE %\tUTILIZATION %\tSHORTAGE\tTIME")
	for _, row := range []struct {
		method  cutting.Method
		outcome cutting.Outcome
	}{
		{cutting.MethodOptimal, cmp.Optimal},
		{cutting.MethodBaseline, cmp.Baseline},
	} {
		if row.outcome.Err != nil {
			fmt.Fprintf(tw, "%s\tfailed: %v\t\t\t\t%s\n", row.method, row.outcome.Err, row.outcome.Duration.Round(time.Millisecond))
			continue
		}
		s := cutting.Summarize(row.outcome.Plan, cmp.Demands, cmp.Stock)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n", row.method, s.TotalUnits,
			s.WastePercent.StringFixed(2), s.UtilizationPercent.StringFixed(2), s.Shortage,
			row.outcome.Duration.Round(time.Millisecond))
	}

	if chosen.Err == nil {
		fmt.Fprintf(tw, "\nPLAN (%s)\n", chosen.Plan.Method)
		fmt.Fprintln(tw, "COUNT\tPATTERN\tUSED\tWASTE")
		for _, p := range chosen.Plan.Patterns {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", p.Count, p.Description, p.UsedLength, p.Waste)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}
