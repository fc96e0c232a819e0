package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
)

func writeDemands(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demands.csv")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write demands: %v", err)
	}
	return path
}

func TestRunSolvePrintsBothPlans(t *testing.T) {
	demands := writeDemands(t, "Length,Quantity\n4,2\n3,4\n")
	pdfPath := filepath.Join(t.TempDir(), "cutlist.pdf")

	var out bytes.Buffer
	args := []string{"solve", "--raw-length", "10", "--available", "2", "--pdf", pdfPath, demands}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	table := out.String()
	for _, want := range []string{"METHOD", "optimal", "baseline", "PLAN (optimal)", "1x 4mm + 2x 3mm"} {
		if !strings.Contains(table, want) {
			t.Fatalf("expected %q in output:\n%s", want, table)
		}
	}

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatalf("expected PDF to be written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected PDF header")
	}
}

func TestRunSolveBaselineMethod(t *testing.T) {
	demands := writeDemands(t, "4,2\n3,4\n")

	var out bytes.Buffer
	args := []string{"solve", "--raw-length", "10", "--method", "baseline", demands}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "PLAN (baseline)") {
		t.Fatalf("expected baseline plan in output:\n%s", out.String())
	}
}

func TestRunSolveWithPseudoBooleanEngine(t *testing.T) {
	demands := writeDemands(t, "4,2\n3,4\n")

	var out bytes.Buffer
	args := []string{"solve", "--raw-length", "10", "--engine", "pseudo-boolean", demands}
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(out.String(), "1x 4mm + 2x 3mm") {
		t.Fatalf("expected the two-bar pattern in output:\n%s", out.String())
	}
}

func TestRunSolveRejectsBadInput(t *testing.T) {
	tests := map[string][]string{
		"piece longer than bar": {"solve", "--raw-length", "3", writeDemands(t, "4,2\n")},
		"unparseable rows":      {"solve", writeDemands(t, "Length,Quantity\nabc,1\n")},
		"invalid stock":         {"solve", "--raw-length", "10", "--waste-allowance", "10", writeDemands(t, "4,2\n")},
		"missing command":       {},
		"unknown method":        {"solve", "--method", "magic", writeDemands(t, "4,2\n")},
		"unknown engine":        {"solve", "--engine", "simplex", writeDemands(t, "4,2\n")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if err := run(context.Background(), args, &bytes.Buffer{}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRunTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	if err := run(context.Background(), []string{"template", path}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected template file, got %v", err)
	}
}

func TestPrintComparisonReportsFailure(t *testing.T) {
	cmp := cutting.Comparison{
		Stock:    cutting.RawStock{Length: 10},
		Demands:  []cutting.PieceDemand{{Length: 4, Quantity: 1}},
		Optimal:  cutting.Outcome{Err: cutting.ErrSolverFailure},
		Baseline: cutting.Outcome{Plan: cutting.SolutionPlan{Method: cutting.MethodBaseline, UsableLength: 10, TotalUnits: 1}},
	}

	var out bytes.Buffer
	if err := printComparison(&out, cmp, cmp.Optimal); err != nil {
		t.Fatalf("printComparison returned error: %v", err)
	}
	if !strings.Contains(out.String(), "failed:") {
		t.Fatalf("expected failure row:\n%s", out.String())
	}
	if strings.Contains(out.String(), "PLAN (") {
		t.Fatalf("did not expect a pattern table for a failed plan")
	}
}
