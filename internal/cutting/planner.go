package cutting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome is the result of one solver run.
type Outcome struct {
	Plan     SolutionPlan
	Duration time.Duration
	Err      error
}

// Comparison holds the optimized and baseline outcomes for the same input.
type Comparison struct {
	Stock    RawStock
	Demands  []PieceDemand
	Optimal  Outcome
	Baseline Outcome
}

// Recommended returns the outcome callers should act on: the optimized
// plan unless it failed or needs more bars than the baseline. fallback is
// true when the optimized plan failed.
func (c Comparison) Recommended() (outcome Outcome, fallback bool) {
	if c.Optimal.Err != nil {
		return c.Baseline, true
	}
	if c.Baseline.Err == nil && c.Baseline.Plan.TotalUnits < c.Optimal.Plan.TotalUnits {
		return c.Baseline, false
	}
	return c.Optimal, false
}

// Planner runs the optimized solver and the baseline side by side.
type Planner struct {
	optimal  Solver
	baseline Solver
	logger   *zap.Logger
}

// NewPlanner creates a planner. A nil logger disables logging.
func NewPlanner(optimal, baseline Solver, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{optimal: optimal, baseline: baseline, logger: logger}
}

// Plan validates the input and solves it with both solvers concurrently.
// Invalid input is returned as an error; solver failures are reported in
// the matching Outcome.
func (p *Planner) Plan(ctx context.Context, demands []PieceDemand, stock RawStock) (Comparison, error) {
	usable := stock.UsableLength()
	if err := Validate(demands, usable); err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{
		Stock:   stock,
		Demands: append([]PieceDemand(nil), demands...),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cmp.Optimal = run(ctx, p.optimal, demands, usable)
	}()
	go func() {
		defer wg.Done()
		cmp.Baseline = run(ctx, p.baseline, demands, usable)
	}()
	wg.Wait()

	fields := []zap.Field{
		zap.Int("rows", len(demands)),
		zap.Int("usable_length", usable),
		zap.Int("baseline_units", cmp.Baseline.Plan.TotalUnits),
		zap.Duration("baseline_duration", cmp.Baseline.Duration),
		zap.Duration("optimal_duration", cmp.Optimal.Duration),
	}
	if cmp.Optimal.Err != nil {
		p.logger.Warn("optimized plan failed, baseline available", append(fields, zap.Error(cmp.Optimal.Err))...)
	} else {
		p.logger.Info("plans computed", append(fields, zap.Int("optimal_units", cmp.Optimal.Plan.TotalUnits))...)
	}
	return cmp, nil
}

func run(ctx context.Context, s Solver, demands []PieceDemand, usable int) Outcome {
	start := time.Now()
	plan, err := s.Solve(ctx, demands, usable)
	return Outcome{Plan: plan, Duration: time.Since(start), Err: err}
}
