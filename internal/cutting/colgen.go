package cutting

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-cutter/internal/oracle"
)

const (
	// DefaultMaxIterations bounds the pattern generation loop.
	DefaultMaxIterations = 300
	// DefaultEpsilon is the reduced-cost tolerance of the stopping rule.
	DefaultEpsilon = 1e-7
)

// ColumnGeneration solves the cutting-stock problem with Gilmore-Gomory
// column generation followed by an integer program over the generated
// patterns. It holds no per-solve state and is safe for concurrent use as
// long as its oracle is.
type ColumnGeneration struct {
	oracle        oracle.Oracle
	maxIterations int
	epsilon       float64
	logger        *zap.Logger
}

// Option configures a ColumnGeneration solver.
type Option func(*ColumnGeneration)

// WithMaxIterations overrides the iteration cap. Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(c *ColumnGeneration) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithEpsilon overrides the reduced-cost tolerance.
func WithEpsilon(eps float64) Option {
	return func(c *ColumnGeneration) {
		if eps >= 0 {
			c.epsilon = eps
		}
	}
}

// WithLogger attaches a logger for loop diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ColumnGeneration) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewColumnGeneration creates a solver that delegates LP and IP solves to o.
func NewColumnGeneration(o oracle.Oracle, opts ...Option) *ColumnGeneration {
	c := &ColumnGeneration{
		oracle:        o,
		maxIterations: DefaultMaxIterations,
		epsilon:       DefaultEpsilon,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Solve computes a plan that covers demands using bars of usableLength.
func (c *ColumnGeneration) Solve(ctx context.Context, demands []PieceDemand, usableLength int) (SolutionPlan, error) {
	set, err := normalize(demands, usableLength)
	if err != nil {
		return SolutionPlan{}, err
	}

	plan := SolutionPlan{
		Method:       MethodOptimal,
		UsableLength: usableLength,
		Patterns:     []PlannedPattern{},
	}
	if len(set.lengths) == 0 {
		plan.Generation = &GenerationStats{Termination: TerminationConverged, ProvenOptimal: true}
		return plan, nil
	}

	patterns, stats := c.generate(ctx, set)
	patterns, start := withFirstFit(set, patterns)
	plan.Generation = &stats

	counts, proven, err := c.solveFinal(ctx, set, patterns, start)
	if err != nil {
		return SolutionPlan{}, fmt.Errorf("%w: %w", ErrSolverFailure, err)
	}
	stats.ProvenOptimal = proven

	for j, n := range counts {
		if n <= 0 {
			continue
		}
		plan.Patterns = append(plan.Patterns, aggregate(set.lengths, patterns[j], n, usableLength))
		plan.TotalUnits += n
	}
	if !plan.Covers(demands) {
		return SolutionPlan{}, fmt.Errorf("%w: integer solution does not cover demand", ErrSolverFailure)
	}

	c.logger.Debug("column generation finished",
		zap.Int("units", plan.TotalUnits),
		zap.Int("patterns", stats.Patterns),
		zap.String("termination", string(stats.Termination)),
	)
	return plan, nil
}

// generate runs the pricing loop and returns the accumulated patterns.
func (c *ColumnGeneration) generate(ctx context.Context, set demandSet) ([]pattern, GenerationStats) {
	n := len(set.lengths)
	patterns := make([]pattern, 0, n)
	seen := make(map[string]struct{}, n)
	for i := range set.lengths {
		p := make(pattern, n)
		p[i] = 1
		patterns = append(patterns, p)
		seen[p.key(set.lengths)] = struct{}{}
	}

	stats := GenerationStats{Termination: TerminationIterationCap}
	lpObjective := 0.0

	for stats.Iterations < c.maxIterations {
		stats.Iterations++

		master, err := c.oracle.SolveLP(ctx, masterProgram(set, patterns))
		if err == nil && len(master.Duals) != n {
			err = fmt.Errorf("%w: got %d duals for %d rows", oracle.ErrMalformed, len(master.Duals), n)
		}
		if err != nil {
			stats.Termination = TerminationMasterFailed
			c.stopEarly(stats, err)
			break
		}
		lpObjective = master.Objective

		priced, err := c.oracle.SolveIP(ctx, pricingProgram(set, master.Duals))
		if err == nil && len(priced.Values) != n {
			err = fmt.Errorf("%w: got %d values for %d lengths", oracle.ErrMalformed, len(priced.Values), n)
		}
		if err != nil {
			stats.Termination = TerminationPricingFailed
			c.stopEarly(stats, err)
			break
		}

		gap := 1 - priced.Objective
		c.logger.Debug("pricing solved",
			zap.Int("iteration", stats.Iterations),
			zap.Float64("master_objective", master.Objective),
			zap.Float64("reduced_cost_gap", gap),
		)
		if gap >= -c.epsilon {
			stats.Termination = TerminationConverged
			break
		}

		candidate := pattern(append([]int(nil), priced.Values...))
		if candidate.empty() || candidate.used(set.lengths) > set.usable {
			stats.Termination = TerminationPricingFailed
			c.stopEarly(stats, fmt.Errorf("%w: pricing returned an unusable pattern", oracle.ErrMalformed))
			break
		}
		key := candidate.key(set.lengths)
		if _, ok := seen[key]; ok {
			stats.Termination = TerminationRepeated
			c.stopEarly(stats, nil)
			break
		}
		seen[key] = struct{}{}
		patterns = append(patterns, candidate)
	}

	if stats.Termination == TerminationIterationCap {
		c.stopEarly(stats, nil)
	}
	if stats.Termination == TerminationConverged {
		stats.LowerBound = int(math.Ceil(lpObjective - 1e-9))
	}
	stats.Patterns = len(patterns)
	return patterns, stats
}

func (c *ColumnGeneration) stopEarly(stats GenerationStats, err error) {
	fields := []zap.Field{
		zap.Int("iteration", stats.Iterations),
		zap.String("termination", string(stats.Termination)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Warn("column generation stopped early", fields...)
}

func (c *ColumnGeneration) solveFinal(ctx context.Context, set demandSet, patterns []pattern, start []int) ([]int, bool, error) {
	prog := finalProgram(set, patterns)
	prog.Start = start
	res, err := c.oracle.SolveIP(ctx, prog)
	if err != nil {
		return nil, false, fmt.Errorf("final integer program: %w", err)
	}
	if (res.Status != oracle.StatusOptimal && res.Status != oracle.StatusFeasible) || len(res.Values) != len(patterns) {
		return nil, false, fmt.Errorf("final integer program: status %s with %d values", res.Status, len(res.Values))
	}
	if res.Status == oracle.StatusFeasible {
		c.logger.Warn("final integer program stopped before proving optimality",
			zap.Float64("objective", res.Objective),
		)
	}
	return res.Values, res.Status == oracle.StatusOptimal, nil
}

// withFirstFit adds the first-fit-decreasing bars as extra columns and
// returns their repeat counts, a feasible start for the final program.
func withFirstFit(set demandSet, patterns []pattern) ([]pattern, []int) {
	index := make(map[string]int, len(patterns))
	for j, p := range patterns {
		index[p.key(set.lengths)] = j
	}
	start := make([]int, len(patterns))
	for _, bar := range firstFit(set) {
		key := bar.counts.key(set.lengths)
		j, ok := index[key]
		if !ok {
			j = len(patterns)
			index[key] = j
			patterns = append(patterns, bar.counts)
			start = append(start, 0)
		}
		start[j]++
	}
	return patterns, start
}

// masterProgram is the restricted master LP: minimize the number of bars
// subject to covering every demanded quantity.
func masterProgram(set demandSet, patterns []pattern) oracle.LinearProgram {
	prog := oracle.LinearProgram{
		Objective:   make([]float64, len(patterns)),
		Constraints: make([]oracle.Constraint, len(set.lengths)),
	}
	for j := range patterns {
		prog.Objective[j] = 1
	}
	for i, q := range set.quantities {
		row := make([]float64, len(patterns))
		for j, p := range patterns {
			row[j] = float64(p[i])
		}
		prog.Constraints[i] = oracle.Constraint{Coefficients: row, RHS: float64(q)}
	}
	return prog
}

// pricingProgram is the integer knapsack that finds the pattern with the
// highest total dual value fitting in one bar.
func pricingProgram(set demandSet, duals []float64) oracle.IntegerProgram {
	n := len(set.lengths)
	prog := oracle.IntegerProgram{
		Sense:     oracle.Maximize,
		Objective: append([]float64(nil), duals...),
		Constraints: []oracle.IntConstraint{{
			Coefficients: append([]int(nil), set.lengths...),
			Relation:     oracle.LessOrEqual,
			RHS:          set.usable,
		}},
		Upper: make([]int, n),
	}
	for i, l := range set.lengths {
		prog.Upper[i] = set.usable / l
	}
	return prog
}

// finalProgram is the master problem with integral repeat counts.
func finalProgram(set demandSet, patterns []pattern) oracle.IntegerProgram {
	prog := oracle.IntegerProgram{
		Sense:       oracle.Minimize,
		Objective:   make([]float64, len(patterns)),
		Constraints: make([]oracle.IntConstraint, len(set.lengths)),
		Upper:       make([]int, len(patterns)),
	}
	for j, p := range patterns {
		prog.Objective[j] = 1
		for i, q := range set.quantities {
			if p[i] > 0 {
				prog.Upper[j] = max(prog.Upper[j], (q+p[i]-1)/p[i])
			}
		}
	}
	for i, q := range set.quantities {
		row := make([]int, len(patterns))
		for j, p := range patterns {
			row[j] = p[i]
		}
		prog.Constraints[i] = oracle.IntConstraint{Coefficients: row, Relation: oracle.GreaterOrEqual, RHS: q}
	}
	return prog
}
