package oracle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

const (
	defaultNodeLimit = 2000
	integralityTol   = 1e-6
	pruneTol         = 1e-9
	repairLimit      = 10_000
)

// BranchAndBound solves bounded integer programs by depth-first branch and
// bound over LP relaxations solved with the gonum simplex. Single-row
// knapsacks are solved exactly by dynamic programming instead.
//
// The search runs in the calling goroutine and checks ctx between nodes, so
// a cancelled solve stops within one relaxation. When the node budget or
// ctx runs out after a feasible solution was found, that solution is
// returned with StatusFeasible.
type BranchAndBound struct {
	lp        *Simplex
	nodeLimit int
}

// BranchAndBoundOption configures a BranchAndBound engine.
type BranchAndBoundOption func(*BranchAndBound)

// WithNodeLimit bounds the number of relaxations solved per program.
func WithNodeLimit(n int) BranchAndBoundOption {
	return func(b *BranchAndBound) {
		if n > 0 {
			b.nodeLimit = n
		}
	}
}

// NewBranchAndBound creates a BranchAndBound IP engine.
func NewBranchAndBound(opts ...BranchAndBoundOption) *BranchAndBound {
	b := &BranchAndBound{lp: NewSimplex(), nodeLimit: defaultNodeLimit}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SolveLP delegates to the simplex engine used for the relaxations.
func (b *BranchAndBound) SolveLP(ctx context.Context, prog LinearProgram) (LPResult, error) {
	return b.lp.SolveLP(ctx, prog)
}

// SolveIP finds an optimal integer assignment for prog.
func (b *BranchAndBound) SolveIP(ctx context.Context, prog IntegerProgram) (IPResult, error) {
	if err := prog.Validate(); err != nil {
		return IPResult{Status: StatusError}, err
	}
	if err := ctx.Err(); err != nil {
		return IPResult{Status: StatusTimeout}, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	if ks, ok := asKnapsack(prog); ok {
		values := ks.solve()
		return IPResult{Status: StatusOptimal, Values: values, Objective: prog.Evaluate(values)}, nil
	}

	values, status, err := newSearch(b.lp, prog).run(ctx, b.nodeLimit)
	if err != nil {
		return IPResult{Status: status}, err
	}
	return IPResult{Status: status, Values: values, Objective: prog.Evaluate(values)}, nil
}

// node is a subproblem: the program with tightened variable bounds.
type node struct {
	lo, hi []int
	// bound is the relaxation value of the parent, in minimization form.
	bound float64
}

func (n node) child(j, lo, hi int) node {
	c := node{lo: slices.Clone(n.lo), hi: slices.Clone(n.hi), bound: n.bound}
	c.lo[j], c.hi[j] = lo, hi
	return c
}

type search struct {
	prog     IntegerProgram
	lp       *Simplex
	cost     []float64
	integral bool

	best     []int
	bestCost float64
	inexact  bool
}

func newSearch(lp *Simplex, prog IntegerProgram) *search {
	cost := slices.Clone(prog.Objective)
	if prog.Sense == Maximize {
		for j := range cost {
			cost[j] = -cost[j]
		}
	}
	return &search{prog: prog, lp: lp, cost: cost, integral: integral(cost)}
}

func (s *search) run(ctx context.Context, limit int) ([]int, Status, error) {
	if s.prog.Start != nil {
		s.offer(s.prog.Start)
	}

	root := node{
		lo:    make([]int, len(s.cost)),
		hi:    slices.Clone(s.prog.Upper),
		bound: math.Inf(-1),
	}
	stack := []node{root}
	solved := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return s.stop(fmt.Errorf("%w: %w", ErrTimeout, err))
		}
		if solved >= limit {
			return s.stop(fmt.Errorf("%w: %d nodes", ErrSearchLimit, limit))
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.prunes(nd.bound) {
			continue
		}

		solved++
		obj, x, err := s.relax(nd)
		switch {
		case errors.Is(err, ErrInfeasible):
			continue
		case err != nil:
			s.inexact = true
			continue
		}
		if s.prunes(obj) {
			continue
		}

		j := s.branchVariable(x)
		if j < 0 {
			s.offer(roundAll(x, nd))
			continue
		}
		s.offer(s.repair(x, nd))
		if s.prunes(obj) {
			continue
		}

		floor := int(math.Floor(x[j]))
		down := nd.child(j, nd.lo[j], floor)
		up := nd.child(j, floor+1, nd.hi[j])
		down.bound, up.bound = obj, obj
		// The up branch is explored first.
		stack = append(stack, down, up)
	}

	if s.best == nil {
		if s.inexact {
			return nil, StatusError, fmt.Errorf("%w: no relaxation could be solved", ErrNumerical)
		}
		return nil, StatusInfeasible, ErrInfeasible
	}
	if s.inexact {
		return s.best, StatusFeasible, nil
	}
	return s.best, StatusOptimal, nil
}

func (s *search) stop(err error) ([]int, Status, error) {
	if s.best != nil {
		return s.best, StatusFeasible, nil
	}
	return nil, statusOf(err), err
}

// prunes reports whether a subproblem whose relaxation is worth bound can
// still improve on the incumbent.
func (s *search) prunes(bound float64) bool {
	if s.best == nil || math.IsInf(bound, -1) {
		return false
	}
	if s.integral {
		return math.Ceil(bound-integralityTol) >= s.bestCost-pruneTol
	}
	return bound >= s.bestCost-pruneTol
}

func (s *search) offer(values []int) {
	if values == nil || !s.prog.Satisfied(values) {
		return
	}
	cost := 0.0
	for j, v := range values {
		cost += s.cost[j] * float64(v)
	}
	if s.best == nil || cost < s.bestCost-pruneTol {
		s.best = slices.Clone(values)
		s.bestCost = cost
	}
}

// relax solves the LP relaxation of nd in minimization form. Upper bound
// rows are added only for variables that can push the objective down or
// that the relaxation drives past their bound.
func (s *search) relax(nd node) (obj float64, x []float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: simplex panic: %v", ErrNumerical, rec)
		}
	}()

	n := len(s.cost)
	bounded := make([]bool, n)
	for j := range n {
		bounded[j] = s.cost[j] < 0 || nd.hi[j] < s.prog.Upper[j] || nd.hi[j] == 0
	}

	for range n + 1 {
		obj, x, err = s.lp.minimize(s.relaxation(nd, bounded))
		if err != nil {
			return 0, nil, err
		}
		added := false
		for j, v := range x {
			if !bounded[j] && v > float64(nd.hi[j])+integralityTol {
				bounded[j] = true
				added = true
			}
		}
		if !added {
			return obj, x, nil
		}
	}
	return obj, x, nil
}

func (s *search) relaxation(nd node, bounded []bool) LinearProgram {
	n := len(s.cost)
	lp := LinearProgram{Objective: s.cost}
	for _, c := range s.prog.Constraints {
		row := make([]float64, n)
		sign := 1.0
		if c.Relation == LessOrEqual {
			sign = -1
		}
		for j, a := range c.Coefficients {
			row[j] = sign * float64(a)
		}
		lp.Constraints = append(lp.Constraints, Constraint{Coefficients: row, RHS: sign * float64(c.RHS)})
	}
	for j := range n {
		if nd.lo[j] > 0 {
			row := make([]float64, n)
			row[j] = 1
			lp.Constraints = append(lp.Constraints, Constraint{Coefficients: row, RHS: float64(nd.lo[j])})
		}
		if bounded[j] {
			row := make([]float64, n)
			row[j] = -1
			lp.Constraints = append(lp.Constraints, Constraint{Coefficients: row, RHS: -float64(nd.hi[j])})
		}
	}
	return lp
}

// branchVariable returns the most fractional variable, or -1 when x is
// integral.
func (s *search) branchVariable(x []float64) int {
	best, bestFrac := -1, integralityTol
	for j, v := range x {
		frac := math.Abs(v - math.Round(v))
		if frac > bestFrac {
			best, bestFrac = j, frac
		}
	}
	return best
}

// repair rounds x down and then moves single variables until every row
// holds, trimming surplus afterwards.
func (s *search) repair(x []float64, nd node) []int {
	values := make([]int, len(x))
	for j, v := range x {
		values[j] = clamp(int(math.Floor(v+integralityTol)), nd.lo[j], nd.hi[j])
	}

	// Variables with the largest fractional part are raised first.
	order := make([]int, len(x))
	for j := range order {
		order[j] = j
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(x[b]-math.Floor(x[b]), x[a]-math.Floor(x[a]))
	})

	for guard := 0; guard < repairLimit; guard++ {
		i := s.violatedRow(values)
		if i < 0 {
			break
		}
		if !s.repairRow(i, values, nd, order) {
			return nil
		}
	}

	for _, j := range slices.Backward(order) {
		for s.cost[j] > 0 && values[j] > nd.lo[j] {
			values[j]--
			if s.violatedRow(values) >= 0 {
				values[j]++
				break
			}
		}
	}
	return values
}

func (s *search) violatedRow(values []int) int {
	for i, c := range s.prog.Constraints {
		if !c.holds(values) {
			return i
		}
	}
	return -1
}

// repairRow moves the variable with the largest useful coefficient one
// step towards satisfying row i.
func (s *search) repairRow(i int, values []int, nd node, order []int) bool {
	c := s.prog.Constraints[i]
	pick, step, weight := -1, 0, 0
	for _, j := range order {
		a := c.Coefficients[j]
		if c.Relation == LessOrEqual {
			a = -a
		}
		switch {
		case a > weight && values[j] < nd.hi[j]:
			pick, step, weight = j, 1, a
		case -a > weight && values[j] > nd.lo[j]:
			pick, step, weight = j, -1, -a
		}
	}
	if pick < 0 {
		return false
	}
	values[pick] += step
	return true
}

func roundAll(x []float64, nd node) []int {
	values := make([]int, len(x))
	for j, v := range x {
		values[j] = clamp(int(math.Round(v)), nd.lo[j], nd.hi[j])
	}
	return values
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
