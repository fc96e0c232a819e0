package oracle

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	"github.com/crillab/gophersat/solver"
)

const (
	defaultObjectiveScale = 1e6
	// maxPBWeight keeps coefficient and cost sums clear of int overflow
	// inside the solver.
	maxPBWeight = 1 << 52
)

// PseudoBoolean solves bounded integer programs with gophersat. Every
// integer variable is expanded into its binary digits, rows become
// pseudo-boolean constraints and the objective becomes a weighted cost
// function over the digits. Digits are numbered in program order, so the
// same program always yields the same solver input.
//
// A cancelled solve returns at once, but gophersat ignores its stop channel
// and finishes the improvement loop in the background. Each search holds
// the engine's single slot until its goroutine exits, so at most one runs
// per engine and a new solve waits for it or for its own ctx.
type PseudoBoolean struct {
	scale float64
	slot  chan struct{}
}

// PseudoBooleanOption configures a PseudoBoolean engine.
type PseudoBooleanOption func(*PseudoBoolean)

// WithObjectiveScale sets the factor applied to fractional objective
// coefficients before they are rounded to integer weights.
func WithObjectiveScale(scale float64) PseudoBooleanOption {
	return func(p *PseudoBoolean) {
		if scale >= 1 {
			p.scale = scale
		}
	}
}

// NewPseudoBoolean creates a PseudoBoolean IP engine.
func NewPseudoBoolean(opts ...PseudoBooleanOption) *PseudoBoolean {
	p := &PseudoBoolean{scale: defaultObjectiveScale, slot: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SolveLP is not supported by the pseudo-boolean engine.
func (p *PseudoBoolean) SolveLP(_ context.Context, _ LinearProgram) (LPResult, error) {
	return LPResult{Status: StatusError}, fmt.Errorf("%w: pseudo-boolean engine does not solve linear programs", ErrMalformed)
}

// SolveIP finds an optimal integer assignment for prog.
func (p *PseudoBoolean) SolveIP(ctx context.Context, prog IntegerProgram) (IPResult, error) {
	if err := prog.Validate(); err != nil {
		return IPResult{Status: StatusError}, err
	}
	if err := ctx.Err(); err != nil {
		return IPResult{Status: StatusTimeout}, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	values, err := p.solve(ctx, prog)
	if err != nil {
		return IPResult{Status: statusOf(err)}, err
	}
	if !prog.Satisfied(values) {
		return IPResult{Status: StatusError}, fmt.Errorf("%w: engine returned an assignment violating the constraints", ErrNumerical)
	}

	return IPResult{
		Status:    StatusOptimal,
		Values:    values,
		Objective: prog.Evaluate(values),
	}, nil
}

// encoding maps integer variables to solver variables, one per binary digit.
type encoding struct {
	ids   [][]int
	count int
}

func newEncoding(upper []int) encoding {
	enc := encoding{ids: make([][]int, len(upper))}
	for j, u := range upper {
		width := bits.Len(uint(u))
		enc.ids[j] = make([]int, width)
		for k := range width {
			enc.count++
			enc.ids[j][k] = enc.count
		}
	}
	return enc
}

func (e encoding) decode(model []bool) []int {
	values := make([]int, len(e.ids))
	for j, digits := range e.ids {
		for k, id := range digits {
			if id-1 < len(model) && model[id-1] {
				values[j] += 1 << k
			}
		}
	}
	return values
}

func (p *PseudoBoolean) solve(ctx context.Context, prog IntegerProgram) ([]int, error) {
	enc := newEncoding(prog.Upper)

	constrs, err := hardConstraints(prog, enc)
	if err != nil {
		return nil, err
	}
	if len(constrs) == 0 {
		return unconstrainedOptimum(prog), nil
	}
	lits, weights, err := p.costFunction(prog, enc)
	if err != nil {
		return nil, err
	}

	// Every digit is declared up front so that cost-only digits are known
	// to the solver.
	declare := make([]int, enc.count)
	for id := range declare {
		declare[id] = id + 1
	}
	constrs = append([]solver.PBConstr{{Lits: declare, AtLeast: 0}}, constrs...)

	pb := solver.ParsePBConstrs(constrs)
	if pb.Status == solver.Unsat {
		return nil, ErrInfeasible
	}
	if len(lits) > 0 {
		pb.SetCostFunc(lits, weights)
	}
	model, err := p.optimal(ctx, solver.New(pb))
	if err != nil {
		return nil, err
	}
	return enc.decode(model), nil
}

// optimal runs the solver's improvement loop and returns the last model.
func (p *PseudoBoolean) optimal(ctx context.Context, s *solver.Solver) ([]bool, error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	results := make(chan solver.Result)
	stop := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		defer func() { <-p.slot }()
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("%w: engine panic: %v", ErrNumerical, rec)
			}
		}()
		s.Optimal(results, stop)
		done <- nil
	}()

	var model []bool
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return finish(model, <-done)
			}
			if res.Status == solver.Sat {
				model = res.Model
			}
		case err := <-done:
			for res := range results {
				if res.Status == solver.Sat {
					model = res.Model
				}
			}
			return finish(model, err)
		case <-ctx.Done():
			close(stop)
			// The solver blocks on its next result until someone reads it.
			go func() {
				for range results {
				}
			}()
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
	}
}

func finish(model []bool, err error) ([]bool, error) {
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, ErrInfeasible
	}
	return model, nil
}

func hardConstraints(prog IntegerProgram, enc encoding) ([]solver.PBConstr, error) {
	var constrs []solver.PBConstr

	for j, u := range prog.Upper {
		digits := enc.ids[j]
		if (1<<len(digits))-1 <= u {
			continue
		}
		lits := make([]int, len(digits))
		weights := make([]int, len(digits))
		for k, id := range digits {
			lits[k] = id
			weights[k] = -(1 << k)
		}
		constrs = append(constrs, solver.GtEq(lits, weights, -u))
	}

	for i, row := range prog.Constraints {
		sign := 1
		if row.Relation == LessOrEqual {
			sign = -1
		}
		var lits, weights []int
		total := 0
		for j, a := range row.Coefficients {
			if a == 0 {
				continue
			}
			for k, id := range enc.ids[j] {
				if absInt(a) > maxPBWeight>>k {
					return nil, fmt.Errorf("%w: constraint %d: coefficient %d overflows", ErrNumerical, i, a)
				}
				w := a << k
				total += absInt(w)
				if total > maxPBWeight {
					return nil, fmt.Errorf("%w: constraint %d: coefficients overflow", ErrNumerical, i)
				}
				lits = append(lits, id)
				weights = append(weights, sign*w)
			}
		}
		if absInt(row.RHS) > maxPBWeight {
			return nil, fmt.Errorf("%w: constraint %d: right-hand side overflows", ErrNumerical, i)
		}
		constrs = append(constrs, solver.GtEq(lits, weights, sign*row.RHS))
	}
	return constrs, nil
}

// costFunction turns the objective into solver literals whose total weight
// equals the scaled objective up to a constant.
func (p *PseudoBoolean) costFunction(prog IntegerProgram, enc encoding) ([]solver.Lit, []int, error) {
	scale := p.scale
	if integral(prog.Objective) {
		scale = 1
	}

	var lits []solver.Lit
	var weights []int
	for j, c := range prog.Objective {
		if prog.Sense == Maximize {
			c = -c
		}
		for k, id := range enc.ids[j] {
			w := math.Round(math.Abs(c) * scale * float64(int(1)<<k))
			if w == 0 {
				continue
			}
			if w > maxPBWeight {
				return nil, nil, fmt.Errorf("%w: objective coefficient %g overflows", ErrNumerical, c)
			}
			lit := id
			if c < 0 {
				// Cost is paid while the digit is unset.
				lit = -id
			}
			lits = append(lits, solver.IntToLit(int32(lit)))
			weights = append(weights, int(w))
		}
	}
	return lits, weights, nil
}

// unconstrainedOptimum solves a program whose only constraints are the
// variable bounds.
func unconstrainedOptimum(prog IntegerProgram) []int {
	values := make([]int, len(prog.Objective))
	for j, c := range prog.Objective {
		if prog.Sense == Maximize {
			c = -c
		}
		if c < 0 {
			values[j] = prog.Upper[j]
		}
	}
	return values
}

func integral(values []float64) bool {
	for _, v := range values {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
