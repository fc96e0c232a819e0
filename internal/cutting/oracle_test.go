package cutting

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/eugenenazirov/stock-cutter/internal/oracle"
)

// exactOracle is deterministic: gonum simplex for linear programs and an
// exhaustive search, keeping the first best assignment, for integer ones.
type exactOracle struct {
	lp oracle.Oracle
}

func newExactOracle() *exactOracle {
	return &exactOracle{lp: oracle.NewSimplex()}
}

func (e *exactOracle) SolveLP(ctx context.Context, prog oracle.LinearProgram) (oracle.LPResult, error) {
	return e.lp.SolveLP(ctx, prog)
}

const maxEnumerated = 2_000_000

func (e *exactOracle) SolveIP(_ context.Context, prog oracle.IntegerProgram) (oracle.IPResult, error) {
	if err := prog.Validate(); err != nil {
		return oracle.IPResult{Status: oracle.StatusError}, err
	}
	space := 1
	for _, u := range prog.Upper {
		space *= u + 1
		if space > maxEnumerated {
			return oracle.IPResult{Status: oracle.StatusError}, fmt.Errorf("%w: search space too large", oracle.ErrMalformed)
		}
	}

	values := make([]int, len(prog.Objective))
	var best []int
	bestObj := 0.0
	better := func(obj float64) bool {
		if best == nil {
			return true
		}
		if prog.Sense == oracle.Maximize {
			return obj > bestObj+1e-12
		}
		return obj < bestObj-1e-12
	}

	var walk func(j int)
	walk = func(j int) {
		if j == len(values) {
			if !prog.Satisfied(values) {
				return
			}
			if obj := prog.Evaluate(values); better(obj) {
				best = append([]int(nil), values...)
				bestObj = obj
			}
			return
		}
		for v := 0; v <= prog.Upper[j]; v++ {
			values[j] = v
			walk(j + 1)
		}
		values[j] = 0
	}
	walk(0)

	if best == nil {
		return oracle.IPResult{Status: oracle.StatusInfeasible}, oracle.ErrInfeasible
	}
	return oracle.IPResult{Status: oracle.StatusOptimal, Values: best, Objective: bestObj}, nil
}

// scriptedOracle delegates to an exact oracle but lets a test replace
// individual calls, numbered from 1 per program kind.
type scriptedOracle struct {
	exact   *exactOracle
	lpCalls atomic.Int32
	ipCalls atomic.Int32
	lp      func(call int) (oracle.LPResult, bool, error)
	ip      func(call int, prog oracle.IntegerProgram) (oracle.IPResult, bool, error)
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{exact: newExactOracle()}
}

func (s *scriptedOracle) SolveLP(ctx context.Context, prog oracle.LinearProgram) (oracle.LPResult, error) {
	call := int(s.lpCalls.Add(1))
	if s.lp != nil {
		if res, ok, err := s.lp(call); ok {
			return res, err
		}
	}
	return s.exact.SolveLP(ctx, prog)
}

func (s *scriptedOracle) SolveIP(ctx context.Context, prog oracle.IntegerProgram) (oracle.IPResult, error) {
	call := int(s.ipCalls.Add(1))
	if s.ip != nil {
		if res, ok, err := s.ip(call, prog); ok {
			return res, err
		}
	}
	return s.exact.SolveIP(ctx, prog)
}

func (s *scriptedOracle) calls() int {
	return int(s.lpCalls.Load() + s.ipCalls.Load())
}

var errEngineDown = errors.New("engine unavailable")

func failLP(int) (oracle.LPResult, bool, error) {
	return oracle.LPResult{Status: oracle.StatusError}, true, errEngineDown
}

// failPricing fails every knapsack and lets final programs through.
func failPricing(_ int, prog oracle.IntegerProgram) (oracle.IPResult, bool, error) {
	if prog.Sense == oracle.Maximize {
		return oracle.IPResult{Status: oracle.StatusTimeout}, true, oracle.ErrTimeout
	}
	return oracle.IPResult{}, false, nil
}

func failAllIP(int, oracle.IntegerProgram) (oracle.IPResult, bool, error) {
	return oracle.IPResult{Status: oracle.StatusInfeasible}, true, oracle.ErrInfeasible
}

// priceAs makes every knapsack return values with the given objective.
func priceAs(values []int, objective float64) func(int, oracle.IntegerProgram) (oracle.IPResult, bool, error) {
	return func(_ int, prog oracle.IntegerProgram) (oracle.IPResult, bool, error) {
		if prog.Sense != oracle.Maximize {
			return oracle.IPResult{}, false, nil
		}
		return oracle.IPResult{Status: oracle.StatusOptimal, Values: append([]int(nil), values...), Objective: objective}, true, nil
	}
}
