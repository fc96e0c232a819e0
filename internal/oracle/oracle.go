package oracle

import (
	"context"
	"fmt"
)

// Status reports how a solve ended.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusError
	StatusTimeout
	// StatusFeasible marks an integer solution that satisfies every
	// constraint but was not proven optimal before the search stopped.
	StatusFeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeout:
		return "timeout"
	case StatusFeasible:
		return "feasible"
	default:
		return "error"
	}
}

// Sense is the optimization direction of an integer program.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Relation is the comparison used by an integer constraint row.
type Relation int

const (
	GreaterOrEqual Relation = iota
	LessOrEqual
)

// Constraint is a row of a linear program: Coefficients·x >= RHS.
type Constraint struct {
	Coefficients []float64
	RHS          float64
}

// LinearProgram describes: minimize Objective·x subject to every
// Constraint and x >= 0.
type LinearProgram struct {
	Objective   []float64
	Constraints []Constraint
}

// LPResult carries the primal solution and one dual (shadow) price per
// constraint, in constraint order.
type LPResult struct {
	Status    Status
	Primal    []float64
	Duals     []float64
	Objective float64
}

// IntConstraint is a row of an integer program with integral coefficients.
type IntConstraint struct {
	Coefficients []int
	Relation     Relation
	RHS          int
}

// IntegerProgram describes an optimization over integers 0 <= x[j] <= Upper[j].
// Start optionally carries a known feasible assignment; engines that use it
// never return anything worse.
type IntegerProgram struct {
	Sense       Sense
	Objective   []float64
	Constraints []IntConstraint
	Upper       []int
	Start       []int
}

// IPResult carries the integer solution of an IntegerProgram.
type IPResult struct {
	Status    Status
	Values    []int
	Objective float64
}

// Oracle solves linear and integer programs. Any outcome other than
// StatusOptimal or StatusFeasible is returned together with a non-nil error.
type Oracle interface {
	SolveLP(ctx context.Context, prog LinearProgram) (LPResult, error)
	SolveIP(ctx context.Context, prog IntegerProgram) (IPResult, error)
}

// Validate checks that the program dimensions are consistent.
func (p LinearProgram) Validate() error {
	n := len(p.Objective)
	if n == 0 {
		return fmt.Errorf("%w: no variables", ErrMalformed)
	}
	for i, c := range p.Constraints {
		if len(c.Coefficients) != n {
			return fmt.Errorf("%w: constraint %d has %d coefficients, want %d", ErrMalformed, i, len(c.Coefficients), n)
		}
	}
	return nil
}

// Validate checks that the program dimensions and bounds are consistent.
func (p IntegerProgram) Validate() error {
	n := len(p.Objective)
	if len(p.Upper) != n {
		return fmt.Errorf("%w: %d upper bounds for %d variables", ErrMalformed, len(p.Upper), n)
	}
	for j, u := range p.Upper {
		if u < 0 {
			return fmt.Errorf("%w: negative upper bound for variable %d", ErrMalformed, j)
		}
	}
	for i, c := range p.Constraints {
		if len(c.Coefficients) != n {
			return fmt.Errorf("%w: constraint %d has %d coefficients, want %d", ErrMalformed, i, len(c.Coefficients), n)
		}
	}
	if p.Start != nil && len(p.Start) != n {
		return fmt.Errorf("%w: start has %d values for %d variables", ErrMalformed, len(p.Start), n)
	}
	return nil
}

// Evaluate returns Objective·values.
func (p IntegerProgram) Evaluate(values []int) float64 {
	total := 0.0
	for j, v := range values {
		total += p.Objective[j] * float64(v)
	}
	return total
}

// Satisfied reports whether values meet every constraint and bound.
func (p IntegerProgram) Satisfied(values []int) bool {
	if len(values) != len(p.Objective) {
		return false
	}
	for j, v := range values {
		if v < 0 || v > p.Upper[j] {
			return false
		}
	}
	for _, c := range p.Constraints {
		if !c.holds(values) {
			return false
		}
	}
	return true
}

func (c IntConstraint) activity(values []int) int {
	lhs := 0
	for j, coef := range c.Coefficients {
		lhs += coef * values[j]
	}
	return lhs
}

func (c IntConstraint) holds(values []int) bool {
	lhs := c.activity(values)
	if c.Relation == GreaterOrEqual {
		return lhs >= c.RHS
	}
	return lhs <= c.RHS
}
