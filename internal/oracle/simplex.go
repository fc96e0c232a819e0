package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const defaultSimplexTolerance = 1e-10

// Simplex solves linear programs with gonum's dense simplex method. The
// shadow prices are obtained by solving the dual program explicitly, since
// the primal solve only exposes primal values.
type Simplex struct {
	tolerance float64
}

// SimplexOption configures a Simplex engine.
type SimplexOption func(*Simplex)

// WithTolerance overrides the reduced-cost tolerance handed to gonum.
func WithTolerance(tol float64) SimplexOption {
	return func(s *Simplex) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// NewSimplex creates a Simplex LP engine.
func NewSimplex(opts ...SimplexOption) *Simplex {
	s := &Simplex{tolerance: defaultSimplexTolerance}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SolveLP minimizes prog.Objective·x subject to prog.Constraints and x >= 0.
func (s *Simplex) SolveLP(ctx context.Context, prog LinearProgram) (LPResult, error) {
	if err := prog.Validate(); err != nil {
		return LPResult{Status: StatusError}, err
	}

	res, err := runWithContext(ctx, func() (LPResult, error) {
		return s.solve(prog)
	})
	if err != nil {
		return LPResult{Status: statusOf(err)}, err
	}
	return res, nil
}

// SolveIP is not supported by the simplex engine.
func (s *Simplex) SolveIP(_ context.Context, _ IntegerProgram) (IPResult, error) {
	return IPResult{Status: StatusError}, fmt.Errorf("%w: simplex engine does not solve integer programs", ErrMalformed)
}

// reduced holds the rows and columns that survive presolve.
type reduced struct {
	rows []int
	cols []int
}

func (s *Simplex) solve(prog LinearProgram) (LPResult, error) {
	red, err := s.presolve(prog)
	if err != nil {
		return LPResult{}, err
	}

	objective, primal, err := s.primal(prog, red)
	if err != nil {
		return LPResult{}, err
	}

	duals := make([]float64, len(prog.Constraints))
	if len(red.rows) > 0 {
		y, err := s.solveDual(prog, red)
		if err != nil {
			return LPResult{}, err
		}
		for k, i := range red.rows {
			duals[i] = clampZero(y[k], s.tolerance)
		}
	}

	return LPResult{
		Status:    StatusOptimal,
		Primal:    primal,
		Duals:     duals,
		Objective: objective,
	}, nil
}

// minimize solves prog without computing shadow prices.
func (s *Simplex) minimize(prog LinearProgram) (float64, []float64, error) {
	red, err := s.presolve(prog)
	if err != nil {
		return 0, nil, err
	}
	return s.primal(prog, red)
}

func (s *Simplex) primal(prog LinearProgram, red reduced) (float64, []float64, error) {
	primal := make([]float64, len(prog.Objective))
	if len(red.rows) == 0 {
		for _, j := range red.cols {
			if prog.Objective[j] < -s.tolerance {
				return 0, nil, ErrUnbounded
			}
		}
		return 0, primal, nil
	}

	objective, x, err := s.solvePrimal(prog, red)
	if err != nil {
		return 0, nil, err
	}
	for k, j := range red.cols {
		primal[j] = clampZero(x[k], s.tolerance)
	}
	return objective, primal, nil
}

// presolve drops empty rows and columns, which gonum rejects.
func (s *Simplex) presolve(prog LinearProgram) (reduced, error) {
	var red reduced
	for i, c := range prog.Constraints {
		empty := true
		for _, a := range c.Coefficients {
			if a != 0 {
				empty = false
				break
			}
		}
		if empty {
			if c.RHS > s.tolerance {
				return reduced{}, fmt.Errorf("%w: constraint %d cannot be met", ErrInfeasible, i)
			}
			continue
		}
		red.rows = append(red.rows, i)
	}

	for j := range prog.Objective {
		used := false
		for _, i := range red.rows {
			if prog.Constraints[i].Coefficients[j] != 0 {
				used = true
				break
			}
		}
		if !used {
			if prog.Objective[j] < -s.tolerance {
				return reduced{}, fmt.Errorf("%w: variable %d", ErrUnbounded, j)
			}
			continue
		}
		red.cols = append(red.cols, j)
	}
	return red, nil
}

// solvePrimal solves min c·x, A·x - s = b, x, s >= 0.
func (s *Simplex) solvePrimal(prog LinearProgram, red reduced) (float64, []float64, error) {
	m, n := len(red.rows), len(red.cols)
	A := mat.NewDense(m, n+m, nil)
	b := make([]float64, m)
	c := make([]float64, n+m)

	for k, j := range red.cols {
		c[k] = prog.Objective[j]
	}
	for r, i := range red.rows {
		sign := 1.0
		if prog.Constraints[i].RHS < 0 {
			sign = -1
		}
		for k, j := range red.cols {
			A.Set(r, k, sign*prog.Constraints[i].Coefficients[j])
		}
		A.Set(r, n+r, -sign)
		b[r] = sign * prog.Constraints[i].RHS
	}

	opt, x, err := lp.Simplex(c, A, b, s.tolerance, nil)
	if err != nil {
		return 0, nil, translateSimplexError(err)
	}
	return opt, x[:n], nil
}

// solveDual solves max b·y, Aᵀ·y + t = c, y, t >= 0 as a minimization.
func (s *Simplex) solveDual(prog LinearProgram, red reduced) ([]float64, error) {
	m, n := len(red.rows), len(red.cols)
	A := mat.NewDense(n, m+n, nil)
	b := make([]float64, n)
	c := make([]float64, m+n)

	for r, i := range red.rows {
		c[r] = -prog.Constraints[i].RHS
	}
	for k, j := range red.cols {
		sign := 1.0
		if prog.Objective[j] < 0 {
			sign = -1
		}
		for r, i := range red.rows {
			A.Set(k, r, sign*prog.Constraints[i].Coefficients[j])
		}
		A.Set(k, m+k, sign)
		b[k] = sign * prog.Objective[j]
	}

	_, y, err := lp.Simplex(c, A, b, s.tolerance, nil)
	if err != nil {
		// An unbounded dual means the primal is infeasible.
		if errors.Is(err, lp.ErrUnbounded) {
			return nil, ErrInfeasible
		}
		return nil, translateSimplexError(err)
	}
	return y[:m], nil
}

func translateSimplexError(err error) error {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return ErrInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return ErrUnbounded
	default:
		return fmt.Errorf("%w: %w", ErrNumerical, err)
	}
}

func clampZero(v, tol float64) float64 {
	if math.Abs(v) < tol {
		return 0
	}
	return v
}
