package oracle

import "errors"

var (
	// ErrInfeasible is returned when no solution satisfies the constraints.
	ErrInfeasible = errors.New("program is infeasible")
	// ErrUnbounded is returned when the objective can improve without limit.
	ErrUnbounded = errors.New("program is unbounded")
	// ErrTimeout is returned when a solve does not finish before its deadline.
	ErrTimeout = errors.New("solver timed out")
	// ErrMalformed is returned for programs with inconsistent dimensions.
	ErrMalformed = errors.New("malformed program")
	// ErrNumerical is returned when the engine fails for numerical reasons.
	ErrNumerical = errors.New("numerical failure while solving")
	// ErrSearchLimit is returned when an integer search exhausts its node
	// budget without finding any feasible solution.
	ErrSearchLimit = errors.New("search limit reached without a feasible solution")
)

// statusOf maps an error returned by an engine to the Status reported to callers.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOptimal
	case errors.Is(err, ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, ErrUnbounded):
		return StatusUnbounded
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	default:
		return StatusError
	}
}
