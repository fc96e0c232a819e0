package cutting

import "errors"

var (
	// ErrInvalidInput is returned before any solving when demands or the usable length are unusable.
	ErrInvalidInput = errors.New("invalid cutting input")
	// ErrSolverFailure is returned when the final integer program cannot be solved.
	ErrSolverFailure = errors.New("cutting plan could not be optimized")
)
