package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Engine routes linear programs to LP and integer programs to IP.
type Engine struct {
	LP      Oracle
	IP      Oracle
	Timeout time.Duration
}

// EngineKind names an integer programming engine.
type EngineKind string

const (
	// BranchAndBoundEngine searches LP relaxations solved by the simplex.
	BranchAndBoundEngine EngineKind = "branch-and-bound"
	// PseudoBooleanEngine encodes programs for gophersat.
	PseudoBooleanEngine EngineKind = "pseudo-boolean"
)

// ParseEngineKind validates an engine name. The empty name selects
// branch and bound.
func ParseEngineKind(name string) (EngineKind, error) {
	switch kind := EngineKind(name); kind {
	case "":
		return BranchAndBoundEngine, nil
	case BranchAndBoundEngine, PseudoBooleanEngine:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown solver engine %q", name)
	}
}

// NewEngine pairs the gonum simplex with the integer engine named by kind.
// A positive timeout bounds every individual solve.
func NewEngine(kind EngineKind, timeout time.Duration) *Engine {
	var ip Oracle = NewBranchAndBound()
	if kind == PseudoBooleanEngine {
		ip = NewPseudoBoolean()
	}
	return &Engine{
		LP:      NewSimplex(),
		IP:      ip,
		Timeout: timeout,
	}
}

// NewDefault returns the simplex and branch-and-bound engine pair.
func NewDefault(timeout time.Duration) *Engine {
	return NewEngine(BranchAndBoundEngine, timeout)
}

// SolveLP implements Oracle.
func (e *Engine) SolveLP(ctx context.Context, prog LinearProgram) (LPResult, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.LP.SolveLP(ctx, prog)
}

// SolveIP implements Oracle.
func (e *Engine) SolveIP(ctx context.Context, prog IntegerProgram) (IPResult, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.IP.SolveIP(ctx, prog)
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.Timeout)
}

type serialized struct {
	mu    sync.Mutex
	inner Oracle
}

// Serialize wraps o so that at most one solve runs at a time. Use it for
// engines that are not safe for concurrent use.
func Serialize(o Oracle) Oracle {
	return &serialized{inner: o}
}

func (s *serialized) SolveLP(ctx context.Context, prog LinearProgram) (LPResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SolveLP(ctx, prog)
}

func (s *serialized) SolveIP(ctx context.Context, prog IntegerProgram) (IPResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SolveIP(ctx, prog)
}
