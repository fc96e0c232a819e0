package oracle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// masterProgram is the restricted master LP for 4x1500 and 3x2000 on a 6000
// unit, with trivial patterns plus [4,0] and [0,3].
func masterProgram() LinearProgram {
	return LinearProgram{
		Objective: []float64{1, 1, 1, 1},
		Constraints: []Constraint{
			{Coefficients: []float64{1, 0, 4, 0}, RHS: 4},
			{Coefficients: []float64{0, 1, 0, 3}, RHS: 3},
		},
	}
}

func TestSimplexMasterProgram(t *testing.T) {
	t.Parallel()

	res, err := NewSimplex().SolveLP(context.Background(), masterProgram())
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, 2.0, res.Objective, 1e-9)
	require.Len(t, res.Duals, 2)
	assert.InDelta(t, 0.25, res.Duals[0], 1e-9)
	assert.InDelta(t, 1.0/3.0, res.Duals[1], 1e-9)
	require.Len(t, res.Primal, 4)
	assert.InDelta(t, 1.0, res.Primal[2], 1e-9)
	assert.InDelta(t, 1.0, res.Primal[3], 1e-9)
}

func TestSimplexTrivialPatterns(t *testing.T) {
	t.Parallel()

	prog := LinearProgram{
		Objective: []float64{1, 1},
		Constraints: []Constraint{
			{Coefficients: []float64{1, 0}, RHS: 4},
			{Coefficients: []float64{0, 1}, RHS: 3},
		},
	}
	res, err := NewSimplex(WithTolerance(1e-9)).SolveLP(context.Background(), prog)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, res.Objective, 1e-9)
	assert.InDelta(t, 1.0, res.Duals[0], 1e-9)
	assert.InDelta(t, 1.0, res.Duals[1], 1e-9)
}

func TestSimplexFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prog   LinearProgram
		err    error
		status Status
	}{
		{
			name: "infeasible row",
			prog: LinearProgram{
				Objective:   []float64{1},
				Constraints: []Constraint{{Coefficients: []float64{-1}, RHS: 1}},
			},
			err:    ErrInfeasible,
			status: StatusInfeasible,
		},
		{
			name: "empty row with positive demand",
			prog: LinearProgram{
				Objective:   []float64{1, 1},
				Constraints: []Constraint{{Coefficients: []float64{0, 0}, RHS: 2}},
			},
			err:    ErrInfeasible,
			status: StatusInfeasible,
		},
		{
			name: "unbounded",
			prog: LinearProgram{
				Objective:   []float64{-1},
				Constraints: []Constraint{{Coefficients: []float64{1}, RHS: 1}},
			},
			err:    ErrUnbounded,
			status: StatusUnbounded,
		},
		{
			name: "dimension mismatch",
			prog: LinearProgram{
				Objective:   []float64{1, 1},
				Constraints: []Constraint{{Coefficients: []float64{1}, RHS: 1}},
			},
			err:    ErrMalformed,
			status: StatusError,
		},
		{
			name:   "no variables",
			prog:   LinearProgram{},
			err:    ErrMalformed,
			status: StatusError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res, err := NewSimplex().SolveLP(context.Background(), tc.prog)
			require.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.status, res.Status)
		})
	}
}

func TestSimplexCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewSimplex().SolveLP(ctx, masterProgram())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StatusTimeout, res.Status)
}

func TestPseudoBooleanKnapsack(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Sense:     Maximize,
		Objective: []float64{10, 6},
		Constraints: []IntConstraint{
			{Coefficients: []int{5, 3}, Relation: LessOrEqual, RHS: 17},
		},
		Upper: []int{3, 5},
	}

	res, err := NewPseudoBoolean().SolveIP(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, []int{1, 4}, res.Values)
	assert.InDelta(t, 34.0, res.Objective, 1e-9)
}

func TestPseudoBooleanFractionalPricing(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Sense:     Maximize,
		Objective: []float64{0.25, 1.0 / 3.0},
		Constraints: []IntConstraint{
			{Coefficients: []int{1500, 2000}, Relation: LessOrEqual, RHS: 6000},
		},
		Upper: []int{4, 3},
	}

	res, err := NewPseudoBoolean().SolveIP(context.Background(), prog)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Objective, 1e-6)
	assert.True(t, prog.Satisfied(res.Values))
}

func TestPseudoBooleanCovering(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Sense:     Minimize,
		Objective: []float64{1, 1, 1, 1},
		Constraints: []IntConstraint{
			{Coefficients: []int{1, 0, 4, 0}, Relation: GreaterOrEqual, RHS: 4},
			{Coefficients: []int{0, 1, 0, 3}, Relation: GreaterOrEqual, RHS: 3},
		},
		Upper: []int{4, 3, 1, 1},
	}

	res, err := NewPseudoBoolean().SolveIP(context.Background(), prog)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Objective, 1e-9)
	assert.Equal(t, []int{0, 0, 1, 1}, res.Values)
}

func TestIntegerEngineFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		prog IntegerProgram
		err  error
	}{
		{
			name: "bound below demand",
			prog: IntegerProgram{
				Objective:   []float64{1},
				Constraints: []IntConstraint{{Coefficients: []int{1}, Relation: GreaterOrEqual, RHS: 5}},
				Upper:       []int{3},
			},
			err: ErrInfeasible,
		},
		{
			name: "contradicting rows",
			prog: IntegerProgram{
				Objective: []float64{1, 1},
				Constraints: []IntConstraint{
					{Coefficients: []int{1, 1}, Relation: GreaterOrEqual, RHS: 2},
					{Coefficients: []int{1, 1}, Relation: LessOrEqual, RHS: 1},
				},
				Upper: []int{1, 1},
			},
			err: ErrInfeasible,
		},
		{
			name: "missing bounds",
			prog: IntegerProgram{
				Objective: []float64{1, 1},
				Upper:     []int{1},
			},
			err: ErrMalformed,
		},
	}

	engines := map[EngineKind]Oracle{
		BranchAndBoundEngine: NewBranchAndBound(),
		PseudoBooleanEngine:  NewPseudoBoolean(),
	}
	for kind, engine := range engines {
		for _, tc := range tests {
			t.Run(string(kind)+"/"+tc.name, func(t *testing.T) {
				t.Parallel()

				res, err := engine.SolveIP(context.Background(), tc.prog)
				require.ErrorIs(t, err, tc.err)
				assert.NotEqual(t, StatusOptimal, res.Status)
			})
		}
	}
}

func TestPseudoBooleanRejectsOverflowingCoefficients(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Objective:   []float64{1},
		Constraints: []IntConstraint{{Coefficients: []int{1 << 50}, Relation: GreaterOrEqual, RHS: 1}},
		Upper:       []int{15},
	}
	res, err := NewPseudoBoolean().SolveIP(context.Background(), prog)
	require.ErrorIs(t, err, ErrNumerical)
	assert.Equal(t, StatusError, res.Status)
}

func TestPseudoBooleanIsDeterministic(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Objective: []float64{1, 1, 1, 1},
		Constraints: []IntConstraint{
			{Coefficients: []int{2, 0, 1, 1}, Relation: GreaterOrEqual, RHS: 9},
			{Coefficients: []int{0, 3, 1, 0}, Relation: GreaterOrEqual, RHS: 7},
			{Coefficients: []int{1, 1, 0, 2}, Relation: GreaterOrEqual, RHS: 6},
		},
		Upper: []int{9, 3, 7, 6},
	}

	engine := NewPseudoBoolean()
	first, err := engine.SolveIP(context.Background(), prog)
	require.NoError(t, err)
	for range 5 {
		again, err := engine.SolveIP(context.Background(), prog)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	bb, err := NewBranchAndBound().SolveIP(context.Background(), prog)
	require.NoError(t, err)
	assert.InDelta(t, bb.Objective, first.Objective, 1e-9)
}

func TestPseudoBooleanWithoutVariables(t *testing.T) {
	t.Parallel()

	res, err := NewPseudoBoolean().SolveIP(context.Background(), IntegerProgram{})
	require.NoError(t, err)
	assert.Empty(t, res.Values)
	assert.Zero(t, res.Objective)
}

func TestPseudoBooleanBoundsOnly(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Sense:     Maximize,
		Objective: []float64{2, -1},
		Upper:     []int{7, 3},
	}
	res, err := NewPseudoBoolean().SolveIP(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 0}, res.Values)
}

func TestPseudoBooleanWaitsForRunningSearch(t *testing.T) {
	t.Parallel()

	prog := IntegerProgram{
		Objective:   []float64{1},
		Constraints: []IntConstraint{{Coefficients: []int{2}, Relation: GreaterOrEqual, RHS: 5}},
		Upper:       []int{3},
	}
	engine := NewPseudoBoolean()
	engine.slot <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := engine.SolveIP(ctx, prog)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StatusTimeout, res.Status)

	<-engine.slot
	res, err = engine.SolveIP(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.Values)
	assert.Eventually(t, func() bool { return len(engine.slot) == 0 }, time.Second, time.Millisecond,
		"finished search must release its slot")
}

func TestEngineRoutesAndDefaults(t *testing.T) {
	t.Parallel()

	engine := NewDefault(time.Second)

	lp, err := engine.SolveLP(context.Background(), masterProgram())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, lp.Objective, 1e-9)

	ip, err := engine.SolveIP(context.Background(), IntegerProgram{
		Objective:   []float64{1},
		Constraints: []IntConstraint{{Coefficients: []int{2}, Relation: GreaterOrEqual, RHS: 5}},
		Upper:       []int{3},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ip.Values)
}

func TestSingleEngineRejectsOtherProgramKind(t *testing.T) {
	t.Parallel()

	_, err := NewSimplex().SolveIP(context.Background(), IntegerProgram{})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = NewPseudoBoolean().SolveLP(context.Background(), masterProgram())
	require.ErrorIs(t, err, ErrMalformed)
}

// blockingOracle waits for the context to finish and tracks concurrency.
type blockingOracle struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	hold    time.Duration
}

func (b *blockingOracle) enter() func() {
	n := b.active.Add(1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	return func() { b.active.Add(-1) }
}

func (b *blockingOracle) SolveLP(ctx context.Context, _ LinearProgram) (LPResult, error) {
	defer b.enter()()
	select {
	case <-time.After(b.hold):
		return LPResult{Status: StatusOptimal}, nil
	case <-ctx.Done():
		return LPResult{Status: StatusTimeout}, ErrTimeout
	}
}

func (b *blockingOracle) SolveIP(ctx context.Context, _ IntegerProgram) (IPResult, error) {
	defer b.enter()()
	select {
	case <-time.After(b.hold):
		return IPResult{Status: StatusOptimal}, nil
	case <-ctx.Done():
		return IPResult{Status: StatusTimeout}, ErrTimeout
	}
}

func TestEngineTimeout(t *testing.T) {
	t.Parallel()

	slow := &blockingOracle{hold: time.Minute}
	engine := &Engine{LP: slow, IP: slow, Timeout: 10 * time.Millisecond}

	_, err := engine.SolveLP(context.Background(), masterProgram())
	require.ErrorIs(t, err, ErrTimeout)

	_, err = engine.SolveIP(context.Background(), IntegerProgram{})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSerializeAllowsOneSolveAtATime(t *testing.T) {
	t.Parallel()

	inner := &blockingOracle{hold: 5 * time.Millisecond}
	o := Serialize(inner)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = o.SolveLP(context.Background(), LinearProgram{})
				return
			}
			_, _ = o.SolveIP(context.Background(), IntegerProgram{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.maxSeen.Load())
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "infeasible", StatusInfeasible.String())
	assert.Equal(t, "unbounded", StatusUnbounded.String())
	assert.Equal(t, "timeout", StatusTimeout.String())
	assert.Equal(t, "feasible", StatusFeasible.String())
	assert.Equal(t, "error", StatusError.String())
}
