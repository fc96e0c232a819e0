package cutting

import "context"

// PieceDemand is one row of the demand list: Quantity pieces of Length.
type PieceDemand struct {
	Length   int `json:"length"`
	Quantity int `json:"quantity"`
}

// RawStock describes the raw bars pieces are cut from. WasteAllowance is
// the fixed amount lost per bar (saw kerf, trimmed ends). Available is
// informational and zero when unknown.
type RawStock struct {
	Length         int `json:"length"`
	WasteAllowance int `json:"wasteAllowance"`
	Available      int `json:"available"`
}

// UsableLength is the length of a bar that can be turned into pieces.
func (s RawStock) UsableLength() int {
	return s.Length - s.WasteAllowance
}

// Method identifies which solver produced a plan.
type Method string

const (
	// MethodOptimal marks plans produced by column generation.
	MethodOptimal Method = "optimal"
	// MethodBaseline marks plans produced by first-fit-decreasing.
	MethodBaseline Method = "baseline"
)

// PatternPiece is one distinct length inside a pattern.
type PatternPiece struct {
	Length int `json:"length"`
	Count  int `json:"count"`
}

// PlannedPattern is a bar layout repeated Count times.
type PlannedPattern struct {
	Count       int            `json:"count"`
	Pieces      []PatternPiece `json:"pieces"`
	Description string         `json:"description"`
	UsedLength  int            `json:"usedLength"`
	Waste       int            `json:"waste"`
}

// SolutionPlan is the result of a single solve.
type SolutionPlan struct {
	Method       Method           `json:"method"`
	UsableLength int              `json:"usableLength"`
	TotalUnits   int              `json:"totalUnits"`
	Patterns     []PlannedPattern `json:"patterns"`
	Generation   *GenerationStats `json:"generation,omitempty"`
}

// Produced returns the number of pieces cut per length.
func (p SolutionPlan) Produced() map[int]int {
	produced := make(map[int]int)
	for _, pat := range p.Patterns {
		for _, piece := range pat.Pieces {
			produced[piece.Length] += pat.Count * piece.Count
		}
	}
	return produced
}

// Covers reports whether the plan cuts at least the demanded quantity of
// every length.
func (p SolutionPlan) Covers(demands []PieceDemand) bool {
	needed := make(map[int]int, len(demands))
	for _, d := range demands {
		needed[d.Length] += d.Quantity
	}
	produced := p.Produced()
	for length, qty := range needed {
		if produced[length] < qty {
			return false
		}
	}
	return true
}

// Termination records why the column generation loop stopped.
type Termination string

const (
	TerminationConverged     Termination = "converged"
	TerminationMasterFailed  Termination = "master-failed"
	TerminationPricingFailed Termination = "pricing-failed"
	TerminationRepeated      Termination = "repeated-pattern"
	TerminationIterationCap  Termination = "iteration-cap"
)

// Degenerate reports whether the loop stopped before proving the
// relaxation optimal without any solver failing.
func (t Termination) Degenerate() bool {
	return t == TerminationIterationCap || t == TerminationRepeated
}

// GenerationStats describes the column generation loop behind a plan.
type GenerationStats struct {
	Iterations  int         `json:"iterations"`
	Patterns    int         `json:"patterns"`
	Termination Termination `json:"termination"`
	// LowerBound is the rounded-up LP optimum, set only after convergence.
	LowerBound int `json:"lowerBound,omitempty"`
	// ProvenOptimal is false when the final integer program stopped at its
	// search limit with a feasible, possibly suboptimal, answer.
	ProvenOptimal bool `json:"provenOptimal"`
}

// Solver describes the behaviour required from a cutting-stock solver.
type Solver interface {
	Solve(ctx context.Context, demands []PieceDemand, usableLength int) (SolutionPlan, error)
}
