package cutting

import (
	"cmp"
	"context"
	"slices"
)

// FirstFitDecreasing is a deterministic bin-packing baseline that needs no
// solver.
type FirstFitDecreasing struct{}

// NewFirstFitDecreasing creates the baseline solver.
func NewFirstFitDecreasing() *FirstFitDecreasing {
	return &FirstFitDecreasing{}
}

type openBar struct {
	remaining int
	counts    pattern
}

// firstFit places every demanded piece, longest first, into the first bar
// that still has room.
func firstFit(set demandSet) []openBar {
	// Pieces are kept as indexes into set.lengths.
	pieces := make([]int, 0, set.pieceCount())
	for i, q := range set.quantities {
		for range q {
			pieces = append(pieces, i)
		}
	}
	slices.SortStableFunc(pieces, func(a, b int) int {
		return cmp.Compare(set.lengths[b], set.lengths[a])
	})

	var bars []openBar
	for _, idx := range pieces {
		length := set.lengths[idx]
		placed := false
		for b := range bars {
			if bars[b].remaining >= length {
				bars[b].remaining -= length
				bars[b].counts[idx]++
				placed = true
				break
			}
		}
		if !placed {
			bar := openBar{remaining: set.usable - length, counts: make(pattern, len(set.lengths))}
			bar.counts[idx] = 1
			bars = append(bars, bar)
		}
	}
	return bars
}

// Solve places the pieces longest first, each into the first bar that still
// has room, then groups bars with identical contents.
func (f *FirstFitDecreasing) Solve(_ context.Context, demands []PieceDemand, usableLength int) (SolutionPlan, error) {
	set, err := normalize(demands, usableLength)
	if err != nil {
		return SolutionPlan{}, err
	}

	bars := firstFit(set)

	plan := SolutionPlan{
		Method:       MethodBaseline,
		UsableLength: usableLength,
		TotalUnits:   len(bars),
		Patterns:     []PlannedPattern{},
	}

	var order []string
	groups := make(map[string]int)
	first := make(map[string]pattern)
	for _, bar := range bars {
		key := bar.counts.key(set.lengths)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			first[key] = bar.counts
		}
		groups[key]++
	}
	for _, key := range order {
		plan.Patterns = append(plan.Patterns, aggregate(set.lengths, first[key], groups[key], usableLength))
	}
	return plan, nil
}
