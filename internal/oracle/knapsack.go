package oracle

import "math/bits"

// maxKnapsackCells bounds the decision table of the dynamic program.
const maxKnapsackCells = 1 << 24

// knapsack is a bounded knapsack: maximize value·x subject to
// weight·x <= capacity and 0 <= x <= upper.
type knapsack struct {
	values   []float64
	weights  []int
	upper    []int
	capacity int
}

// asKnapsack recognizes a maximization with a single <= row over
// non-negative coefficients small enough for the dynamic program.
func asKnapsack(prog IntegerProgram) (knapsack, bool) {
	if prog.Sense != Maximize || len(prog.Constraints) != 1 {
		return knapsack{}, false
	}
	row := prog.Constraints[0]
	if row.Relation != LessOrEqual || row.RHS < 0 || row.RHS >= maxKnapsackCells {
		return knapsack{}, false
	}

	ks := knapsack{
		values:   prog.Objective,
		weights:  row.Coefficients,
		upper:    make([]int, len(prog.Upper)),
		capacity: row.RHS,
	}
	items := 0
	for j, a := range row.Coefficients {
		switch {
		case a < 0:
			return knapsack{}, false
		case a == 0:
			ks.upper[j] = prog.Upper[j]
		default:
			ks.upper[j] = min(prog.Upper[j], row.RHS/a)
		}
		if a > 0 && prog.Objective[j] > 0 {
			items += bits.Len(uint(ks.upper[j]))
		}
	}
	if items > 0 && (row.RHS+1) > maxKnapsackCells/items {
		return knapsack{}, false
	}
	return ks, true
}

// chunk is a group of copies of one variable taken together.
type chunk struct {
	variable int
	count    int
	weight   int
	value    float64
}

// solve runs the 0/1 dynamic program over power-of-two chunks of every
// variable. Ties keep the earlier decision, so the result is deterministic.
func (k knapsack) solve() []int {
	values := make([]int, len(k.values))

	var chunks []chunk
	for j, v := range k.values {
		if v <= 0 || k.upper[j] == 0 {
			continue
		}
		if k.weights[j] == 0 {
			values[j] = k.upper[j]
			continue
		}
		remaining := k.upper[j]
		for size := 1; remaining > 0; size <<= 1 {
			n := min(size, remaining)
			chunks = append(chunks, chunk{
				variable: j,
				count:    n,
				weight:   n * k.weights[j],
				value:    float64(n) * v,
			})
			remaining -= n
		}
	}

	best := make([]float64, k.capacity+1)
	take := make([][]bool, len(chunks))
	for c, ch := range chunks {
		take[c] = make([]bool, k.capacity+1)
		for w := k.capacity; w >= ch.weight; w-- {
			if v := best[w-ch.weight] + ch.value; v > best[w]+pruneTol {
				best[w] = v
				take[c][w] = true
			}
		}
	}

	w := k.capacity
	for c := len(chunks) - 1; c >= 0; c-- {
		if take[c][w] {
			values[chunks[c].variable] += chunks[c].count
			w -= chunks[c].weight
		}
	}
	return values
}
