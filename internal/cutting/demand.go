package cutting

import "fmt"

const (
	// MaxPieces bounds the total number of pieces in one batch.
	MaxPieces = 20_000
	// MaxLengths bounds the number of distinct piece lengths in one batch.
	MaxLengths = 200
)

// demandSet is a validated demand list with one entry per distinct length,
// in order of first appearance.
type demandSet struct {
	lengths    []int
	quantities []int
	usable     int
}

// Validate checks demands against the usable length without solving.
func Validate(demands []PieceDemand, usableLength int) error {
	_, err := normalize(demands, usableLength)
	return err
}

// Merge sums the quantities of rows sharing a length, keeping the order in
// which lengths first appear. Rows are not validated.
func Merge(demands []PieceDemand) []PieceDemand {
	index := make(map[int]int, len(demands))
	merged := make([]PieceDemand, 0, len(demands))
	for _, d := range demands {
		if i, ok := index[d.Length]; ok {
			merged[i].Quantity += d.Quantity
			continue
		}
		index[d.Length] = len(merged)
		merged = append(merged, d)
	}
	return merged
}

func normalize(demands []PieceDemand, usable int) (demandSet, error) {
	if usable <= 0 {
		return demandSet{}, fmt.Errorf("%w: usable length %d must be positive", ErrInvalidInput, usable)
	}
	for i, d := range demands {
		switch {
		case d.Length <= 0:
			return demandSet{}, fmt.Errorf("%w: row %d: length %d must be positive", ErrInvalidInput, i+1, d.Length)
		case d.Quantity <= 0:
			return demandSet{}, fmt.Errorf("%w: row %d: quantity %d must be positive", ErrInvalidInput, i+1, d.Quantity)
		case d.Length > usable:
			return demandSet{}, fmt.Errorf("%w: row %d: length %d exceeds usable length %d", ErrInvalidInput, i+1, d.Length, usable)
		case d.Quantity > MaxPieces:
			return demandSet{}, fmt.Errorf("%w: row %d: quantity %d exceeds the limit of %d pieces", ErrInvalidInput, i+1, d.Quantity, MaxPieces)
		}
	}

	merged := Merge(demands)
	if len(merged) > MaxLengths {
		return demandSet{}, fmt.Errorf("%w: %d distinct lengths exceed the limit of %d", ErrInvalidInput, len(merged), MaxLengths)
	}
	set := demandSet{
		lengths:    make([]int, len(merged)),
		quantities: make([]int, len(merged)),
		usable:     usable,
	}
	for i, d := range merged {
		set.lengths[i] = d.Length
		set.quantities[i] = d.Quantity
	}
	if n := set.pieceCount(); n > MaxPieces {
		return demandSet{}, fmt.Errorf("%w: %d pieces exceed the limit of %d", ErrInvalidInput, n, MaxPieces)
	}
	return set, nil
}

func (s demandSet) pieceCount() int {
	total := 0
	for _, q := range s.quantities {
		total += q
	}
	return total
}
