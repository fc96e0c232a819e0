package cutting

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// pattern holds piece counts aligned with demandSet.lengths.
type pattern []int

// key is the canonical encoding of the pattern's composition: the
// length:count terms of non-zero entries sorted by length.
func (p pattern) key(lengths []int) string {
	pieces := p.pieces(lengths)
	slices.SortFunc(pieces, func(a, b PatternPiece) int { return cmp.Compare(a.Length, b.Length) })

	var b strings.Builder
	for i, piece := range pieces {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(piece.Length))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(piece.Count))
	}
	return b.String()
}

func (p pattern) used(lengths []int) int {
	total := 0
	for i, c := range p {
		total += c * lengths[i]
	}
	return total
}

func (p pattern) empty() bool {
	for _, c := range p {
		if c != 0 {
			return false
		}
	}
	return true
}

func (p pattern) pieces(lengths []int) []PatternPiece {
	pieces := make([]PatternPiece, 0, len(p))
	for i, c := range p {
		if c > 0 {
			pieces = append(pieces, PatternPiece{Length: lengths[i], Count: c})
		}
	}
	return pieces
}

// aggregate renders a pattern repeated count times.
func aggregate(lengths []int, p pattern, count, usable int) PlannedPattern {
	pieces := p.pieces(lengths)
	slices.SortStableFunc(pieces, func(a, b PatternPiece) int { return cmp.Compare(b.Length, a.Length) })

	used := p.used(lengths)
	return PlannedPattern{
		Count:       count,
		Pieces:      pieces,
		Description: Describe(pieces),
		UsedLength:  used,
		Waste:       max(usable-used, 0),
	}
}

// Describe renders pieces as "2x 2000mm + 1x 1500mm".
func Describe(pieces []PatternPiece) string {
	terms := make([]string, len(pieces))
	for i, piece := range pieces {
		terms[i] = fmt.Sprintf("%dx %dmm", piece.Count, piece.Length)
	}
	return strings.Join(terms, " + ")
}
