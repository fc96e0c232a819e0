package cutting

import "github.com/shopspring/decimal"

// Summary condenses a plan into the figures shown to operators.
type Summary struct {
	TotalUnits int `json:"totalUnits"`
	// DemandedLength is the total length of the requested pieces.
	DemandedLength int `json:"demandedLength"`
	// ProducedLength includes surplus pieces cut to fill bars.
	ProducedLength int `json:"producedLength"`
	// WasteLength is consumed usable length not covered by demanded pieces.
	WasteLength        int             `json:"wasteLength"`
	WastePercent       decimal.Decimal `json:"wastePercent"`
	UtilizationPercent decimal.Decimal `json:"utilizationPercent"`
	SurplusPieces      int             `json:"surplusPieces"`
	// Shortage is the number of bars missing from stock, zero when the
	// available quantity is unknown.
	Shortage int `json:"shortage"`
}

var hundred = decimal.NewFromInt(100)

// Summarize computes utilization figures for plan against the demands it
// was solved for.
func Summarize(plan SolutionPlan, demands []PieceDemand, stock RawStock) Summary {
	s := Summary{TotalUnits: plan.TotalUnits}

	demandedPieces := 0
	for _, d := range demands {
		s.DemandedLength += d.Length * d.Quantity
		demandedPieces += d.Quantity
	}
	producedPieces := 0
	for _, pat := range plan.Patterns {
		s.ProducedLength += pat.Count * pat.UsedLength
		for _, piece := range pat.Pieces {
			producedPieces += pat.Count * piece.Count
		}
	}
	s.SurplusPieces = max(producedPieces-demandedPieces, 0)

	consumed := plan.TotalUnits * plan.UsableLength
	s.WasteLength = max(consumed-s.DemandedLength, 0)
	s.WastePercent = decimal.Zero
	s.UtilizationPercent = decimal.Zero
	if consumed > 0 {
		total := decimal.NewFromInt(int64(consumed))
		s.WastePercent = decimal.NewFromInt(int64(s.WasteLength)).Mul(hundred).Div(total).Round(2)
		s.UtilizationPercent = hundred.Sub(s.WastePercent)
	}

	if stock.Available > 0 && plan.TotalUnits > stock.Available {
		s.Shortage = plan.TotalUnits - stock.Available
	}
	return s
}
