// Package sensitivity samples portfolio beta across a window of futures
// contract counts for charting.
//
// The window holds Samples points with an integer stride chosen so that it
// spans roughly the distance from zero to the anchor contract count,
// whatever its magnitude. Invalid input never errors: it yields an empty
// sample, which callers render as "insufficient data".
package sensitivity

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/aegis/hedge-engine/internal/hedge"
	"github.com/aegis/hedge-engine/internal/model"
)

const (
	// Span is the number of strides covered by the window.
	Span = 20

	// Samples is the number of points in a valid sample.
	Samples = Span + 1
)

// BetaScale is the number of decimal places sampled betas are rounded to.
const BetaScale int32 = 3

// maxAnchor bounds |anchor| so that every contract count in the window is
// exactly representable as an int.
const maxAnchor = 1e15

// Sample returns the beta curve for p centered on the solved contract count
// in result, or on zero contracts when result is nil.
func Sample(p model.PortfolioParameters, result *model.HedgeResult) []model.SensitivityPoint {
	anchor := 0.0
	if result != nil {
		anchor = result.ContractsRequired
	}
	return SampleAt(p, anchor)
}

// SampleAt returns the beta curve for p centered on anchor contracts.
func SampleAt(p model.PortfolioParameters, anchor float64) []model.SensitivityPoint {
	if hedge.Validate(p) != nil {
		return []model.SensitivityPoint{}
	}
	if math.IsNaN(anchor) || math.IsInf(anchor, 0) || math.Abs(anchor) > maxAnchor {
		return []model.SensitivityPoint{}
	}

	fcv := p.FuturesContractValue()
	step := Step(anchor)
	start := int(math.Floor(anchor - float64(Span/2*step)))

	points := make([]model.SensitivityPoint, 0, Samples)
	for i := 0; i < Samples; i++ {
		contracts := start + i*step
		beta := p.CurrentBeta + float64(contracts)*fcv/p.PortfolioValue
		if math.IsNaN(beta) || math.IsInf(beta, 0) {
			return []model.SensitivityPoint{}
		}
		points = append(points, model.SensitivityPoint{
			Contracts: contracts,
			Beta:      roundBeta(beta),
		})
	}
	return points
}

// Step is the integer stride between samples: max(1, round(|anchor| / Span)).
func Step(anchor float64) int {
	step := int(math.Round(math.Abs(anchor) / Span))
	if step < 1 {
		return 1
	}
	return step
}

// Markers returns the chart reference points: current beta at zero
// contracts, and the target beta at the solved contract count when a result
// is present. Invalid betas are omitted.
func Markers(p model.PortfolioParameters, result *model.HedgeResult) []model.Marker {
	markers := []model.Marker{}
	if finite(p.CurrentBeta) {
		markers = append(markers, model.Marker{Label: "current", Contracts: 0, Beta: p.CurrentBeta})
	}
	if result != nil && finite(p.TargetBeta) && finite(result.ContractsRequired) {
		markers = append(markers, model.Marker{Label: "target", Contracts: result.ContractsRequired, Beta: p.TargetBeta})
	}
	return markers
}

func roundBeta(beta float64) float64 {
	return decimal.NewFromFloat(beta).Round(BetaScale).InexactFloat64()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
