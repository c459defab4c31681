// Package limits enforces business-rule caps on a solved hedge before the
// calculation service returns it.
//
// A hedge can be arithmetically valid yet operationally unreasonable: a
// thousand-contract hedge on a small account, or a futures overlay whose
// notional dwarfs the portfolio. Those are rejected, not clamped.
package limits

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aegis/hedge-engine/internal/model"
)

var (
	// ErrMaxContractsExceeded is returned when |contracts| exceeds MaxContracts.
	ErrMaxContractsExceeded = errors.New("limits: contract limit exceeded")

	// ErrMaxNotionalRatioExceeded is returned when the hedge notional
	// relative to portfolio value exceeds MaxNotionalRatio.
	ErrMaxNotionalRatioExceeded = errors.New("limits: hedge notional ratio exceeded")
)

// HedgeLimiter caps solved hedges. A zero limit disables that check.
type HedgeLimiter struct {
	// MaxContracts is the maximum absolute contract count of one hedge.
	MaxContracts decimal.Decimal

	// MaxNotionalRatio is the maximum of |contracts| × contract notional /
	// portfolio value.
	MaxNotionalRatio decimal.Decimal
}

// NewHedgeLimiter creates a limiter. Negative limits are treated as zero
// (disabled).
func NewHedgeLimiter(maxContracts, maxNotionalRatio decimal.Decimal) *HedgeLimiter {
	if maxContracts.IsNegative() {
		maxContracts = decimal.Zero
	}
	if maxNotionalRatio.IsNegative() {
		maxNotionalRatio = decimal.Zero
	}
	return &HedgeLimiter{
		MaxContracts:     maxContracts,
		MaxNotionalRatio: maxNotionalRatio,
	}
}

// CheckLimit validates a solved hedge against the configured caps.
// Returns nil if within limits, or a wrapped sentinel describing the breach.
func (l *HedgeLimiter) CheckLimit(p model.PortfolioParameters, res *model.HedgeResult) error {
	if l == nil || res == nil || res.Action == model.ActionNone {
		return nil
	}

	contracts := decimal.NewFromFloat(res.ContractsRequired).Abs()

	// 1. Contract count.
	if l.MaxContracts.IsPositive() && contracts.GreaterThan(l.MaxContracts) {
		return fmt.Errorf("%w: %s contracts requested, maximum is %s",
			ErrMaxContractsExceeded, contracts.StringFixed(4), l.MaxContracts.String())
	}

	// 2. Notional relative to the portfolio.
	if l.MaxNotionalRatio.IsPositive() {
		notional := contracts.Mul(decimal.NewFromFloat(p.FuturesContractValue()))
		ratio := notional.Div(decimal.NewFromFloat(p.PortfolioValue))
		if ratio.GreaterThan(l.MaxNotionalRatio) {
			return fmt.Errorf("%w: hedge notional is %s× the portfolio, maximum is %s×",
				ErrMaxNotionalRatioExceeded, ratio.StringFixed(2), l.MaxNotionalRatio.String())
		}
	}

	return nil
}
