package limits

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aegis/hedge-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func params() model.PortfolioParameters {
	return model.PortfolioParameters{
		PortfolioValue:     1000000,
		CurrentBeta:        1.2,
		TargetBeta:         0.5,
		IndexPrice:         4500,
		ContractMultiplier: 50,
	}
}

func short(n float64) *model.HedgeResult {
	return &model.HedgeResult{ContractsRequired: -n, Action: model.ActionShort}
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewHedgeLimiter(d(100), d(3))

	if err := limiter.CheckLimit(params(), short(3.11)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_ContractsExceeded(t *testing.T) {
	limiter := NewHedgeLimiter(d(10), decimal.Zero)

	err := limiter.CheckLimit(params(), short(10.5))
	if !errors.Is(err, ErrMaxContractsExceeded) {
		t.Errorf("expected ErrMaxContractsExceeded, got %v", err)
	}
}

func TestCheckLimit_ContractsAtLimit(t *testing.T) {
	limiter := NewHedgeLimiter(d(10), decimal.Zero)

	if err := limiter.CheckLimit(params(), short(10)); err != nil {
		t.Errorf("expected no error at the limit, got %v", err)
	}
}

func TestCheckLimit_NotionalRatioExceeded(t *testing.T) {
	// 20 contracts × 225000 / 1e6 = 4.5× the portfolio.
	limiter := NewHedgeLimiter(decimal.Zero, d(3))

	err := limiter.CheckLimit(params(), &model.HedgeResult{ContractsRequired: 20, Action: model.ActionLong})
	if !errors.Is(err, ErrMaxNotionalRatioExceeded) {
		t.Errorf("expected ErrMaxNotionalRatioExceeded, got %v", err)
	}
}

func TestCheckLimit_ContractCheckRunsFirst(t *testing.T) {
	limiter := NewHedgeLimiter(d(5), d(1))

	err := limiter.CheckLimit(params(), short(20))
	if !errors.Is(err, ErrMaxContractsExceeded) {
		t.Errorf("expected ErrMaxContractsExceeded, got %v", err)
	}
}

func TestCheckLimit_DisabledAndNone(t *testing.T) {
	limiter := NewHedgeLimiter(d(-1), decimal.Zero)
	if !limiter.MaxContracts.IsZero() {
		t.Errorf("negative limit should be clamped to zero, got %s", limiter.MaxContracts)
	}
	if err := limiter.CheckLimit(params(), short(1e6)); err != nil {
		t.Errorf("disabled limiter should pass, got %v", err)
	}

	strict := NewHedgeLimiter(d(1), d(0.01))
	none := &model.HedgeResult{Action: model.ActionNone}
	if err := strict.CheckLimit(params(), none); err != nil {
		t.Errorf("NONE should never breach limits, got %v", err)
	}

	var nilLimiter *HedgeLimiter
	if err := nilLimiter.CheckLimit(params(), short(1e6)); err != nil {
		t.Errorf("nil limiter should pass, got %v", err)
	}
}
