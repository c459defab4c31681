// Package hedge solves for the number of index futures contracts that move a
// portfolio's beta from its current value to a target value.
//
// Each contract changes portfolio beta by contractNotional / portfolioValue,
// so the required count is linear in the beta gap:
//
//	contracts = (targetBeta - currentBeta) * portfolioValue / (indexPrice * multiplier)
//
// Solve is pure and safe for concurrent use.
package hedge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aegis/hedge-engine/internal/model"
)

// Epsilon is the tolerance within which a contract count is treated as zero.
const Epsilon = 1e-9

// MessageScale is the number of decimal places shown in result messages.
const MessageScale int32 = 4

// Field names as they appear on the wire.
const (
	FieldPortfolioValue     = "portfolio_value"
	FieldCurrentBeta        = "current_beta"
	FieldTargetBeta         = "target_beta"
	FieldIndexPrice         = "index_price"
	FieldContractMultiplier = "contract_multiplier"
)

// InvalidInputError reports which parameters prevented a solve.
type InvalidInputError struct {
	Fields  []string
	Reasons map[string]string
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f+" "+e.Reasons[f])
	}
	return "hedge: invalid input: " + strings.Join(parts, "; ")
}

// Has reports whether field is among the offending fields.
func (e *InvalidInputError) Has(field string) bool {
	_, ok := e.Reasons[field]
	return ok
}

// Validate checks the invariant shared by the solver and the sampler: every
// field finite, and the three divisor-side fields strictly positive.
// It returns nil or an *InvalidInputError listing every offending field.
func Validate(p model.PortfolioParameters) error {
	e := &InvalidInputError{Reasons: make(map[string]string)}
	add := func(field, reason string) {
		e.Fields = append(e.Fields, field)
		e.Reasons[field] = reason
	}

	checks := []struct {
		name     string
		value    float64
		positive bool
	}{
		{FieldPortfolioValue, p.PortfolioValue, true},
		{FieldCurrentBeta, p.CurrentBeta, false},
		{FieldTargetBeta, p.TargetBeta, false},
		{FieldIndexPrice, p.IndexPrice, true},
		{FieldContractMultiplier, p.ContractMultiplier, true},
	}
	for _, c := range checks {
		switch {
		case math.IsNaN(c.value) || math.IsInf(c.value, 0):
			add(c.name, "must be a finite number")
		case c.positive && c.value <= 0:
			add(c.name, "must be greater than zero")
		}
	}

	if len(e.Fields) == 0 {
		fcv := p.FuturesContractValue()
		if fcv == 0 || math.IsInf(fcv, 0) {
			add(FieldContractMultiplier, "gives a futures contract value that cannot be used as a divisor")
		}
	}

	if len(e.Fields) > 0 {
		return e
	}
	return nil
}

// Solve computes the signed contract count and action for p.
// On invalid input it returns nil and an *InvalidInputError.
func Solve(p model.PortfolioParameters) (*model.HedgeResult, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	contracts := (p.TargetBeta - p.CurrentBeta) * p.PortfolioValue / p.FuturesContractValue()
	if math.IsNaN(contracts) || math.IsInf(contracts, 0) {
		return nil, &InvalidInputError{
			Fields:  []string{FieldPortfolioValue},
			Reasons: map[string]string{FieldPortfolioValue: "produces a contract count that is not finite"},
		}
	}

	action := Classify(contracts)
	if action == model.ActionNone {
		contracts = 0
	}

	return &model.HedgeResult{
		ContractsRequired: contracts,
		Action:            action,
		Message:           Message(action, contracts, p.TargetBeta),
	}, nil
}

// Classify maps a contract count to its action using Epsilon.
func Classify(contracts float64) model.Action {
	switch {
	case contracts < -Epsilon:
		return model.ActionShort
	case contracts > Epsilon:
		return model.ActionLong
	default:
		return model.ActionNone
	}
}

// Message renders the human-readable explanation of a result.
func Message(action model.Action, contracts, targetBeta float64) string {
	target := strconv.FormatFloat(targetBeta, 'f', -1, 64)
	qty := decimal.NewFromFloat(math.Abs(contracts)).StringFixed(MessageScale)

	switch action {
	case model.ActionShort:
		return fmt.Sprintf("To achieve a target beta of %s, you must SELL (short) %s index futures contracts.", target, qty)
	case model.ActionLong:
		return fmt.Sprintf("To achieve a target beta of %s, you must BUY (long) %s index futures contracts.", target, qty)
	default:
		return "Your portfolio's beta is already at the target. No action is required."
	}
}
