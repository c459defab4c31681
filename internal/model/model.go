// Package model defines the core domain types shared across the hedge engine.
// Beta and contract counts are plain float64: they are ratios and fractional
// quantities, not money.
package model

// Action is the directional trade needed to reach the target beta.
type Action string

const (
	ActionShort Action = "SHORT" // sell futures to reduce beta
	ActionLong  Action = "LONG"  // buy futures to raise beta
	ActionNone  Action = "NONE"  // already at target
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionShort, ActionLong, ActionNone:
		return true
	}
	return false
}

// PortfolioParameters are the inputs to a single hedge computation.
type PortfolioParameters struct {
	PortfolioValue     float64 `json:"portfolio_value"`
	CurrentBeta        float64 `json:"current_beta"`
	TargetBeta         float64 `json:"target_beta"`
	IndexPrice         float64 `json:"index_price"`
	ContractMultiplier float64 `json:"contract_multiplier"`
}

// FuturesContractValue is the notional exposure of one futures contract.
func (p PortfolioParameters) FuturesContractValue() float64 {
	return p.IndexPrice * p.ContractMultiplier
}

// HedgeResult is the outcome of a solve. It is a value: a new solve
// replaces it wholesale.
type HedgeResult struct {
	ContractsRequired float64 `json:"contracts_required"` // signed, never rounded
	Action            Action  `json:"action"`
	Message           string  `json:"message"`
}

// SensitivityPoint is one sample of portfolio beta at a given contract count.
type SensitivityPoint struct {
	Contracts int     `json:"contracts"`
	Beta      float64 `json:"beta"`
}

// Marker is a reference point overlaid on the sensitivity chart.
type Marker struct {
	Label     string  `json:"label"`
	Contracts float64 `json:"contracts"`
	Beta      float64 `json:"beta"`
}

// --- Wire types ---

// HedgeRequest is the JSON body for POST /calculate-hedge. Fields are
// pointers so a missing field is distinguishable from zero. ContractSymbol
// may be given instead of ContractMultiplier.
type HedgeRequest struct {
	PortfolioValue     *float64 `json:"portfolio_value"`
	CurrentBeta        *float64 `json:"current_beta"`
	TargetBeta         *float64 `json:"target_beta"`
	IndexPrice         *float64 `json:"index_price"`
	ContractMultiplier *float64 `json:"contract_multiplier,omitempty"`
	ContractSymbol     string   `json:"contract_symbol,omitempty"`
}

// NewHedgeRequest builds a request carrying every field of p.
func NewHedgeRequest(p PortfolioParameters) HedgeRequest {
	return HedgeRequest{
		PortfolioValue:     &p.PortfolioValue,
		CurrentBeta:        &p.CurrentBeta,
		TargetBeta:         &p.TargetBeta,
		IndexPrice:         &p.IndexPrice,
		ContractMultiplier: &p.ContractMultiplier,
	}
}

// Params returns the parameters carried by the request and the wire names
// of the fields that were absent. Absent fields are left at zero.
func (r HedgeRequest) Params() (PortfolioParameters, []string) {
	var p PortfolioParameters
	var missing []string
	fields := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"portfolio_value", r.PortfolioValue, &p.PortfolioValue},
		{"current_beta", r.CurrentBeta, &p.CurrentBeta},
		{"target_beta", r.TargetBeta, &p.TargetBeta},
		{"index_price", r.IndexPrice, &p.IndexPrice},
		{"contract_multiplier", r.ContractMultiplier, &p.ContractMultiplier},
	}
	for _, f := range fields {
		if f.src == nil {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = *f.src
	}
	return p, missing
}

// HedgeResponse is the JSON body returned from POST /calculate-hedge. The
// inputs are echoed back so a chart can be rebuilt from the response alone.
type HedgeResponse struct {
	CalculationID string `json:"calculation_id"`
	HedgeResult
	PortfolioParameters
	FuturesContractValue float64 `json:"futures_contract_value"`
}

// SensitivityRequest is the JSON body for POST /api/v1/sensitivity. The
// portfolio fields decode as in HedgeRequest so a missing one can be told
// apart from zero. ContractsRequired is the anchor of the last solve, or nil
// when none.
type SensitivityRequest struct {
	HedgeRequest
	ContractsRequired *float64 `json:"contracts_required,omitempty"`
}

// NewSensitivityRequest builds a request carrying every field of p.
func NewSensitivityRequest(p PortfolioParameters, anchor *float64) SensitivityRequest {
	return SensitivityRequest{HedgeRequest: NewHedgeRequest(p), ContractsRequired: anchor}
}

// SensitivityResponse holds the sampled curve. An empty Points slice means
// the inputs were insufficient to plot.
type SensitivityResponse struct {
	Points  []SensitivityPoint `json:"points"`
	Markers []Marker           `json:"markers"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}
