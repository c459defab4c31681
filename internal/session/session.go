// Package session holds the caller-side state of one interactive hedging
// session: the raw form fields, the last solved result, and whether a solve
// is in flight.
//
// The core solver and sampler stay pure; State is passed into them on every
// recomputation. While a solve is pending the previous result is cleared, and
// only the completion of the most recently started solve is applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/aegis/hedge-engine/internal/hedge"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/sensitivity"
)

// ErrUnknownField is returned by SetField for names outside Fields.
var ErrUnknownField = errors.New("session: unknown field")

// Fields are the raw, unparsed form inputs.
type Fields struct {
	PortfolioValue     string `json:"portfolio_value"`
	CurrentBeta        string `json:"current_beta"`
	TargetBeta         string `json:"target_beta"`
	IndexPrice         string `json:"index_price"`
	ContractMultiplier string `json:"contract_multiplier"`
}

// DefaultFields are the values a fresh form starts with.
var DefaultFields = Fields{
	PortfolioValue:     "1000000",
	CurrentBeta:        "1.2",
	TargetBeta:         "0.5",
	IndexPrice:         "4500",
	ContractMultiplier: "50",
}

// Params parses the fields. Unparseable or empty fields become NaN, which
// the solver rejects and the sampler renders as no data.
func (f Fields) Params() model.PortfolioParameters {
	return model.PortfolioParameters{
		PortfolioValue:     parse(f.PortfolioValue),
		CurrentBeta:        parse(f.CurrentBeta),
		TargetBeta:         parse(f.TargetBeta),
		IndexPrice:         parse(f.IndexPrice),
		ContractMultiplier: parse(f.ContractMultiplier),
	}
}

func parse(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// Calculator produces a hedge result, locally or over the network.
type Calculator interface {
	Calculate(ctx context.Context, p model.PortfolioParameters) (*model.HedgeResult, error)
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx context.Context, p model.PortfolioParameters) (*model.HedgeResult, error)

func (f CalculatorFunc) Calculate(ctx context.Context, p model.PortfolioParameters) (*model.HedgeResult, error) {
	return f(ctx, p)
}

// Local solves in-process with hedge.Solve.
var Local = CalculatorFunc(func(_ context.Context, p model.PortfolioParameters) (*model.HedgeResult, error) {
	return hedge.Solve(p)
})

// Completion reports the outcome of one Submit. Applied is false when a
// newer solve superseded this one and the outcome was discarded.
type Completion struct {
	Seq     uint64
	Applied bool
	Result  *model.HedgeResult
	Err     error
}

// Snapshot is an immutable view of the state with its derived curve.
type Snapshot struct {
	Seq     uint64                   `json:"seq"`
	Pending bool                     `json:"pending"`
	Fields  Fields                   `json:"fields"`
	Result  *model.HedgeResult       `json:"result"`
	Error   string                   `json:"error,omitempty"`
	Points  []model.SensitivityPoint `json:"points"`
	Markers []model.Marker           `json:"markers"`
}

// State is safe for concurrent use.
type State struct {
	mu           sync.Mutex
	fields       Fields
	result       *model.HedgeResult
	solvedParams model.PortfolioParameters
	err          error
	pending      bool
	seq          uint64
}

// New creates a session starting from fields.
func New(fields Fields) *State {
	return &State{fields: fields}
}

// Fields returns the current raw inputs.
func (s *State) Fields() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

// SetFields replaces all raw inputs.
func (s *State) SetFields(f Fields) {
	s.mu.Lock()
	s.fields = f
	s.mu.Unlock()
}

// SetField updates one raw input by its wire name.
func (s *State) SetField(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case hedge.FieldPortfolioValue:
		s.fields.PortfolioValue = value
	case hedge.FieldCurrentBeta:
		s.fields.CurrentBeta = value
	case hedge.FieldTargetBeta:
		s.fields.TargetBeta = value
	case hedge.FieldIndexPrice:
		s.fields.IndexPrice = value
	case hedge.FieldContractMultiplier:
		s.fields.ContractMultiplier = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return nil
}

// Begin starts a new solve for the current fields: the previous result and
// error are cleared and the state becomes pending. It returns the sequence
// number the completion must carry and the parameters to solve.
func (s *State) Begin() (uint64, model.PortfolioParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.result = nil
	s.err = nil
	s.pending = true
	return s.seq, s.fields.Params()
}

// Complete applies the outcome of solve seq if it is still the latest one.
// It reports whether the outcome was applied.
func (s *State) Complete(seq uint64, p model.PortfolioParameters, res *model.HedgeResult, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		return false
	}
	s.pending = false
	if err != nil {
		s.result = nil
		s.err = err
		return true
	}
	s.result = res
	s.solvedParams = p
	s.err = nil
	return true
}

// Submit begins a solve and runs calc asynchronously. The returned channel
// yields exactly one Completion and is then closed. Cancelling ctx abandons
// the request; the cancellation is recorded only if no newer solve started.
func (s *State) Submit(ctx context.Context, calc Calculator) <-chan Completion {
	seq, p := s.Begin()
	out := make(chan Completion, 1)

	go func() {
		defer close(out)
		res, err := calc.Calculate(ctx, p)
		if err == nil && ctx.Err() != nil {
			res, err = nil, ctx.Err()
		}
		applied := s.Complete(seq, p, res, err)
		out <- Completion{Seq: seq, Applied: applied, Result: res, Err: err}
	}()

	return out
}

// Snapshot returns the current state and recomputes the curve. With a
// result present the curve is drawn from the parameters that were solved,
// centered on the solved contract count; otherwise from the current fields
// centered on zero.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Seq:     s.seq,
		Pending: s.pending,
		Fields:  s.fields,
		Result:  s.result,
	}
	params := s.fields.Params()
	if s.result != nil {
		params = s.solvedParams
	}
	if s.err != nil {
		snap.Error = ErrorDetail(s.err)
	}
	s.mu.Unlock()

	snap.Points = sensitivity.Sample(params, snap.Result)
	snap.Markers = sensitivity.Markers(params, snap.Result)
	return snap
}

// ErrorDetail returns the user-displayable text of err.
func ErrorDetail(err error) string {
	var d interface{ Detail() string }
	if errors.As(err, &d) {
		return d.Detail()
	}
	return err.Error()
}
