// Package calc provides the HTTP handlers of the hedge calculation service:
// solving hedges, sampling sensitivity curves, the contract catalog, and the
// live WebSocket session.
package calc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegis/hedge-engine/internal/cache"
	"github.com/aegis/hedge-engine/internal/contract"
	"github.com/aegis/hedge-engine/internal/hedge"
	"github.com/aegis/hedge-engine/internal/limits"
	"github.com/aegis/hedge-engine/internal/metrics"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/sensitivity"
)

// Error codes carried in ErrorResponse.Error.
const (
	CodeInvalidBody     = "invalid_body"
	CodeInvalidInput    = "invalid_input"
	CodeUnknownContract = "unknown_contract"
	CodeLimitExceeded   = "limit_exceeded"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal_error"
)

// Service handles hedge calculations. It holds no per-request state; the
// optional cache and limiter are safe for concurrent use.
type Service struct {
	logger  *zap.Logger
	cache   cache.Cache // nil disables memoization
	limiter *limits.HedgeLimiter
}

// NewService creates a new calculation service.
// Pass nil for c to disable result caching and nil for limiter to disable
// business-rule limits.
func NewService(logger *zap.Logger, c cache.Cache, limiter *limits.HedgeLimiter) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:  logger,
		cache:   c,
		limiter: limiter,
	}
}

// Solve validates p, returns a memoized or fresh result, and applies limits.
// It satisfies session.CalculatorFunc.
func (s *Service) Solve(ctx context.Context, p model.PortfolioParameters) (*model.HedgeResult, error) {
	start := time.Now()
	defer func() { metrics.CalculationLatency.Observe(time.Since(start).Seconds()) }()

	if err := hedge.Validate(p); err != nil {
		metrics.InvalidInputs.Inc()
		return nil, err
	}

	key := cache.Key(p)
	res := s.lookup(ctx, key)
	if res == nil {
		var err error
		res, err = hedge.Solve(p)
		if err != nil {
			metrics.InvalidInputs.Inc()
			return nil, err
		}
		s.store(ctx, key, res)
	}

	if err := s.limiter.CheckLimit(p, res); err != nil {
		metrics.LimitRejections.WithLabelValues(limitLabel(err)).Inc()
		return nil, err
	}

	metrics.CalculationsTotal.WithLabelValues(string(res.Action)).Inc()
	return res, nil
}

func (s *Service) lookup(ctx context.Context, key string) *model.HedgeResult {
	if s.cache == nil {
		return nil
	}
	res, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(s.cache.Name(), "error").Inc()
		s.logger.Warn("cache lookup failed", zap.String("backend", s.cache.Name()), zap.Error(err))
		return nil
	case !ok:
		metrics.CacheLookups.WithLabelValues(s.cache.Name(), "miss").Inc()
		return nil
	}
	metrics.CacheLookups.WithLabelValues(s.cache.Name(), "hit").Inc()
	return res
}

func (s *Service) store(ctx context.Context, key string, res *model.HedgeResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, res); err != nil {
		s.logger.Warn("cache store failed", zap.String("backend", s.cache.Name()), zap.Error(err))
	}
}

// --- HTTP Handlers ---

// Root handles GET /
func (s *Service) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Aegis Hedging API"})
}

// CalculateHedge handles POST /calculate-hedge and POST /api/v1/calculate-hedge
func (s *Service) CalculateHedge(w http.ResponseWriter, r *http.Request) {
	var req model.HedgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeInvalidBody, "invalid request body", http.StatusBadRequest)
		return
	}

	// Resolve a named contract when no multiplier was given.
	if req.ContractMultiplier == nil && req.ContractSymbol != "" {
		mult, err := contract.Multiplier(req.ContractSymbol)
		if err != nil {
			writeError(w, CodeUnknownContract, err.Error(), http.StatusBadRequest)
			return
		}
		req.ContractMultiplier = &mult
	}

	params, missing := req.Params()
	if len(missing) > 0 {
		inv := &hedge.InvalidInputError{Reasons: make(map[string]string)}
		for _, f := range missing {
			inv.Fields = append(inv.Fields, f)
			inv.Reasons[f] = "is required"
		}
		metrics.InvalidInputs.Inc()
		writeError(w, CodeInvalidInput, inv.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.Solve(r.Context(), params)
	if err != nil {
		s.writeSolveError(w, params, err)
		return
	}

	resp := model.HedgeResponse{
		CalculationID:        uuid.New().String(),
		HedgeResult:          *res,
		PortfolioParameters:  params,
		FuturesContractValue: params.FuturesContractValue(),
	}

	s.logger.Info("hedge calculated",
		zap.String("calculation_id", resp.CalculationID),
		zap.Float64("portfolio_value", params.PortfolioValue),
		zap.Float64("current_beta", params.CurrentBeta),
		zap.Float64("target_beta", params.TargetBeta),
		zap.Float64("futures_contract_value", resp.FuturesContractValue),
		zap.Float64("contracts_required", res.ContractsRequired),
		zap.String("action", string(res.Action)),
	)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) writeSolveError(w http.ResponseWriter, p model.PortfolioParameters, err error) {
	var inv *hedge.InvalidInputError
	switch {
	case errors.As(err, &inv):
		s.logger.Warn("invalid hedge input", zap.Strings("fields", inv.Fields), zap.Error(err))
		writeError(w, CodeInvalidInput, err.Error(), http.StatusBadRequest)
	case errors.Is(err, limits.ErrMaxContractsExceeded), errors.Is(err, limits.ErrMaxNotionalRatioExceeded):
		s.logger.Info("hedge rejected by limits",
			zap.Float64("portfolio_value", p.PortfolioValue),
			zap.Error(err),
		)
		writeError(w, CodeLimitExceeded, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.logger.Error("unexpected calculation failure", zap.Error(err))
		writeError(w, CodeInternal, "an unexpected error occurred", http.StatusInternalServerError)
	}
}

// Sensitivity handles POST /api/v1/sensitivity
// Always 200 for a decodable body; empty points mean insufficient data.
func (s *Service) Sensitivity(w http.ResponseWriter, r *http.Request) {
	var req model.SensitivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeInvalidBody, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ContractMultiplier == nil && req.ContractSymbol != "" {
		if mult, err := contract.Multiplier(req.ContractSymbol); err == nil {
			req.ContractMultiplier = &mult
		}
	}

	// A missing field means there is nothing to plot yet.
	params, missing := req.Params()
	if len(missing) > 0 {
		metrics.SensitivityRequests.WithLabelValues("empty").Inc()
		writeJSON(w, http.StatusOK, model.SensitivityResponse{
			Points:  []model.SensitivityPoint{},
			Markers: []model.Marker{},
		})
		return
	}

	var res *model.HedgeResult
	if req.ContractsRequired != nil {
		res = &model.HedgeResult{
			ContractsRequired: *req.ContractsRequired,
			Action:            hedge.Classify(*req.ContractsRequired),
		}
	}

	resp := model.SensitivityResponse{
		Points:  sensitivity.Sample(params, res),
		Markers: sensitivity.Markers(params, res),
	}

	outcome := "curve"
	if len(resp.Points) == 0 {
		outcome = "empty"
	}
	metrics.SensitivityRequests.WithLabelValues(outcome).Inc()

	writeJSON(w, http.StatusOK, resp)
}

// ListContracts handles GET /api/v1/contracts
func (s *Service) ListContracts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, contract.Catalog())
}

// GetContract handles GET /api/v1/contracts/{symbol}
// Accepts a root ("ES") or a dated ticker ("ESZ25").
func (s *Service) GetContract(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	spec, err := contract.Resolve(symbol)
	if err != nil {
		writeError(w, CodeNotFound, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func limitLabel(err error) string {
	if errors.Is(err, limits.ErrMaxContractsExceeded) {
		return "max_contracts"
	}
	if errors.Is(err, limits.ErrMaxNotionalRatioExceeded) {
		return "max_notional_ratio"
	}
	return "other"
}

// CORS returns a middleware that allows the configured origins. A "*" entry
// allows any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed["*"] || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, code, detail string, status int) {
	writeJSON(w, status, model.ErrorResponse{Error: code, Detail: detail})
}
