// Package client is the HTTP client for the hedge calculation service.
//
// Every failure is reported as one of three types so callers can show a
// distinct message for each: the service could not be reached, the service
// rejected the request, or the service answered with something unreadable.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aegis/hedge-engine/internal/config"
	"github.com/aegis/hedge-engine/internal/contract"
	"github.com/aegis/hedge-engine/internal/hedge"
	"github.com/aegis/hedge-engine/internal/model"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// ServiceUnavailableError means the service could not be reached: a
// transport failure, a timeout, or an open circuit breaker.
type ServiceUnavailableError struct {
	Err error
}

func (e *ServiceUnavailableError) Error() string {
	return "calculation service unreachable: " + e.Err.Error()
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// Detail is the user-displayable text.
func (e *ServiceUnavailableError) Detail() string {
	return "Could not connect to the calculation server. Is it running?"
}

// ServiceRejectedError is a non-2xx response with a structured error body.
type ServiceRejectedError struct {
	Status int
	Code   string
	Reason string // verbatim detail from the service
}

func (e *ServiceRejectedError) Error() string {
	return fmt.Sprintf("calculation service rejected request (%d %s): %s", e.Status, e.Code, e.Reason)
}

// Detail returns the service's own explanation.
func (e *ServiceRejectedError) Detail() string { return e.Reason }

// MalformedResponseError is a response the client could not interpret.
type MalformedResponseError struct {
	Status int
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from calculation service (status %d): %s", e.Status, e.Reason)
}

// Detail is the user-displayable text.
func (e *MalformedResponseError) Detail() string {
	return "The calculation server returned an unexpected response."
}

// Client calls the calculation service. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for breaker state changes.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client from cfg.
func New(cfg config.ClientConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "calculation-service",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only unreachability trips the breaker; a rejection means the
		// service is up.
		IsSuccessful: func(err error) bool {
			var unavailable *ServiceUnavailableError
			return err == nil || !errors.As(err, &unavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Calculate solves a hedge remotely. It satisfies session.Calculator.
func (c *Client) Calculate(ctx context.Context, p model.PortfolioParameters) (*model.HedgeResult, error) {
	resp, err := c.CalculateHedge(ctx, model.NewHedgeRequest(p))
	if err != nil {
		return nil, err
	}
	res := resp.HedgeResult
	return &res, nil
}

// CalculateHedge sends req as is, so a contract symbol may stand in for the
// multiplier.
func (c *Client) CalculateHedge(ctx context.Context, req model.HedgeRequest) (*model.HedgeResponse, error) {
	var resp hedgeResponse
	status, err := c.do(ctx, http.MethodPost, "/api/v1/calculate-hedge", req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ContractsRequired == nil || resp.Action == "" || resp.Message == "" {
		return nil, &MalformedResponseError{Status: status, Reason: "missing contracts_required, action or message"}
	}
	n := *resp.ContractsRequired
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, &MalformedResponseError{Status: status, Reason: "non-finite contracts_required"}
	}
	if !resp.Action.Valid() {
		return nil, &MalformedResponseError{Status: status, Reason: fmt.Sprintf("unknown action %q", resp.Action)}
	}
	if want := hedge.Classify(n); want != resp.Action {
		return nil, &MalformedResponseError{
			Status: status,
			Reason: fmt.Sprintf("action %s contradicts contracts_required %v", resp.Action, n),
		}
	}

	out := resp.HedgeResponse
	out.ContractsRequired = n
	return &out, nil
}

// hedgeResponse decodes contracts_required as a pointer so an absent count
// is not read as zero. The outer field shadows the embedded one.
type hedgeResponse struct {
	model.HedgeResponse
	ContractsRequired *float64 `json:"contracts_required"`
}

// Sensitivity samples the curve remotely. A nil anchor centers on zero.
func (c *Client) Sensitivity(ctx context.Context, p model.PortfolioParameters, anchor *float64) (*model.SensitivityResponse, error) {
	var resp model.SensitivityResponse
	req := model.NewSensitivityRequest(p, anchor)
	status, err := c.do(ctx, http.MethodPost, "/api/v1/sensitivity", req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Points == nil {
		return nil, &MalformedResponseError{Status: status, Reason: "missing points"}
	}
	return &resp, nil
}

// Contracts fetches the contract catalog.
func (c *Client) Contracts(ctx context.Context) ([]contract.Spec, error) {
	var specs []contract.Spec
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/contracts", nil, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// do sends one request through the rate limiter and circuit breaker and
// decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &ServiceUnavailableError{Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	var status int
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ServiceUnavailableError{Err: err}
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, &ServiceUnavailableError{Err: err}
		}
		c.logger.Debug("calculation service call",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
		)

		if status < 200 || status > 299 {
			return nil, rejection(status, data)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return nil, &MalformedResponseError{Status: status, Reason: err.Error()}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return status, &ServiceUnavailableError{Err: err}
	}
	return status, err
}

// rejection builds the error for a non-2xx response. A body without a
// detail is not a structured rejection.
func rejection(status int, data []byte) error {
	var e model.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Detail == "" {
		return &MalformedResponseError{Status: status, Reason: "non-2xx response without error detail"}
	}
	return &ServiceRejectedError{Status: status, Code: e.Error, Reason: e.Detail}
}
