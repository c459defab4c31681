package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis/hedge-engine/internal/calc"
	"github.com/aegis/hedge-engine/internal/config"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/session"
)

func testConfig(baseURL string) config.ClientConfig {
	return config.ClientConfig{
		BaseURL:           baseURL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		BreakerFailures:   3,
		BreakerCooldown:   time.Minute,
	}
}

func defaultParams() model.PortfolioParameters {
	return model.PortfolioParameters{
		PortfolioValue:     1000000,
		CurrentBeta:        1.2,
		TargetBeta:         0.5,
		IndexPrice:         4500,
		ContractMultiplier: 50,
	}
}

// newServiceServer runs the real calculation handlers.
func newServiceServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := calc.NewService(nil, nil, nil)
	r := chi.NewRouter()
	r.Post("/api/v1/calculate-hedge", svc.CalculateHedge)
	r.Post("/api/v1/sensitivity", svc.Sensitivity)
	r.Get("/api/v1/contracts", svc.ListContracts)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// newStubServer answers every request with status and body.
func newStubServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCalculate_Success(t *testing.T) {
	srv := newServiceServer(t)
	c := New(testConfig(srv.URL))

	res, err := c.Calculate(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, model.ActionShort, res.Action)
	assert.InDelta(t, -3.1111, res.ContractsRequired, 1e-4)
	assert.Contains(t, res.Message, "SELL (short) 3.1111")
}

func TestCalculate_ImplementsCalculator(t *testing.T) {
	srv := newServiceServer(t)
	var calculator session.Calculator = New(testConfig(srv.URL))

	s := session.New(session.DefaultFields)
	comp := <-s.Submit(context.Background(), calculator)
	require.NoError(t, comp.Err)
	assert.True(t, comp.Applied)
	assert.NotNil(t, s.Snapshot().Result)
}

func TestCalculateHedge_ContractSymbol(t *testing.T) {
	srv := newServiceServer(t)
	c := New(testConfig(srv.URL))

	req := model.NewHedgeRequest(defaultParams())
	req.ContractMultiplier = nil
	req.ContractSymbol = "MES"

	resp, err := c.CalculateHedge(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 5.0, resp.ContractMultiplier)
	assert.NotEmpty(t, resp.CalculationID)
}

func TestCalculate_Rejected(t *testing.T) {
	srv := newServiceServer(t)
	c := New(testConfig(srv.URL))

	p := defaultParams()
	p.ContractMultiplier = 0
	_, err := c.Calculate(context.Background(), p)

	var rejected *ServiceRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Equal(t, calc.CodeInvalidInput, rejected.Code)
	assert.Contains(t, rejected.Detail(), "contract_multiplier")
}

func TestCalculate_RejectedVerbatimDetail(t *testing.T) {
	srv, _ := newStubServer(t, http.StatusUnprocessableEntity, `{"error":"limit_exceeded","detail":"too many contracts"}`)
	c := New(testConfig(srv.URL))

	_, err := c.Calculate(context.Background(), defaultParams())

	var rejected *ServiceRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "too many contracts", rejected.Detail())
}

func TestCalculate_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not json", http.StatusOK, "<html>oops</html>"},
		{"missing fields", http.StatusOK, `{"contracts_required": 1}`},
		{"unknown action", http.StatusOK, `{"contracts_required": 1, "action": "HOLD", "message": "x"}`},
		{"missing contracts", http.StatusOK, `{"action": "SHORT", "message": "sell"}`},
		{"null contracts", http.StatusOK, `{"contracts_required": null, "action": "NONE", "message": "x"}`},
		{"short with zero", http.StatusOK, `{"contracts_required": 0, "action": "SHORT", "message": "sell"}`},
		{"short with positive count", http.StatusOK, `{"contracts_required": 2.5, "action": "SHORT", "message": "sell"}`},
		{"long with negative count", http.StatusOK, `{"contracts_required": -2.5, "action": "LONG", "message": "buy"}`},
		{"unstructured error", http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newStubServer(t, tt.status, tt.body)
			c := New(testConfig(srv.URL))

			_, err := c.Calculate(context.Background(), defaultParams())

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.status, malformed.Status)
			assert.Equal(t, "The calculation server returned an unexpected response.", malformed.Detail())
		})
	}
}

func TestCalculate_StubbedSuccess(t *testing.T) {
	srv, _ := newStubServer(t, http.StatusOK, `{"contracts_required": 0, "action": "NONE", "message": "No hedge needed."}`)
	c := New(testConfig(srv.URL))

	res, err := c.Calculate(context.Background(), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, model.ActionNone, res.Action)
	assert.Zero(t, res.ContractsRequired)
}

func TestCalculate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(testConfig(url))
	_, err := c.Calculate(context.Background(), defaultParams())

	var unavailable *ServiceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), "calculation service unreachable")
	assert.Equal(t, "Could not connect to the calculation server. Is it running?", unavailable.Detail())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(testConfig(url))
	for i := 0; i < 3; i++ {
		_, err := c.Calculate(context.Background(), defaultParams())
		require.Error(t, err)
	}

	_, err := c.Calculate(context.Background(), defaultParams())
	var unavailable *ServiceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreaker_RejectionsDoNotTrip(t *testing.T) {
	srv, calls := newStubServer(t, http.StatusBadRequest, `{"error":"invalid_input","detail":"bad"}`)
	c := New(testConfig(srv.URL))

	for i := 0; i < 5; i++ {
		_, err := c.Calculate(context.Background(), defaultParams())
		var rejected *ServiceRejectedError
		require.ErrorAs(t, err, &rejected)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(calls))
}

func TestCalculate_ContextCancelled(t *testing.T) {
	srv := newServiceServer(t)
	c := New(testConfig(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Calculate(ctx, defaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSensitivity(t *testing.T) {
	srv := newServiceServer(t)
	c := New(testConfig(srv.URL))

	anchor := -3.1111111111
	resp, err := c.Sensitivity(context.Background(), defaultParams(), &anchor)
	require.NoError(t, err)
	require.Len(t, resp.Points, 21)
	assert.Equal(t, -14, resp.Points[0].Contracts)

	p := defaultParams()
	p.PortfolioValue = 0
	resp, err = c.Sensitivity(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Points)
}

func TestContracts(t *testing.T) {
	srv := newServiceServer(t)
	c := New(testConfig(srv.URL))

	specs, err := c.Contracts(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, specs)
}
