package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
	"github.com/wopr-network/wopr-platform/internal/gateway/circuitbreaker"
	"github.com/wopr-network/wopr-platform/internal/gateway/ratelimit"
)

func TestAdmissionGates_DeniesAtFirstFailingGate(t *testing.T) {
	limiterRepo := ratelimit.NewMemoryRepository()
	limiter := ratelimit.New(limiterRepo, nil, ratelimit.Rule{Max: 1, WindowMs: 60_000}, nil)

	breakerRepo := circuitbreaker.NewMemoryRepository()
	breaker := circuitbreaker.New(breakerRepo, circuitbreaker.Config{MaxRequestsPerWindow: 100, WindowMs: 60_000, PauseDurationMs: 1000}, nil)

	limits := budget.NewMemoryLimitsSource()
	checker := budget.New(noopMeter{}, limits, time.Millisecond)

	gates := NewAdmissionGates(limiter, breaker, checker)

	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	})

	handler := gates.middleware("llm")(next)

	r1 := httptest.NewRequest(http.MethodPost, "/v1/llm", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, r1)
	require.Equal(t, http.StatusOK, w1.Code)

	r2 := httptest.NewRequest(http.MethodPost, "/v1/llm", nil)
	r2.RemoteAddr = "10.0.0.1:1234"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, r2)

	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, 1, called, "second request must not reach the handler")
}

type noopMeter struct{}

func (noopMeter) RangeByTenant(ctx context.Context, tenant string, from, to time.Time) ([]domain.MeterEvent, error) {
	return nil, nil
}
