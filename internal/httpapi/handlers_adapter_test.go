package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/adapter/providers"
	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
	"github.com/wopr-network/wopr-platform/internal/meter"
)

func withPrincipalForTest(r *http.Request, p Principal) context.Context {
	return context.WithValue(r.Context(), principalKey, p)
}

type fixedBudget struct {
	decision budget.Decision
}

func (f fixedBudget) Check(ctx context.Context, tenant string) (budget.Decision, error) {
	return f.decision, nil
}

func newCapabilityRouter(socket *adapter.Socket) *mux.Router {
	s := &Server{socket: socket}
	r := mux.NewRouter()
	r.HandleFunc("/v1/{capability}", s.handleCapability).Methods("POST")
	return r
}

func TestHandleCapability_Succeeds(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(providers.NewMockProvider("alpha", true, domain.CapabilityLLM))
	socket := adapter.New(registry, fixedBudget{decision: budget.Decision{Allowed: true}}, meter.NewMemoryStore(), nil)

	r := newCapabilityRouter(socket)
	req := httptest.NewRequest("POST", "/v1/llm", bytes.NewBufferString(`{"input":{"prompt":"hi"}}`))
	ctx := withPrincipalForTest(req, Principal{Tenant: "acme", Scope: ScopeWrite})
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
}

func TestHandleCapability_BudgetDeniedSurfacesStatus(t *testing.T) {
	registry := adapter.NewRegistry()
	registry.Register(providers.NewMockProvider("alpha", true, domain.CapabilityLLM))
	socket := adapter.New(registry, fixedBudget{decision: budget.Decision{Allowed: false, Reason: "hourly spend limit exceeded"}}, meter.NewMemoryStore(), nil)

	r := newCapabilityRouter(socket)
	req := httptest.NewRequest("POST", "/v1/llm", bytes.NewBufferString(`{"input":{}}`))
	ctx := withPrincipalForTest(req, Principal{Tenant: "acme", Scope: ScopeWrite})
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, 429, w.Code)
}
