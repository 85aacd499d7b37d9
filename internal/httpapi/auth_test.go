package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_WoprTokenCarriesScopeInline(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	r := httptest.NewRequest(http.MethodPost, "/v1/llm", nil)
	r.Header.Set("Authorization", "Bearer wopr_write_abc123")

	principal, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, ScopeWrite, principal.Scope)
}

func TestAuthenticate_FleetTokenResolvesTenantAndScopeFromEnv(t *testing.T) {
	env := []string{"FLEET_TOKEN_ACME=admin:secret-token-1"}
	auth := NewAuthenticator(env, nil)

	r := httptest.NewRequest(http.MethodPost, "/v1/llm", nil)
	r.Header.Set("Authorization", "Bearer secret-token-1")

	principal, err := auth.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "ACME", principal.Tenant)
	assert.Equal(t, ScopeAdmin, principal.Scope)
}

func TestAuthenticate_MissingHeaderIsAuthRequired(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	r := httptest.NewRequest(http.MethodPost, "/v1/llm", nil)

	_, err := auth.Authenticate(r)
	assert.Equal(t, errAuth, err)
}

func TestAuthenticate_UnknownTokenIsInvalid(t *testing.T) {
	auth := NewAuthenticator(nil, nil)
	r := httptest.NewRequest(http.MethodPost, "/v1/llm", nil)
	r.Header.Set("Authorization", "Bearer garbage")

	_, err := auth.Authenticate(r)
	assert.Equal(t, errInvalidToken, err)
}

func TestScope_Satisfies_OrdersAdminAboveWriteAboveRead(t *testing.T) {
	assert.True(t, ScopeAdmin.Satisfies(ScopeWrite))
	assert.True(t, ScopeWrite.Satisfies(ScopeRead))
	assert.False(t, ScopeRead.Satisfies(ScopeWrite))
	assert.False(t, ScopeWrite.Satisfies(ScopeAdmin))
}
