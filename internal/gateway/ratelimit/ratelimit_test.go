package ratelimit_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wopr-network/wopr-platform/internal/gateway/ratelimit"
)

func newLimiter() *ratelimit.Limiter {
	repo := ratelimit.NewMemoryRepository()
	rules := []ratelimit.Rule{
		{Method: "", PathPrefix: "/v1/llm", Scope: "llm", Max: 2, WindowMs: 60_000},
	}
	defaultRule := ratelimit.Rule{Scope: "default", Max: 5, WindowMs: 60_000}
	return ratelimit.New(repo, rules, defaultRule, nil)
}

func TestCheck_AllowsUpToLimitThenDenies(t *testing.T) {
	l := newLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "tenantA", "POST", "/v1/llm/complete")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
	}

	d, err := l.Check(ctx, "tenantA", "POST", "/v1/llm/complete")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.GreaterOrEqual(t, d.RetryAfterSeconds(), int64(0))
}

func TestCheck_IndependentKeysDoNotShareCounters(t *testing.T) {
	l := newLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "tenantA", "POST", "/v1/llm/complete")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	// tenantB has its own counter under the same rule/scope.
	d, err := l.Check(ctx, "tenantB", "POST", "/v1/llm/complete")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_UnmatchedPathFallsToDefaultRule(t *testing.T) {
	l := newLimiter()
	ctx := context.Background()

	d, err := l.Check(ctx, "tenantA", "GET", "/v1/other")
	require.NoError(t, err)
	assert.Equal(t, "default", d.Scope)
	assert.Equal(t, 5, d.Limit)
}

func TestClientKey_UsesForwardedForOnlyWhenProxyTrusted(t *testing.T) {
	repo := ratelimit.NewMemoryRepository()
	defaultRule := ratelimit.Rule{Scope: "default", Max: 5, WindowMs: 60_000}
	l := ratelimit.New(repo, nil, defaultRule, []string{"10.0.0.1"})

	trusted := httptest.NewRequest("GET", "/", nil)
	trusted.RemoteAddr = "10.0.0.1:1234"
	trusted.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", l.ClientKey(trusted))

	untrusted := httptest.NewRequest("GET", "/", nil)
	untrusted.RemoteAddr = "198.51.100.9:4321"
	untrusted.Header.Set("X-Forwarded-For", "203.0.113.5")
	assert.Equal(t, "198.51.100.9", l.ClientKey(untrusted))
}

func TestSetHeaders_SetsRetryAfterOnlyWhenDenied(t *testing.T) {
	l := newLimiter()
	ctx := context.Background()

	var last ratelimit.Decision
	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "tenantC", "POST", "/v1/llm/complete")
		require.NoError(t, err)
		last = d
	}

	w := httptest.NewRecorder()
	last.SetHeaders(w)
	assert.False(t, last.Allowed)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
