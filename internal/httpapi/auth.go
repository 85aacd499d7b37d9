package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Scope is the privilege level carried by a token: admin >= write >= read.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

var scopeRank = map[Scope]int{
	ScopeRead:  1,
	ScopeWrite: 2,
	ScopeAdmin: 3,
}

// Satisfies reports whether s carries at least the privilege of required.
func (s Scope) Satisfies(required Scope) bool {
	return scopeRank[s] >= scopeRank[required]
}

// Principal is the authenticated caller attached to a request's context.
type Principal struct {
	Tenant string
	Scope  Scope
	Token  string
}

// TokenStore resolves the tenant a wopr_-scheme token belongs to. Token
// issuance and storage are outside this package's concern (an "arbitrary
// CRUD router" in the non-goals sense); only lookup is exercised here.
type TokenStore interface {
	TenantForToken(token string) (tenant string, err error)
}

// Authenticator validates bearer tokens against the two schemes in use:
// inline `wopr_<scope>_<random>` tokens (tenant resolved via TokenStore),
// and `FLEET_TOKEN_<TENANT>` environment mappings for tokens that carry
// their tenant and scope without a lookup.
type Authenticator struct {
	fleetTokens map[string]fleetMapping // raw token -> mapping
	tokens      TokenStore
}

type fleetMapping struct {
	tenant string
	scope  Scope
}

// NewAuthenticator reads every FLEET_TOKEN_<TENANT> environment variable
// present in env (the output of os.Environ, or an equivalent slice in
// tests) in the form `FLEET_TOKEN_<TENANT>=<scope>:<token>`. tokens may
// be nil if no wopr_-scheme tokens need tenant resolution (e.g. in a
// fleet-only deployment).
func NewAuthenticator(env []string, tokens TokenStore) *Authenticator {
	a := &Authenticator{fleetTokens: make(map[string]fleetMapping), tokens: tokens}
	const prefix = "FLEET_TOKEN_"
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		tenant := strings.TrimPrefix(k, prefix)
		scope, token, ok := strings.Cut(v, ":")
		if !ok {
			continue
		}
		a.fleetTokens[token] = fleetMapping{tenant: tenant, scope: Scope(scope)}
	}
	return a
}

// NewAuthenticatorFromEnviron builds an Authenticator from the process's
// actual environment.
func NewAuthenticatorFromEnviron(tokens TokenStore) *Authenticator {
	return NewAuthenticator(os.Environ(), tokens)
}

var errAuth = fmt.Errorf("authentication required")

// Authenticate parses the Authorization header and resolves a Principal.
// Tokens of the form wopr_<scope>_<random> take their scope from the token
// itself and their tenant from TokenStore.TenantForToken; with no
// TokenStore configured the Principal's tenant is left empty.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return Principal{}, errAuth
	}

	if mapping, ok := a.fleetTokens[token]; ok {
		return Principal{Tenant: mapping.tenant, Scope: mapping.scope, Token: token}, nil
	}

	if strings.HasPrefix(token, "wopr_") {
		rest := strings.TrimPrefix(token, "wopr_")
		scope, _, ok := strings.Cut(rest, "_")
		if !ok || scope == "" {
			return Principal{}, errInvalidToken
		}
		principal := Principal{Scope: Scope(scope), Token: token}
		if a.tokens != nil {
			tenant, err := a.tokens.TenantForToken(token)
			if err != nil {
				return Principal{}, errInvalidToken
			}
			principal.Tenant = tenant
		}
		return principal, nil
	}

	return Principal{}, errInvalidToken
}

var errInvalidToken = fmt.Errorf("invalid or expired token")
