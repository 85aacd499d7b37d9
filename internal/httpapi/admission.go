package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
	"github.com/wopr-network/wopr-platform/internal/gateway/circuitbreaker"
	"github.com/wopr-network/wopr-platform/internal/gateway/ratelimit"
)

type ctxKey int

const principalKey ctxKey = iota

// writeError writes the fixed-shape error bodies §6 specifies.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// requireScope rejects requests whose Principal doesn't carry at least
// required, with the structured 403 body §6 specifies.
func requireScope(required Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := r.Context().Value(principalKey).(Principal)
			if !ok || !principal.Scope.Satisfies(required) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{
					"error":    "Insufficient scope",
					"required": string(required),
					"provided": string(ok2Scope(ok, principal)),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ok2Scope(ok bool, p Principal) Scope {
	if !ok {
		return ""
	}
	return p.Scope
}

// authenticate populates the request context with a Principal, or
// rejects the request per §6's 401 body.
func authenticate(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := auth.Authenticate(r)
			if err != nil {
				status := http.StatusUnauthorized
				msg := "Authentication required"
				if err == errInvalidToken {
					msg = "Invalid or expired token"
				}
				writeError(w, status, msg)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// admissionGates wires RateLimiter -> CircuitBreaker -> BudgetChecker, in
// that fixed order: a request must clear each gate before the next runs,
// and the first gate to deny short-circuits the rest.
type AdmissionGates struct {
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Breaker
	budget  *budget.Checker
}

func NewAdmissionGates(limiter *ratelimit.Limiter, breaker *circuitbreaker.Breaker, budgetChecker *budget.Checker) *AdmissionGates {
	return &AdmissionGates{limiter: limiter, breaker: breaker, budget: budgetChecker}
}

func (g *AdmissionGates) middleware(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if g.limiter != nil {
				key := g.limiter.ClientKey(r)
				decision, err := g.limiter.Check(ctx, key, r.Method, r.URL.Path)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err.Error())
					return
				}
				decision.SetHeaders(w)
				if !decision.Allowed {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
					return
				}
			}

			if g.breaker != nil {
				decision, err := g.breaker.Check(ctx, capability)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err.Error())
					return
				}
				if !decision.Allowed {
					w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds(), 10))
					writeError(w, http.StatusServiceUnavailable, "circuit open for "+capability)
					return
				}
			}

			if g.budget != nil {
				principal, _ := r.Context().Value(principalKey).(Principal)
				if principal.Tenant != "" {
					decision, err := g.budget.Check(ctx, principal.Tenant)
					if err != nil {
						writeError(w, http.StatusInternalServerError, err.Error())
						return
					}
					if !decision.Allowed {
						writeError(w, http.StatusTooManyRequests, "budget exceeded: "+decision.Reason)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
