// Package ratelimit implements the RateLimiter admission gate: a
// fixed-window counter keyed by (key, scope), with Redis-backed shared
// state across platform instances.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Repository is the shared counter store. Increment must implement the
// fixed-window reset rule: if the recorded window_start is older than
// windowMs, the window resets to now and the counter to 1; otherwise the
// counter increments in place. The post-increment count and window_start
// are both returned so the caller can compute Remaining/Reset.
type Repository interface {
	Increment(ctx context.Context, key, scope string, windowMs int64) (count int64, windowStart time.Time, err error)
}

// Rule matches requests to a scope by (method, path_prefix), first-wins;
// unmatched requests fall to the DefaultRule.
type Rule struct {
	Method      string // "" matches any method
	PathPrefix  string
	Scope       string
	Max         int
	WindowMs    int64
}

// Limiter is the RateLimiter gate.
type Limiter struct {
	repo          Repository
	rules         []Rule
	defaultRule   Rule
	trustedProxies map[string]struct{}
}

// New constructs a Limiter. trustedProxies holds peer addresses whose
// X-Forwarded-For first value is trusted to identify the real client
// (section 4.D.2's anti-spoofing rule).
func New(repo Repository, rules []Rule, defaultRule Rule, trustedProxies []string) *Limiter {
	tp := make(map[string]struct{}, len(trustedProxies))
	for _, addr := range trustedProxies {
		tp[addr] = struct{}{}
	}
	return &Limiter{repo: repo, rules: rules, defaultRule: defaultRule, trustedProxies: tp}
}

// Decision is the outcome of a rate-limit check, carrying everything
// needed to set the X-RateLimit-* response headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetUnix int64
	Scope     string
}

func (d Decision) RetryAfterSeconds() int64 {
	retry := d.ResetUnix - time.Now().Unix()
	if retry < 0 {
		retry = 0
	}
	return retry
}

// matchRule returns the first rule whose method ("" = any) and path
// prefix match, or the default rule.
func (l *Limiter) matchRule(method, path string) Rule {
	for _, r := range l.rules {
		if r.Method != "" && !strings.EqualFold(r.Method, method) {
			continue
		}
		if strings.HasPrefix(path, r.PathPrefix) {
			return r
		}
	}
	return l.defaultRule
}

// ClientKey resolves the rate-limit key for a request: the first
// X-Forwarded-For value only when the peer address is a trusted proxy;
// otherwise the peer address itself.
func (l *Limiter) ClientKey(r *http.Request) string {
	peer := peerAddr(r)
	if _, trusted := l.trustedProxies[peer]; trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	return peer
}

func peerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Check applies the matched rule for (method, path) to key, returning a
// Decision with the headers the caller must set on every response
// (allowed or not).
func (l *Limiter) Check(ctx context.Context, key, method, path string) (Decision, error) {
	rule := l.matchRule(method, path)

	count, windowStart, err := l.repo.Increment(ctx, key, rule.Scope, rule.WindowMs)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incrementing counter: %w", err)
	}

	resetUnix := windowStart.Add(time.Duration(rule.WindowMs) * time.Millisecond).Round(time.Second).Unix()
	remaining := rule.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   int(count) <= rule.Max,
		Limit:     rule.Max,
		Remaining: remaining,
		ResetUnix: resetUnix,
		Scope:     rule.Scope,
	}, nil
}

// SetHeaders writes the X-RateLimit-* headers (and Retry-After when
// denied) per section 4.D.2's response contract.
func (d Decision) SetHeaders(w http.ResponseWriter) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetUnix, 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
	}
}
