// Package circuitbreaker implements the CircuitBreaker admission gate: a
// per-scope sliding window that trips to a timed pause once request
// volume exceeds a threshold, independent of success/failure (section
// 4.D.3 — this gate protects against load, not error rate).
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Repository is the shared state store for a scope's window. Record must
// implement the same fixed-window-reset rule as the rate limiter: once
// window_start is older than windowMs, the window resets and the count
// restarts at 1.
type Repository interface {
	Record(ctx context.Context, scope string, windowMs int64) (count int64, windowStart time.Time, err error)
	PausedUntil(ctx context.Context, scope string) (time.Time, error)
	SetPausedUntil(ctx context.Context, scope string, until time.Time) error
}

// OnTripFunc is invoked exactly once per trip, for observability event
// emission. It must not block the gate.
type OnTripFunc func(scope string, count int64, pausedUntil time.Time)

// Config holds the per-scope trip parameters.
type Config struct {
	MaxRequestsPerWindow int64
	WindowMs             int64
	PauseDurationMs      int64
}

// Breaker is the CircuitBreaker gate.
type Breaker struct {
	repo    Repository
	cfg     Config
	onTrip  OnTripFunc
	mu      sync.Mutex
	tripped map[string]struct{} // scopes already fired onTrip for their current pause
}

// New constructs a Breaker. onTrip may be nil.
func New(repo Repository, cfg Config, onTrip OnTripFunc) *Breaker {
	return &Breaker{
		repo:    repo,
		cfg:     cfg,
		onTrip:  onTrip,
		tripped: make(map[string]struct{}),
	}
}

// Decision reports whether the scope is currently paused.
type Decision struct {
	Allowed     bool
	PausedUntil time.Time
}

func (d Decision) RetryAfterSeconds() int64 {
	retry := int64(time.Until(d.PausedUntil).Seconds())
	if retry < 0 {
		retry = 0
	}
	return retry
}

// Check records one request against scope and returns whether it's
// allowed. A request made while paused is denied without being counted
// against the window.
func (b *Breaker) Check(ctx context.Context, scope string) (Decision, error) {
	pausedUntil, err := b.repo.PausedUntil(ctx, scope)
	if err != nil {
		return Decision{}, fmt.Errorf("circuitbreaker: reading pause state: %w", err)
	}

	now := time.Now()
	if pausedUntil.After(now) {
		return Decision{Allowed: false, PausedUntil: pausedUntil}, nil
	}

	b.clearTripped(scope)

	count, _, err := b.repo.Record(ctx, scope, b.cfg.WindowMs)
	if err != nil {
		return Decision{}, fmt.Errorf("circuitbreaker: recording request: %w", err)
	}

	if count > b.cfg.MaxRequestsPerWindow {
		until := now.Add(time.Duration(b.cfg.PauseDurationMs) * time.Millisecond)
		if err := b.repo.SetPausedUntil(ctx, scope, until); err != nil {
			return Decision{}, fmt.Errorf("circuitbreaker: setting pause: %w", err)
		}
		b.fireTripOnce(scope, count, until)
		return Decision{Allowed: false, PausedUntil: until}, nil
	}

	return Decision{Allowed: true}, nil
}

func (b *Breaker) fireTripOnce(scope string, count int64, until time.Time) {
	b.mu.Lock()
	_, already := b.tripped[scope]
	if !already {
		b.tripped[scope] = struct{}{}
	}
	b.mu.Unlock()

	if !already && b.onTrip != nil {
		b.onTrip(scope, count, until)
	}
}

func (b *Breaker) clearTripped(scope string) {
	b.mu.Lock()
	delete(b.tripped, scope)
	b.mu.Unlock()
}
