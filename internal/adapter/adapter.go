// Package adapter implements AdapterSocket: the capability-to-adapter
// router that invokes a selected provider, emits a meter event on
// success, and surfaces structured errors (section 4.E).
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
)

// ProviderAdapter is a registered provider. Each adapter declares which
// capabilities it serves and whether its workload runs on wopr-managed
// infrastructure (self-hosted) or an external API.
type ProviderAdapter interface {
	Name() string
	Capabilities() []domain.Capability
	SelfHosted() bool

	Transcribe(ctx context.Context, input any) (Result, error)
	GenerateImage(ctx context.Context, input any) (Result, error)
	GenerateText(ctx context.Context, input any) (Result, error)
	SynthesizeSpeech(ctx context.Context, input any) (Result, error)
	Embed(ctx context.Context, input any) (Result, error)
}

// Result is what an adapter call returns: the caller's payload plus an
// optional provider-asserted charge overriding the cost*margin default.
type Result struct {
	Value  any
	Cost   decimal.Decimal
	Charge *decimal.Decimal // nil means compute from Cost * margin
}

var (
	ErrAdapterNotRegistered    = errors.New("adapter: adapter not registered")
	ErrCapabilityNotDeclared   = errors.New("adapter: adapter does not declare capability")
	ErrNoAdapterForCapability  = errors.New("adapter: no registered adapter declares capability")
	ErrUnknownCapability       = errors.New("adapter: unknown capability")
)

// BudgetDeniedError carries the structured reason and HTTP status the
// caller should surface when the budget gate denies a request.
type BudgetDeniedError struct {
	Reason     string
	HTTPStatus int
}

func (e *BudgetDeniedError) Error() string {
	return fmt.Sprintf("adapter: budget check denied: %s", e.Reason)
}

// Registry holds registered adapters in registration order, since the
// fallback selection rule is "first-registered adapter declaring
// capability".
type Registry struct {
	adapters []ProviderAdapter
	byName   map[string]ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]ProviderAdapter)}
}

func (r *Registry) Register(a ProviderAdapter) {
	r.adapters = append(r.adapters, a)
	r.byName[a.Name()] = a
}

func declares(a ProviderAdapter, capability domain.Capability) bool {
	for _, c := range a.Capabilities() {
		if c == capability {
			return true
		}
	}
	return false
}

// Select implements §4.E's priority-ordered selection rules.
func (r *Registry) Select(adapterName string, capability domain.Capability, tier domain.PricingTier) (ProviderAdapter, error) {
	if adapterName != "" {
		a, ok := r.byName[adapterName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAdapterNotRegistered, adapterName)
		}
		if !declares(a, capability) {
			return nil, fmt.Errorf("%w: %s does not serve %s", ErrCapabilityNotDeclared, adapterName, capability)
		}
		return a, nil
	}

	switch tier {
	case domain.TierStandard:
		if a := r.firstMatching(capability, true); a != nil {
			return a, nil
		}
	case domain.TierPremium:
		if a := r.firstMatching(capability, false); a != nil {
			return a, nil
		}
	}

	if a := r.firstMatching(capability, nil); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAdapterForCapability, capability)
}

// firstMatching returns the first registered adapter declaring
// capability, optionally filtered by self-hosted status (nil = any).
func (r *Registry) firstMatching(capability domain.Capability, selfHosted *bool) ProviderAdapter {
	for _, a := range r.adapters {
		if !declares(a, capability) {
			continue
		}
		if selfHosted != nil && a.SelfHosted() != *selfHosted {
			continue
		}
		return a
	}
	return nil
}

// BudgetChecker is the slice of budget.Checker the socket consults.
type BudgetChecker interface {
	Check(ctx context.Context, tenant string) (budget.Decision, error)
}

// MeterAppender is the slice of meter.Store the socket writes to.
type MeterAppender interface {
	Append(ctx context.Context, event domain.MeterEvent) (domain.MeterEvent, error)
}

// Socket is AdapterSocket: select + budget-gate + invoke + meter.
type Socket struct {
	registry *Registry
	budget   BudgetChecker
	meter    MeterAppender
	logger   *slog.Logger
}

func New(registry *Registry, budgetChecker BudgetChecker, meterStore MeterAppender, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{registry: registry, budget: budgetChecker, meter: meterStore, logger: logger}
}

// ExecuteRequest mirrors §4.E's execute() parameter object.
type ExecuteRequest struct {
	Tenant      string
	Capability  domain.Capability
	Input       any
	Adapter     string
	PricingTier domain.PricingTier
	Margin      decimal.Decimal
	SessionID   string
	BYOK        bool
}

const defaultMargin = "1.3"

// Execute implements §4.E's execution steps 1-4.
func (s *Socket) Execute(ctx context.Context, req ExecuteRequest) (any, error) {
	a, err := s.registry.Select(req.Adapter, req.Capability, req.PricingTier)
	if err != nil {
		return nil, err
	}

	if s.budget != nil && !req.BYOK {
		decision, err := s.budget.Check(ctx, req.Tenant)
		if err != nil {
			return nil, fmt.Errorf("adapter: budget check: %w", err)
		}
		if !decision.Allowed {
			return nil, &BudgetDeniedError{Reason: decision.Reason, HTTPStatus: 429}
		}
	}

	result, err := s.invoke(ctx, a, req.Capability, req.Input)
	if err != nil {
		return nil, fmt.Errorf("adapter: %s.%s failed: %w", a.Name(), req.Capability, err)
	}

	margin := req.Margin
	if margin.IsZero() {
		margin, _ = decimal.NewFromString(defaultMargin)
	}

	event := domain.MeterEvent{
		Tenant:     req.Tenant,
		Capability: req.Capability,
		Provider:   a.Name(),
		SessionID:  req.SessionID,
		Tier:       req.PricingTier,
	}

	if req.BYOK {
		event.CostUSD = decimal.Zero
		event.ChargeUSD = decimal.Zero
	} else {
		event.CostUSD = result.Cost
		if result.Charge != nil {
			event.ChargeUSD = *result.Charge
		} else {
			event.ChargeUSD = result.Cost.Mul(margin)
		}
	}

	if _, err := s.meter.Append(ctx, event); err != nil {
		s.logger.Error("adapter: failed to persist meter event after successful call",
			"tenant", req.Tenant, "capability", req.Capability, "error", err)
		return nil, fmt.Errorf("adapter: persisting meter event: %w", err)
	}

	return result.Value, nil
}

// invoke dispatches to the capability's fixed adapter method per §4.E.
func (s *Socket) invoke(ctx context.Context, a ProviderAdapter, capability domain.Capability, input any) (Result, error) {
	switch capability {
	case domain.CapabilityTranscription:
		return a.Transcribe(ctx, input)
	case domain.CapabilityImageGeneration:
		return a.GenerateImage(ctx, input)
	case domain.CapabilityLLM:
		return a.GenerateText(ctx, input)
	case domain.CapabilityTTS:
		return a.SynthesizeSpeech(ctx, input)
	case domain.CapabilityEmbeddings:
		return a.Embed(ctx, input)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}
}
