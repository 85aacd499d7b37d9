package providers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/domain"
)

// MockProvider is a hand-written fake ProviderAdapter for tests, mirroring
// the pack's escrow/mocks.go idiom rather than a mocking framework. Every
// method returns a fixed result and cost unless overridden, and records
// every call for assertions.
type MockProvider struct {
	name         string
	selfHosted   bool
	capabilities []domain.Capability

	Cost     decimal.Decimal
	FailWith error

	Calls []MockCall
}

type MockCall struct {
	Capability domain.Capability
	Input      any
}

func NewMockProvider(name string, selfHosted bool, capabilities ...domain.Capability) *MockProvider {
	return &MockProvider{
		name:         name,
		selfHosted:   selfHosted,
		capabilities: capabilities,
		Cost:         decimal.NewFromFloat(0.01),
	}
}

func (m *MockProvider) Name() string                     { return m.name }
func (m *MockProvider) Capabilities() []domain.Capability { return m.capabilities }
func (m *MockProvider) SelfHosted() bool                  { return m.selfHosted }

func (m *MockProvider) record(capability domain.Capability, input any) (adapter.Result, error) {
	m.Calls = append(m.Calls, MockCall{Capability: capability, Input: input})
	if m.FailWith != nil {
		return adapter.Result{}, m.FailWith
	}
	return adapter.Result{Value: map[string]any{"ok": true}, Cost: m.Cost}, nil
}

func (m *MockProvider) Transcribe(ctx context.Context, input any) (adapter.Result, error) {
	return m.record(domain.CapabilityTranscription, input)
}

func (m *MockProvider) GenerateImage(ctx context.Context, input any) (adapter.Result, error) {
	return m.record(domain.CapabilityImageGeneration, input)
}

func (m *MockProvider) GenerateText(ctx context.Context, input any) (adapter.Result, error) {
	return m.record(domain.CapabilityLLM, input)
}

func (m *MockProvider) SynthesizeSpeech(ctx context.Context, input any) (adapter.Result, error) {
	return m.record(domain.CapabilityTTS, input)
}

func (m *MockProvider) Embed(ctx context.Context, input any) (adapter.Result, error) {
	return m.record(domain.CapabilityEmbeddings, input)
}
