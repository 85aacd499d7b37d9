// Package providers holds concrete ProviderAdapter implementations.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/domain"
)

// Endpoint maps a capability to the REST call that serves it.
type Endpoint struct {
	Method string
	URL    string
}

// HTTPProvider wires any REST-based model API into the AdapterSocket by
// configuration: one Endpoint per capability it declares, no code change
// required to onboard a new provider of the same shape.
type HTTPProvider struct {
	name         string
	selfHosted   bool
	capabilities []domain.Capability
	endpoints    map[domain.Capability]Endpoint
	apiKey       string
	client       *http.Client
}

func NewHTTPProvider(name string, selfHosted bool, endpoints map[domain.Capability]Endpoint, apiKey string) *HTTPProvider {
	caps := make([]domain.Capability, 0, len(endpoints))
	for c := range endpoints {
		caps = append(caps, c)
	}
	return &HTTPProvider{
		name:         name,
		selfHosted:   selfHosted,
		capabilities: caps,
		endpoints:    endpoints,
		apiKey:       apiKey,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HTTPProvider) Name() string                        { return p.name }
func (p *HTTPProvider) Capabilities() []domain.Capability    { return p.capabilities }
func (p *HTTPProvider) SelfHosted() bool                     { return p.selfHosted }

func (p *HTTPProvider) Transcribe(ctx context.Context, input any) (adapter.Result, error) {
	return p.call(ctx, domain.CapabilityTranscription, input)
}

func (p *HTTPProvider) GenerateImage(ctx context.Context, input any) (adapter.Result, error) {
	return p.call(ctx, domain.CapabilityImageGeneration, input)
}

func (p *HTTPProvider) GenerateText(ctx context.Context, input any) (adapter.Result, error) {
	return p.call(ctx, domain.CapabilityLLM, input)
}

func (p *HTTPProvider) SynthesizeSpeech(ctx context.Context, input any) (adapter.Result, error) {
	return p.call(ctx, domain.CapabilityTTS, input)
}

func (p *HTTPProvider) Embed(ctx context.Context, input any) (adapter.Result, error) {
	return p.call(ctx, domain.CapabilityEmbeddings, input)
}

// providerResponse is the expected JSON envelope: the provider's own
// payload under "result", and what it billed for the call under "cost_usd".
type providerResponse struct {
	Result  json.RawMessage `json:"result"`
	CostUSD string          `json:"cost_usd"`
}

func (p *HTTPProvider) call(ctx context.Context, capability domain.Capability, input any) (adapter.Result, error) {
	ep, ok := p.endpoints[capability]
	if !ok {
		return adapter.Result{}, fmt.Errorf("providers: %s has no endpoint for %s", p.name, capability)
	}

	body, err := json.Marshal(input)
	if err != nil {
		return adapter.Result{}, fmt.Errorf("providers: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, ep.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.Result{}, fmt.Errorf("providers: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return adapter.Result{}, fmt.Errorf("providers: calling %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return adapter.Result{}, fmt.Errorf("providers: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return adapter.Result{}, fmt.Errorf("providers: %s returned status %d: %s", p.name, resp.StatusCode, string(raw))
	}

	var parsed providerResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return adapter.Result{}, fmt.Errorf("providers: decoding response: %w", err)
	}

	cost := decimal.Zero
	if parsed.CostUSD != "" {
		cost, err = decimal.NewFromString(parsed.CostUSD)
		if err != nil {
			return adapter.Result{}, fmt.Errorf("providers: parsing cost_usd: %w", err)
		}
	}

	var value any
	if err := json.Unmarshal(parsed.Result, &value); err != nil {
		value = parsed.Result
	}

	return adapter.Result{Value: value, Cost: cost}, nil
}
