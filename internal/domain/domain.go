// Package domain holds the entity types shared across the platform's
// components. They are plain structs matching the persisted layout in
// section 3 of the platform design; the node-stream message types carry
// json tags. No component owns its own copy of these shapes.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates the kinds of CreditTransaction.
type TransactionType string

const (
	TransactionSignupGrant     TransactionType = "signup_grant"
	TransactionPurchase        TransactionType = "purchase"
	TransactionConsumption     TransactionType = "consumption"
	TransactionRefund          TransactionType = "refund"
	TransactionCorrection      TransactionType = "correction"
	TransactionDividend        TransactionType = "dividend"
	TransactionAffiliateBonus  TransactionType = "affiliate_bonus"
	TransactionRuntimeDeduction TransactionType = "runtime_deduction"
)

// Capability is one of the fixed set of provider-facing operations.
type Capability string

const (
	CapabilityTTS            Capability = "tts"
	CapabilityLLM             Capability = "llm"
	CapabilityTranscription   Capability = "transcription"
	CapabilityImageGeneration Capability = "image-generation"
	CapabilityEmbeddings      Capability = "embeddings"
	CapabilityTelephony       Capability = "telephony"
)

// PricingTier selects how AdapterSocket prefers among registered adapters.
type PricingTier string

const (
	TierWOPR     PricingTier = "wopr"
	TierBranded  PricingTier = "branded"
	TierBYOK     PricingTier = "byok"
	TierStandard PricingTier = "standard"
	TierPremium  PricingTier = "premium"
)

// Credit is an integer unit of prepaid balance; 1 credit = 1/1e8 USD.
type Credit int64

// CreditBalance is the current authoritative balance for one tenant. It is
// not stored directly: it is derived as the balance_after of the tenant's
// most recent CreditTransaction, or zero if none exists.
type CreditBalance struct {
	Tenant  string
	Credits Credit
	AsOf    time.Time
}

// CreditTransaction is an immutable row in a tenant's credit ledger.
type CreditTransaction struct {
	ID            string
	Tenant        string
	Amount        Credit
	BalanceAfter  Credit
	Type          TransactionType
	Description   string
	ReferenceID   string
	FundingSource string
	CreatedAt     time.Time
}

// MeterEvent is an immutable record of a single capability invocation.
type MeterEvent struct {
	ID         string
	Tenant     string
	Capability Capability
	Provider   string
	CostUSD    decimal.Decimal
	ChargeUSD  decimal.Decimal
	Timestamp  time.Time
	SessionID  string
	Tier       PricingTier
}

// UsageSummary is a rolling-window aggregate keyed by
// (tenant, capability, provider, window_start).
type UsageSummary struct {
	Tenant       string
	Capability   Capability
	Provider     string
	WindowStart  time.Time
	EventCount   int64
	TotalCost    decimal.Decimal
	TotalCharge  decimal.Decimal
	TotalDuration time.Duration
}

// BillingPeriodSummary is a fixed-period aggregate keyed by
// (tenant, capability, provider, period_start); unique on that tuple.
type BillingPeriodSummary struct {
	ID          string
	Tenant      string
	Capability  Capability
	Provider    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	EventCount  int64
	TotalCost   decimal.Decimal
	TotalCharge decimal.Decimal
	CreatedAt   time.Time
}

// ExternalUsageReport records that a BillingPeriodSummary was reported to
// the external payment processor; unique on (tenant, capability, provider,
// period_start).
type ExternalUsageReport struct {
	ID           string
	Tenant       string
	Capability   Capability
	Provider     string
	PeriodStart  time.Time
	ExternalRef  string
	ReportedAt   time.Time
}

// RateLimitEntry is a fixed-window counter keyed by (key, scope).
type RateLimitEntry struct {
	Key         string
	Scope       string
	Count       int64
	WindowStart time.Time
}

// CircuitBreakerState is the per-instance sliding-window trip state.
type CircuitBreakerState struct {
	Scope       string
	Count       int64
	WindowStart time.Time
	PausedUntil time.Time
}

// NodeStatus enumerates the Node state machine driven by HeartbeatProcessor
// and Watchdog.
type NodeStatus string

const (
	NodeProvisioning NodeStatus = "provisioning"
	NodeActive       NodeStatus = "active"
	NodeDegraded     NodeStatus = "degraded"
	NodeUnreachable  NodeStatus = "unreachable"
	NodeFailed       NodeStatus = "failed"
)

// Node is a worker host that runs tenant bot containers.
type Node struct {
	ID              string
	Host            string
	Status          NodeStatus
	ProvisionStage  string
	CapacityMB      int64
	UsedMB          int64
	DrainStatus     string
	LastHeartbeatAt time.Time
	AgentVersion    string
	Secret          string
}

// BillingState enumerates a BotInstance's lifecycle on its Node.
type BillingState string

const (
	BillingActive    BillingState = "active"
	BillingSuspended BillingState = "suspended"
	BillingGrace     BillingState = "grace"
	BillingDestroyed BillingState = "destroyed"
)

// BotInstance is one tenant's workload on some Node. It holds a weak
// reference to its Node (relation, not lifetime) — the Node never points
// back to its instances.
type BotInstance struct {
	ID           string
	Tenant       string
	NodeID       string
	BillingState BillingState
	ResourceTier string
	StorageTier  string
	SizeMB       int64
	SuspendedAt  time.Time
	DestroyAfter time.Time
}

// ContainerSummary is one entry in a HeartbeatMessage's container_summary.
type ContainerSummary struct {
	BotInstanceID string `json:"bot_instance_id"`
	SizeMB        int64  `json:"size_mb"`
	Status        string `json:"status"`
}

// ResourceUsage is the resource snapshot a node reports with each heartbeat.
type ResourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemMB      int64   `json:"mem_mb"`
}

// HeartbeatMessage is the wire shape a node sends periodically.
type HeartbeatMessage struct {
	Type             string             `json:"type"`
	NodeID           string             `json:"node_id"`
	Timestamp        time.Time          `json:"timestamp"`
	ResourceUsage    ResourceUsage      `json:"resource_usage"`
	ContainerSummary []ContainerSummary `json:"container_summary"`
}

// RegisterMessage is the wire shape a node sends once after boot.
type RegisterMessage struct {
	Type         string `json:"type"`
	NodeID       string `json:"node_id"`
	Host         string `json:"host"`
	CapacityMB   int64  `json:"capacity_mb"`
	AgentVersion string `json:"agent_version"`
}

// HealthEvent is an ad hoc health signal a node may push out of band.
type HealthEvent struct {
	Type    string `json:"type"`
	NodeID  string `json:"node_id"`
	Reason  string `json:"reason"`
	Payload string `json:"payload,omitempty"`
}

// Command is an envelope dispatched to a node over its stream.
type Command struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Command string      `json:"command"`
	Payload interface{} `json:"payload,omitempty"`
}

// CommandResult is the wire shape a node sends back once a command
// completes (or fails).
type CommandResult struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	Command string      `json:"command"`
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}
