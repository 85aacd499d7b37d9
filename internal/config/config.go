// Package config loads the platform's configuration: a nested struct
// unmarshaled from YAML with environment variable overrides applied
// afterward, plus an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// wopr-platform configuration
// =============================================================================

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Supabase       SupabaseConfig       `yaml:"supabase"`
	Stripe         StripeConfig         `yaml:"stripe"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Billing        BillingConfig        `yaml:"billing"`
	Providers      map[string]string    `yaml:"providers"`
	PubSub         PubSubConfig         `yaml:"pubsub"`
	PlatformSecret string               `yaml:"platform_secret"`
	NodeSecret     string               `yaml:"node_secret"`
	TrustedProxies []string             `yaml:"trusted_proxy_ips"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig is the primary Postgres connection, holding the ledger,
// meter events, billing summaries, node and bot-instance tables.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig backs the shared RateLimitRepository and
// CircuitBreakerRepository counters and cross-instance node presence.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SupabaseConfig is the DeletionExecutor's second storage boundary for
// notification data, admin notes, and the user-facing audit log.
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// StripeConfig configures the external payment processor. Absence of
// SecretKey disables billing integration (UsageAggregator falls back to a
// no-op reporter).
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type CircuitBreakerConfig struct {
	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`
	WindowMs             int `yaml:"window_ms"`
	PauseDurationMs      int `yaml:"pause_duration_ms"`
}

// RateLimitConfig carries the per-capability requests-per-minute caps named
// in section 6 (LLM, IMAGE, AUDIO, TELEPHONY) plus a default.
type RateLimitConfig struct {
	Default   int `yaml:"default"`
	LLM       int `yaml:"llm"`
	Image     int `yaml:"image"`
	Audio     int `yaml:"audio"`
	Telephony int `yaml:"telephony"`
}

type BillingConfig struct {
	PeriodMs           int `yaml:"period_ms"`
	LateArrivalGraceMs int `yaml:"late_arrival_grace_ms"`
}

// PubSubConfig configures durable recovery/observability event emission.
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
	Enabled   bool   `yaml:"enabled"`
}

// =============================================================================
// Singleton pattern with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config instance.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file. A missing file is returned as
// an error; Get logs it and falls back to defaults plus env overrides.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies the environment variables enumerated in
// section 6 on top of whatever was loaded from YAML.
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("WOPR_ENV", c.Server.Env)

	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}

	c.Supabase.URL = getEnv("SUPABASE_URL", c.Supabase.URL)
	c.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Supabase.ServiceKey)

	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)

	if v := getEnvInt("GATEWAY_CIRCUIT_BREAKER_MAX", 0); v > 0 {
		c.CircuitBreaker.MaxRequestsPerWindow = v
	}
	if v := getEnvInt("GATEWAY_CIRCUIT_BREAKER_WINDOW_MS", 0); v > 0 {
		c.CircuitBreaker.WindowMs = v
	}
	if v := getEnvInt("GATEWAY_CIRCUIT_BREAKER_PAUSE_MS", 0); v > 0 {
		c.CircuitBreaker.PauseDurationMs = v
	}

	if v := getEnvInt("GATEWAY_RATE_LIMIT_DEFAULT", 0); v > 0 {
		c.RateLimit.Default = v
	}
	if v := getEnvInt("GATEWAY_RATE_LIMIT_LLM", 0); v > 0 {
		c.RateLimit.LLM = v
	}
	if v := getEnvInt("GATEWAY_RATE_LIMIT_IMAGE", 0); v > 0 {
		c.RateLimit.Image = v
	}
	if v := getEnvInt("GATEWAY_RATE_LIMIT_AUDIO", 0); v > 0 {
		c.RateLimit.Audio = v
	}
	if v := getEnvInt("GATEWAY_RATE_LIMIT_TELEPHONY", 0); v > 0 {
		c.RateLimit.Telephony = v
	}

	if v := getEnvInt("BILLING_PERIOD_MS", 0); v > 0 {
		c.Billing.PeriodMs = v
	}
	if v := getEnvInt("LATE_ARRIVAL_GRACE_MS", 0); v > 0 {
		c.Billing.LateArrivalGraceMs = v
	}

	if projectID := getEnv("GCP_PROJECT_ID", ""); projectID != "" {
		c.PubSub.ProjectID = projectID
	}
	c.PubSub.TopicID = getEnv("PUBSUB_TOPIC_ID", c.PubSub.TopicID)
	c.PubSub.Enabled = getEnvBool("PUBSUB_ENABLED", c.PubSub.Enabled)

	c.PlatformSecret = getEnv("PLATFORM_SECRET", c.PlatformSecret)
	c.NodeSecret = getEnv("NODE_SECRET", c.NodeSecret)

	if proxies := getEnv("TRUSTED_PROXY_IPS", ""); proxies != "" {
		c.TrustedProxies = splitCSV(proxies)
	}

	c.loadProviderKeys()
	c.applyDefaults()
}

// loadProviderKeys scans the environment for PROVIDER_<NAME>_API_KEY
// variables and records which providers are enabled. Absence of a
// provider's key disables the capabilities it backs (section 6).
func (c *Config) loadProviderKeys() {
	if c.Providers == nil {
		c.Providers = make(map[string]string)
	}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		if !strings.HasPrefix(key, "PROVIDER_") || !strings.HasSuffix(key, "_API_KEY") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "PROVIDER_"), "_API_KEY")
		if parts[1] != "" {
			c.Providers[strings.ToLower(name)] = parts[1]
		}
	}
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.CircuitBreaker.MaxRequestsPerWindow == 0 {
		c.CircuitBreaker.MaxRequestsPerWindow = 100
	}
	if c.CircuitBreaker.WindowMs == 0 {
		c.CircuitBreaker.WindowMs = 10_000
	}
	if c.CircuitBreaker.PauseDurationMs == 0 {
		c.CircuitBreaker.PauseDurationMs = 30_000
	}
	if c.RateLimit.Default == 0 {
		c.RateLimit.Default = 60
	}
	if c.Billing.PeriodMs == 0 {
		c.Billing.PeriodMs = 5 * 60 * 1000
	}
	if c.Billing.LateArrivalGraceMs == 0 {
		c.Billing.LateArrivalGraceMs = 30_000
	}
	if c.PubSub.TopicID == "" {
		c.PubSub.TopicID = "wopr-events"
	}
}

// Validate checks the invariant external interfaces rely on: a platform
// secret of sufficient length to derive per-tenant keys from.
func (c *Config) Validate() error {
	if len(c.PlatformSecret) < 32 {
		return fmt.Errorf("config: PLATFORM_SECRET must be at least 32 characters, got %d", len(c.PlatformSecret))
	}
	return nil
}

// =============================================================================
// Helper functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) BillingEnabled() bool {
	return c.Stripe.SecretKey != ""
}

func (c *Config) RateLimitFor(capability string) int {
	switch capability {
	case "llm":
		if c.RateLimit.LLM > 0 {
			return c.RateLimit.LLM
		}
	case "image-generation":
		if c.RateLimit.Image > 0 {
			return c.RateLimit.Image
		}
	case "tts", "transcription", "embeddings":
		if c.RateLimit.Audio > 0 {
			return c.RateLimit.Audio
		}
	case "telephony":
		if c.RateLimit.Telephony > 0 {
			return c.RateLimit.Telephony
		}
	}
	return c.RateLimit.Default
}
