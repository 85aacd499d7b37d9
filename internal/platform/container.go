// Package platform wires every component into one running process: the
// construct-then-serve shape cmd/api/main.go uses, generalized from that
// single monolithic main function into a reusable Container so cmd/platform
// and cmd/agent (indirectly, via the components it dials into) share one
// wiring story.
package platform

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/adapter/providers"
	"github.com/wopr-network/wopr-platform/internal/aggregator"
	"github.com/wopr-network/wopr-platform/internal/billing"
	"github.com/wopr-network/wopr-platform/internal/config"
	"github.com/wopr-network/wopr-platform/internal/deletion"
	"github.com/wopr-network/wopr-platform/internal/domain"
	"github.com/wopr-network/wopr-platform/internal/fleet"
	"github.com/wopr-network/wopr-platform/internal/gateway/budget"
	"github.com/wopr-network/wopr-platform/internal/gateway/circuitbreaker"
	"github.com/wopr-network/wopr-platform/internal/gateway/ratelimit"
	"github.com/wopr-network/wopr-platform/internal/httpapi"
	"github.com/wopr-network/wopr-platform/internal/ledger"
	"github.com/wopr-network/wopr-platform/internal/meter"
	"github.com/robfig/cron/v3"
)

// Container holds every long-lived component the platform process needs,
// plus the background schedulers (aggregator, watchdog) it starts and the
// closers shutdown must run in reverse wiring order.
type Container struct {
	DB *sql.DB

	Meter      *meter.PostgresStore
	Ledger     *ledger.Ledger
	Aggregator *aggregator.UsageAggregator
	Adapters   *adapter.Registry
	Socket     *adapter.Socket

	RateLimiter    *ratelimit.Limiter
	CircuitBreaker *circuitbreaker.Breaker
	Budget         *budget.Checker
	Limits         *budget.PostgresLimitsSource
	Gates          *httpapi.AdmissionGates

	Nodes       fleet.NodeRepo
	Connections *fleet.ConnectionRegistry
	Registrar   *fleet.NodeRegistrar
	Heartbeats  *fleet.HeartbeatProcessor
	Commands    *fleet.CommandBus
	Watchdog    *fleet.Watchdog
	Recovery    *fleet.RecoveryManager

	Deletions *deletion.Executor
	Auth      *httpapi.Authenticator
	Server    *httpapi.Server

	logger *slog.Logger

	closers []func() error
	crons   []*cron.Cron
}

// Build constructs every component named in Container, falling back to
// in-memory implementations for Redis/Pub/Sub/Supabase/Stripe the way
// cmd/api/main.go does when those are unconfigured or unreachable, so the
// platform still starts (degraded) in a single-instance/dev environment.
func Build(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{logger: logger}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("platform: pinging database: %w", err)
	}
	c.DB = db
	c.addCloser(db.Close)

	c.Meter = meter.NewPostgresStore(db)
	if err := c.Meter.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("platform: migrating meter store: %w", err)
	}

	ledgerStore, err := ledger.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("platform: opening ledger store: %w", err)
	}
	if err := ledgerStore.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("platform: migrating ledger store: %w", err)
	}
	c.addCloser(ledgerStore.Close)
	c.Ledger = ledger.New(ledgerStore)

	aggregatorStore := aggregator.NewPostgresStore(db)
	if err := aggregatorStore.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("platform: migrating aggregator store: %w", err)
	}

	payments := c.buildPaymentProcessor(cfg)

	c.Aggregator = aggregator.New(
		c.Meter, aggregatorStore, payments,
		time.Duration(cfg.Billing.PeriodMs)*time.Millisecond,
		time.Duration(cfg.Billing.LateArrivalGraceMs)*time.Millisecond,
		logger,
	)

	if err := c.buildAdmissionGates(cfg, db); err != nil {
		return nil, err
	}
	c.buildAdapters(cfg)
	c.buildFleet(cfg)

	objectStore, err := c.buildObjectStore(cfg)
	if err != nil {
		return nil, err
	}
	deletionStore, err := c.buildDeletionStore(cfg, db)
	if err != nil {
		return nil, err
	}
	c.Deletions = deletion.New(deletionStore, payments, objectStore, logger)

	c.Auth = httpapi.NewAuthenticatorFromEnviron(nil)

	c.Server = httpapi.NewServer(httpapi.Config{
		Socket:      c.Socket,
		Connections: c.Connections,
		Registrar:   c.Registrar,
		Heartbeats:  c.Heartbeats,
		Commands:    c.Commands,
		Nodes:       c.Nodes,
		NodeSecret:  cfg.NodeSecret,
		Deletions:   c.Deletions,
		Auth:        c.Auth,
		Gates:       c.Gates,
		Limits:      c.Limits,
		Logger:      logger,
	})

	return c, nil
}

func (c *Container) addCloser(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Start launches the background schedulers (aggregator tick, watchdog
// scan). Stop (via Shutdown) must be called to release them.
func (c *Container) Start(ctx context.Context) {
	c.crons = append(c.crons, c.Aggregator.Start(ctx))
	c.crons = append(c.crons, c.Watchdog.Start(ctx, 30*time.Second))
}

// Shutdown stops every scheduler and closes every resource opened during
// Build, in reverse order.
func (c *Container) Shutdown() {
	for _, cr := range c.crons {
		cr.Stop()
	}
	c.Watchdog.Stop()

	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Error("platform: close during shutdown failed", "error", err)
		}
	}
}

func (c *Container) buildPaymentProcessor(cfg *config.Config) billing.PaymentProcessor {
	if !cfg.BillingEnabled() {
		c.logger.Info("platform: STRIPE_SECRET_KEY unset, billing reporting disabled")
		return billing.NoopProcessor{}
	}
	return billing.NewStripeProcessor(cfg.Stripe.SecretKey, c.logger)
}

func (c *Container) buildAdmissionGates(cfg *config.Config, db *sql.DB) error {
	var limiterRepo ratelimit.Repository
	var breakerRepo circuitbreaker.Repository

	if cfg.Redis.Addr != "" {
		redisLimiter, err := ratelimit.NewRedisRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			c.logger.Warn("platform: redis rate-limit repository unavailable, falling back to in-memory", "error", err)
			limiterRepo = ratelimit.NewMemoryRepository()
		} else {
			limiterRepo = redisLimiter
			c.addCloser(redisLimiter.Close)
		}

		redisBreaker, err := circuitbreaker.NewRedisRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			c.logger.Warn("platform: redis circuit-breaker repository unavailable, falling back to in-memory", "error", err)
			breakerRepo = circuitbreaker.NewMemoryRepository()
		} else {
			breakerRepo = redisBreaker
			c.addCloser(redisBreaker.Close)
		}
	} else {
		c.logger.Info("platform: REDIS_ADDR unset, admission gates use in-memory counters")
		limiterRepo = ratelimit.NewMemoryRepository()
		breakerRepo = circuitbreaker.NewMemoryRepository()
	}

	rules := []ratelimit.Rule{
		{PathPrefix: "/v1/llm", Scope: "llm", Max: cfg.RateLimitFor("llm"), WindowMs: 60_000},
		{PathPrefix: "/v1/image-generation", Scope: "image-generation", Max: cfg.RateLimitFor("image-generation"), WindowMs: 60_000},
		{PathPrefix: "/v1/tts", Scope: "tts", Max: cfg.RateLimitFor("tts"), WindowMs: 60_000},
		{PathPrefix: "/v1/transcription", Scope: "transcription", Max: cfg.RateLimitFor("transcription"), WindowMs: 60_000},
		{PathPrefix: "/v1/embeddings", Scope: "embeddings", Max: cfg.RateLimitFor("embeddings"), WindowMs: 60_000},
		{PathPrefix: "/v1/telephony", Scope: "telephony", Max: cfg.RateLimitFor("telephony"), WindowMs: 60_000},
	}
	defaultRule := ratelimit.Rule{Scope: "default", Max: cfg.RateLimit.Default, WindowMs: 60_000}

	c.RateLimiter = ratelimit.New(limiterRepo, rules, defaultRule, cfg.TrustedProxies)
	c.CircuitBreaker = circuitbreaker.New(breakerRepo, circuitbreaker.Config{
		MaxRequestsPerWindow: cfg.CircuitBreaker.MaxRequestsPerWindow,
		WindowMs:             int64(cfg.CircuitBreaker.WindowMs),
		PauseDurationMs:      int64(cfg.CircuitBreaker.PauseDurationMs),
	}, func(scope string, count int64, pausedUntil time.Time) {
		c.logger.Warn("platform: circuit tripped", "scope", scope, "count", count, "paused_until", pausedUntil)
	})

	c.Limits = budget.NewPostgresLimitsSource(db)
	if err := c.Limits.Migrate(context.Background()); err != nil {
		return fmt.Errorf("platform: migrating spend limits store: %w", err)
	}
	c.Budget = budget.New(c.Meter, c.Limits, time.Second)

	c.Gates = httpapi.NewAdmissionGates(c.RateLimiter, c.CircuitBreaker, c.Budget)
	return nil
}

func (c *Container) buildAdapters(cfg *config.Config) {
	registry := adapter.NewRegistry()

	for name, key := range cfg.Providers {
		registry.Register(providers.NewHTTPProvider(name, false, map[domain.Capability]providers.Endpoint{
			domain.CapabilityLLM: {Method: "POST", URL: fmt.Sprintf("https://api.%s.example/v1/generate", name)},
		}, key))
	}

	c.Adapters = registry
	c.Socket = adapter.New(registry, c.Budget, c.Meter, c.logger)
}

func (c *Container) buildFleet(cfg *config.Config) {
	if cfg.Redis.Addr != "" {
		redisNodes, err := fleet.NewRedisNodeRepo(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "wopr:nodes:")
		if err != nil {
			c.logger.Warn("platform: redis node repo unavailable, falling back to in-memory", "error", err)
			c.Nodes = fleet.NewMemoryNodeRepo()
		} else {
			c.Nodes = redisNodes
			c.addCloser(redisNodes.Close)
		}
	} else {
		c.Nodes = fleet.NewMemoryNodeRepo()
	}

	c.Connections = fleet.NewConnectionRegistry()
	c.Registrar = fleet.NewNodeRegistrar(c.Nodes)
	c.Heartbeats = fleet.NewHeartbeatProcessor(c.Nodes)
	c.Commands = fleet.NewCommandBus(c.Connections, c.logger)

	var events fleet.EventPublisher
	if cfg.PubSub.Enabled && cfg.PubSub.ProjectID != "" {
		publisher, err := fleet.NewPubSubPublisher(cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			c.logger.Warn("platform: pubsub publisher unavailable, recovery events dropped", "error", err)
		} else {
			events = publisher
			c.addCloser(publisher.Close)
		}
	}

	c.Recovery = fleet.NewRecoveryManager(c.Connections, c.Commands, events, c.logger)
	c.Watchdog = fleet.NewWatchdog(c.Nodes, 45*time.Second, 3*time.Minute, c.Recovery.Recover, c.logger)
}

func (c *Container) buildObjectStore(cfg *config.Config) (deletion.ObjectStore, error) {
	return deletion.NewMemoryObjectStore(), nil
}

func (c *Container) buildDeletionStore(cfg *config.Config, db *sql.DB) (deletion.Store, error) {
	sqlStore := deletion.NewSQLStoreFromDB(db)

	if cfg.Supabase.URL == "" || cfg.Supabase.ServiceKey == "" {
		c.logger.Warn("platform: supabase unconfigured, notification/admin-notes/user-audit-log deletion steps run against primary database instead")
		return sqlStore, nil
	}

	client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("platform: creating supabase client: %w", err)
	}
	supabaseStore := deletion.NewSupabaseStore(client)
	return deletion.NewCompositeStore(sqlStore, supabaseStore), nil
}
