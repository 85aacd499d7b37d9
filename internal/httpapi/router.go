// Package httpapi wires the platform's HTTP surface: authentication,
// the fixed RateLimiter -> CircuitBreaker -> BudgetChecker admission
// chain, capability execution, the node websocket stream, and admin
// operations. Grounded on internal/api/server.go's mux.Router-based
// APIServer and internal/middleware/tenant.go's header-driven context
// injection, generalized to the bearer-token scheme in full.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wopr-network/wopr-platform/internal/adapter"
	"github.com/wopr-network/wopr-platform/internal/deletion"
	"github.com/wopr-network/wopr-platform/internal/fleet"
)

// Server holds every collaborator the HTTP surface dispatches into.
type Server struct {
	socket      *adapter.Socket
	connections *fleet.ConnectionRegistry
	registrar   *fleet.NodeRegistrar
	heartbeats  *fleet.HeartbeatProcessor
	commands    *fleet.CommandBus
	nodes       fleet.NodeRepo
	nodeSecret  string
	deletions   *deletion.Executor
	auth        *Authenticator
	gates       *AdmissionGates
	limits      SpendLimitsWriter
	logger      *slog.Logger

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// Config bundles the dependencies Server needs. Logger and Registerer fall
// back to defaults when nil; Gates, Limits and Nodes are nil-checked where
// they are used. The other fields, Deletions included, are used without a
// nil check.
type Config struct {
	Socket      *adapter.Socket
	Connections *fleet.ConnectionRegistry
	Registrar   *fleet.NodeRegistrar
	Heartbeats  *fleet.HeartbeatProcessor
	Commands    *fleet.CommandBus
	Nodes       fleet.NodeRepo
	NodeSecret  string
	Deletions   *deletion.Executor
	Auth        *Authenticator
	Gates       *AdmissionGates
	Limits      SpendLimitsWriter
	Logger      *slog.Logger
	Registerer  prometheus.Registerer
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	requestsTotal := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "wopr_http_requests_total",
		Help: "Total HTTP requests by route and status class.",
	}, []string{"route", "status"})

	requestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wopr_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	return &Server{
		socket:          cfg.Socket,
		connections:     cfg.Connections,
		registrar:       cfg.Registrar,
		heartbeats:      cfg.Heartbeats,
		commands:        cfg.Commands,
		nodes:           cfg.Nodes,
		nodeSecret:      cfg.NodeSecret,
		deletions:       cfg.Deletions,
		auth:            cfg.Auth,
		gates:           cfg.Gates,
		limits:          cfg.Limits,
		logger:          logger,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}
}

// Router builds the full mux.Router: capability routes behind auth +
// admission gates, the node stream upgrade with no middleware (its handler
// checks the node secret itself; admission gates don't apply to
// long-lived streams), and admin routes
// behind the admin scope.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	capabilities := r.PathPrefix("/v1/{capability}").Subrouter()
	capabilities.Use(authenticate(s.auth))
	capabilities.Use(requireScope(ScopeWrite))
	capabilities.Use(s.capabilityAdmission)
	capabilities.HandleFunc("", s.handleCapability).Methods(http.MethodPost)

	r.HandleFunc("/internal/nodes/{node_id}/ws", s.handleNodeStream).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(authenticate(s.auth))
	admin.Use(requireScope(ScopeAdmin))
	admin.HandleFunc("/tenants/{tenant}", s.handleDeleteTenant).Methods(http.MethodDelete)
	admin.HandleFunc("/tenants/{tenant}/spend-limits", s.handleSetSpendLimits).Methods(http.MethodPut)

	return r
}

// capabilityAdmission runs the RateLimiter -> CircuitBreaker ->
// BudgetChecker chain scoped to the capability named in the route.
func (s *Server) capabilityAdmission(next http.Handler) http.Handler {
	if s.gates == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capability := mux.Vars(r)["capability"]
		s.gates.middleware(capability)(next).ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if match := mux.CurrentRoute(r); match != nil {
			if tmpl, err := match.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := prometheus.NewTimer(s.requestDuration.WithLabelValues(route))
		defer timer.ObserveDuration()

		next.ServeHTTP(recorder, r)

		s.requestsTotal.WithLabelValues(route, statusClass(recorder.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
