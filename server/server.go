// Package server exposes the block pipeline over HTTP: candidate
// submission, semantic search, intent execution, stats and the audit
// chain.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/blockforge/audit"
	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/policy"
	"github.com/forgeworks/blockforge/registry"
	"github.com/forgeworks/blockforge/run"
)

// Server wires the admission pipeline, composer, guarded executor and
// audit chain behind the HTTP API.
type Server struct {
	admission *registry.Service
	composer  *compose.Composer
	executor  *run.Executor
	chain     *audit.Chain
	policy    *policy.Engine

	// composition bounds applied to every request
	minTrust    float64
	maxNodes    int
	resultLimit int

	allowedOrigins []string
	logger         *zap.SugaredLogger
	httpServer     *http.Server
	mux            *http.ServeMux
}

// Options tune request-independent server behavior.
type Options struct {
	MinTrust       float64
	MaxNodes       int
	ResultLimit    int
	AllowedOrigins []string
}

// New assembles a server over already-wired components.
func New(admission *registry.Service, composer *compose.Composer, executor *run.Executor, chain *audit.Chain, policyEngine *policy.Engine, opts Options, logger *zap.SugaredLogger) *Server {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = compose.DefaultMaxNodes
	}
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = 20
	}

	s := &Server{
		admission:      admission,
		composer:       composer,
		executor:       executor,
		chain:          chain,
		policy:         policyEngine,
		minTrust:       opts.MinTrust,
		maxNodes:       opts.MaxNodes,
		resultLimit:    opts.ResultLimit,
		allowedOrigins: opts.AllowedOrigins,
		logger:         logger,
		mux:            http.NewServeMux(),
	}
	s.setupHTTPRoutes()
	return s
}

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	s.mux.HandleFunc("/api/blocks", s.corsMiddleware(s.HandleBlocks))       // List (GET) / submit candidate (POST)
	s.mux.HandleFunc("/api/blocks/", s.corsMiddleware(s.HandleBlock))       // Individual block by content hash (GET)
	s.mux.HandleFunc("/api/search", s.corsMiddleware(s.HandleSearch))       // Semantic index query (GET)
	s.mux.HandleFunc("/api/execute", s.corsMiddleware(s.HandleExecute))     // Intent execution (POST)
	s.mux.HandleFunc("/api/stats", s.corsMiddleware(s.HandleStats))         // Registry/index/audit counters (GET)
	s.mux.HandleFunc("/api/audit", s.corsMiddleware(s.HandleAudit))         // Audit chain entries (GET)
	s.mux.HandleFunc("/api/audit/verify", s.corsMiddleware(s.HandleAuditVerify)) // Chain integrity check (POST)
	s.mux.HandleFunc("/api/policy", s.corsMiddleware(s.HandlePolicy))       // Active policy rules (GET)
}

// Handler returns the routed handler, exported for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Component accessors for CLI commands that drive the pipeline directly.

// Admission returns the admission service.
func (s *Server) Admission() *registry.Service { return s.admission }

// Composer returns the intent composer.
func (s *Server) Composer() *compose.Composer { return s.composer }

// Executor returns the guarded executor.
func (s *Server) Executor() *run.Executor { return s.executor }

// Chain returns the audit chain.
func (s *Server) Chain() *audit.Chain { return s.chain }

// Policy returns the policy engine.
func (s *Server) Policy() *policy.Engine { return s.policy }

// ComposeBounds returns the configured composition bounds.
func (s *Server) ComposeBounds() (minTrust float64, maxNodes int) {
	return s.minTrust, s.maxNodes
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Agent-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Start serves the API on the given port, blocking until shutdown.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://localhost:%d", port),
		"port", port,
	)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Infow("Server shutting down")
	return s.httpServer.Shutdown(ctx)
}
