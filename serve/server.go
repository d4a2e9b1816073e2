package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/everydev1618/toolrunner"
)

// Config holds server configuration.
type Config struct {
	Addr   string
	DBPath string
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// OrganizationResolver maps a platform key to the organization it belongs to.
type OrganizationResolver interface {
	FromPlatformKey(ctx context.Context, key string) (int64, string, error)
}

// Server is the HTTP front end for running tool containers.
type Server struct {
	client     toolrunner.ContainerClient
	broker     *EventBroker
	store      Store
	ownsStore  bool
	publishers toolrunner.Publishers
	runnerOpts []toolrunner.RunnerOption
	orgs       OrganizationResolver
	owners     *channelOwners
	checks     map[string]ReadinessCheck
	cfg        Config
	startedAt  time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStore sets the file history store. The caller keeps ownership.
func WithStore(store Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithPublisher adds a publisher that receives every forwarded event in
// addition to the SSE broker.
func WithPublisher(p toolrunner.Publisher) Option {
	return func(s *Server) {
		s.publishers = append(s.publishers, p)
	}
}

// WithRunnerOptions applies opts to every runner the server creates.
func WithRunnerOptions(opts ...toolrunner.RunnerOption) Option {
	return func(s *Server) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// WithOrganizations enables bearer platform-key authentication.
func WithOrganizations(orgs OrganizationResolver) Option {
	return func(s *Server) {
		s.orgs = orgs
	}
}

// WithReadinessCheck registers a named check reported by GET /ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// New creates a new Server.
func New(client toolrunner.ContainerClient, cfg Config, opts ...Option) *Server {
	s := &Server{
		client: client,
		broker: NewEventBroker(),
		owners: newChannelOwners(),
		checks: make(map[string]ReadinessCheck),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publishers = append(toolrunner.Publishers{s.broker}, s.publishers...)
	return s
}

// Broker returns the SSE event broker.
func (s *Server) Broker() *EventBroker {
	return s.broker
}

// Start opens the store when none was supplied, registers routes, and
// listens for HTTP requests. It blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	if s.store == nil && s.cfg.DBPath != "" {
		store, err := NewSQLiteStore(s.cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := store.Init(); err != nil {
			store.Close()
			return fmt.Errorf("init database: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("toolrunner serve started", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errCh:
		return err
	}

	// Close broker first: this closes all SSE subscriber channels,
	// unblocking their handlers so the HTTP server can drain cleanly.
	s.broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}

	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var h http.Handler = mux
	h = s.authMiddleware(h)
	h = lifecycleMiddleware(h)
	h = corsMiddleware(h)
	return otelhttp.NewHandler(h, "toolrunner")
}

// registerRoutes adds all API routes to the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/api/container/run", s.handleRun)
	mux.HandleFunc("POST /v1/api/container/run-command", s.handleRunCommand)

	// SSE
	mux.HandleFunc("GET /v1/api/events", s.handleSSE)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
}

// newRunner builds a runner for one tool image.
func (s *Server) newRunner(image, tag string) *toolrunner.Runner {
	opts := append([]toolrunner.RunnerOption{}, s.runnerOpts...)
	opts = append(opts,
		toolrunner.WithImage(image, tag),
		toolrunner.WithPublisher(s.publishers),
	)
	return toolrunner.NewRunner(s.client, opts...)
}
