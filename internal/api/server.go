package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/countrelay/internal/audit"
	"github.com/nerrad567/countrelay/internal/auth"
	"github.com/nerrad567/countrelay/internal/device"
	"github.com/nerrad567/countrelay/internal/hub"
	"github.com/nerrad567/countrelay/internal/infrastructure/config"
	"github.com/nerrad567/countrelay/internal/infrastructure/logging"
	"github.com/nerrad567/countrelay/internal/ownership"
	"github.com/nerrad567/countrelay/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a component that can report its liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ResetPublisher sends the unlink signal to a device.
type ResetPublisher interface {
	PublishReset(pin string) error
}

// StatsSource reports routed message totals.
type StatsSource interface {
	Stats() relay.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Devices  *device.Store
	Owners   *ownership.Directory
	Audit    audit.Repository
	Hub      *hub.Hub
	Database HealthChecker
	Broker   HealthChecker  // optional
	Resetter ResetPublisher // optional; unlink still succeeds without it
	Stats    StatsSource    // optional
	Version  string
}

// Server is the HTTP API server for the counter relay.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	auth     *auth.Service
	devices  *device.Store
	owners   *ownership.Directory
	audit    audit.Repository
	hub      *hub.Hub
	database HealthChecker
	broker   HealthChecker
	resetter ResetPublisher
	stats    StatsSource
	version  string

	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device store is required")
	case deps.Owners == nil:
		return nil, fmt.Errorf("ownership directory is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("hub is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		auth:     deps.Auth,
		devices:  deps.Devices,
		owners:   deps.Owners,
		audit:    deps.Audit,
		hub:      deps.Hub,
		database: deps.Database,
		broker:   deps.Broker,
		resetter: deps.Resetter,
		stats:    deps.Stats,
		version:  deps.Version,

		startTime: time.Now(),
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured address and serves in the background.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
