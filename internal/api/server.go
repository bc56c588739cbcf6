package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lwrf/internal/activity"
	"github.com/nerrad567/gray-logic-lwrf/internal/bridges/lwrf"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lwrf/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of the LightwaveRF bridge the API exposes.
// *lwrf.Bridge satisfies it.
type Bridge interface {
	Snapshot() lwrf.HealthSnapshot
	Diagnostics() lwrf.DiagnosticsReport
	Pairings() lwrf.PairingList
	AddPairing(ctx context.Context, remoteID string, channel int) (lwrf.PairingView, error)
	ErasePairings(ctx context.Context) (int, error)
	Remotes(ctx context.Context, limit int) ([]activity.Entry, error)
}

var _ Bridge = (*lwrf.Bridge)(nil)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Version string
}

// Server is the HTTP API server of the bridge.
//
// It is created with New, given its bridge with SetBridge once the bridge
// exists, and started with Start. The hub exists from New so the bridge can
// be handed it as its event sink.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	version   string
	startTime time.Time
	hub       *Hub
	tickets   *ticketStore

	mu       sync.RWMutex
	bridge   Bridge
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
		tickets:   newTicketStore(),
	}, nil
}

// Hub returns the WebSocket hub. Pass it to the bridge as its event sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetBridge sets the bridge the handlers operate on. Until it is called,
// bridge-backed routes answer 503.
func (s *Server) SetBridge(b Bridge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bridge = b
}

func (s *Server) getBridge() Bridge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bridge
}

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns, so a port conflict is
// reported here rather than logged from the background goroutine.
//
// Parameters:
//   - ctx: Parent context for the hub and background goroutines
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
