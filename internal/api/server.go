package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/tuyable-bridge/internal/bridges/tuyable"
	"github.com/nerrad567/tuyable-bridge/internal/device"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuyable-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/tuyable-bridge/internal/scanner"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Registry is the read side of the device registry.
// This interface is satisfied by *device.Registry.
type Registry interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
	ListEntities(ctx context.Context, deviceID string) ([]device.Entity, error)
	GetEntity(ctx context.Context, entityID string) (*device.Entity, error)
	LastState(ctx context.Context, entityID string) (*device.EntityState, error)
	GetStats() device.Stats
}

// HistoryReader returns recorded state changes for an entity.
// This interface is satisfied by *device.SQLiteStateHistoryRepository.
type HistoryReader interface {
	GetHistory(ctx context.Context, entityID string, limit int) ([]device.StateHistoryEntry, error)
}

// LiveView reports the bridge's in-memory view of managed devices.
// This interface is satisfied by *tuyable.Bridge.
type LiveView interface {
	Devices() []tuyable.DeviceStatus
	Entities(address string) ([]tuyable.EntityStatus, error)
}

// ScanView reports devices heard by the BLE scanner.
// This interface is satisfied by *scanner.Scanner.
type ScanView interface {
	Devices() []scanner.Seen
}

// HealthCheckFunc checks one component. A nil error means healthy.
type HealthCheckFunc func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry Registry
	History  HistoryReader // optional
	Bridge   LiveView      // optional
	Scanner  ScanView      // optional
	Manager  ManagerView   // optional

	// HealthChecks are reported by /health, keyed by component name.
	HealthChecks map[string]HealthCheckFunc

	Version string
}

// Server is the HTTP API server of the bridge.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	registry     Registry
	history      HistoryReader
	bridge       LiveView
	scanner      ScanView
	manager      ManagerView
	healthChecks map[string]HealthCheckFunc
	version      string
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger and Registry are required, the rest is optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		registry:     deps.Registry,
		history:      deps.History,
		bridge:       deps.Bridge,
		scanner:      deps.Scanner,
		manager:      deps.Manager,
		healthChecks: deps.HealthChecks,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the server was already started
func (s *Server) Start(_ context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
