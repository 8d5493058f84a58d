// Package api exposes the reservation HTTP API and the live event
// WebSocket for Kennel Core.
//
// It follows the same lifecycle pattern as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iotail/kennel-core/internal/audit"
	"github.com/iotail/kennel-core/internal/infrastructure/config"
	"github.com/iotail/kennel-core/internal/infrastructure/logging"
	"github.com/iotail/kennel-core/internal/reservation"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ReservationService is the scheduler surface the API exposes.
type ReservationService interface {
	Reserve(ctx context.Context, req reservation.ReserveRequest) (*reservation.Result, error)
	Unlock(ctx context.Context, req reservation.UnlockRequest) (*reservation.Result, error)
	Activate(ctx context.Context, reservationID, code string) error
	Cancel(ctx context.Context, reservationID string) error
	Status(ctx context.Context, userID string) ([]reservation.Reservation, error)
}

// HealthChecker is implemented by infrastructure components that can
// report their own liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Reservations ReservationService
	Audit        *audit.Repository

	// Checks are named liveness probes reported by /health (message
	// bus, database, time-series store).
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for Kennel Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub. Create with New, start with Start, stop with Close.
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	reservations ReservationService
	audit        *audit.Repository
	checks       map[string]HealthChecker
	version      string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies. The server is
// not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Reservations == nil {
		return nil, fmt.Errorf("reservation service is required")
	}

	return &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		reservations: deps.Reservations,
		audit:        deps.Audit,
		checks:       deps.Checks,
		version:      deps.Version,
	}, nil
}

// Hub returns the WebSocket hub so the scheduler's event callback can
// broadcast lifecycle transitions. Valid after Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections. The hub and listener run
// in background goroutines; the server is stopped with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to ten seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
