package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/fermentwatch/internal/audit"
	"github.com/nerrad567/fermentwatch/internal/device"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/config"
	"github.com/nerrad567/fermentwatch/internal/infrastructure/logging"
	"github.com/nerrad567/fermentwatch/internal/project"
	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ProjectStore is the project persistence the API edits.
type ProjectStore interface {
	List(ctx context.Context) ([]project.Project, error)
	GetByID(ctx context.Context, id string) (*project.Project, error)
	Create(ctx context.Context, p *project.Project) error
	Delete(ctx context.Context, id string) error
	UpdateControlMode(ctx context.Context, id string, mode project.ControlMode) error
	UpdateTargetTemperature(ctx context.Context, id string, target float64) error
}

// DeviceStore is the device registry surface the API exposes.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	UpdateDevice(ctx context.Context, d *device.Device) error
	DeleteDevice(ctx context.Context, id string) error
}

// History answers time-range queries over recorded telemetry.
type History interface {
	QuerySamples(ctx context.Context, projectID string, kind telemetry.SampleKind, start, end time.Time) ([]telemetry.Sample, error)
	QueryActuationEvents(ctx context.Context, projectID string, start, end time.Time) ([]telemetry.ActuationEvent, error)
}

// Controller is the control loop as seen by the API.
type Controller interface {
	SetOutletManual(ctx context.Context, projectID string, on bool) error
	Running() bool
}

// Deps holds the dependencies required by the API server.
// History, Audit and Gatherer are optional.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Projects ProjectStore
	Devices  DeviceStore
	Loop     Controller
	History  History
	Audit    audit.Repository
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the FermentWatch HTTP API server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	projects ProjectStore
	devices  DeviceStore
	loop     Controller
	history  History
	audit    audit.Repository
	gatherer prometheus.Gatherer
	version  string
	server   *http.Server
}

// New creates a new API server. The server is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Projects == nil {
		return nil, fmt.Errorf("project store is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("control loop is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		projects: deps.Projects,
		devices:  deps.Devices,
		loop:     deps.Loop,
		history:  deps.History,
		audit:    deps.Audit,
		gatherer: deps.Gatherer,
		version:  deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
// Listener errors after start-up are logged, not returned.
func (s *Server) Start(_ context.Context) error {
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
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

// HealthCheck verifies the API server has been started.
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
