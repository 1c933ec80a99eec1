package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the HTTP server configuration.
type Config struct {
	ListenAddress      string
	RateLimitPerMinute int
	Version            string
	Commit             string
	Date               string
}

// Server is the admin HTTP server.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
}

// newHumaConfig creates the shared Huma configuration for the API.
func newHumaConfig(version string) huma.Config {
	cfg := huma.DefaultConfig("huebridged API", version)
	cfg.Info.Description = "Admin API for inspecting and controlling bridged lights."

	// Disable $schema field in responses
	cfg.CreateHooks = nil

	cfg.Tags = []*huma.Tag{
		{Name: "Health", Description: "Liveness and build information"},
		{Name: "Lights", Description: "Light inspection and control"},
	}
	return cfg
}

// NewServer builds the router, registers all routes and returns a server
// ready to Start.
func NewServer(logger *slog.Logger, cfg Config, lights LightService) *Server {
	router := chi.NewRouter()
	router.Use(requestLogging(logger))
	router.Use(rateLimitByIP(cfg.RateLimitPerMinute))

	// Metrics bypass Huma: promhttp speaks the exposition format directly.
	router.Handle("/metrics", promhttp.Handler())

	api := humachi.New(router, newHumaConfig(cfg.Version))
	h := &Handlers{
		Lights:  lights,
		Version: cfg.Version,
		Commit:  cfg.Commit,
		Date:    cfg.Date,
	}

	huma.Register(api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
	}, h.HealthCheck)

	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      http.MethodGet,
		Path:        "/api/v1/version",
		Summary:     "Daemon version",
		Tags:        []string{"Health"},
	}, h.VersionCheck)

	huma.Register(api, huma.Operation{
		OperationID: "listLights",
		Method:      http.MethodGet,
		Path:        "/api/v1/lights",
		Summary:     "List all lights",
		Description: "Returns all registered lights as a map keyed by light ID.",
		Tags:        []string{"Lights"},
	}, h.ListLights)

	huma.Register(api, huma.Operation{
		OperationID: "getLight",
		Method:      http.MethodGet,
		Path:        "/api/v1/lights/{id}",
		Summary:     "Get a light",
		Tags:        []string{"Lights"},
	}, h.GetLight)

	huma.Register(api, huma.Operation{
		OperationID: "setLightState",
		Method:      http.MethodPost,
		Path:        "/api/v1/lights/{id}/state",
		Summary:     "Set light state",
		Description: "Stages the provided fields as one pending write and commits it to the backend.",
		Tags:        []string{"Lights"},
	}, h.SetLightState)

	return &Server{
		logger: logger,
		httpServer: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("api: listening", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("api: shutting down")
	return s.httpServer.Shutdown(ctx)
}
