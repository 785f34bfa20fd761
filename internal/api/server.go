package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/PZwoodcat/Oleppy-Free/internal/api/models"
	"github.com/PZwoodcat/Oleppy-Free/internal/encoder"
	"github.com/PZwoodcat/Oleppy-Free/internal/events"
	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
	"github.com/PZwoodcat/Oleppy-Free/internal/session"
	"github.com/PZwoodcat/Oleppy-Free/internal/version"
)

// Options configures the status API.
type Options struct {
	// Status returns the running session snapshot.
	Status   func() session.Status
	EventBus *events.Bus
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// Probe lists encoders for /api/encoders. nil probes FFmpegBinary.
	Probe        func(ctx context.Context) ([]encoder.Info, error)
	FFmpegBinary string
}

// Server is the read-only status API of a recording process.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API on a Go 1.22 ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Oleppy API", "1.0.0")
	config.Info.Description = "Status of a running display capture session"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Debug("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, including event
// streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Session",
		Description: "Get the state and counters of the recording session",
		Tags:        []string{"session"},
		Errors:      []int{503},
	}, func(ctx context.Context, input *struct{}) (*models.SessionResponse, error) {
		if s.options.Status == nil {
			return nil, huma.Error503ServiceUnavailable("no session is running")
		}
		return &models.SessionResponse{Body: s.options.Status()}, nil
	})

	s.registerEncoderRoutes()
	s.registerSSERoutes()
}
