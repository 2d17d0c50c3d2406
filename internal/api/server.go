// Package api provides the HTTP surface for video ingestion and lesson
// progress tracking.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amillerrr/lms-pipeline/internal/auth"
	"github.com/amillerrr/lms-pipeline/internal/config"
	"github.com/amillerrr/lms-pipeline/internal/health"
	"github.com/amillerrr/lms-pipeline/internal/provider"
)

// Server configuration constants
const (
	ReadTimeout       = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	WriteTimeout      = 300 * time.Second
	IdleTimeout       = 120 * time.Second
	MaxHeaderBytes    = 1 << 20 // 1 MB
)

// Server represents the HTTP server for the API.
type Server struct {
	httpServer    *http.Server
	cfg           *config.Config
	log           *slog.Logger
	rateLimiter   *auth.RateLimiter
	healthChecker *health.Checker
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Config        *config.Config
	Logger        *slog.Logger
	Ingest        IngestService
	Progress      ProgressService
	Assets        AssetReader
	Creator       VideoCreator
	Signer        *provider.Signer
	Archive       SourcePresigner
	JWTService    *auth.JWTService
	RateLimiter   *auth.RateLimiter
	HealthChecker *health.Checker
}

// NewServer creates a new API server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	handlers := NewHandlers(&HandlersConfig{
		Config:      cfg.Config,
		Logger:      cfg.Logger,
		Ingest:      cfg.Ingest,
		Progress:    cfg.Progress,
		Assets:      cfg.Assets,
		Creator:     cfg.Creator,
		Signer:      cfg.Signer,
		Archive:     cfg.Archive,
		JWTService:  cfg.JWTService,
		RateLimiter: cfg.RateLimiter,
	})

	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", cfg.HealthChecker.Handler())
	mux.HandleFunc("GET /health/deep", cfg.HealthChecker.DeepHandler())
	mux.HandleFunc("POST /login", handlers.LoginHandler)

	// Authenticated endpoints
	authed := func(h http.HandlerFunc) http.Handler {
		return cfg.JWTService.Middleware(h)
	}
	instructor := func(h http.HandlerFunc) http.Handler {
		return cfg.JWTService.Middleware(cfg.JWTService.RequireRole(auth.RoleInstructor, h))
	}

	mux.Handle("POST /lessons/{lessonId}/video", instructor(handlers.UploadVideoHandler))
	mux.Handle("POST /lessons/{lessonId}/video/register", instructor(handlers.RegisterVideoHandler))
	mux.Handle("POST /lessons/{lessonId}/video/upload-signature", instructor(handlers.UploadSignatureHandler))
	mux.Handle("GET /lessons/{lessonId}/video/source", instructor(handlers.VideoSourceHandler))
	mux.Handle("GET /lessons/{lessonId}/video", authed(handlers.GetVideoHandler))

	mux.Handle("POST /lessons/{lessonId}/complete", authed(handlers.CompleteLessonHandler))
	mux.Handle("POST /courses/{courseId}/lessons/{lessonId}/toggle", authed(handlers.ToggleLessonHandler))
	mux.Handle("GET /courses/{courseId}/progress", authed(handlers.CourseProgressHandler))
	mux.Handle("GET /courses/{courseId}/completed-lessons", authed(handlers.CompletedLessonsHandler))

	// Metrics endpoint (internal only)
	mux.Handle("GET /metrics", internalOnlyMiddleware(promhttp.Handler()))

	handler := CORSMiddleware(cfg.Config.CORS.AllowedOrigins)(mux)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Config.API.Port,
		Handler:           handler,
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	return &Server{
		httpServer:    httpServer,
		cfg:           cfg.Config,
		log:           cfg.Logger,
		rateLimiter:   cfg.RateLimiter,
		healthChecker: cfg.HealthChecker,
	}, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting API server", "port", s.cfg.API.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server...")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Private networks for internal-only middleware
var privateNetworks = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
}

// internalOnlyMiddleware restricts access to internal networks.
func internalOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deny if X-Forwarded-For is present (came through load balancer)
		if r.Header.Get("X-Forwarded-For") != "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if isInternalRequest(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// isInternalRequest checks if the request is from an internal network.
func isInternalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}
