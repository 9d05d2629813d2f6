// Package stubapi is a local stand-in for the fuel (Combustível) import API.
// It accepts the analysis spreadsheet the same way the real service does,
// checks its header against the wide layout, and records what it received.
// Tests use its fault queue to script server failures.
package stubapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apimw "github.com/JonMunkholm/fuelsync/internal/stubapi/middleware"
)

// Options configures a Server.
type Options struct {
	Token         string
	MaxFileSize   int64
	MaxConcurrent int
	UploadRoute   string
	StatusRoute   string

	// TrustedProxies may set the client address through X-Real-IP or X-Forwarded-For
	TrustedProxies []string
}

// Upload is a spreadsheet the stub has accepted.
type Upload struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Rows       int       `json:"rows"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// Server is the stub API HTTP server.
type Server struct {
	opts    Options
	router  *chi.Mux
	server  *http.Server
	limiter *UploadLimiter

	mu       sync.Mutex
	uploads  map[string]Upload
	order    []string
	faults   []int
	attempts int
}

// NewServer creates a stub API with routes and middleware installed.
func NewServer(opts Options) *Server {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 50 * 1024 * 1024
	}
	if opts.UploadRoute == "" {
		opts.UploadRoute = "/importacao-excel/upload"
	}
	if opts.StatusRoute == "" {
		opts.StatusRoute = "/importacao-excel/status"
	}

	s := &Server{
		opts:    opts,
		router:  chi.NewRouter(),
		limiter: NewUploadLimiter(opts.MaxConcurrent, DefaultMaxWaitTime),
		uploads: make(map[string]Upload),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(apimw.TrustedRealIP(s.opts.TrustedProxies))
	s.router.Use(apimw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(apimw.BearerAuth(s.opts.Token))
}

func (s *Server) setupRoutes() {
	// The real API has nothing at its base URL; the uploader's probe
	// treats this 404 as reachable.
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	})

	s.router.Post(s.opts.UploadRoute, s.handleUpload)
	s.router.Get(s.opts.StatusRoute+"/{uploadID}", s.handleStatus)
}

// FailNext queues statuses returned, in order, by the next upload requests.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, statuses...)
}

// Attempts returns how many authenticated upload requests reached the handler.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Uploads returns the accepted uploads in arrival order.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.uploads[id])
	}
	return out
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("stub api listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown waits for in-flight uploads, then stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		slog.Warn("uploads did not complete in time", "error", err)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
