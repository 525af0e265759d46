package history

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zuneid-derdiwala/inventory-management-sub001/internal/session"
)

// Server exposes the scan journal and scanner sessions as a JSON API.
// UI rendering lives elsewhere; this surface only consumes pipeline
// results and feeds it raw images.
type Server struct {
	service   *Service
	sessions  *session.Manager
	basicAuth BasicAuth
	mux       *http.ServeMux

	scanInterval time.Duration
	scanTimeout  time.Duration

	camMu   sync.Mutex
	cameras map[string]*session.PushCamera
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// ServerConfig configures a new Server.
type ServerConfig struct {
	Service      *Service
	Sessions     *session.Manager
	BasicAuth    BasicAuth
	ScanInterval time.Duration
	ScanTimeout  time.Duration
}

// NewServer creates a new Server with default mux
func NewServer(cfg ServerConfig) *Server {
	return NewServerWithMux(cfg, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(cfg ServerConfig, mux *http.ServeMux) *Server {
	s := &Server{
		service:      cfg.Service,
		sessions:     cfg.Sessions,
		basicAuth:    cfg.BasicAuth,
		mux:          mux,
		scanInterval: cfg.ScanInterval,
		scanTimeout:  cfg.ScanTimeout,
		cameras:      make(map[string]*session.PushCamera),
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Inventory Scanner"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	// Scan journal
	s.mux.HandleFunc("GET /api/scans/{id}/image", s.requireAuth(s.handleGetScanImage))
	s.mux.HandleFunc("GET /api/scans/{id}", s.requireAuth(s.handleGetScan))
	s.mux.HandleFunc("DELETE /api/scans/{id}", s.requireAuth(s.handleDeleteScan))
	s.mux.HandleFunc("GET /api/scans", s.requireAuth(s.handleListScans))
	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.handleUploadScan))
	s.mux.HandleFunc("POST /api/scans/manual", s.requireAuth(s.handleManualScan))

	// Scanner sessions
	s.mux.HandleFunc("POST /api/sessions/{id}/frames", s.requireAuth(s.handlePushFrame))
	s.mux.HandleFunc("POST /api/sessions/{id}/mode", s.requireAuth(s.handleSwitchMode))
	s.mux.HandleFunc("POST /api/sessions/{id}/emergency-stop", s.requireAuth(s.handleEmergencyStop))
	s.mux.HandleFunc("POST /api/sessions/{id}/acknowledge", s.requireAuth(s.handleAcknowledge))
	s.mux.HandleFunc("GET /api/sessions/{id}", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.handleStopSession))
	s.mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleCreateSession))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
