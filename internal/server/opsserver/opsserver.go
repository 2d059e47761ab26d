package opsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoanglam10499/rxdb"
	"github.com/hoanglam10499/rxdb/internal/infra/buildinfo"
)

// Config configures the ops server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:5984".
	Addr string

	// Database is the hosted database the status and health routes
	// report on.
	Database *rxdb.Database

	// Gatherer serves /metrics. Typically the registry the database
	// and adapter metrics were registered on.
	Gatherer prometheus.Gatherer

	// Logger for request and lifecycle logging. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// Server is the operational HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
	db         *rxdb.Database

	listener net.Listener
}

// New creates an ops server. Start binds the listener.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "opsserver")

	s := &Server{
		logger: logger,
		db:     cfg.Database,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	s.handler = Chain(mux, Recover(logger), RequestID(), RequestLog(logger))
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the assembled handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background. Bind errors
// surface here; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("opsserver: listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info("ops endpoint listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded. Useful when
// the configured address picked a free port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "healthy"
	if s.db != nil && s.db.Destroyed() {
		status = http.StatusServiceUnavailable
		state = "destroyed"
	}

	writeJSON(w, status, map[string]string{
		"status": state,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// statusResponse is the /status payload.
type statusResponse struct {
	Build    buildinfo.Info  `json:"build"`
	Database *databaseStatus `json:"database,omitempty"`
}

type databaseStatus struct {
	Name          string   `json:"name"`
	Adapter       string   `json:"adapter"`
	Token         string   `json:"token"`
	StorageToken  string   `json:"storage_token"`
	MultiInstance bool     `json:"multi_instance"`
	Leader        bool     `json:"leader"`
	Destroyed     bool     `json:"destroyed"`
	Collections   []string `json:"collections"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Build: buildinfo.Get()}

	if s.db != nil {
		ds := &databaseStatus{
			Name:          s.db.Name(),
			Adapter:       s.db.AdapterName(),
			Token:         s.db.Token(),
			StorageToken:  s.db.StorageToken(),
			MultiInstance: s.db.MultiInstance(),
			Destroyed:     s.db.Destroyed(),
		}
		if !ds.Destroyed {
			ds.Leader = s.db.IsLeader()
			ds.Collections = s.db.Collections()
		}
		resp.Database = ds
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
