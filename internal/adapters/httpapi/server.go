// Package httpapi serves rtcshare requests over plain HTTP on the local
// machine and provides the matching client.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// maxRequestBytes bounds the JSON body of /api requests.
const maxRequestBytes = 1 << 20

// DefaultAllowedOrigins are the browser origins allowed to call the API.
var DefaultAllowedOrigins = []string{
	"https://figurl.org",
	"https://scratchrealm.github.io",
	"http://127.0.0.1:5173",
	"http://localhost:5173",
	"http://localhost:3000",
	"http://localhost:3001",
	"https://neurosift.vercel.app",
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins replaces the CORS origin list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = make(map[string]bool, len(origins))
		for _, o := range origins {
			s.origins[o] = true
		}
	}
}

// WithMetrics serves gatherer at /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// Server is the local HTTP API.
type Server struct {
	addr     string
	handler  ports.RequestHandler
	logger   log.Logger
	origins  map[string]bool
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

// NewServer creates a Server for handler listening on addr.
func NewServer(addr string, handler ports.RequestHandler, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		handler: handler,
		logger:  log.NoopLogger{},
	}
	WithAllowedOrigins(DefaultAllowedOrigins)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With(s.logger, log.String("component", "httpapi"))

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/probe", s.handleProbe)
	s.mux.HandleFunc("/api", s.handleAPI)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); s.origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	s.logger.Info("http api listening", log.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		ProtocolVersion string `json:"protocolVersion"`
	}{domain.ProtocolVersion})
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read request", http.StatusBadRequest)
		return
	}
	req, err := domain.ParseRequest(body)
	if err != nil {
		s.logger.Debug("invalid api request", log.Err(err))
		http.Error(w, "Invalid request", http.StatusInternalServerError)
		return
	}

	resp, payload, err := s.handler.HandleRequest(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	frame, err := wire.Encode(resp, payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(frame)
}
