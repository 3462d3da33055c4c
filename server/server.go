package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/m43/tracestore"
)

var log = commonlog.GetLogger("m43.server")

// DebugServer hosts the debug service. It serves the Connect protocol
// (HTTP/JSON) and gRPC with a JSON codec on the same port.
type DebugServer struct {
	worker   *VMWorker
	sessions *SessionStore
	mux      *http.ServeMux

	stopSweeper func()
}

// ServerOption configures a DebugServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	stepLimit  int
	traces     *tracestore.Store
	sessionTTL time.Duration
}

// WithStepLimit bounds every session's execution. Zero means unbounded.
func WithStepLimit(n int) ServerOption {
	return func(c *serverConfig) { c.stepLimit = n }
}

// WithTraceStore records every session that halts or fails.
func WithTraceStore(s *tracestore.Store) ServerOption {
	return func(c *serverConfig) { c.traces = s }
}

// WithSessionTTL closes sessions left idle for longer than ttl.
func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(c *serverConfig) { c.sessionTTL = ttl }
}

// New creates a DebugServer.
func New(opts ...ServerOption) *DebugServer {
	cfg := &serverConfig{
		stepLimit:  1_000_000,
		sessionTTL: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker()
	sessions := NewSessionStore()

	s := &DebugServer{
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	svc := NewDebugService(worker, sessions, cfg.traces, cfg.stepLimit)
	path, handler := NewDebugServiceHandler(svc)
	s.mux.Handle(path, handler)

	sweepEvery := cfg.sessionTTL / 6
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	s.stopSweeper = sessions.StartSweeper(sweepEvery, cfg.sessionTTL)

	return s
}

// Handler returns the HTTP handler serving every registered service.
func (s *DebugServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *DebugServer) ListenAndServe(addr string) error {
	fmt.Printf("m43 debug server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, DebugServiceOpenProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server.
func (s *DebugServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
