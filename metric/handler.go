package metric

import (
	"cmp"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

const (
	defaultMetricsPort = 9090
	defaultMetricsPath = "/metrics"
	shutdownTimeout    = 2 * time.Second
)

// Server exposes a MetricsRegistry over HTTP
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry

	mu   sync.Mutex
	http *http.Server
	addr net.Addr
}

// NewServer creates a server for registry. Zero port and empty path select
// 9090 and /metrics.
func NewServer(port int, path string, registry *MetricsRegistry) *Server {
	return &Server{
		port:     cmp.Or(port, defaultMetricsPort),
		path:     cmp.Or(path, defaultMetricsPath),
		registry: registry,
	}
}

// Handler serves the registry in the Prometheus or OpenMetrics format
func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start binds the port and serves in the background until Stop is called
// or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Start", "metrics registry not provided")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "metrics server already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on port %d", s.port))
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.http, s.addr = srv, ln.Addr()

	go func() {
		if err := srv.Serve(ln); !stderrors.Is(err, http.ErrServerClosed) {
			s.registry.CoreMetrics().RecordError("metrics-server", "serve")
		}
	}()
	context.AfterFunc(ctx, func() { _ = s.Stop() })
	return nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.http
	s.http, s.addr = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown HTTP server")
	}
	return nil
}

// Address returns the scrape URL, using the bound address once started
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != nil {
		return "http://" + s.addr.String() + s.path
	}
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
