package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer exposes a Prometheus registry over HTTP.
type metricsServer struct {
	listener   net.Listener
	httpServer *http.Server
	logger     *slog.Logger
}

func newMetricsServer(listen, path string, registry *prometheus.Registry, logger *slog.Logger) (*metricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", listen, err)
	}

	return &metricsServer{
		listener: ln,
		httpServer: &http.Server{
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *metricsServer) start() {
	s.logger.Info("starting metrics server", "addr", s.Addr())

	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

func (s *metricsServer) stop(ctx context.Context) error {
	s.logger.Info("stopping metrics server")
	return s.httpServer.Shutdown(ctx)
}
