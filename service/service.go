// Package service exposes the healthz and Prometheus metrics HTTP servers
// used when the runner operates in continuous mode.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/cukefork/cukefork/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Service bundles the two sidecar HTTP servers. Both are best-effort: a
// server that fails to bind is logged and recorded, but never stops the
// suite runner itself.
type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(version string) *Service {
	return &Service{
		Healthz: &HealthzServer{version: version},
		Metrics: &MetricsServer{},
	}
}

// Start brings up both servers, each on its own goroutine, and returns
// immediately.
func (s *Service) Start(ctx context.Context) {
	serve(ctx, "healthz", net.JoinHostPort(HealthzHost, HealthzPort), s.Healthz.Start)
	serve(ctx, "metrics", net.JoinHostPort(MetricsHost, MetricsPort), s.Metrics.Start)
}

func serve(ctx context.Context, name, addr string, start func(context.Context, string) error) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "server", name, "addr", addr, "err", err)
			metrics.RecordErrorDetails("error starting "+name+" server", err)
		}
	}()
}

// Shutdown stops both servers. Safe to call even when Start never ran.
func (s *Service) Shutdown() {
	if err := s.Healthz.Shutdown(); err != nil {
		log.Error("error stopping healthz server", "err", err)
	}
	if err := s.Metrics.Shutdown(); err != nil {
		log.Error("error stopping metrics server", "err", err)
	}
	log.Info("service stopped")
}
