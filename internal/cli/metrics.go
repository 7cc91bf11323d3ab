package cli

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/matzehuels/dependents/pkg/api"
	"github.com/matzehuels/dependents/pkg/observability"
)

// enableMetrics installs Prometheus collectors as the global hooks and
// returns them. The registry also carries the Go and process collectors.
func (c *CLI) enableMetrics() *observability.Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := observability.NewPrometheus(reg)
	observability.SetResolveHooks(m)
	observability.SetCacheHooks(m)
	observability.SetHTTPHooks(m)
	return m
}

// serveMetrics exposes /metrics on addr until ctx is done. The listener is
// bound before returning so a bad address fails the command up front.
func (c *CLI) serveMetrics(ctx context.Context, addr string) error {
	m := c.enableMetrics()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := api.NewServer(addr, api.NewHandler(nil, api.WithLogger(c.Logger), api.WithMetrics(m.Handler())))
	go func() {
		if err := srv.Serve(ctx, l); err != nil {
			c.Logger.Warn("metrics server stopped", "error", err)
		}
	}()
	c.Logger.Info("Serving metrics", "addr", l.Addr().String())
	return nil
}
