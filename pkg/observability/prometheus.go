package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements every hook interface with Prometheus collectors.
type Prometheus struct {
	gatherer prometheus.Gatherer

	filesTotal        *prometheus.CounterVec
	projectsFiltered  *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runFiles          *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	cacheTotal        *prometheus.CounterVec
	cacheBytes        *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	p := &Prometheus{
		gatherer: reg,
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_files_total",
				Help: "Files processed by terminal state.",
			},
			[]string{"state"},
		),
		projectsFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_projects_filtered_total",
				Help: "Candidate projects rejected by the project filters.",
			},
			[]string{"reason"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_runs_total",
				Help: "Resolution runs by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		runFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_run_files_total",
				Help: "Files attempted and resolved across runs.",
			},
			[]string{"kind", "result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dependents_run_duration_seconds",
				Help:    "Time taken by a resolution run.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"kind"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_cache_requests_total",
				Help: "Catalog cache lookups by namespace and result.",
			},
			[]string{"namespace", "result"},
		),
		cacheBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_cache_written_bytes_total",
				Help: "Bytes written to the catalog cache.",
			},
			[]string{"namespace"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dependents_http_requests_total",
				Help: "Outgoing HTTP requests by host and status code.",
			},
			[]string{"method", "host", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dependents_http_request_duration_seconds",
				Help:    "Latency of outgoing HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"host"},
		),
	}
	reg.MustRegister(
		p.filesTotal,
		p.projectsFiltered,
		p.runsTotal,
		p.runFiles,
		p.runDuration,
		p.cacheTotal,
		p.cacheBytes,
		p.httpRequestsTotal,
		p.httpDuration,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *Prometheus) OnFileState(_ context.Context, _, _ int64, state string) {
	p.filesTotal.WithLabelValues(state).Inc()
}

func (p *Prometheus) OnProjectFiltered(_ context.Context, _ int64, reason string) {
	p.projectsFiltered.WithLabelValues(reason).Inc()
}

func (p *Prometheus) OnRunComplete(_ context.Context, kind string, attempted, succeeded int, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.runsTotal.WithLabelValues(kind, outcome).Inc()
	p.runFiles.WithLabelValues(kind, "attempted").Add(float64(attempted))
	p.runFiles.WithLabelValues(kind, "succeeded").Add(float64(succeeded))
	p.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *Prometheus) OnCacheHit(_ context.Context, namespace string) {
	p.cacheTotal.WithLabelValues(namespace, "hit").Inc()
}

func (p *Prometheus) OnCacheMiss(_ context.Context, namespace string) {
	p.cacheTotal.WithLabelValues(namespace, "miss").Inc()
}

func (p *Prometheus) OnCacheSet(_ context.Context, namespace string, size int) {
	p.cacheBytes.WithLabelValues(namespace).Add(float64(size))
}

func (p *Prometheus) OnResponse(_ context.Context, method, host string, code int, d time.Duration) {
	p.httpRequestsTotal.WithLabelValues(method, host, strconv.Itoa(code)).Inc()
	p.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (p *Prometheus) OnError(_ context.Context, method, host string, _ error) {
	p.httpRequestsTotal.WithLabelValues(method, host, "error").Inc()
}

var (
	_ ResolveHooks = (*Prometheus)(nil)
	_ CacheHooks   = (*Prometheus)(nil)
	_ HTTPHooks    = (*Prometheus)(nil)
)
