// Package metrics exposes poller counters over Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factionwatch/pkg/logx"
)

// Provider implements tornapi.Observer plus monitor-side counters.
type Provider struct {
	fetchesTotal  *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cyclesTotal   *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	published     *prometheus.CounterVec
	knownKeys     prometheus.Gauge
}

func New(reg prometheus.Registerer) *Provider {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Provider{
		fetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "factionwatch_api_fetches_total",
			Help: "Upstream API fetches by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "factionwatch_api_cache_hits_total",
			Help: "Responses served from the short-TTL cache",
		}),

		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "factionwatch_api_cache_misses_total",
			Help: "Requests that went to the upstream API",
		}),

		cyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "factionwatch_monitor_cycles_total",
			Help: "Completed monitor cycles by monitor and outcome",
		}, []string{"monitor", "outcome"}),

		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "factionwatch_monitor_cycle_seconds",
			Help:    "Monitor cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"monitor"}),

		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "factionwatch_notifications_total",
			Help: "Notifications surfaced by monitor and kind",
		}, []string{"monitor", "kind"}),

		knownKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "factionwatch_bounty_known_keys",
			Help: "Bounty dedup keys currently tracked",
		}),
	}
}

func (p *Provider) FetchDone(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.fetchesTotal.WithLabelValues(endpoint, outcome).Inc()
}

func (p *Provider) CacheHit()  { p.cacheHits.Inc() }
func (p *Provider) CacheMiss() { p.cacheMisses.Inc() }

func (p *Provider) CycleDone(monitor string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.cyclesTotal.WithLabelValues(monitor, outcome).Inc()
	p.cycleDuration.WithLabelValues(monitor).Observe(d.Seconds())
}

func (p *Provider) Published(monitor, kind string) {
	p.published.WithLabelValues(monitor, kind).Inc()
}

func (p *Provider) SetKnownKeys(n int) { p.knownKeys.Set(float64(n)) }

// Server serves /metrics on its own listener.
type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(addr string, g prometheus.Gatherer, log logx.Logger) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

func (s *Server) Start() {
	go func() {
		s.log.Info("metrics listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server failed", logx.Err(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
