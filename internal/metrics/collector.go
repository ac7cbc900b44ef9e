package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/heaterloop/internal/loop"
	"github.com/san-kum/heaterloop/internal/series"
	"github.com/san-kum/heaterloop/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const namespace = "heaterloop"

// Collector owns a private registry with the process metrics. It satisfies
// telemetry.TickObserver and loop.Observer.
type Collector struct {
	registry *prometheus.Registry

	ticks        *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	command      prometheus.Gauge
	outlet       prometheus.Gauge
	expected     prometheus.Gauge
	connState    prometheus.Gauge
	reconnects   prometheus.Counter
	floorClamps  prometheus.Counter
	seriesPoints *prometheus.GaugeVec

	connected atomic.Bool
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Periodic loop ticks by loop and result (ok, error).",
		}, []string{"loop", "result"}),

		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent inside one loop tick.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"loop"}),

		command: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_watts",
			Help:      "Heater power after the last committed control tick.",
		}),

		outlet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outlet_celsius",
			Help:      "Measured BT-12 at the last control tick.",
		}),

		expected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expected_outlet_celsius",
			Help:      "Reference model BT-12 at the last control tick.",
		}),

		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Telemetry link state (0=disconnected, 1=connecting, 2=connected, 3=failed).",
		}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Sessions established after the first one.",
		}),

		floorClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "floor_clamps_total",
			Help:      "Control ticks whose command was clamped to the power floor.",
		}),

		seriesPoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series_points",
			Help:      "Points retained per series buffer.",
		}, []string{"series"}),
	}

	c.registry.MustRegister(
		c.ticks,
		c.tickDuration,
		c.command,
		c.outlet,
		c.expected,
		c.connState,
		c.reconnects,
		c.floorClamps,
		c.seriesPoints,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ObserveTick(name string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ticks.WithLabelValues(name, result).Inc()
	c.tickDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (c *Collector) OnTick(r loop.Record) {
	c.command.Set(r.HeaterPower.Watts())
	c.outlet.Set(r.Sample.Outlet.Celsius())
	c.expected.Set(r.Result.ExpectedOutlet.Celsius())
	if r.Result.Clamped {
		c.floorClamps.Inc()
	}
}

// ObserveTransition is suitable as a supervisor transition hook.
func (c *Collector) ObserveTransition(from, to telemetry.State) {
	c.connState.Set(float64(to))
	if to == telemetry.Connected && c.connected.Swap(true) {
		c.reconnects.Inc()
	}
}

// ObserveSeries records the current length of every buffer in set.
func (c *Collector) ObserveSeries(set *series.Set) {
	for _, b := range set.All() {
		c.seriesPoints.WithLabelValues(b.Name()).Set(float64(b.Len()))
	}
}

// WatchSeries samples set every period until ctx is done.
func (c *Collector) WatchSeries(ctx context.Context, set *series.Set, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		c.ObserveSeries(set)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics and /health on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.WithField("addr", addr).Info("serving metrics")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
