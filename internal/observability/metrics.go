package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all cdcscope Prometheus metrics.
type Metrics struct {
	EventsTotal  *prometheus.CounterVec
	DecodeErrors prometheus.Counter
	SourceRate   *prometheus.GaugeVec
	SourceLag    *prometheus.GaugeVec
	TotalRate    prometheus.Gauge
	TotalLag     prometheus.Gauge
	Snapshots    prometheus.Counter
}

// NewMetrics creates and registers all cdcscope metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdcscope_events_total",
			Help: "Normalized CDC events by type.",
		}, []string{"type"}),

		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdcscope_decode_errors_total",
			Help: "Payloads rejected at the transport boundary.",
		}),

		SourceRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cdcscope_source_rate_per_second",
			Help: "Instantaneous end-position rate per source.",
		}, []string{"source"}),

		SourceLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cdcscope_source_lag",
			Help: "Consumer lag per source, when a group is configured.",
		}, []string{"source"}),

		TotalRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdcscope_total_rate_per_second",
			Help: "Sum of per-source instantaneous rates.",
		}),

		TotalLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdcscope_total_lag",
			Help: "Sum of per-source lag, when a group is configured.",
		}),

		Snapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdcscope_snapshots_total",
			Help: "Stats snapshots emitted.",
		}),
	}
}
