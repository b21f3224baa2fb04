package mesh

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports store activity to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	admitted prometheus.Counter
	rejected *prometheus.CounterVec
	evicted  *prometheus.CounterVec
	packets  prometheus.Gauge
	bytes    prometheus.Gauge
}

// NewMetrics creates the mesh collectors and registers them with reg, if
// non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neochat",
			Subsystem: "mesh",
			Name:      "packets_admitted_total",
			Help:      "Packets accepted into the mesh store.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neochat",
			Subsystem: "mesh",
			Name:      "packets_rejected_total",
			Help:      "Packets refused at admission, by reason.",
		}, []string{"reason"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neochat",
			Subsystem: "mesh",
			Name:      "packets_evicted_total",
			Help:      "Packets removed by garbage collection, by reason.",
		}, []string{"reason"}),
		packets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neochat",
			Subsystem: "mesh",
			Name:      "packets",
			Help:      "Packets currently carried.",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neochat",
			Subsystem: "mesh",
			Name:      "payload_bytes",
			Help:      "Payload bytes currently carried.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.admitted, m.rejected, m.evicted, m.packets, m.bytes} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeAdmission(a Admission) {
	if m == nil {
		return
	}
	if a == Admitted {
		m.admitted.Inc()
		return
	}
	m.rejected.WithLabelValues(a.String()).Inc()
}

func (m *Metrics) observeGC(stats GCStats, packets, bytes int) {
	if m == nil {
		return
	}
	m.evicted.WithLabelValues("expired").Add(float64(stats.Expired))
	m.evicted.WithLabelValues("dead").Add(float64(stats.Dead))
	m.evicted.WithLabelValues("capacity").Add(float64(stats.Capacity))
	m.packets.Set(float64(packets))
	m.bytes.Set(float64(bytes))
}

func (m *Metrics) observeSize(packets, bytes int) {
	if m == nil {
		return
	}
	m.packets.Set(float64(packets))
	m.bytes.Set(float64(bytes))
}
