package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/tozd/go/errors"
)

// MetricsSink counts events per kind and per destination. A batch run writes
// them once at the end for the node exporter textfile collector.
type MetricsSink struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

func NewMetricsSink() *MetricsSink {
	m := &MetricsSink{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsync",
			Name:      "events_total",
			Help:      "Terminal sync outcomes by kind and local destination.",
		}, []string{"kind", "destination"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dropsync",
			Name:      "saved_bytes_total",
			Help:      "Bytes written to local destinations.",
		}, []string{"destination"}),
	}
	m.registry.MustRegister(m.events, m.bytes)
	return m
}

func (m *MetricsSink) Report(e Event) {
	m.events.WithLabelValues(string(e.Kind), e.LocalBase).Inc()
	if e.Kind == KindSaved {
		m.bytes.WithLabelValues(e.LocalBase).Add(float64(e.Bytes))
	}
}

// Registry exposes the counters, mostly for tests.
func (m *MetricsSink) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the counters in text exposition format, atomically.
func (m *MetricsSink) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
