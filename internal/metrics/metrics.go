// Package metrics exposes prometheus counters for attachment recording.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snapattach"

// Metrics holds the recorder's counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Attachments    *prometheus.CounterVec
	AttachmentSize prometheus.Counter
	BuildErrors    prometheus.Counter
}

// New registers the counters on reg. Pass prometheus.NewRegistry() in tests
// to avoid clashing with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attachments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachments_total",
				Help:      "Attachment recording transitions by state (noop, queued, delivered, failed)",
			},
			[]string{"state"},
		),
		AttachmentSize: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachment_bytes_total",
				Help:      "Payload bytes handed to report sinks",
			},
		),
		BuildErrors: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_errors_total",
				Help:      "Artifact payloads that could not be regenerated",
			},
		),
	}
}

func (m *Metrics) ObserveState(state string) {
	if m == nil {
		return
	}
	m.Attachments.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveBytes(n int) {
	if m == nil {
		return
	}
	m.AttachmentSize.Add(float64(n))
}

func (m *Metrics) ObserveBuildError() {
	if m == nil {
		return
	}
	m.BuildErrors.Inc()
}
