// Package metrics exposes ingestion and graph-size metrics for Prometheus.
//
// Collectors are registered on a caller-supplied prometheus.Registerer so
// tests and embedders can use a private registry. All methods are nil-safe:
// a nil *Ingest records nothing, which lets components run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "skroot"

// Ingest holds the collectors updated by the loader.
type Ingest struct {
	// RecordsTotal counts dispatched records by event type.
	RecordsTotal *prometheus.CounterVec

	// RecordErrorsTotal counts rejected records and skipped lines by code.
	RecordErrorsTotal *prometheus.CounterVec

	// ParseSecondsTotal accumulates wall time spent in the parser.
	ParseSecondsTotal prometheus.Counter

	// BytesConsumed and BytesTotal report load progress.
	BytesConsumed prometheus.Gauge
	BytesTotal    prometheus.Gauge

	// Files and Processes report graph size.
	Files     prometheus.Gauge
	Processes prometheus.Gauge
}

// NewIngest creates the ingestion collectors and registers them on reg.
func NewIngest(reg prometheus.Registerer) (*Ingest, error) {
	m := &Ingest{
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Trace records dispatched, by event type.",
		}, []string{"type"}),
		RecordErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "record_errors_total",
			Help:      "Trace records skipped or partially applied, by error code.",
		}, []string{"code"}),
		ParseSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "parse_seconds_total",
			Help:      "Cumulative wall time spent parsing trace records.",
		}),
		BytesConsumed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_consumed",
			Help:      "Bytes of the trace log consumed so far.",
		}),
		BytesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Size of the trace log when last checked.",
		}),
		Files: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "files",
			Help:      "File nodes in the provenance graph.",
		}),
		Processes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "processes",
			Help:      "Process nodes in the provenance graph.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.RecordsTotal,
		m.RecordErrorsTotal,
		m.ParseSecondsTotal,
		m.BytesConsumed,
		m.BytesTotal,
		m.Files,
		m.Processes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRecord counts one dispatched record.
func (m *Ingest) ObserveRecord(eventType string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(eventType).Inc()
}

// ObserveError counts one rejected record or skipped line.
func (m *Ingest) ObserveError(code string) {
	if m == nil {
		return
	}
	m.RecordErrorsTotal.WithLabelValues(code).Inc()
}

// AddParseTime adds d to the parse-time counter.
func (m *Ingest) AddParseTime(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.ParseSecondsTotal.Add(d.Seconds())
}

// SetProgress records bytes consumed out of total.
func (m *Ingest) SetProgress(consumed, total int64) {
	if m == nil {
		return
	}
	m.BytesConsumed.Set(float64(consumed))
	m.BytesTotal.Set(float64(total))
}

// SetGraphSize records the current node counts.
func (m *Ingest) SetGraphSize(files, processes int) {
	if m == nil {
		return
	}
	m.Files.Set(float64(files))
	m.Processes.Set(float64(processes))
}
