package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the two queue work units: document parsing and
// approval commits.
type WorkerMetrics struct {
	registry *prometheus.Registry

	workTotal    *prometheus.CounterVec
	workDuration *prometheus.HistogramVec
	workInFlight *prometheus.GaugeVec
	queueLag     *prometheus.HistogramVec
	pollTotal    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	workTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoiceflow",
			Subsystem: "worker",
			Name:      "work_units_total",
			Help:      "Total processed work units by unit and status.",
		},
		[]string{"service", "unit", "status"},
	)
	workDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invoiceflow",
			Subsystem: "worker",
			Name:      "work_unit_duration_seconds",
			Help:      "Work unit handling duration in seconds by unit and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "unit", "status"},
	)
	workInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "invoiceflow",
			Subsystem: "worker",
			Name:      "work_units_in_flight",
			Help:      "Number of in-flight work units by unit.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"unit"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "invoiceflow",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document upload and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	pollTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "invoiceflow",
			Subsystem: "worker",
			Name:      "training_polls_total",
			Help:      "Total training-job status polls by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(workTotal, workDuration, workInFlight, queueLag, pollTotal)

	return &WorkerMetrics{
		registry:     registry,
		workTotal:    workTotal,
		workDuration: workDuration,
		workInFlight: workInFlight,
		queueLag:     queueLag,
		pollTotal:    pollTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartWork(unit string) {
	m.workInFlight.WithLabelValues(unit).Inc()
}

func (m *WorkerMetrics) FinishWork(service, unit string, duration time.Duration, err error) {
	m.workInFlight.WithLabelValues(unit).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.workTotal.WithLabelValues(service, unit, status).Inc()
	m.workDuration.WithLabelValues(service, unit, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordTrainingPoll(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.pollTotal.WithLabelValues(service, status).Inc()
}
