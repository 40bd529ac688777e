// Package metrics exposes Prometheus instrumentation for kernel launches.
// Everything is registered through promauto; serving the registry is left
// to the embedding process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bodkin_kernel_duration_seconds",
		Help:    "Histogram of kernel execution times",
		Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kernel", "dtype"})

	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_rows_processed_total",
		Help: "Total number of row jobs executed",
	}, []string{"kernel"})

	NumericalInstability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_numerical_instability_total",
		Help: "Total number of rows whose reduction produced NaN or Inf",
	}, []string{"kernel", "dtype"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bodkin_validation_errors_total",
		Help: "Total number of launches rejected before execution",
	}, []string{"operation", "error_type"})

	RowLengthHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bodkin_row_length",
		Help:    "Distribution of row lengths (key positions) launched",
		Buckets: []float64{8, 32, 128, 256, 512, 1024, 2048, 4096},
	})

	StreamQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bodkin_stream_queue_depth",
		Help: "Tasks currently enqueued across all streams",
	})

	StreamSyncWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bodkin_stream_sync_wait_seconds",
		Help:    "Time callers spend blocked in stream synchronization",
		Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

func RecordKernelDuration(kernel, dtype string, duration time.Duration) {
	KernelDuration.WithLabelValues(kernel, dtype).Observe(duration.Seconds())
}

func RecordRows(kernel string, rows int) {
	RowsProcessed.WithLabelValues(kernel).Add(float64(rows))
}

func RecordNumericalInstability(kernel, dtype string, rows int) {
	if rows > 0 {
		NumericalInstability.WithLabelValues(kernel, dtype).Add(float64(rows))
	}
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}

func RecordRowLength(keyLen int) {
	RowLengthHistogram.Observe(float64(keyLen))
}

func RecordSyncWait(duration time.Duration) {
	StreamSyncWait.Observe(duration.Seconds())
}
