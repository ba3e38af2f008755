// Package metrics provides Prometheus metrics for the covert CLI.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "covert"
)

// Metrics contains all Prometheus metrics for the covert CLI.
type Metrics struct {
	EncryptTotal    *prometheus.CounterVec
	EncryptErrors   *prometheus.CounterVec
	EncryptDuration prometheus.Histogram
	EncryptBytesOut prometheus.Counter

	DecryptTotal    prometheus.Counter
	DecryptErrors   *prometheus.CounterVec
	DecryptDuration prometheus.Histogram
	DecryptBytesIn  prometheus.Counter

	BlindSearchAttempts prometheus.Histogram

	SignTotal     prometheus.Counter
	VerifyTotal   *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance registered against the default
// Prometheus registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom
// registry, so tests can avoid colliding with the process-global registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EncryptTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encrypt_total",
			Help:      "Total encrypt operations by recipient mode",
		}, []string{"mode"}),
		EncryptErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encrypt_errors_total",
			Help:      "Total encrypt errors by error kind",
		}, []string{"error_type"}),
		EncryptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encrypt_duration_seconds",
			Help:      "Histogram of encrypt wall-clock duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		EncryptBytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encrypt_bytes_out_total",
			Help:      "Total ciphertext bytes written by Encrypt",
		}),

		DecryptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_total",
			Help:      "Total decrypt operations attempted",
		}),
		DecryptErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_errors_total",
			Help:      "Total decrypt errors by error kind",
		}, []string{"error_type"}),
		DecryptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decrypt_duration_seconds",
			Help:      "Histogram of decrypt wall-clock duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		DecryptBytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_bytes_in_total",
			Help:      "Total ciphertext bytes read by Decrypt",
		}),

		BlindSearchAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "blind_search_attempts",
			Help:      "Histogram of AEAD-open attempts the blind trial search made before success or exhaustion",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),

		SignTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_total",
			Help:      "Total signature blocks produced",
		}),
		VerifyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_total",
			Help:      "Total signature verification attempts by result",
		}, []string{"result"}),
	}
}

// RecordEncrypt records one completed Encrypt call.
func (m *Metrics) RecordEncrypt(mode string, durationSeconds float64, bytesOut int) {
	m.EncryptTotal.WithLabelValues(mode).Inc()
	m.EncryptDuration.Observe(durationSeconds)
	m.EncryptBytesOut.Add(float64(bytesOut))
}

// RecordEncryptError records an Encrypt failure.
func (m *Metrics) RecordEncryptError(errorType string) {
	m.EncryptErrors.WithLabelValues(errorType).Inc()
}

// RecordDecrypt records one completed Decrypt call.
func (m *Metrics) RecordDecrypt(durationSeconds float64, bytesIn int) {
	m.DecryptTotal.Inc()
	m.DecryptDuration.Observe(durationSeconds)
	m.DecryptBytesIn.Add(float64(bytesIn))
}

// RecordDecryptError records a Decrypt failure.
func (m *Metrics) RecordDecryptError(errorType string) {
	m.DecryptErrors.WithLabelValues(errorType).Inc()
}

// RecordBlindSearchAttempts records how many (key, header length)
// candidates the blind trial search tried before it succeeded or gave up.
func (m *Metrics) RecordBlindSearchAttempts(attempts int) {
	m.BlindSearchAttempts.Observe(float64(attempts))
}

// RecordSign records a signature block being produced.
func (m *Metrics) RecordSign() {
	m.SignTotal.Inc()
}

// RecordVerify records a signature verification attempt's result ("ok" or
// "failed").
func (m *Metrics) RecordVerify(result string) {
	m.VerifyTotal.WithLabelValues(result).Inc()
}
