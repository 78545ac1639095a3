package driver

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/pulseflow/internal/runtime/sink"
)

// Metrics exports publication counters to Prometheus. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	frames     *prometheus.CounterVec
	messages   *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	retries    *prometheus.CounterVec
	runs       *prometheus.CounterVec
	progress   *prometheus.GaugeVec
	runNumber  *prometheus.GaugeVec
	runSeconds *prometheus.HistogramVec
}

func newPublishCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseflow",
		Subsystem: "publish",
		Name:      name,
		Help:      help,
	}, labels)
}

func newPublishGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulseflow",
		Subsystem: "publish",
		Name:      name,
		Help:      help,
	}, labels)
}

// NewMetrics builds the collectors. Nothing is registered until Register.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	instrument := []string{"instrument"}
	return &Metrics{
		registerer: registerer,
		frames:     newPublishCounterVec("frames_total", "Frames fully published.", instrument),
		messages:   newPublishCounterVec("messages_total", "Event messages accepted by the sink.", instrument),
		bytes:      newPublishCounterVec("bytes_total", "Encoded payload bytes accepted by the sink.", instrument),
		retries:    newPublishCounterVec("retries_total", "Publish attempts that hit transient backpressure.", []string{"destination"}),
		runs:       newPublishCounterVec("runs_total", "Runs finished, by outcome.", []string{"instrument", "status"}),
		progress:   newPublishGaugeVec("run_progress_ratio", "Fraction of frames of the current run already published.", instrument),
		runNumber:  newPublishGaugeVec("current_run_number", "Run number currently being streamed.", instrument),
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulseflow",
			Subsystem: "publish",
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, instrument),
	}
}

// Register registers every collector. Calling it again is a no-op, and
// collectors already registered elsewhere are tolerated.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.frames, m.messages, m.bytes, m.retries, m.runs, m.progress, m.runNumber, m.runSeconds} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) runStarted(instrument string, run int64) {
	if m == nil {
		return
	}
	m.runNumber.WithLabelValues(instrument).Set(float64(run))
	m.progress.WithLabelValues(instrument).Set(0)
}

func (m *Metrics) frameSent(instrument string, messages int, bytes int, fraction float64) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(instrument).Inc()
	m.messages.WithLabelValues(instrument).Add(float64(messages))
	m.bytes.WithLabelValues(instrument).Add(float64(bytes))
	m.progress.WithLabelValues(instrument).Set(fraction)
}

func (m *Metrics) runFinished(instrument, status string, stats RunStatistics) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(instrument, status).Inc()
	if d := stats.Duration(); d > 0 {
		m.runSeconds.WithLabelValues(instrument).Observe(d.Seconds())
	}
}

// ObserveRetry counts a transient publish result. It matches
// sink.RetryConfig.OnRetry.
func (m *Metrics) ObserveRetry(class sink.DestinationClass) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(class)).Inc()
}
