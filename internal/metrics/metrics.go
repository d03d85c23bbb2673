package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the service's collectors on its own registry.
type Recorder struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	bytes    prometheus.Counter
	duration *prometheus.HistogramVec
	updates  *prometheus.CounterVec
	queued   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunerelay",
			Name:      "relay_outcomes_total",
			Help:      "Finished relays by outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tunerelay",
			Name:      "relay_transfer_bytes_total",
			Help:      "Attachment bytes downloaded for relays.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tunerelay",
			Name:      "relay_duration_seconds",
			Help:      "Wall time of a relay from resolution to final status.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tunerelay",
			Name:      "webhook_updates_total",
			Help:      "Inbound updates by handling result.",
		}, []string{"result"}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tunerelay",
			Name:      "relay_jobs_inflight",
			Help:      "Relay jobs accepted but not yet finished.",
		}),
	}
	r.registry.MustRegister(r.outcomes, r.bytes, r.duration, r.updates, r.queued)
	return r
}

func (r *Recorder) ObserveRelay(outcome string, bytes int64, elapsed time.Duration) {
	r.outcomes.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		r.bytes.Add(float64(bytes))
	}
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveUpdate(result string) {
	r.updates.WithLabelValues(result).Inc()
}

func (r *Recorder) JobStarted()  { r.queued.Inc() }
func (r *Recorder) JobFinished() { r.queued.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
