package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBuildsTotal             = "feed_builds_total"
	MetricCandidates              = "feed_candidates"
	MetricParticipantLookupErrors = "feed_participant_lookup_errors_total"
	MetricBuildDuration           = "feed_build_duration_seconds"
	MetricEventFilterDroppedTotal = "feed_event_filter_dropped_total"
)

// Metrics contains Prometheus collectors for feed builds.
type Metrics struct {
	buildsTotal             *prometheus.CounterVec
	candidates              prometheus.Histogram
	participantLookupErrors prometheus.Counter
	buildDuration           prometheus.Histogram
	eventFilterDropped      prometheus.Counter
}

// NewMetrics creates unregistered feed metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBuildsTotal,
				Help: "Total number of feed builds by pipeline stage that ran (\"none\" when no stage ran)",
			},
			[]string{"stage"},
		),
		candidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricCandidates,
				Help:    "Number of candidates returned per feed page",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
		participantLookupErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricParticipantLookupErrors,
				Help: "Total number of failed event participant lookups (event filter skipped)",
			},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricBuildDuration,
				Help:    "Feed build duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		eventFilterDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricEventFilterDroppedTotal,
				Help: "Total number of candidates removed by the event filter",
			},
		),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.buildsTotal,
		m.candidates,
		m.participantLookupErrors,
		m.buildDuration,
		m.eventFilterDropped,
	}
}

func (m *Metrics) observeBuild(stages []string, candidates, eventDropped int, seconds float64) {
	if len(stages) == 0 {
		m.buildsTotal.WithLabelValues("none").Inc()
	}
	for _, s := range stages {
		m.buildsTotal.WithLabelValues(s).Inc()
	}
	m.candidates.Observe(float64(candidates))
	m.eventFilterDropped.Add(float64(eventDropped))
	m.buildDuration.Observe(seconds)
}

func (m *Metrics) incParticipantLookupErrors() {
	m.participantLookupErrors.Inc()
}
