// Package metrics exposes Prometheus metrics for the delivery engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for mailtide. All methods are
// nil-safe so instrumentation can be omitted in tests.
type Metrics struct {
	EmailsSentTotal    *prometheus.CounterVec
	EmailsBouncedTotal *prometheus.CounterVec

	CampaignsScheduledTotal prometheus.Counter
	CampaignsCanceledTotal  prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter
	CampaignsFailedTotal    prometheus.Counter

	BatchDurationSeconds prometheus.Histogram
	TimersArmed          prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtide_emails_sent_total",
				Help: "Total number of successfully delivered emails",
			},
			[]string{"transport"},
		),
		EmailsBouncedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailtide_emails_bounced_total",
				Help: "Total number of recorded delivery failures",
			},
			[]string{"transport"},
		),
		CampaignsScheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailtide_campaigns_scheduled_total",
			Help: "Total number of campaigns scheduled",
		}),
		CampaignsCanceledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailtide_campaigns_canceled_total",
			Help: "Total number of campaigns canceled before sending",
		}),
		CampaignsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailtide_campaigns_completed_total",
			Help: "Total number of campaigns that finished sending",
		}),
		CampaignsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailtide_campaigns_failed_total",
			Help: "Total number of campaigns aborted by an infrastructure fault",
		}),
		BatchDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailtide_batch_duration_seconds",
			Help:    "Wall-clock duration of one delivery batch",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		TimersArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailtide_timers_armed",
			Help: "Number of armed campaign timers",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsBouncedTotal,
		m.CampaignsScheduledTotal,
		m.CampaignsCanceledTotal,
		m.CampaignsCompletedTotal,
		m.CampaignsFailedTotal,
		m.BatchDurationSeconds,
		m.TimersArmed,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSend records one delivery outcome for a transport.
func (m *Metrics) ObserveSend(transport string, success bool) {
	if m == nil {
		return
	}
	if success {
		m.EmailsSentTotal.WithLabelValues(transport).Inc()
	} else {
		m.EmailsBouncedTotal.WithLabelValues(transport).Inc()
	}
}

// ObserveBatch records the duration of one batch.
func (m *Metrics) ObserveBatch(seconds float64) {
	if m == nil {
		return
	}
	m.BatchDurationSeconds.Observe(seconds)
}

// CampaignScheduled increments the scheduled counter.
func (m *Metrics) CampaignScheduled() {
	if m == nil {
		return
	}
	m.CampaignsScheduledTotal.Inc()
}

// CampaignCanceled increments the canceled counter.
func (m *Metrics) CampaignCanceled() {
	if m == nil {
		return
	}
	m.CampaignsCanceledTotal.Inc()
}

// CampaignCompleted increments the completed counter.
func (m *Metrics) CampaignCompleted() {
	if m == nil {
		return
	}
	m.CampaignsCompletedTotal.Inc()
}

// CampaignFailed increments the failed counter.
func (m *Metrics) CampaignFailed() {
	if m == nil {
		return
	}
	m.CampaignsFailedTotal.Inc()
}

// SetTimersArmed updates the armed-timer gauge.
func (m *Metrics) SetTimersArmed(n int) {
	if m == nil {
		return
	}
	m.TimersArmed.Set(float64(n))
}
