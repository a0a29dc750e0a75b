package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records settlement pipeline activity: webhook events as
// they are reconciled and email delivery attempts as they resolve.
type PipelineMetrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookDropped  *prometheus.CounterVec
	deliveryOutcome *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Provider webhook events processed, by event type and result.",
	}, []string{"event", "result"})
	webhookDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_dropped",
		Help: "Webhook events dropped because no matching local record exists.",
	}, []string{"event"})
	deliveryOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "email_delivery_outcomes",
		Help: "Email delivery attempts by terminal outcome.",
	}, []string{"type", "outcome"})
	deliveryLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "email_delivery_duration_seconds",
		Help:    "Wall time spent delivering a single email, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	reg.MustRegister(webhookEvents, webhookDropped, deliveryOutcome, deliveryLatency)
	return &PipelineMetrics{
		webhookEvents:   webhookEvents,
		webhookDropped:  webhookDropped,
		deliveryOutcome: deliveryOutcome,
		deliveryLatency: deliveryLatency,
	}
}

// IncWebhookEvent counts a processed webhook event with its result.
func (p *PipelineMetrics) IncWebhookEvent(event, result string) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(normalizeLabel(event), normalizeLabel(result)).Inc()
}

// IncWebhookDropped counts an event that matched nothing in local storage.
func (p *PipelineMetrics) IncWebhookDropped(event string) {
	if p == nil || p.webhookDropped == nil {
		return
	}
	p.webhookDropped.WithLabelValues(normalizeLabel(event)).Inc()
}

// IncDeliveryOutcome counts a resolved email delivery by outcome.
func (p *PipelineMetrics) IncDeliveryOutcome(emailType, outcome string) {
	if p == nil || p.deliveryOutcome == nil {
		return
	}
	p.deliveryOutcome.WithLabelValues(normalizeLabel(emailType), normalizeLabel(outcome)).Inc()
}

// ObserveDeliveryDuration records how long a delivery took end to end.
func (p *PipelineMetrics) ObserveDeliveryDuration(emailType string, duration time.Duration) {
	if p == nil || p.deliveryLatency == nil {
		return
	}
	p.deliveryLatency.WithLabelValues(normalizeLabel(emailType)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
