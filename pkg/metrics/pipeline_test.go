package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPipelineMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPipelineMetrics(reg)

	metrics.IncWebhookEvent("payment_intent.succeeded", "processed")
	metrics.IncWebhookDropped("payment_intent.succeeded")
	metrics.IncDeliveryOutcome("order_confirmation", "sent")
	metrics.ObserveDeliveryDuration("order_confirmation", 150*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "webhook_events_total", "event", "payment_intent.succeeded"); err != nil {
		t.Fatalf("fetch webhook events: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook_events_total=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "webhook_events_dropped", "event", "payment_intent.succeeded"); err != nil {
		t.Fatalf("fetch dropped: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook_events_dropped=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "email_delivery_outcomes", "outcome", "sent"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected email_delivery_outcomes=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "email_delivery_duration_seconds", "type", "order_confirmation"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPipelineMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *PipelineMetrics
	metrics.IncWebhookEvent("account.updated", "processed")
	metrics.IncWebhookDropped("account.updated")
	metrics.IncDeliveryOutcome("vendor_new_order", "failed")
	metrics.ObserveDeliveryDuration("vendor_new_order", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
