package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestNewMetricsRegistersAgainstCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one registered metric family")
	}
}

func TestRequestRecorderSuccessIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	before := gaugeValue(t, m.RequestsInFlight)
	rec := m.NewRequestRecorder("gpt-4o-mini", "openai")
	if got := gaugeValue(t, m.RequestsInFlight); got != before+1 {
		t.Errorf("RequestsInFlight after start = %v, want %v", got, before+1)
	}

	rec.SetProvider("openai")
	rec.RecordSuccess()

	if got := gaugeValue(t, m.RequestsInFlight); got != before {
		t.Errorf("RequestsInFlight after success = %v, want %v", got, before)
	}
	if got := counterValue(t, m.RequestsTotal, "gpt-4o-mini", "success", "openai"); got != 1 {
		t.Errorf("RequestsTotal{success} = %v, want 1", got)
	}
}

func TestRequestRecorderErrorIncrementsProviderErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	rec := m.NewRequestRecorder("anthropic.claude-3-haiku-20240307-v1:0", "bedrock_claude")
	rec.SetProvider("bedrock")
	rec.RecordError("rate_limited")

	if got := counterValue(t, m.RequestsTotal, "anthropic.claude-3-haiku-20240307-v1:0", "error", "bedrock_claude"); got != 1 {
		t.Errorf("RequestsTotal{error} = %v, want 1", got)
	}
	if got := counterValue(t, m.ProviderErrors, "bedrock", "rate_limited"); got != 1 {
		t.Errorf("ProviderErrors = %v, want 1", got)
	}
}

func TestRequestRecorderWithoutProviderSkipsProviderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	rec := m.NewRequestRecorder("gpt-4o-mini", "openai")
	rec.RecordError("validation")

	if got := counterValue(t, m.ProviderErrors, "", "validation"); got != 0 {
		t.Errorf("ProviderErrors should not be recorded when SetProvider was never called, got %v", got)
	}
}

func TestRecordRetryAndAncillaryCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRetry("openai")
	m.RecordRetry("openai")
	if got := counterValue(t, m.RetryAttempts, "openai"); got != 2 {
		t.Errorf("RetryAttempts = %v, want 2", got)
	}

	m.RecordFileInjection("success")
	if got := counterValue(t, m.FilesInjected, "success"); got != 1 {
		t.Errorf("FilesInjected{success} = %v, want 1", got)
	}

	m.RecordKBRetrieval("direct_rag")
	if got := counterValue(t, m.KBRetrievals, "direct_rag"); got != 1 {
		t.Errorf("KBRetrievals{direct_rag} = %v, want 1", got)
	}
}
