package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/tradewind-ops/tradewind/internal/jobs"
	"github.com/tradewind-ops/tradewind/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Renders dominate the queue; simulate them finishing fast and mostly
	// successful.
	for i := 0; i < 40; i++ {
		tracker := metrics.Track(jobs.TaskRenderDocument)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending render tracker: %v", err)
		}
	}

	// The nightly sweep is slower but still well inside its budget.
	for i := 0; i < 10; i++ {
		tracker := metrics.Track(jobs.TaskSweepUploadSlots)
		time.Sleep(8 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending sweep tracker: %v", err)
		}
	}

	// Inject failures to confirm they surface in the counters.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track(jobs.TaskRenderDocument)
		time.Sleep(3 * time.Millisecond)
		if err := tracker.End(errors.New("gotenberg timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "tradewind_jobs_total", map[string]string{"job": jobs.TaskRenderDocument, "status": "success"})
	failure := metricValue(t, families, "tradewind_jobs_total", map[string]string{"job": jobs.TaskRenderDocument, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no render executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("render success ratio too low: %f", ratio)
	}

	failures := metricValue(t, families, "tradewind_jobs_failures_total", map[string]string{"job": jobs.TaskRenderDocument})
	if failures != 2 {
		t.Fatalf("expected 2 recorded failures, got %f", failures)
	}

	sweepDuration := histogramMean(t, families, "tradewind_job_duration_seconds", map[string]string{"job": jobs.TaskSweepUploadSlots})
	if sweepDuration > 2.0 {
		t.Fatalf("sweep duration above budget: %f", sweepDuration)
	}

	renderDuration := histogramMean(t, families, "tradewind_job_duration_seconds", map[string]string{"job": jobs.TaskRenderDocument})
	if renderDuration > 0.5 {
		t.Fatalf("render duration above budget: %f", renderDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
