package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestObserveOperationRecordsDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry, Config{ServiceName: "fixtrack", Environment: "test"})

	m.IncOperation("usage", "record")
	m.ObserveOperation("usage", "record", 25*time.Millisecond)
	m.ObserveOperation("usage", "record", 75*time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var sampleCount uint64
	for _, family := range families {
		if family.GetName() != "fixtrack_engine_operation_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			sampleCount += metric.GetHistogram().GetSampleCount()
		}
	}
	if sampleCount != 2 {
		t.Fatalf("expected 2 duration samples, got %d", sampleCount)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	// Services carry the handle as an optional dependency; every method
	// must tolerate the nil receiver.
	m.IncOperation("usage", "record")
	m.IncOperationError("usage", "record")
	m.ObserveOperation("usage", "record", time.Second)
	m.AddUsageEvents("serial", 3)
}
