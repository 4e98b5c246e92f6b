package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	// A second registration on the same registry must panic on duplicates
	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate registration to panic")
		}
	}()
	NewMetrics(reg)
}

func TestRecordTranscription(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTranscription("partial", 0.1, false, nil)
	m.RecordTranscription("partial", 0.1, true, nil)
	m.RecordTranscription("final", 0.2, false, errors.New("boom"))

	if got := testutil.ToFloat64(m.TranscriptionRequests.WithLabelValues("partial")); got != 2 {
		t.Errorf("Expected 2 partial requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionEmpty.WithLabelValues("partial")); got != 1 {
		t.Errorf("Expected 1 empty partial, got %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionFailures.WithLabelValues("final")); got != 1 {
		t.Errorf("Expected 1 final failure, got %v", got)
	}
}

func TestRecordAction(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAction("start", true)
	if got := testutil.ToFloat64(m.Recording); got != 1 {
		t.Errorf("Expected recording gauge 1, got %v", got)
	}

	m.RecordAction("finalize", false)
	if got := testutil.ToFloat64(m.Recording); got != 0 {
		t.Errorf("Expected recording gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("start")); got != 1 {
		t.Errorf("Expected 1 start action, got %v", got)
	}
}

func TestRecordChunkQueuedAndDropped(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordChunkQueued(3)
	m.RecordChunkDropped()
	m.RecordChunkDropped()

	if got := testutil.ToFloat64(m.QueueSize); got != 3 {
		t.Errorf("Expected queue size 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChunksDropped); got != 2 {
		t.Errorf("Expected 2 dropped chunks, got %v", got)
	}
}
