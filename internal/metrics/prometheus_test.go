package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordTrial("ok")
	r.RecordTrial("ok")
	r.RecordTrial("failed")
	r.RecordDayScored("ok")
	r.RecordAlert("accuracy")
	r.RecordMonitoringValue("accuracy", 0.61)
	r.ObserveSince("fit", time.Now())

	if got := testutil.ToFloat64(r.trials.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok trials, got %v", got)
	}
	if got := testutil.ToFloat64(r.monitorVals.WithLabelValues("accuracy")); got != 0.61 {
		t.Fatalf("expected gauge 0.61, got %v", got)
	}
	if n := testutil.CollectAndCount(r.trials); n != 2 {
		t.Fatalf("expected 2 trial series, got %d", n)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordTrial("ok")
	r.RecordDayScored("failed")
	r.RecordAlert("f1")
	r.RecordMonitoringValue("f1", 1)
	r.ObserveSince("score", time.Now())
}
