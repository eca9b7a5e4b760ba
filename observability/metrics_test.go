package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordDispatch("delivered")
	m.RecordAttempt(true, 0.1)

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n == 0 {
		t.Fatal("expected registered metrics")
	}
}

func TestRecordDispatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDispatch("delivered")
	m.RecordDispatch("delivered")
	m.RecordDispatch("retry_scheduled")
	m.RecordDispatch("dead_letter")

	if got := testutil.ToFloat64(m.DispatchesTotal.WithLabelValues("delivered")); got != 2 {
		t.Fatalf("delivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RetriesScheduled); got != 1 {
		t.Fatalf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DeadLetters); got != 1 {
		t.Fatalf("dead letters = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.DispatchesTotal); got != 3 {
		t.Fatalf("expected 3 label combinations, got %d", got)
	}
}

func TestRecordAttempt(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordAttempt(true, 0.5)
	m.RecordAttempt(false, 1.2)
	m.RecordAttempt(false, 0.3)

	if got := testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("failure")); got != 2 {
		t.Fatalf("failures = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.AttemptLatency); got != 1 {
		t.Fatalf("histogram series = %d", got)
	}
}

func TestBroadcastGauges(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordBroadcast(3)
	m.TaskStarted()
	m.TaskStarted()
	m.TaskDone()
	m.RecordLedgerError()

	if got := testutil.ToFloat64(m.BroadcastsTotal); got != 1 {
		t.Fatalf("broadcasts = %v", got)
	}
	if got := testutil.ToFloat64(m.BroadcastsRunning); got != 1 {
		t.Fatalf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LedgerErrors); got != 1 {
		t.Fatalf("ledger errors = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordAttempt(true, 1)
	m.RecordDispatch("delivered")
	m.RecordBroadcast(1)
	m.TaskStarted()
	m.TaskDone()
	m.RecordLedgerError()
}
