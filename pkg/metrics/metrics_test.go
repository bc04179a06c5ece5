package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.AddEventsLogged(3)
	m.IncEventsDeduped()
	m.AddEventsDropped("spool_full", 2)
	m.IncBatchDelivered()
	m.IncBatchFailed("network_error")
	m.ObserveDelivery(time.Second)
	m.SetSpoolSize(1, 10)
	m.AddIngested(1, 10)
	m.ObserveWrite(time.Millisecond, 128)
	m.ObserveRead(time.Millisecond, 128)
	m.ObserveBatchCommit(time.Millisecond, 0, 128)
}

func TestInstrumentsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)

	m.AddEventsLogged(5)
	m.AddEventsDropped("age", 1)
	m.IncBatchFailed("status_500")
	m.SetSpoolSize(2, 20)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"flare_events_logged_total",
		"flare_events_dropped_total",
		"flare_batches_failed_total",
		"flare_spool_batches",
	} {
		if !names[want] {
			t.Fatalf("expected %s to be registered, have %v", want, names)
		}
	}
}
