package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}
	if m.SessionsActive == nil {
		t.Error("SessionsActive metric is nil")
	}
	if m.HandshakeLatency == nil {
		t.Error("HandshakeLatency metric is nil")
	}
}

func TestRecordSessionStartEnd(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordSessionStart()
	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.SessionsActive); got != 2 {
		t.Errorf("SessionsActive = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal); got != 2 {
		t.Errorf("SessionsTotal = %v, want 2", got)
	}

	m.RecordSessionEnd()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("SessionsActive = %v, want 1 after one end", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal); got != 2 {
		t.Errorf("SessionsTotal = %v, want 2 (RecordSessionEnd must not change it)", got)
	}
}

func TestRecordHandshakeFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHandshakeFailure("bad_seal")
	m.RecordHandshakeFailure("bad_seal")
	m.RecordHandshakeFailure("protocol")

	if got := testutil.ToFloat64(m.HandshakeFailures.WithLabelValues("bad_seal")); got != 2 {
		t.Errorf("HandshakeFailures[bad_seal] = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HandshakeFailures.WithLabelValues("protocol")); got != 1 {
		t.Errorf("HandshakeFailures[protocol] = %v, want 1", got)
	}
}

func TestRecordHandshakeSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHandshakeSuccess(0.05)

	if got := testutil.CollectAndCount(m.HandshakeLatency); got != 1 {
		t.Errorf("HandshakeLatency collected metric count = %d, want 1", got)
	}
}

func TestRecordBusDeliveredAndDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordBusDelivered()
	m.RecordBusDelivered()
	m.RecordBusDropped()

	if got := testutil.ToFloat64(m.BusMessagesDelivered); got != 2 {
		t.Errorf("BusMessagesDelivered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BusMessagesDropped); got != 1 {
		t.Errorf("BusMessagesDropped = %v, want 1", got)
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() returned different instances across calls")
	}
}
