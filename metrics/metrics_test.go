package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveAction("create-competition", OutcomeSucceeded, "", 120*time.Millisecond)
	m.ObserveAction("create-competition", OutcomeFailed, "server-rejected", time.Second)
	m.ObserveChallenge("create-competition")
	m.ObserveSignature("create-competition", true)
	m.ObservePoll("pending")
	m.ObservePoll("pending")
	m.ObserveDelivery("polled")

	if got := testutil.ToFloat64(m.Actions.WithLabelValues("create-competition", OutcomeSucceeded, "")); got != 1 {
		t.Errorf("expected 1 succeeded action, got %v", got)
	}
	if got := testutil.ToFloat64(m.Actions.WithLabelValues("create-competition", OutcomeFailed, "server-rejected")); got != 1 {
		t.Errorf("expected 1 failed action, got %v", got)
	}
	if got := testutil.ToFloat64(m.Challenges.WithLabelValues("create-competition")); got != 1 {
		t.Errorf("expected 1 challenge, got %v", got)
	}
	if got := testutil.ToFloat64(m.Signatures.WithLabelValues("create-competition", "ok")); got != 1 {
		t.Errorf("expected 1 signature, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveryPolls.WithLabelValues("pending")); got != 2 {
		t.Errorf("expected 2 pending polls, got %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveryResults.WithLabelValues("polled")); got != 1 {
		t.Errorf("expected 1 polled delivery, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ActionDuration); got != 1 {
		t.Errorf("expected 1 duration series, got %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAction("a", OutcomeFailed, "x", time.Second)
	m.ObserveChallenge("a")
	m.ObserveSignature("a", false)
	m.ObservePoll("error")
	m.ObserveDelivery("pending")
}
