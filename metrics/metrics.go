// Package metrics exposes Prometheus collectors for payment-gated actions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arena"

// Outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeDismissed = "dismissed"
)

// Metrics groups the collectors updated by the orchestrator.
type Metrics struct {
	Actions         *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	Challenges      *prometheus.CounterVec
	Signatures      *prometheus.CounterVec
	DeliveryPolls   *prometheus.CounterVec
	DeliveryResults *prometheus.CounterVec
}

// New builds an unregistered collector set.
func New() *Metrics {
	return &Metrics{
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Payment-gated actions by final outcome and error code.",
		}, []string{"action", "outcome", "code"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Wall time from first attempt to final outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"action"}),
		Challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_challenges_total",
			Help:      "402 challenges received per action.",
		}, []string{"action"}),
		Signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_total",
			Help:      "Typed-data signing requests by result.",
		}, []string{"action", "result"}),
		DeliveryPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_polls_total",
			Help:      "Delivery-status requests by result.",
		}, []string{"result"}),
		DeliveryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Winner selections by how the download link was obtained.",
		}, []string{"via"}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.Actions, m.ActionDuration, m.Challenges, m.Signatures, m.DeliveryPolls, m.DeliveryResults,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAction records the outcome of one action. A nil receiver is a no-op.
func (m *Metrics) ObserveAction(action, outcome, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, outcome, code).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveChallenge counts a 402 challenge received for action.
func (m *Metrics) ObserveChallenge(action string) {
	if m == nil {
		return
	}
	m.Challenges.WithLabelValues(action).Inc()
}

// ObserveSignature counts a signing attempt by result.
func (m *Metrics) ObserveSignature(action string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Signatures.WithLabelValues(action, result).Inc()
}

// ObservePoll records one delivery-status request; result is "ready",
// "pending" or "error".
func (m *Metrics) ObservePoll(result string) {
	if m == nil {
		return
	}
	m.DeliveryPolls.WithLabelValues(result).Inc()
}

// ObserveDelivery records how a winner selection ended; via is
// "immediate", "polled" or "pending".
func (m *Metrics) ObserveDelivery(via string) {
	if m == nil {
		return
	}
	m.DeliveryResults.WithLabelValues(via).Inc()
}
