package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts request transitions and wallet mutations.
// A nil *SettlementMetrics is valid and records nothing.
type SettlementMetrics struct {
	transitions *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	earnings    *prometheus.CounterVec
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transitions_total",
		Help: "Deposit and withdrawal state transitions by outcome.",
	}, []string{"request", "action", "outcome"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_wallet_mutations_total",
		Help: "Applied wallet credits and debits.",
	}, []string{"direction", "wallet_type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_operation_duration_seconds",
		Help:    "Duration of settlement operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"request", "action"})
	earnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_earnings_recorded_total",
		Help: "Earning records appended to the ledger.",
	}, []string{"source_type"})
	reg.MustRegister(transitions, mutations, duration, earnings)
	return &SettlementMetrics{
		transitions: transitions,
		mutations:   mutations,
		duration:    duration,
		earnings:    earnings,
	}
}

// ObserveTransition records the outcome label and how long the call took.
func (m *SettlementMetrics) ObserveTransition(request, action string, started time.Time, err error) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(request, action, outcome(err)).Inc()
	m.duration.WithLabelValues(request, action).Observe(time.Since(started).Seconds())
}

func (m *SettlementMetrics) IncMutation(direction, walletType string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(direction, walletType).Inc()
}

func (m *SettlementMetrics) IncEarning(sourceType string) {
	if m == nil || m.earnings == nil {
		return
	}
	m.earnings.WithLabelValues(sourceType).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
