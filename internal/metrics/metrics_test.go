package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSettlementMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)

	m.ObserveTransition("deposit", "approve", time.Now(), nil)
	m.ObserveTransition("deposit", "approve", time.Now(), errors.New("x"))
	m.IncMutation("credit", "buyer")
	m.IncEarning("withdrawal_fee")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("deposit", "approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("deposit", "approve", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("credit", "buyer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.earnings.WithLabelValues("withdrawal_fee")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *SettlementMetrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("withdrawal", "claim", time.Now(), nil)
		m.IncMutation("debit", "seller")
		m.IncEarning("commission")
	})

	unregistered := NewSettlementMetrics(nil)
	assert.NotPanics(t, func() { unregistered.IncMutation("debit", "seller") })
}
