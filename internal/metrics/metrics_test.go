package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveOperation("accept", nil)
	m.ObserveOperation("accept", errors.New("boom"))
	m.ObserveOperation("accept", nil)
	m.ObserveEscrow("create", "ok")
	m.IncLedgerRetry("submit")
	m.ObserveOracleCheck("rejected")
	m.IncReconEvent("pool_mismatch")
	m.ObserveLedgerCall("submit", time.Now(), nil)

	assert.Equal(t, 2.0, counterValue(t, reg, "bountyflow_bounty_operations_total", map[string]string{"operation": "accept", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "bountyflow_bounty_operations_total", map[string]string{"operation": "accept", "outcome": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "bountyflow_escrow_transfers_total", map[string]string{"phase": "create", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "bountyflow_ledger_retries_total", map[string]string{"method": "submit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "bountyflow_oracle_checks_total", map[string]string{"outcome": "rejected"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "bountyflow_recon_events_total", map[string]string{"type": "pool_mismatch"}))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveOperation("open", nil)
		m.ObserveEscrow("finish", "failed")
		m.ObserveLedgerCall("submit", time.Now(), nil)
		m.IncLedgerRetry("submit")
		m.ObserveOracleCheck("approved")
		m.IncReconEvent("missing_escrow")
		m.ObserveRequest("http", "/bounties", "200", time.Now())
	})
}

func TestMetrics_RequestHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("grpc", "/bountyflow.v1.BountyService/GetBounty", "OK", time.Now())
	m.ObserveRequest("grpc", "/bountyflow.v1.BountyService/GetBounty", "OK", time.Now())

	families, err := reg.Gather()
	require.NoError(t, err)

	var count uint64
	for _, family := range families {
		if family.GetName() == "bountyflow_api_request_duration_seconds" {
			for _, metric := range family.GetMetric() {
				count += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(2), count)
}
