package engine

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingSet_TryAddOnce(t *testing.T) {
	p := NewPendingSet()

	assert.True(t, p.TryAdd("T1"))
	assert.False(t, p.TryAdd("T1"))
	assert.True(t, p.TryAdd("T2"))
	assert.True(t, p.Contains("T1"))
	assert.False(t, p.Contains("T3"))
	assert.Equal(t, 2, p.Len())
}

func TestPendingSet_ConcurrentClaimsSingleWinner(t *testing.T) {
	p := NewPendingSet()
	var wins atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.TryAdd("T1") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "OPEN", StateOpen.String())
}

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ReconcilePasses.Inc()
	m.BillingErrors.WithLabelValues("transient").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names[MetricReconcilePasses])
	assert.True(t, names[MetricBillingErrors])
}

func TestNewMetrics_NilRegistererIsUsable(t *testing.T) {
	m := NewMetrics(nil)
	assert.NotPanics(t, func() {
		m.ConnectAttempts.Inc()
		m.BillingErrors.WithLabelValues("generic").Inc()
	})
}
