package metrics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, reg, m.Registry())

	// Registering twice on the same registry must fail
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestCounters(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncSignatureVerification("allow")
	m.IncSignatureVerification("allow")
	m.IncSignatureVerification("invalid_signature")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.signatureVerificationsTotal.WithLabelValues("allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureVerificationsTotal.WithLabelValues("invalid_signature")))

	m.IncActorResolution("remote", "gone")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actorResolutionsTotal.WithLabelValues("remote", "gone")))

	m.IncHTTPInboundRequestsTotal("/inbox", "POST", "202")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInboundRequestsTotal.WithLabelValues("/inbox", "POST", "202")))

	m.SetNATSConnectionStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.natsConnectionStatus))
	m.SetNATSConnectionStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.natsConnectionStatus))

	m.SetTombstonesTracked(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tombstonesTracked))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncSignatureVerification("allow")
		m.ObserveSignatureVerificationDuration(0.1)
		m.IncActorResolution("cache", "ok")
		m.SetActorCacheEntries(1)
		m.SetTombstonesTracked(1)
		m.IncHTTPInboundRequestsTotal("/inbox", "POST", "400")
		m.ObserveHTTPRequestDuration("/inbox", "POST", 0.1)
		m.SetInboundQueueDepth(1)
		m.IncNATSPublish("success")
		m.SetNATSConnectionStatus(true)
		m.IncNATSReconnects()
		m.UpdateSystemMetrics()
		assert.Nil(t, m.Registry())
	})
}

func TestMetricsCollector_RunsProbes(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	var calls atomic.Int32
	mc := NewMetricsCollector(m, 5*time.Millisecond)
	mc.AddProbe(func() { calls.Add(1) })
	mc.Start()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	mc.Stop()

	assert.Greater(t, testutil.ToFloat64(m.goroutines), 0.0)
}
