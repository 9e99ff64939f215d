package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/bft-labs/rtcshare/pkg/relay"
)

func TestMetrics_Relay(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StateChanged(relay.StateWaitingAck)
	m.StateChanged(relay.StateAcknowledged)
	m.Reconnecting()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayState.WithLabelValues("Acknowledged")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.relayState.WithLabelValues("WaitingAck")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayReconnect))
}

func TestMetrics_Chunked(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ChunkFetched(100)
	m.ChunkFetched(50)
	m.CacheHit()
	m.FetchFailed()
	m.GroupEvicted("id", 1, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunkFetches))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.chunkBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunkFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.groupsEvicted))
}

func TestMetrics_ThrottleQueueSumsObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())
	a, b := m.ThrottleObserver(), m.ThrottleObserver()

	a.QueueDepth(3)
	b.QueueDepth(2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.queuedFrames))

	a.QueueDepth(1)
	a.FrameSent(10)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queuedFrames))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.bytesSent))

	b.QueueDepth(0)
	a.QueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queuedFrames))
}

func TestMetrics_RegisterTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
