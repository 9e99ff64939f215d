// Package metrics exposes rtcshare's Prometheus collectors. A Metrics
// value implements the observer interfaces of the relay, chunked reader
// and throttle packages.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/rtcshare/pkg/chunked"
	"github.com/bft-labs/rtcshare/pkg/relay"
	"github.com/bft-labs/rtcshare/pkg/throttle"
)

const namespace = "rtcshare"

// Metrics holds the collectors.
type Metrics struct {
	bytesSent      prometheus.Counter
	framesSent     prometheus.Counter
	queuedFrames   prometheus.Gauge
	relayState     *prometheus.GaugeVec
	relayReconnect prometheus.Counter
	chunkFetches   prometheus.Counter
	chunkBytes     prometheus.Counter
	chunkFailures  prometheus.Counter
	chunkCacheHits prometheus.Counter
	groupsEvicted  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "throttle", Name: "bytes_sent_total",
			Help: "bytes handed to peer data channels",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "throttle", Name: "frames_sent_total",
			Help: "frames handed to peer data channels",
		}),
		queuedFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "throttle", Name: "queued_frames",
			Help: "frames waiting for send budget across all throttlers",
		}),
		relayState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "state",
			Help: "1 for the current relay session state",
		}, []string{"state"}),
		relayReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "reconnects_total",
			Help: "relay sessions that ended and were retried",
		}),
		chunkFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chunked", Name: "fetches_total",
			Help: "chunks fetched from remote sources",
		}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chunked", Name: "fetched_bytes_total",
			Help: "bytes fetched from remote sources",
		}),
		chunkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chunked", Name: "fetch_failures_total",
			Help: "chunk fetches that failed",
		}),
		chunkCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chunked", Name: "cache_hits_total",
			Help: "chunk reads served from cache",
		}),
		groupsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "multipart", Name: "groups_evicted_total",
			Help: "incomplete multipart groups evicted",
		}),
	}
	reg.MustRegister(
		m.bytesSent, m.framesSent, m.queuedFrames,
		m.relayState, m.relayReconnect,
		m.chunkFetches, m.chunkBytes, m.chunkFailures, m.chunkCacheHits,
		m.groupsEvicted,
	)
	return m
}

// StateChanged implements relay.Observer.
func (m *Metrics) StateChanged(s relay.State) {
	for _, st := range []relay.State{relay.StateConnecting, relay.StateWaitingAck, relay.StateAcknowledged, relay.StateClosed} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.relayState.WithLabelValues(st.String()).Set(v)
	}
}

// Reconnecting implements relay.Observer.
func (m *Metrics) Reconnecting() {
	m.relayReconnect.Inc()
}

// CacheHit implements chunked.Observer.
func (m *Metrics) CacheHit() {
	m.chunkCacheHits.Inc()
}

// ChunkFetched implements chunked.Observer.
func (m *Metrics) ChunkFetched(bytes int) {
	m.chunkFetches.Inc()
	m.chunkBytes.Add(float64(bytes))
}

// FetchFailed implements chunked.Observer.
func (m *Metrics) FetchFailed() {
	m.chunkFailures.Inc()
}

// GroupEvicted matches wire.WithEvictHandler.
func (m *Metrics) GroupEvicted(id string, received, numParts int) {
	m.groupsEvicted.Inc()
}

// ThrottleObserver returns an observer for one throttler. The queued
// frames gauge sums the depth of all throttlers.
func (m *Metrics) ThrottleObserver() throttle.Observer {
	return &throttleObserver{m: m}
}

type throttleObserver struct {
	m     *Metrics
	mu    sync.Mutex
	depth int
}

func (o *throttleObserver) FrameSent(bytes int) {
	o.m.framesSent.Inc()
	o.m.bytesSent.Add(float64(bytes))
}

func (o *throttleObserver) QueueDepth(frames int) {
	o.mu.Lock()
	delta := frames - o.depth
	o.depth = frames
	o.mu.Unlock()
	o.m.queuedFrames.Add(float64(delta))
}

var (
	_ relay.Observer   = (*Metrics)(nil)
	_ chunked.Observer = (*Metrics)(nil)
)
