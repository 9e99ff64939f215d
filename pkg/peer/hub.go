package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/log"
)

// DefaultIdleTimeout is how long a client may go without a signaling
// request before its peer is closed.
const DefaultIdleTimeout = 5 * time.Minute

// Peer is a service-side peer connection created for one client.
type Peer interface {
	// Signal applies a signal (offer or ICE candidate) from the client.
	Signal(signal string) error
	Close() error
}

// PeerEvents are the callbacks a Peer uses to talk back to the hub.
type PeerEvents struct {
	// Signal queues a signal for delivery to the client.
	Signal func(signal string)
	// Closed reports that the peer went away on its own.
	Closed func()
}

// PeerFactory creates a Peer for a client.
type PeerFactory interface {
	NewPeer(clientID string, events PeerEvents) (Peer, error)
}

// HubOption configures a SignalHub.
type HubOption func(*SignalHub)

// WithHubLogger sets the logger.
func WithHubLogger(logger log.Logger) HubOption {
	return func(h *SignalHub) {
		h.logger = logger
	}
}

// WithIdleTimeout sets the idle timeout; zero disables expiry.
func WithIdleTimeout(d time.Duration) HubOption {
	return func(h *SignalHub) {
		h.idleTimeout = d
	}
}

// WithHubClock replaces time.Now.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *SignalHub) {
		h.now = now
	}
}

type hubClient struct {
	peer     Peer
	err      error
	ready    chan struct{}
	signals  []string
	lastSeen time.Time
}

// SignalHub holds one peer per client id and the signals waiting to be
// picked up by each client.
type SignalHub struct {
	factory     PeerFactory
	logger      log.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	clients map[string]*hubClient
}

// NewSignalHub creates a hub creating peers with factory.
func NewSignalHub(factory PeerFactory, opts ...HubOption) *SignalHub {
	h := &SignalHub{
		factory:     factory,
		logger:      log.NoopLogger{},
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		clients:     make(map[string]*hubClient),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSignaling applies the client's signal, if any, to its peer
// (created on first contact) and returns the signals queued for the
// client since its last request.
func (h *SignalHub) HandleSignaling(ctx context.Context, req domain.Request) (domain.Response, error) {
	if req.Type != domain.TypeWebrtcSignalingRequest || req.ClientID == "" {
		return domain.Response{}, fmt.Errorf("%w: not a signaling request", domain.ErrInvalidRequest)
	}
	h.Sweep()

	c, err := h.client(ctx, req.ClientID)
	if err != nil {
		return domain.Response{}, err
	}
	if req.Signal != "" {
		if err := c.peer.Signal(req.Signal); err != nil {
			h.logger.Warn("apply client signal", log.String("client_id", req.ClientID), log.Err(err))
			return domain.Response{}, fmt.Errorf("apply signal: %w", err)
		}
	}

	h.mu.Lock()
	signals := c.signals
	c.signals = nil
	c.lastSeen = h.now()
	h.mu.Unlock()

	if signals == nil {
		signals = []string{}
	}
	return domain.Response{Type: domain.TypeWebrtcSignalingResponse, Signals: signals}, nil
}

func (h *SignalHub) client(ctx context.Context, clientID string) (*hubClient, error) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		c = &hubClient{ready: make(chan struct{}), lastSeen: h.now()}
		h.clients[clientID] = c
	}
	h.mu.Unlock()

	if ok {
		select {
		case <-c.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if c.err != nil {
			return nil, c.err
		}
		return c, nil
	}

	peer, err := h.factory.NewPeer(clientID, PeerEvents{
		Signal: func(signal string) { h.queue(clientID, c, signal) },
		Closed: func() { h.forget(clientID, c) },
	})
	c.peer, c.err = peer, err
	close(c.ready)

	if err != nil {
		h.forget(clientID, c)
		return nil, fmt.Errorf("create peer: %w", err)
	}
	h.logger.Info("webrtc peer created", log.String("client_id", clientID))
	return c, nil
}

func (h *SignalHub) queue(clientID string, c *hubClient, signal string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[clientID] != c {
		return
	}
	c.signals = append(c.signals, signal)
}

func (h *SignalHub) forget(clientID string, c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[clientID] == c {
		delete(h.clients, clientID)
	}
}

// Remove closes and forgets the peer of clientID.
func (h *SignalHub) Remove(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	delete(h.clients, clientID)
	h.mu.Unlock()

	if ok {
		h.closeClient(clientID, c)
	}
}

// Sweep closes peers of clients idle for longer than the idle timeout.
func (h *SignalHub) Sweep() {
	if h.idleTimeout <= 0 {
		return
	}
	now := h.now()
	expired := make(map[string]*hubClient)

	h.mu.Lock()
	for id, c := range h.clients {
		if now.Sub(c.lastSeen) > h.idleTimeout {
			expired[id] = c
			delete(h.clients, id)
		}
	}
	h.mu.Unlock()

	for id, c := range expired {
		h.logger.Debug("closing idle webrtc peer", log.String("client_id", id))
		h.closeClient(id, c)
	}
}

func (h *SignalHub) closeClient(clientID string, c *hubClient) {
	<-c.ready
	if c.peer == nil {
		return
	}
	if err := c.peer.Close(); err != nil {
		h.logger.Debug("close webrtc peer", log.String("client_id", clientID), log.Err(err))
	}
}

// Len returns the number of clients with a peer.
func (h *SignalHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every peer.
func (h *SignalHub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*hubClient)
	h.mu.Unlock()

	for id, c := range clients {
		h.closeClient(id, c)
	}
	return nil
}
