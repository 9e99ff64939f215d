// Package webrtc answers client WebRTC offers with pion/webrtc and serves
// peer requests on the data channels the clients open.
package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/peer"
	"github.com/bft-labs/rtcshare/pkg/throttle"
)

// DefaultICEServers is used when the ICE server list is nil.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// Answerer implements peer.PeerFactory.
type Answerer struct {
	config     webrtc.Configuration
	handler    ports.RequestHandler
	logger     log.Logger
	respOpts   []peer.ResponderOption
	responders sync.Map // *peer.Responder -> struct{}

	mu        sync.Mutex
	limit     int
	period    time.Duration
	observers func() throttle.Observer
}

// NewAnswerer creates an Answerer. Responders for new data channels are
// created with opts.
func NewAnswerer(iceServers []string, handler ports.RequestHandler, logger log.Logger, opts ...peer.ResponderOption) *Answerer {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	if iceServers == nil {
		iceServers = DefaultICEServers
	}
	var config webrtc.Configuration
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Answerer{
		config:   config,
		handler:  handler,
		logger:   log.With(logger, log.String("component", "webrtc")),
		respOpts: opts,
	}
}

// NewPeer creates a peer connection for clientID. Its local signals are
// reported through events.
func (a *Answerer) NewPeer(clientID string, events peer.PeerEvents) (peer.Peer, error) {
	pc, err := webrtc.NewPeerConnection(a.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	p := &Peer{pc: pc, events: events}
	logger := log.With(a.logger, log.String("client_id", clientID))

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()
		p.emit(signal{Type: "candidate", Candidate: &cand})
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", log.String("state", s.String()))
		switch s {
		case webrtc.PeerConnectionStateConnected:
			logger.Info("webrtc peer connected")
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			go func() {
				_ = p.Close()
				if events.Closed != nil {
					events.Closed()
				}
			}()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		opts := append([]peer.ResponderOption{
			peer.WithResponderLogger(logger),
			peer.WithCloser(func() error {
				go p.Close()
				return nil
			}),
		}, a.respOpts...)
		a.mu.Lock()
		if a.observers != nil {
			opts = append(opts, peer.WithThrottleObserver(a.observers()))
		}
		a.mu.Unlock()
		responder := peer.NewResponder(dataChannel{dc: dc}, a.handler, opts...)
		a.mu.Lock()
		if a.limit > 0 {
			responder.SetLimit(a.limit, a.period)
		}
		a.responders.Store(responder, struct{}{})
		a.mu.Unlock()

		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			_ = responder.HandleMessage(msg.Data)
		})
		dc.OnClose(func() {
			a.responders.Delete(responder)
			_ = responder.Close()
		})
	})

	return p, nil
}

// SetLimit changes the pacing of every live responder and of those
// created afterwards.
func (a *Answerer) SetLimit(maxBytesPerPeriod int, period time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limit, a.period = maxBytesPerPeriod, period
	a.responders.Range(func(k, _ interface{}) bool {
		k.(*peer.Responder).SetLimit(maxBytesPerPeriod, period)
		return true
	})
}

// ObserveThrottles gives each new responder's throttler its own observer
// created by fn.
func (a *Answerer) ObserveThrottles(fn func() throttle.Observer) {
	a.mu.Lock()
	a.observers = fn
	a.mu.Unlock()
}

// Responders returns the number of open data channels.
func (a *Answerer) Responders() int {
	n := 0
	a.responders.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

type dataChannel struct {
	dc *webrtc.DataChannel
}

func (d dataChannel) Send(msg []byte) error {
	return d.dc.Send(msg)
}

// signal is the JSON form of signals exchanged with clients: session
// descriptions carry type and sdp, ICE candidates carry candidate.
type signal struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Peer is one answering peer connection.
type Peer struct {
	pc        *webrtc.PeerConnection
	events    peer.PeerEvents
	closeOnce sync.Once
	closeErr  error
}

func (p *Peer) emit(s signal) {
	if p.events.Signal == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	p.events.Signal(string(data))
}

// Signal applies an offer or ICE candidate from the client. An offer is
// answered through the peer's signal events.
func (p *Peer) Signal(raw string) error {
	var s signal
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("parse signal: %w", err)
	}

	switch {
	case s.Type == "offer":
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: s.SDP}
		if err := p.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		p.emit(signal{Type: "answer", SDP: answer.SDP})
		return nil

	case s.Candidate != nil:
		if err := p.pc.AddICECandidate(*s.Candidate); err != nil {
			return fmt.Errorf("add ice candidate: %w", err)
		}
		return nil

	default:
		return errors.New("unsupported signal")
	}
}

// Close closes the peer connection.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

var _ peer.PeerFactory = (*Answerer)(nil)
