package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/rtcshare/internal/app"
	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/throttle"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

const (
	// minMessageBytes leaves room for a part envelope and its marker.
	minMessageBytes = 2048

	invalidRequestMessage = "Invalid Rtcshare request"
	handlerErrorPrefix    = "Error handling request: "
)

// State is the state of a relay session.
type State int

const (
	StateConnecting State = iota
	StateWaitingAck
	StateAcknowledged
	StateClosed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateWaitingAck:
		return "WaitingAck"
	case StateAcknowledged:
		return "Acknowledged"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type reply struct {
	resp    domain.ResponseToClient
	payload []byte
	err     error
}

// Connection is a reconnecting relay session.
type Connection struct {
	cfg      Config
	dialer   ports.Dialer
	handler  ports.RequestHandler
	logger   log.Logger
	observer Observer
	throttle *throttle.Config
	reasmOpt []wire.ReassemblerOption

	mu      sync.Mutex
	state   State
	sess    *session
	pending map[string]chan reply

	closeOnce sync.Once
	closed    chan struct{}
}

// session is one socket's worth of relay state.
type session struct {
	sock        ports.Socket
	out         throttle.Sender
	throttler   *throttle.Throttler
	reassembler *wire.Reassembler
	acked       bool
	closeOnce   sync.Once
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		if s.throttler != nil {
			s.throttler.Close()
		}
		_ = s.sock.Close()
	})
}

type binarySender struct {
	sock ports.Socket
}

func (b binarySender) Send(frame []byte) error {
	return b.sock.WriteMessage(ports.BinaryMessage, frame)
}

// New creates a Connection. handler answers requestFromClient messages;
// it may be nil for a connection used only to issue requests.
func New(cfg Config, dialer ports.Dialer, handler ports.RequestHandler, opts ...Option) *Connection {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}

	c := &Connection{
		cfg:     cfg,
		dialer:  dialer,
		handler: handler,
		logger:  log.NoopLogger{},
		state:   StateConnecting,
		pending: make(map[string]chan reply),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With(c.logger, log.String("component", "relay"))
	return c
}

// PublicURL returns the URL clients use to reach this service.
func (c *Connection) PublicURL() string {
	return c.cfg.PublicURL()
}

// State returns the current session state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and keeps reconnecting until ctx is done or Close is
// called. It returns nil after Close and ctx.Err() on cancellation.
func (c *Connection) Run(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-runCtx.Done():
		}
	}()

	backoff := app.NewBackoff(c.cfg.ReconnectInitial, c.cfg.ReconnectMax)
	for {
		if runCtx.Err() != nil {
			c.setState(StateClosed)
			if c.isClosed() {
				return nil
			}
			return ctx.Err()
		}

		c.setState(StateConnecting)
		acked, err := c.runSession(runCtx)
		if acked {
			backoff.Reset()
		}
		if runCtx.Err() == nil {
			c.setState(StateConnecting)
		}
		c.failPending()

		if runCtx.Err() != nil {
			continue
		}
		if err != nil {
			c.logger.Warn("relay session ended", log.Err(err), log.Duration("retry_in", backoff.Current()))
		}
		if c.observer != nil {
			c.observer.Reconnecting()
		}
		_ = backoff.Wait(runCtx)
	}
}

func (c *Connection) runSession(ctx context.Context) (bool, error) {
	url := c.cfg.WebSocketURL()
	c.logger.Debug("connecting to relay", log.String("url", url))

	sock, err := c.dialer.Dial(ctx, url)
	if err != nil {
		return false, fmt.Errorf("dial relay: %w", err)
	}

	s := &session{
		sock:        sock,
		out:         binarySender{sock: sock},
		reassembler: wire.NewReassembler(c.reasmOpt...),
	}
	if c.throttle != nil {
		s.throttler = throttle.New(s.out, *c.throttle, throttle.WithLogger(c.logger))
		s.out = s.throttler
	}

	sctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		s.close()
		wg.Wait()
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		c.mu.Unlock()
	}()

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	hello := domain.NewInitializeMessage(c.cfg.Identity, c.cfg.Secret)
	if err := writeJSON(s.sock, hello); err != nil {
		return false, fmt.Errorf("send initialize: %w", err)
	}
	c.setState(StateWaitingAck)
	c.logger.Info("connected to relay", log.String("url", url))

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-sctx.Done()
		s.close()
	}()
	go func() {
		defer wg.Done()
		c.keepalive(sctx, s)
	}()

	for {
		_, msg, err := sock.ReadMessage()
		if err != nil {
			if sctx.Err() != nil {
				return s.acked, nil
			}
			return s.acked, fmt.Errorf("read: %w", err)
		}
		if err := c.handleMessage(sctx, s, &wg, msg); err != nil {
			c.logger.Warn("closing relay session", log.Err(err))
			return s.acked, err
		}
	}
}

// handleMessage processes one inbound message. A returned error closes
// the session.
func (c *Connection) handleMessage(ctx context.Context, s *session, wg *sync.WaitGroup, msg []byte) error {
	if wire.IsPart(msg) {
		frame, ok, err := s.reassembler.Add(msg)
		if err != nil || !ok {
			return err
		}
		msg = frame
	}

	m, err := wire.DecodeLoose(msg)
	if err != nil {
		return err
	}
	typ := m.Type()

	if !s.acked {
		if typ != domain.TypeAcknowledge {
			return fmt.Errorf("%w: %q before acknowledge", domain.ErrUnexpectedMessage, typ)
		}
		s.acked = true
		c.setState(StateAcknowledged)
		c.logger.Info("relay acknowledged session", log.String("public_url", c.PublicURL()))
		return nil
	}

	switch typ {
	case domain.TypeAcknowledge, domain.TypePing:
		return nil

	case domain.TypeRequestFromClient:
		var req domain.RequestFromClient
		if err := m.Unmarshal(&req); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.respond(ctx, s, req)
		}()
		return nil

	case domain.TypeResponseToClient:
		var resp domain.ResponseToClient
		if err := m.Unmarshal(&resp); err != nil {
			return err
		}
		c.resolve(resp.RequestID, reply{resp: resp, payload: m.Payload})
		return nil

	case domain.TypeResponseToClientPart:
		var part domain.ResponseToClientPart
		if err := m.Unmarshal(&part); err != nil {
			return err
		}
		frame, ok, err := s.reassembler.Add(m.Payload)
		if err != nil || !ok {
			return err
		}
		return c.handleMessage(ctx, s, wg, frame)

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnexpectedMessage, typ)
	}
}

func (c *Connection) keepalive(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.State() != StateAcknowledged {
				continue
			}
			if err := writeJSON(s.sock, domain.PingMessage{Type: domain.TypePing}); err != nil {
				c.logger.Debug("ping failed", log.Err(err))
			}
		}
	}
}

// respond answers one client request forwarded by the relay.
func (c *Connection) respond(ctx context.Context, s *session, in domain.RequestFromClient) {
	resp := domain.ResponseToClient{
		Type:      domain.TypeResponseToClient,
		RequestID: in.RequestID,
		Response:  json.RawMessage("{}"),
	}
	var payload []byte

	req, err := domain.ParseRequest(in.Request)
	switch {
	case err != nil:
		c.logger.Warn("invalid client request", log.String("request_id", in.RequestID), log.Err(err))
		resp.Error = invalidRequestMessage
	case c.handler == nil:
		resp.Error = handlerErrorPrefix + "no request handler"
	default:
		out, data, err := c.handler.HandleRequest(ctx, req)
		if err != nil {
			resp.Error = handlerErrorPrefix + err.Error()
			break
		}
		raw, err := json.Marshal(out)
		if err != nil {
			resp.Error = handlerErrorPrefix + err.Error()
			break
		}
		resp.Response = raw
		payload = data
	}

	if err := c.sendResponse(s, resp, payload); err != nil {
		c.logger.Warn("send response failed", log.String("request_id", in.RequestID), log.Err(err))
	}
}

// sendResponse writes resp as one binary frame, or as responseToClientPart
// envelopes when the frame exceeds the maximum message size. Each part
// carries a slice of the whole frame, so envelopes never repeat Response.
func (c *Connection) sendResponse(s *session, resp domain.ResponseToClient, payload []byte) error {
	frame, err := wire.Encode(resp, payload)
	if err != nil {
		return err
	}
	if len(frame) <= c.cfg.MaxMessageBytes {
		return s.out.Send(frame)
	}

	envelope := func(i, n int) domain.ResponseToClientPart {
		return domain.ResponseToClientPart{
			Type:      domain.TypeResponseToClientPart,
			RequestID: resp.RequestID,
			PartIndex: i,
			NumParts:  n,
			Error:     resp.Error,
		}
	}
	head, err := wire.Encode(envelope(wire.MaxParts, wire.MaxParts), nil)
	if err != nil {
		return err
	}
	budget := c.cfg.MaxMessageBytes - len(head) - wire.MaxMarkerSize
	if budget < 1 {
		return fmt.Errorf("response envelope of %d bytes leaves no room for data", len(head))
	}

	parts, err := wire.Fragment(frame, budget)
	if err != nil {
		return err
	}
	for i, p := range parts {
		f, err := wire.Encode(envelope(i, len(parts)), p)
		if err != nil {
			return err
		}
		if err := s.out.Send(f); err != nil {
			return err
		}
	}
	return nil
}

// Request sends req through the relay and waits for the response with
// the same request id. Responses that never arrive leave the call
// waiting until ctx is done.
func (c *Connection) Request(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	if err := req.Validate(); err != nil {
		return domain.Response{}, nil, err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("encode request: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan reply, 1)

	c.mu.Lock()
	s := c.sess
	if s == nil || c.state != StateAcknowledged {
		c.mu.Unlock()
		return domain.Response{}, nil, domain.ErrNotConnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	msg := domain.RequestFromClient{Type: domain.TypeRequestFromClient, Request: raw, RequestID: id}
	if err := writeJSON(s.sock, msg); err != nil {
		c.drop(id)
		return domain.Response{}, nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case <-ctx.Done():
		c.drop(id)
		return domain.Response{}, nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return domain.Response{}, nil, r.err
		}
		if r.resp.Error != "" {
			return domain.Response{}, nil, &domain.RemoteError{Message: r.resp.Error}
		}
		var out domain.Response
		if err := json.Unmarshal(r.resp.Response, &out); err != nil {
			return domain.Response{}, nil, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
		}
		return out, r.payload, nil
	}
}

func (c *Connection) resolve(id string, r reply) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("unmatched response id", log.String("request_id", id))
		return
	}
	ch <- r
}

func (c *Connection) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPending drops every pending request of the ended session.
func (c *Connection) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- reply{err: domain.ErrNotConnected}
		delete(c.pending, id)
	}
}

// Close ends the current session and stops reconnecting.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		s := c.sess
		c.mu.Unlock()
		if s != nil {
			s.close()
		}
		c.setState(StateClosed)
	})
	return nil
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state == s || (c.state == StateClosed && c.isClosed()) {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("relay state", log.String("from", prev.String()), log.String("to", s.String()))
	if c.observer != nil {
		c.observer.StateChanged(s)
	}
}

func writeJSON(sock ports.Socket, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sock.WriteMessage(ports.TextMessage, data)
}

var _ ports.Requester = (*Connection)(nil)
