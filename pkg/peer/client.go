package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

type reply struct {
	resp    domain.PeerResponse
	payload []byte
	err     error
}

// Client issues peer requests on a data channel and correlates the
// responses.
type Client struct {
	ch          ports.Channel
	reassembler *wire.Reassembler
	logger      log.Logger

	mu      sync.Mutex
	pending map[string]chan reply
	closed  bool
}

// NewClient creates a Client sending on ch. Inbound messages must be
// passed to HandleMessage.
func NewClient(ch ports.Channel, logger log.Logger, opts ...wire.ReassemblerOption) *Client {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Client{
		ch:          ch,
		reassembler: wire.NewReassembler(opts...),
		logger:      logger,
		pending:     make(map[string]chan reply),
	}
}

// HandleMessage routes one inbound message through the reassembler and
// resolves the matching request once a whole response has arrived.
func (c *Client) HandleMessage(msg []byte) error {
	frame, ok, err := c.reassembler.Add(msg)
	if err != nil || !ok {
		return err
	}

	m, err := wire.DecodeLoose(frame)
	if err != nil {
		return err
	}
	var resp domain.PeerResponse
	if err := m.Unmarshal(&resp); err != nil {
		return err
	}
	if resp.Type != domain.TypePeerResponse {
		return fmt.Errorf("%w: %q", domain.ErrUnexpectedMessage, resp.Type)
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	delete(c.pending, resp.RequestID)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("unmatched peer response id", log.String("request_id", resp.RequestID))
		return nil
	}
	ch <- reply{resp: resp, payload: m.Payload}
	return nil
}

// Request sends req and waits for its response.
func (c *Client) Request(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	if err := req.Validate(); err != nil {
		return domain.Response{}, nil, err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("encode request: %w", err)
	}
	id := uuid.NewString()
	msg, err := json.Marshal(domain.PeerRequest{Type: domain.TypePeerRequest, Request: raw, RequestID: id})
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Response{}, nil, domain.ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.ch.Send(msg); err != nil {
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
		if len(r.resp.Response) == 0 {
			return domain.Response{}, nil, &domain.RemoteError{Message: r.resp.Error}
		}
		var out domain.Response
		if err := json.Unmarshal(r.resp.Response, &out); err != nil {
			return domain.Response{}, nil, fmt.Errorf("%w: %v", domain.ErrMalformedFrame, err)
		}
		return out, r.payload, nil
	}
}

func (c *Client) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close fails pending requests with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		ch <- reply{err: domain.ErrClosed}
		delete(c.pending, id)
	}
	return nil
}

var _ ports.Requester = (*Client)(nil)
