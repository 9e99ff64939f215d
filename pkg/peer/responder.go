package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/throttle"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// DefaultMaxMessageBytes is the largest frame sent on a data channel
// without fragmenting.
const DefaultMaxMessageBytes = 32000

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithMaxMessageBytes sets the fragmenting threshold.
func WithMaxMessageBytes(n int) ResponderOption {
	return func(r *Responder) {
		if n > 0 {
			r.maxMessageBytes = n
		}
	}
}

// WithThrottleConfig sets the pacing of outbound frames.
func WithThrottleConfig(cfg throttle.Config) ResponderOption {
	return func(r *Responder) {
		r.throttleCfg = cfg
	}
}

// WithThrottleObserver reports pacing events of the responder's throttler.
func WithThrottleObserver(o throttle.Observer) ResponderOption {
	return func(r *Responder) {
		r.throttleObserver = o
	}
}

// WithResponderLogger sets the logger.
func WithResponderLogger(logger log.Logger) ResponderOption {
	return func(r *Responder) {
		r.logger = logger
	}
}

// WithCloser sets the function that tears down the underlying peer when
// the responder closes.
func WithCloser(fn func() error) ResponderOption {
	return func(r *Responder) {
		r.closer = fn
	}
}

// Responder answers peer requests arriving on one data channel.
type Responder struct {
	handler          ports.RequestHandler
	out              *throttle.Throttler
	maxMessageBytes  int
	throttleCfg      throttle.Config
	throttleObserver throttle.Observer
	logger           log.Logger
	closer           func() error

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewResponder creates a Responder sending on ch.
func NewResponder(ch ports.Channel, handler ports.RequestHandler, opts ...ResponderOption) *Responder {
	r := &Responder{
		handler:         handler,
		maxMessageBytes: DefaultMaxMessageBytes,
		throttleCfg:     throttle.DefaultConfig(),
		logger:          log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	topts := []throttle.Option{throttle.WithLogger(r.logger)}
	if r.throttleObserver != nil {
		topts = append(topts, throttle.WithObserver(r.throttleObserver))
	}
	r.out = throttle.New(ch, r.throttleCfg, topts...)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// HandleMessage processes one inbound data channel message. An invalid
// peer request closes the responder and returns ErrUnexpectedMessage.
func (r *Responder) HandleMessage(msg []byte) error {
	req, id, err := parsePeerRequest(msg)
	if err != nil {
		r.logger.Warn("invalid peer request, disconnecting", log.Err(err))
		_ = r.Close()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.respond(req, id)
	}()
	return nil
}

func parsePeerRequest(msg []byte) (domain.Request, string, error) {
	m, err := wire.DecodeLoose(msg)
	if err != nil {
		return domain.Request{}, "", fmt.Errorf("%w: %v", domain.ErrUnexpectedMessage, err)
	}
	var env domain.PeerRequest
	if err := m.Unmarshal(&env); err != nil {
		return domain.Request{}, "", fmt.Errorf("%w: %v", domain.ErrUnexpectedMessage, err)
	}
	if env.Type != domain.TypePeerRequest || env.RequestID == "" {
		return domain.Request{}, "", fmt.Errorf("%w: %q", domain.ErrUnexpectedMessage, env.Type)
	}
	req, err := domain.ParseRequest(env.Request)
	if err != nil {
		return domain.Request{}, "", fmt.Errorf("%w: %v", domain.ErrUnexpectedMessage, err)
	}
	return req, env.RequestID, nil
}

func (r *Responder) respond(req domain.Request, id string) {
	resp := domain.PeerResponse{Type: domain.TypePeerResponse, RequestID: id}
	var payload []byte

	out, data, err := r.handler.HandleRequest(r.ctx, req)
	if err == nil {
		resp.Response, err = json.Marshal(out)
		payload = data
	}
	if err != nil {
		resp.Response = nil
		resp.Error = err.Error()
		payload = nil
	}

	if err := r.send(resp, payload); err != nil {
		r.logger.Warn("send peer response failed", log.String("request_id", id), log.Err(err))
	}
}

func (r *Responder) send(resp domain.PeerResponse, payload []byte) error {
	frame, err := wire.Encode(resp, payload)
	if err != nil {
		return err
	}
	parts, err := wire.Fragment(frame, r.maxMessageBytes)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := r.out.Send(p); err != nil {
			return err
		}
	}
	return nil
}

// SetLimit changes the pacing of outbound frames.
func (r *Responder) SetLimit(maxBytesPerPeriod int, period time.Duration) {
	r.out.SetLimit(maxBytesPerPeriod, period)
}

// Close drops queued frames, cancels running handlers and tears down the
// peer.
func (r *Responder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		r.out.Close()
		if r.closer != nil {
			err = r.closer()
		}
	})
	return err
}

// Wait blocks until all running handlers have returned.
func (r *Responder) Wait() {
	r.wg.Wait()
}
