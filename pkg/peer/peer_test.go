package peer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/throttle"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

type recordingChannel struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *recordingChannel) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, append([]byte(nil), msg...))
	return nil
}

func (c *recordingChannel) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

var fastThrottle = throttle.Config{MaxBytesPerPeriod: 1 << 30, Period: time.Second}

var fileHandler = ports.RequestHandlerFunc(func(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	switch req.Type {
	case domain.TypeProbeRequest:
		return domain.Response{Type: domain.TypeProbeResponse, ProtocolVersion: domain.ProtocolVersion}, nil, nil
	case domain.TypeReadFileRequest:
		if req.Path == "missing" {
			return domain.Response{}, nil, errors.New("file not found")
		}
		return domain.Response{Type: domain.TypeReadFileResponse}, bytes.Repeat([]byte(req.Path), 1000), nil
	}
	return domain.Response{}, nil, errors.New("unsupported")
})

// pair connects a Client and a Responder in memory.
func pair(t *testing.T, opts ...ResponderOption) (*Client, *Responder) {
	t.Helper()
	var client *Client
	toClient := ports.ChannelFunc(func(msg []byte) error {
		return client.HandleMessage(append([]byte(nil), msg...))
	})
	opts = append([]ResponderOption{WithThrottleConfig(fastThrottle)}, opts...)
	responder := NewResponder(toClient, fileHandler, opts...)
	client = NewClient(ports.ChannelFunc(func(msg []byte) error {
		_ = responder.HandleMessage(msg)
		return nil
	}), nil)
	t.Cleanup(func() {
		_ = responder.Close()
		responder.Wait()
		_ = client.Close()
	})
	return client, responder
}

func TestClientResponder(t *testing.T) {
	tests := []struct {
		name        string
		maxMessage  int
		req         domain.Request
		wantType    string
		wantPayload []byte
		wantRemote  string
	}{
		{"probe", 0, domain.NewProbeRequest(), domain.TypeProbeResponse, nil, ""},
		{"small file", 0, domain.NewReadFileRequest("ab", -1, -1), domain.TypeReadFileResponse, bytes.Repeat([]byte("ab"), 1000), ""},
		{"fragmented file", 300, domain.NewReadFileRequest("xyz", -1, -1), domain.TypeReadFileResponse, bytes.Repeat([]byte("xyz"), 1000), ""},
		{"handler error", 0, domain.NewReadFileRequest("missing", -1, -1), "", nil, "file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []ResponderOption
			if tt.maxMessage > 0 {
				opts = append(opts, WithMaxMessageBytes(tt.maxMessage))
			}
			client, _ := pair(t, opts...)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			resp, payload, err := client.Request(ctx, tt.req)

			if tt.wantRemote != "" {
				var remote *domain.RemoteError
				require.ErrorAs(t, err, &remote)
				assert.Equal(t, tt.wantRemote, remote.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, tt.wantPayload, payload)
		})
	}
}

func TestResponder_FragmentsAndPaces(t *testing.T) {
	ch := &recordingChannel{}
	r := NewResponder(ch, fileHandler,
		WithMaxMessageBytes(500),
		WithThrottleConfig(throttle.Config{MaxBytesPerPeriod: 1 << 30, Period: time.Second}),
	)
	defer r.Close()

	require.NoError(t, r.HandleMessage([]byte(`{"type":"rtcsharePeerRequest","requestId":"r1","request":{"type":"readFileRequest","path":"q"}}`)))
	r.Wait()

	msgs := ch.messages()
	require.Greater(t, len(msgs), 1)
	reassembler := wire.NewReassembler()
	var frame []byte
	for _, m := range msgs {
		assert.True(t, wire.IsPart(m))
		f, ok, err := reassembler.Add(m)
		require.NoError(t, err)
		if ok {
			frame = f
		}
	}
	require.NotNil(t, frame)

	m, err := wire.Decode(frame)
	require.NoError(t, err)
	var resp domain.PeerResponse
	require.NoError(t, m.Unmarshal(&resp))
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, bytes.Repeat([]byte("q"), 1000), m.Payload)
}

func TestResponder_InvalidRequestCloses(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"not json", `hello`},
		{"wrong type", `{"type":"somethingElse","requestId":"x","request":{"type":"probeRequest"}}`},
		{"no request id", `{"type":"rtcsharePeerRequest","request":{"type":"probeRequest"}}`},
		{"bad request", `{"type":"rtcsharePeerRequest","requestId":"x","request":{"type":"nope"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var closed atomic.Int32
			ch := &recordingChannel{}
			r := NewResponder(ch, fileHandler,
				WithThrottleConfig(fastThrottle),
				WithCloser(func() error { closed.Add(1); return nil }),
			)

			err := r.HandleMessage([]byte(tt.msg))
			assert.ErrorIs(t, err, domain.ErrUnexpectedMessage)
			assert.Equal(t, int32(1), closed.Load())
			assert.Empty(t, ch.messages())

			require.NoError(t, r.Close())
			assert.Equal(t, int32(1), closed.Load())
		})
	}
}

func TestClient_HandleMessage(t *testing.T) {
	c := NewClient(&recordingChannel{}, nil)

	assert.NoError(t, c.HandleMessage([]byte(`{"type":"rtcsharePeerResponse","requestId":"unknown","response":{}}`+"\n")))
	assert.ErrorIs(t, c.HandleMessage([]byte(`{"type":"ping"}`)), domain.ErrUnexpectedMessage)
	assert.ErrorIs(t, c.HandleMessage([]byte(`garbage`)), domain.ErrMalformedFrame)
}

func TestClient_CloseFailsPending(t *testing.T) {
	c := NewClient(&recordingChannel{}, nil)

	errs := make(chan error, 1)
	go func() {
		_, _, err := c.Request(context.Background(), domain.NewProbeRequest())
		errs <- err
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, <-errs, domain.ErrClosed)

	_, _, err := c.Request(context.Background(), domain.NewProbeRequest())
	assert.ErrorIs(t, err, domain.ErrClosed)
}

type fakePeer struct {
	mu      sync.Mutex
	signals []string
	events  PeerEvents
	closed  bool
}

func (p *fakePeer) Signal(signal string) error {
	p.mu.Lock()
	p.signals = append(p.signals, signal)
	p.mu.Unlock()
	if signal == `{"type":"offer"}` {
		p.events.Signal(`{"type":"answer"}`)
	}
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeFactory struct {
	mu    sync.Mutex
	peers map[string]*fakePeer
	fail  bool
}

func (f *fakeFactory) NewPeer(clientID string, events PeerEvents) (Peer, error) {
	if f.fail {
		return nil, errors.New("no webrtc")
	}
	p := &fakePeer{events: events}
	f.mu.Lock()
	if f.peers == nil {
		f.peers = make(map[string]*fakePeer)
	}
	f.peers[clientID] = p
	f.mu.Unlock()
	return p, nil
}

func TestSignalHub(t *testing.T) {
	factory := &fakeFactory{}
	now := time.Unix(1000, 0)
	hub := NewSignalHub(factory, WithHubClock(func() time.Time { return now }), WithIdleTimeout(time.Minute))
	ctx := context.Background()

	resp, err := hub.HandleSignaling(ctx, domain.NewSignalingRequest("c1", `{"type":"offer"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.TypeWebrtcSignalingResponse, resp.Type)
	assert.Equal(t, []string{`{"type":"answer"}`}, resp.Signals)
	assert.Equal(t, 1, hub.Len())

	// polling drains nothing new
	resp, err = hub.HandleSignaling(ctx, domain.NewSignalingRequest("c1", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{}, resp.Signals)

	// signals emitted between polls are delivered on the next one
	factory.peers["c1"].events.Signal("candidate-1")
	resp, err = hub.HandleSignaling(ctx, domain.NewSignalingRequest("c1", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"candidate-1"}, resp.Signals)

	// peer closing itself removes the client
	factory.peers["c1"].events.Closed()
	assert.Equal(t, 0, hub.Len())
}

func TestSignalHub_Expiry(t *testing.T) {
	factory := &fakeFactory{}
	now := time.Unix(1000, 0)
	hub := NewSignalHub(factory, WithHubClock(func() time.Time { return now }), WithIdleTimeout(time.Minute))
	ctx := context.Background()

	_, err := hub.HandleSignaling(ctx, domain.NewSignalingRequest("old", ""))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = hub.HandleSignaling(ctx, domain.NewSignalingRequest("new", ""))
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Len())
	assert.True(t, factory.peers["old"].closed)
	assert.False(t, factory.peers["new"].closed)

	require.NoError(t, hub.Close())
	assert.True(t, factory.peers["new"].closed)
	assert.Equal(t, 0, hub.Len())
}

func TestSignalHub_Errors(t *testing.T) {
	hub := NewSignalHub(&fakeFactory{fail: true})

	_, err := hub.HandleSignaling(context.Background(), domain.NewProbeRequest())
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = hub.HandleSignaling(context.Background(), domain.NewSignalingRequest("c1", ""))
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Len())
}
