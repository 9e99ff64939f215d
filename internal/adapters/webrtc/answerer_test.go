package webrtc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/peer"
)

type signalSink struct {
	mu      sync.Mutex
	signals []string
}

func (s *signalSink) add(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

func (s *signalSink) answer() (signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range s.signals {
		var sig signal
		if json.Unmarshal([]byte(raw), &sig) == nil && sig.Type == "answer" {
			return sig, true
		}
	}
	return signal{}, false
}

var noHandler = ports.RequestHandlerFunc(nil)

func TestAnswerer_AnswersOffer(t *testing.T) {
	a := NewAnswerer([]string{}, noHandler, nil)
	sink := &signalSink{}

	p, err := a.NewPeer("client-1", peer.PeerEvents{Signal: sink.add})
	require.NoError(t, err)
	defer p.Close()

	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()
	_, err = offerer.CreateDataChannel("rtcshare", nil)
	require.NoError(t, err)
	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))

	raw, err := json.Marshal(signal{Type: "offer", SDP: offer.SDP})
	require.NoError(t, err)
	require.NoError(t, p.Signal(string(raw)))

	var answer signal
	require.Eventually(t, func() bool {
		var ok bool
		answer, ok = sink.answer()
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, answer.SDP)
	assert.NoError(t, offerer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}))
}

func TestPeer_SignalErrors(t *testing.T) {
	a := NewAnswerer([]string{}, noHandler, nil)
	p, err := a.NewPeer("client-2", peer.PeerEvents{})
	require.NoError(t, err)
	defer p.Close()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"unknown", `{"type":"pranswer-ish"}`},
		{"bad offer", `{"type":"offer","sdp":"garbage"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, p.Signal(tt.raw))
		})
	}
}

func TestAnswerer_WithSignalHub(t *testing.T) {
	a := NewAnswerer([]string{}, noHandler, nil)
	hub := peer.NewSignalHub(a)
	defer hub.Close()

	resp, err := hub.HandleSignaling(context.Background(), domain.NewSignalingRequest("c", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.TypeWebrtcSignalingResponse, resp.Type)
	assert.Equal(t, 1, hub.Len())
	assert.Equal(t, 0, a.Responders())
}
