package rtcshare_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rtcshare/internal/adapters/httpapi"
	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/relay"
	"github.com/bft-labs/rtcshare/pkg/rtcshare"
)

type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, fields ...rtcshare.LogField) { l.log("DEBUG", msg) }
func (l *testLogger) Info(msg string, fields ...rtcshare.LogField)  { l.log("INFO", msg) }
func (l *testLogger) Warn(msg string, fields ...rtcshare.LogField)  { l.log("WARN", msg) }
func (l *testLogger) Error(msg string, fields ...rtcshare.LogField) { l.log("ERROR", msg) }

func (l *testLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("[%s] %s", level, msg))
}

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type recordingHandler struct {
	rtcshare.BaseEventHandler

	mu     sync.Mutex
	states []rtcshare.StateChangeEvent
	limits []rtcshare.LimitChangeEvent
}

func (h *recordingHandler) OnStateChange(e rtcshare.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e)
}

func (h *recordingHandler) OnLimitChange(e rtcshare.LimitChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limits = append(h.limits, e)
}

func (h *recordingHandler) currents() []rtcshare.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []rtcshare.State
	for _, e := range h.states {
		out = append(out, e.Current)
	}
	return out
}

// idleSocket never delivers a message; it records writes until closed.
type idleSocket struct {
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func (s *idleSocket) ReadMessage() (ports.MessageKind, []byte, error) {
	<-s.closed
	return 0, nil, io.EOF
}

func (s *idleSocket) WriteMessage(kind ports.MessageKind, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, msg)
	return nil
}

func (s *idleSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type recordingDialer struct {
	mu      sync.Mutex
	urls    []string
	sockets []*idleSocket
}

func (d *recordingDialer) Dial(ctx context.Context, url string) (ports.Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &idleSocket{closed: make(chan struct{})}
	d.urls = append(d.urls, url)
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *recordingDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func sharedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello rtcshare"), 0o644))
	return dir
}

func localConfig(t *testing.T) rtcshare.Config {
	t.Helper()
	cfg := rtcshare.DefaultConfig(sharedDir(t))
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNewValidatesConfig(t *testing.T) {
	dir := sharedDir(t)
	file := filepath.Join(dir, "notes.txt")

	tests := []struct {
		name string
		cfg  rtcshare.Config
	}{
		{"missing dir", rtcshare.Config{ListenAddr: "127.0.0.1:0"}},
		{"dir does not exist", rtcshare.Config{Dir: filepath.Join(dir, "nope"), ListenAddr: "127.0.0.1:0"}},
		{"dir is a file", rtcshare.Config{Dir: file, ListenAddr: "127.0.0.1:0"}},
		{"nothing enabled", rtcshare.Config{Dir: dir}},
		{"bad proxy url", rtcshare.Config{Dir: dir, EnableRelay: true, ProxyURL: "ftp://proxy"}},
		{"tiny messages", rtcshare.Config{Dir: dir, EnableRelay: true, MaxMessageBytes: 10}},
		{"backoff inverted", rtcshare.Config{Dir: dir, ListenAddr: "127.0.0.1:0", ReconnectInitial: time.Minute, ReconnectMax: time.Second}},
		{"negative pending groups", rtcshare.Config{Dir: dir, ListenAddr: "127.0.0.1:0", MaxPendingGroups: -1}},
		{"service addr without port", rtcshare.Config{Dir: dir, ListenAddr: "127.0.0.1:0", ServiceAddr: "localhost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rtcshare.New(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := rtcshare.DefaultConfig("/share")

	assert.Equal(t, "/share", cfg.Dir)
	assert.Equal(t, rtcshare.DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, relay.DefaultProxyURL, cfg.ProxyURL)
	assert.Equal(t, relay.DefaultSecret, cfg.ProxySecret)
	assert.Equal(t, 32000, cfg.MaxMessageBytes)
	assert.Equal(t, 1000000, cfg.MaxBytesPerPeriod)
	assert.Equal(t, 125*time.Millisecond, cfg.Period)
	assert.Equal(t, 20*time.Second, cfg.KeepaliveInterval)
	assert.False(t, cfg.EnableRelay)
}

func TestServiceServesHTTP(t *testing.T) {
	handler := &recordingHandler{}
	reg := prometheus.NewRegistry()
	svc, err := rtcshare.New(localConfig(t),
		rtcshare.WithEventHandler(handler),
		rtcshare.WithMetrics(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, rtcshare.StateStopped, svc.Status())

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, rtcshare.StateRunning, svc.Status())
	require.NotNil(t, svc.Addr())
	assert.Empty(t, svc.PublicURL())
	assert.Equal(t, relay.StateClosed, svc.RelayState())

	base := "http://" + svc.Addr().String()
	client := httpapi.NewClient(base, http.DefaultClient)
	ctx := context.Background()

	t.Run("probe", func(t *testing.T) {
		resp, _, err := client.Request(ctx, domain.NewProbeRequest())
		require.NoError(t, err)
		assert.Equal(t, domain.TypeProbeResponse, resp.Type)
		assert.Equal(t, domain.ProtocolVersion, resp.ProtocolVersion)
		assert.False(t, resp.Proxy)
	})

	t.Run("read file range", func(t *testing.T) {
		resp, payload, err := client.Request(ctx, domain.NewReadFileRequest("notes.txt", 0, 5))
		require.NoError(t, err)
		assert.Equal(t, domain.TypeReadFileResponse, resp.Type)
		assert.Equal(t, "hello", string(payload))
	})

	t.Run("signaling poll creates no signals", func(t *testing.T) {
		resp, _, err := client.Request(ctx, domain.NewSignalingRequest("client-1", ""))
		require.NoError(t, err)
		assert.Equal(t, domain.TypeWebrtcSignalingResponse, resp.Type)
		assert.Equal(t, 1, svc.Peers())
	})

	t.Run("metrics", func(t *testing.T) {
		res, err := http.Get(base + "/metrics")
		require.NoError(t, err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, string(body), "rtcshare_multipart_groups_evicted_total")
	})

	assert.ErrorIs(t, svc.Start(ctx), domain.ErrAlreadyRunning)

	require.NoError(t, svc.Stop())
	assert.Equal(t, rtcshare.StateStopped, svc.Status())
	assert.Equal(t, 0, svc.Peers())
	assert.ErrorIs(t, svc.Stop(), domain.ErrNotRunning)

	assert.Equal(t, []rtcshare.State{
		rtcshare.StateStarting, rtcshare.StateRunning,
		rtcshare.StateStopping, rtcshare.StateStopped,
	}, handler.currents())
}

func TestServiceRestart(t *testing.T) {
	svc, err := rtcshare.New(localConfig(t))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Start(context.Background()))
		client := httpapi.NewClient("http://"+svc.Addr().String(), http.DefaultClient)
		_, _, err := client.Request(context.Background(), domain.NewProbeRequest())
		require.NoError(t, err)
		require.NoError(t, svc.Stop())
	}
}

func TestServiceListenFailure(t *testing.T) {
	first, err := rtcshare.New(localConfig(t))
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	cfg := localConfig(t)
	cfg.ListenAddr = first.Addr().String()
	second, err := rtcshare.New(cfg)
	require.NoError(t, err)

	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, rtcshare.StateCrashed, second.Status())
}

func TestServiceRelay(t *testing.T) {
	cfg := rtcshare.DefaultConfig(sharedDir(t))
	cfg.ListenAddr = ""
	cfg.EnableRelay = true
	cfg.ProxyURL = "https://proxy.example.com"

	dialer := &recordingDialer{}
	logger := &testLogger{}
	svc, err := rtcshare.New(cfg, rtcshare.WithDialer(dialer), rtcshare.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	require.Eventually(t, func() bool {
		return svc.RelayState() == relay.StateWaitingAck
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "wss://proxy.example.com", dialer.dialed()[0])

	_, err = os.Stat(filepath.Join(cfg.Dir, ".rtcshare.yaml"))
	require.NoError(t, err, "identity file should be created on first start")
	assert.True(t, strings.HasPrefix(svc.PublicURL(), "https://proxy.example.com/s/"))
	assert.Len(t, strings.TrimPrefix(svc.PublicURL(), "https://proxy.example.com/s/"), 20)
	assert.True(t, logger.contains("sharing through relay"))

	first := svc.PublicURL()
	require.NoError(t, svc.Stop())
	assert.Equal(t, relay.StateClosed, svc.RelayState())

	again, err := rtcshare.New(cfg, rtcshare.WithDialer(&recordingDialer{}))
	require.NoError(t, err)
	require.NoError(t, again.Start(context.Background()))
	defer again.Stop()
	assert.Equal(t, first, again.PublicURL(), "identity should be reused")
}

func TestServiceSetLimit(t *testing.T) {
	handler := &recordingHandler{}
	svc, err := rtcshare.New(localConfig(t), rtcshare.WithEventHandler(handler))
	require.NoError(t, err)

	svc.SetLimit(5000, time.Second)

	require.Len(t, handler.limits, 1)
	assert.Equal(t, rtcshare.LimitChangeEvent{MaxBytesPerPeriod: 5000, Period: time.Second}, handler.limits[0])
}

func TestHandlerRoutesSignaling(t *testing.T) {
	files := ports.RequestHandlerFunc(func(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
		return domain.Response{Type: domain.TypeReadFileResponse}, []byte("data"), nil
	})
	signaling := signalerFunc(func(ctx context.Context, req domain.Request) (domain.Response, error) {
		return domain.Response{Type: domain.TypeWebrtcSignalingResponse, Signals: []string{req.ClientID}}, nil
	})
	services := serviceQuerierFunc(func(ctx context.Context, name string, q json.RawMessage) (json.RawMessage, []byte, error) {
		return json.RawMessage(`{"service":"` + name + `"}`), []byte("frames"), nil
	})
	h := rtcshare.NewHandler(files, signaling, services)

	tests := []struct {
		name        string
		req         domain.Request
		wantType    string
		wantPayload string
	}{
		{"file request", domain.NewReadFileRequest("a.txt", -1, -1), domain.TypeReadFileResponse, "data"},
		{"probe", domain.NewProbeRequest(), domain.TypeReadFileResponse, "data"},
		{"signaling", domain.NewSignalingRequest("c1", ""), domain.TypeWebrtcSignalingResponse, ""},
		{"service query", domain.NewServiceQueryRequest("video", json.RawMessage(`{}`)), domain.TypeServiceQueryResponse, "frames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, payload, err := h.HandleRequest(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, tt.wantPayload, string(payload))
		})
	}
}

func TestHandlerRejectsUnconfiguredRoutes(t *testing.T) {
	files := ports.RequestHandlerFunc(func(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
		return domain.Response{Type: domain.TypeProbeResponse}, nil, nil
	})
	h := rtcshare.NewHandler(files, nil, nil)

	tests := []struct {
		name string
		req  domain.Request
	}{
		{"signaling", domain.NewSignalingRequest("c1", "")},
		{"service query", domain.NewServiceQueryRequest("video", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.HandleRequest(context.Background(), tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
		})
	}
}

// serviceProgram answers every connection on a loopback port with reply,
// after reading the request line.
func serviceProgram(t *testing.T, reply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := bufio.NewReader(conn).ReadBytes('\n'); err != nil {
					return
				}
				_, _ = io.WriteString(conn, reply)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestServiceForwardsServiceQueries(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		wantResult  string
		wantPayload string
		wantErr     string
	}{
		{name: "result and data", reply: "{\"info\":{\"fps\":30}}\nframes", wantResult: `{"info":{"fps":30}}`, wantPayload: "frames"},
		{name: "service error", reply: "\nno such service", wantErr: "no such service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := localConfig(t)
			cfg.ServiceAddr = serviceProgram(t, tt.reply)
			svc, err := rtcshare.New(cfg)
			require.NoError(t, err)
			require.NoError(t, svc.Start(context.Background()))
			defer svc.Stop()

			client := httpapi.NewClient("http://"+svc.Addr().String(), http.DefaultClient)
			resp, payload, err := client.Request(context.Background(),
				domain.NewServiceQueryRequest("video", json.RawMessage(`{"type":"get_video_info"}`)))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TypeServiceQueryResponse, resp.Type)
			assert.JSONEq(t, tt.wantResult, string(resp.Result))
			assert.Equal(t, tt.wantPayload, string(payload))
		})
	}
}

type serviceQuerierFunc func(ctx context.Context, name string, q json.RawMessage) (json.RawMessage, []byte, error)

func (f serviceQuerierFunc) QueryService(ctx context.Context, name string, q json.RawMessage) (json.RawMessage, []byte, error) {
	return f(ctx, name, q)
}

type signalerFunc func(ctx context.Context, req domain.Request) (domain.Response, error)

func (f signalerFunc) HandleSignaling(ctx context.Context, req domain.Request) (domain.Response, error) {
	return f(ctx, req)
}
