// Package websocket implements ports.Dialer and ports.Socket with
// gorilla/websocket.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/rtcshare/internal/ports"
)

// Options configures the dialer.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxMessageSize limits inbound messages; zero means no limit.
	MaxMessageSize int64
	Headers        http.Header
}

// DefaultOptions returns the options used for relay connections.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     30 * time.Second,
		MaxMessageSize:   64 << 20,
	}
}

// Dialer implements ports.Dialer.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewDialer creates a Dialer.
func NewDialer(opts Options) *Dialer {
	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// Dial opens a websocket to url.
func (d *Dialer) Dial(ctx context.Context, url string) (ports.Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.opts.Headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(d.opts.MaxMessageSize)
	}
	return NewSocket(conn, d.opts.WriteTimeout), nil
}

// Socket adapts a *websocket.Conn to ports.Socket. Writes are
// serialized; gorilla allows one concurrent writer only.
type Socket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSocket wraps conn.
func NewSocket(conn *websocket.Conn, writeTimeout time.Duration) *Socket {
	return &Socket{conn: conn, writeTimeout: writeTimeout}
}

// ReadMessage reads the next text or binary message.
func (s *Socket) ReadMessage() (ports.MessageKind, []byte, error) {
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch typ {
		case websocket.TextMessage:
			return ports.TextMessage, data, nil
		case websocket.BinaryMessage:
			return ports.BinaryMessage, data, nil
		}
	}
}

// WriteMessage writes one message.
func (s *Socket) WriteMessage(kind ports.MessageKind, msg []byte) error {
	typ := websocket.BinaryMessage
	if kind == ports.TextMessage {
		typ = websocket.TextMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(typ, msg)
}

// Close sends a close frame, best effort, and closes the connection.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

var _ ports.Dialer = (*Dialer)(nil)
