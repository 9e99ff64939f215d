// Package servicequery forwards serviceQueryRequest messages to a program
// listening on a loopback TCP port.
//
// Each query opens one connection. The request is a single JSON line:
//
//	{"type":"serviceQuery","serviceName":...,"query":...,"dir":...}
//
// The program answers with a frame in the wire format (JSON result, a
// newline, then binary data) and closes the connection. A reply that
// starts with the newline carries an error message instead of a result.
package servicequery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// DefaultDialTimeout bounds connecting to the service program.
const DefaultDialTimeout = 5 * time.Second

// ErrNoReply is returned when the service program closes the connection
// without writing anything.
var ErrNoReply = errors.New("rtcshare: service sent no reply")

type query struct {
	Type        string          `json:"type"`
	ServiceName string          `json:"serviceName"`
	Query       json.RawMessage `json:"query"`
	Dir         string          `json:"dir"`
}

// Forwarder implements ports.ServiceQuerier.
type Forwarder struct {
	addr   string
	dir    string
	dialer net.Dialer
	logger log.Logger
}

// NewForwarder creates a Forwarder for the program at addr. dir is sent
// with every query so the program can resolve paths in the shared
// directory.
func NewForwarder(addr, dir string, logger log.Logger) *Forwarder {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Forwarder{
		addr:   addr,
		dir:    dir,
		dialer: net.Dialer{Timeout: DefaultDialTimeout},
		logger: logger,
	}
}

// Addr returns the address of the service program.
func (f *Forwarder) Addr() string {
	return f.addr
}

// QueryService sends q to the service named name and returns its result
// and binary data. Errors reported by the program are *domain.RemoteError.
func (f *Forwarder) QueryService(ctx context.Context, name string, q json.RawMessage) (json.RawMessage, []byte, error) {
	if len(q) == 0 {
		q = json.RawMessage("null")
	}
	line, err := json.Marshal(query{Type: "serviceQuery", ServiceName: name, Query: q, Dir: f.dir})
	if err != nil {
		return nil, nil, fmt.Errorf("encode service query: %w", err)
	}
	line = append(line, '\n')

	conn, err := f.dialer.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial service %s: %w", name, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	start := time.Now()
	if _, err := conn.Write(line); err != nil {
		return nil, nil, fmt.Errorf("send service query: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("read service reply: %w", err)
	}
	f.logger.Debug("service query",
		log.String("service", name),
		log.Int("reply_bytes", len(reply)),
		log.Duration("took", time.Since(start)),
	)
	return parseReply(reply)
}

func parseReply(reply []byte) (json.RawMessage, []byte, error) {
	if len(reply) == 0 {
		return nil, nil, ErrNoReply
	}
	if reply[0] == '\n' {
		return nil, nil, &domain.RemoteError{Message: string(bytes.TrimSpace(reply[1:]))}
	}
	msg, err := wire.Decode(reply)
	if err != nil {
		return nil, nil, fmt.Errorf("service reply: %w", err)
	}
	return msg.Header, msg.Payload, nil
}
