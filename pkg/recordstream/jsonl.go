package recordstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/chunked"
)

// DefaultJSONLChunkSize is the chunk size for JSONL containers.
const DefaultJSONLChunkSize = 1000 * 1000

// JSONLHeader is the part of a JSONL header every container has.
type JSONLHeader struct {
	RecordByteLengths []int64 `json:"recordByteLengths"`
}

// JSONLClient reads a JSONL record container.
type JSONLClient struct {
	s      *stream
	header json.RawMessage
}

// NewJSONLClient creates a client for path served by fetcher.
func NewJSONLClient(fetcher chunked.Fetcher, path string, opts ...Option) *JSONLClient {
	return &JSONLClient{s: newStream(fetcher, path, DefaultJSONLChunkSize, "jsonl", opts)}
}

// Initialize reads and parses the header line. It runs once.
func (c *JSONLClient) Initialize(ctx context.Context) error {
	return c.s.initialize(ctx, func(ctx context.Context) (Layout, error) {
		line, dataStart, err := readLine(ctx, c.s.reader, 0)
		if err != nil {
			return Layout{}, err
		}
		var h JSONLHeader
		if err := json.Unmarshal(line, &h); err != nil {
			return Layout{}, fmt.Errorf("parse header: %w", err)
		}
		if h.RecordByteLengths == nil {
			return Layout{}, fmt.Errorf("parse header: missing recordByteLengths")
		}
		c.header = json.RawMessage(line)
		return NewLayout(dataStart, h.RecordByteLengths, 1), nil
	})
}

// Header returns the raw header record.
func (c *JSONLClient) Header(ctx context.Context) (json.RawMessage, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c.header, nil
}

// DecodeHeader unmarshals the header record into v.
func (c *JSONLClient) DecodeHeader(ctx context.Context, v interface{}) error {
	h, err := c.Header(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(h, v)
}

// NumFrames returns the number of records.
func (c *JSONLClient) NumFrames(ctx context.Context) (int, error) {
	if err := c.Initialize(ctx); err != nil {
		return 0, err
	}
	return c.s.layout.NumRecords(), nil
}

// FrameBytes returns the raw bytes of record i, without the delimiter.
func (c *JSONLClient) FrameBytes(ctx context.Context, i int) ([]byte, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c.s.frameBytes(ctx, i)
}

// Frame unmarshals record i into v.
func (c *JSONLClient) Frame(ctx context.Context, i int, v interface{}) error {
	b, err := c.FrameBytes(ctx, i)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: record %d: %v", domain.ErrUnavailable, i, err)
	}
	return nil
}

// Close releases the underlying reader.
func (c *JSONLClient) Close() error {
	return c.s.close()
}
