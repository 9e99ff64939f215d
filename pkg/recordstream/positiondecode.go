package recordstream

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/chunked"
)

// Bin is one spatial bin of a position decode field.
type Bin struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PositionDecodeFieldHeader is the header of a position decode field container.
type PositionDecodeFieldHeader struct {
	RecordByteLengths []int64 `json:"recordByteLengths"`
	Bins              []Bin   `json:"bins"`
	MaxValue          float64 `json:"maxValue"`
}

// PositionDecodeFieldFrame holds sparse bin values for one video frame.
type PositionDecodeFieldFrame struct {
	Indices []uint16
	Values  []uint16
}

type positionDecodeFieldRecord struct {
	I string `json:"i"`
	V string `json:"v"`
}

// PositionDecodeFieldClient reads position decode field frames.
type PositionDecodeFieldClient struct {
	jsonl *JSONLClient
}

// NewPositionDecodeFieldClient creates a client for path served by fetcher.
func NewPositionDecodeFieldClient(fetcher chunked.Fetcher, path string, opts ...Option) *PositionDecodeFieldClient {
	return &PositionDecodeFieldClient{jsonl: NewJSONLClient(fetcher, path, opts...)}
}

// Header returns the parsed header.
func (c *PositionDecodeFieldClient) Header(ctx context.Context) (PositionDecodeFieldHeader, error) {
	var h PositionDecodeFieldHeader
	if err := c.jsonl.DecodeHeader(ctx, &h); err != nil {
		return PositionDecodeFieldHeader{}, err
	}
	return h, nil
}

// NumFrames returns the number of frames.
func (c *PositionDecodeFieldClient) NumFrames(ctx context.Context) (int, error) {
	return c.jsonl.NumFrames(ctx)
}

// Frame decodes frame i.
func (c *PositionDecodeFieldClient) Frame(ctx context.Context, i int) (PositionDecodeFieldFrame, error) {
	var rec positionDecodeFieldRecord
	if err := c.jsonl.Frame(ctx, i, &rec); err != nil {
		return PositionDecodeFieldFrame{}, err
	}
	indices, err := decodeUint16s(rec.I)
	if err != nil {
		return PositionDecodeFieldFrame{}, fmt.Errorf("%w: record %d indices: %v", domain.ErrUnavailable, i, err)
	}
	values, err := decodeUint16s(rec.V)
	if err != nil {
		return PositionDecodeFieldFrame{}, fmt.Errorf("%w: record %d values: %v", domain.ErrUnavailable, i, err)
	}
	return PositionDecodeFieldFrame{Indices: indices, Values: values}, nil
}

// Close releases the underlying reader.
func (c *PositionDecodeFieldClient) Close() error {
	return c.jsonl.Close()
}

// decodeUint16s decodes base64 little-endian uint16s.
func decodeUint16s(s string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd byte length %d", len(raw))
	}
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return out, nil
}
