package recordstream

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/chunked"
)

// QJB1 container constants.
const (
	QJB1Magic            = "qjb1.ecv9vh5lt\n"
	DefaultQJB1ChunkSize = 4 * 1000 * 1000

	// maxPlausibleFrameSize catches size tables written big-endian.
	maxPlausibleFrameSize = 10 * 1000 * 1000
)

// QJB1Header describes a QJB1 video frame container. The misspelt
// "video_heigth" key is what writers emit.
type QJB1Header struct {
	VideoWidth      int     `json:"video_width"`
	VideoHeight     int     `json:"video_heigth"`
	FramesPerSecond float64 `json:"frames_per_second"`
	Quality         float64 `json:"quality"`
	Format          string  `json:"format"`
	NumFrames       int     `json:"num_frames"`
}

// QJB1Client reads frames from a QJB1 container.
type QJB1Client struct {
	s      *stream
	header QJB1Header
}

// NewQJB1Client creates a client for path served by fetcher.
func NewQJB1Client(fetcher chunked.Fetcher, path string, opts ...Option) *QJB1Client {
	return &QJB1Client{s: newStream(fetcher, path, DefaultQJB1ChunkSize, "qjb1", opts)}
}

// Initialize checks the magic line, parses the header and the frame size
// table. It runs once.
func (c *QJB1Client) Initialize(ctx context.Context) error {
	return c.s.initialize(ctx, func(ctx context.Context) (Layout, error) {
		magic, err := c.s.reader.GetRange(ctx, 0, int64(len(QJB1Magic)))
		if err != nil {
			return Layout{}, fmt.Errorf("read magic: %w", err)
		}
		if !bytes.Equal(magic, []byte(QJB1Magic)) {
			return Layout{}, fmt.Errorf("not a qjb1 container: unexpected initial text %q", magic)
		}

		line, tableStart, err := readLine(ctx, c.s.reader, int64(len(QJB1Magic)))
		if err != nil {
			return Layout{}, err
		}
		var h QJB1Header
		if err := json.Unmarshal(line, &h); err != nil {
			return Layout{}, fmt.Errorf("parse header: %w", err)
		}
		if h.NumFrames < 0 {
			return Layout{}, fmt.Errorf("parse header: negative num_frames %d", h.NumFrames)
		}

		sizes, err := c.readSizeTable(ctx, tableStart, h.NumFrames)
		if err != nil {
			return Layout{}, err
		}
		c.header = h
		return NewLayout(tableStart+4*int64(h.NumFrames), sizes, 0), nil
	})
}

func (c *QJB1Client) readSizeTable(ctx context.Context, start int64, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	table, err := c.s.reader.GetRange(ctx, start, start+4*int64(n))
	if err != nil {
		return nil, fmt.Errorf("read frame sizes: %w", err)
	}
	if len(table) != 4*n {
		return nil, fmt.Errorf("read frame sizes: got %d bytes, want %d", len(table), 4*n)
	}
	sizes := make([]int64, n)
	for i := range sizes {
		sizes[i] = int64(binary.LittleEndian.Uint32(table[4*i:]))
	}
	if sizes[0] > maxPlausibleFrameSize {
		return nil, fmt.Errorf("%w: first frame size %d (big-endian reading %d)",
			domain.ErrEndianness, sizes[0], binary.BigEndian.Uint32(table))
	}
	return sizes, nil
}

// Header returns the parsed header.
func (c *QJB1Client) Header(ctx context.Context) (QJB1Header, error) {
	if err := c.Initialize(ctx); err != nil {
		return QJB1Header{}, err
	}
	return c.header, nil
}

// NumFrames returns the number of frames.
func (c *QJB1Client) NumFrames(ctx context.Context) (int, error) {
	if err := c.Initialize(ctx); err != nil {
		return 0, err
	}
	return c.s.layout.NumRecords(), nil
}

// Frame returns the encoded image of frame i.
func (c *QJB1Client) Frame(ctx context.Context, i int) ([]byte, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c.s.frameBytes(ctx, i)
}

// Close releases the underlying reader.
func (c *QJB1Client) Close() error {
	return c.s.close()
}
