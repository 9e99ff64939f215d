package recordstream

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bft-labs/rtcshare/pkg/chunked"
)

// Layout maps record indices to byte ranges.
type Layout struct {
	positions []int64
	delimiter int64
}

// NewLayout places records of the given lengths back to back starting at
// dataStart, each followed by delimiter bytes. The last position is a
// sentinel at the end of the final record and its delimiter.
func NewLayout(dataStart int64, lengths []int64, delimiter int64) Layout {
	positions := make([]int64, 0, len(lengths)+1)
	pos := dataStart
	for _, n := range lengths {
		positions = append(positions, pos)
		pos += n + delimiter
	}
	positions = append(positions, pos)
	return Layout{positions: positions, delimiter: delimiter}
}

// NumRecords returns the number of addressable records.
func (l Layout) NumRecords() int {
	if len(l.positions) == 0 {
		return 0
	}
	return len(l.positions) - 1
}

// Range returns the byte range [start, end) of record i, excluding its
// delimiter.
func (l Layout) Range(i int) (start, end int64, ok bool) {
	if i < 0 || i+1 >= len(l.positions) {
		return 0, 0, false
	}
	return l.positions[i], l.positions[i+1] - l.delimiter, true
}

// readLine returns the bytes from offset up to the next newline and the
// offset just past that newline, fetching chunks as far as needed.
func readLine(ctx context.Context, r *chunked.Reader, offset int64) ([]byte, int64, error) {
	cs := r.ChunkSize()
	first := offset / cs
	var line []byte
	for i := first; ; i++ {
		c, err := r.Chunk(ctx, i)
		if err != nil {
			return nil, 0, fmt.Errorf("read header line: %w", err)
		}
		last := int64(len(c)) < cs
		if i == first {
			lo := offset - i*cs
			if lo > int64(len(c)) {
				return nil, 0, fmt.Errorf("read header line: offset %d beyond end of data", offset)
			}
			c = c[lo:]
		}
		if j := bytes.IndexByte(c, '\n'); j >= 0 {
			line = append(line, c[:j]...)
			return line, offset + int64(len(line)) + 1, nil
		}
		line = append(line, c...)
		if last {
			return nil, 0, fmt.Errorf("read header line: no newline before end of data")
		}
	}
}
