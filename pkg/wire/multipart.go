package wire

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/rtcshare/internal/domain"
)

const partPrefix = "/multipart/"

const (
	// MaxParts is the largest part count a marker may announce.
	MaxParts = 1 << 20
	// MaxMarkerSize bounds the marker Fragment prepends to each part:
	// prefix, a uuid, three separators and two numbers of at most
	// seven digits.
	MaxMarkerSize = len(partPrefix) + 36 + 3 + 2*7
)

// newPartID returns a multipart id. It must never contain '/'.
var newPartID = func() string {
	return uuid.NewString()
}

// Part is one parsed multipart fragment.
type Part struct {
	ID       string
	Index    int
	NumParts int
	Data     []byte
}

// Fragment splits frame into parts of at most maxPartSize payload bytes.
// A frame that already fits is returned unmodified as the only element.
func Fragment(frame []byte, maxPartSize int) ([][]byte, error) {
	if maxPartSize < 1 {
		return nil, fmt.Errorf("fragment: max part size %d must be positive", maxPartSize)
	}
	if len(frame) <= maxPartSize {
		return [][]byte{frame}, nil
	}

	numParts := (len(frame) + maxPartSize - 1) / maxPartSize
	if numParts > MaxParts {
		return nil, fmt.Errorf("fragment: %d parts exceed %d", numParts, MaxParts)
	}
	id := newPartID()
	parts := make([][]byte, 0, numParts)
	for i := 0; i < numParts; i++ {
		end := (i + 1) * maxPartSize
		if end > len(frame) {
			end = len(frame)
		}
		parts = append(parts, encodePart(id, i, numParts, frame[i*maxPartSize:end]))
	}
	return parts, nil
}

func encodePart(id string, index, numParts int, data []byte) []byte {
	marker := partPrefix + id + "/" + strconv.Itoa(index) + "/" + strconv.Itoa(numParts) + "/"
	out := make([]byte, 0, len(marker)+len(data))
	out = append(out, marker...)
	return append(out, data...)
}

// IsPart reports whether msg carries a multipart marker.
func IsPart(msg []byte) bool {
	return bytes.HasPrefix(msg, []byte(partPrefix))
}

// ParsePart reads the marker fields of msg. Data aliases msg.
func ParsePart(msg []byte) (Part, error) {
	if !IsPart(msg) {
		return Part{}, fmt.Errorf("%w: missing multipart marker", domain.ErrMalformedFrame)
	}
	rest := msg[len(partPrefix):]
	var fields [3]string
	for i := range fields {
		j := bytes.IndexByte(rest, '/')
		if j < 0 {
			return Part{}, fmt.Errorf("%w: truncated multipart marker", domain.ErrMalformedFrame)
		}
		fields[i] = string(rest[:j])
		rest = rest[j+1:]
	}

	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return Part{}, fmt.Errorf("%w: part index %q", domain.ErrMalformedFrame, fields[1])
	}
	numParts, err := strconv.Atoi(fields[2])
	if err != nil {
		return Part{}, fmt.Errorf("%w: part count %q", domain.ErrMalformedFrame, fields[2])
	}
	if numParts > MaxParts {
		return Part{}, fmt.Errorf("%w: part count %d exceeds %d", domain.ErrMalformedFrame, numParts, MaxParts)
	}
	if fields[0] == "" || numParts < 1 || index < 0 || index >= numParts {
		return Part{}, fmt.Errorf("%w: part %d of %d for id %q", domain.ErrMalformedFrame, index, numParts, fields[0])
	}
	return Part{ID: fields[0], Index: index, NumParts: numParts, Data: rest}, nil
}

type group struct {
	numParts int
	parts    map[int][]byte
}

// Reassembler collects multipart fragments per id. Groups that never
// complete are kept until evicted by WithMaxPendingGroups, which is off
// by default.
type Reassembler struct {
	mu        sync.Mutex
	groups    map[string]*group
	order     []string
	maxGroups int
	onEvict   func(id string, received, numParts int)
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithMaxPendingGroups bounds the number of incomplete groups. When a new
// group would exceed n, the oldest incomplete group is dropped.
func WithMaxPendingGroups(n int) ReassemblerOption {
	return func(r *Reassembler) {
		r.maxGroups = n
	}
}

// WithEvictHandler is called for every group dropped by the pending limit.
func WithEvictHandler(fn func(id string, received, numParts int)) ReassemblerOption {
	return func(r *Reassembler) {
		r.onEvict = fn
	}
}

// NewReassembler creates an empty Reassembler.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{groups: make(map[string]*group)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add consumes one inbound message. Unmarked messages are returned as-is
// with ok set. For a part, ok is set only when it completes its group, in
// which case the reassembled frame is returned and the group discarded.
// A part for an index already received replaces the earlier one.
func (r *Reassembler) Add(msg []byte) (frame []byte, ok bool, err error) {
	if !IsPart(msg) {
		return msg, true, nil
	}
	p, err := ParsePart(msg)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	g, exists := r.groups[p.ID]
	if !exists {
		g = &group{numParts: p.NumParts, parts: make(map[int][]byte)}
		r.groups[p.ID] = g
		r.order = append(r.order, p.ID)
		r.evictLocked()
	} else if g.numParts != p.NumParts {
		return nil, false, fmt.Errorf("%w: id %q announced %d parts, got %d", domain.ErrMalformedFrame, p.ID, g.numParts, p.NumParts)
	}
	g.parts[p.Index] = append([]byte(nil), p.Data...)

	if len(g.parts) < g.numParts {
		return nil, false, nil
	}

	size := 0
	for _, d := range g.parts {
		size += len(d)
	}
	frame = make([]byte, 0, size)
	for i := 0; i < g.numParts; i++ {
		frame = append(frame, g.parts[i]...)
	}
	r.removeLocked(p.ID)
	return frame, true, nil
}

// Pending returns the number of incomplete groups.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (r *Reassembler) evictLocked() {
	for r.maxGroups > 0 && len(r.groups) > r.maxGroups {
		id := r.order[0]
		g := r.groups[id]
		r.removeLocked(id)
		if r.onEvict != nil && g != nil {
			r.onEvict(id, len(g.parts), g.numParts)
		}
	}
}

func (r *Reassembler) removeLocked(id string) {
	delete(r.groups, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
