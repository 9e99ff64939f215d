package chunked

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/log"
)

// DefaultChunkSize is used when no chunk size is configured.
const DefaultChunkSize = 1000 * 1000

var errEmptyChunk = errors.New("empty chunk")

// Fetcher returns bytes [start, end) of path. It may return fewer bytes
// at the end of the resource.
type Fetcher interface {
	Fetch(ctx context.Context, path string, start, end int64) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string, start, end int64) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, path string, start, end int64) ([]byte, error) {
	return f(ctx, path, start, end)
}

// Observer receives cache events, typically for metrics.
type Observer interface {
	CacheHit()
	ChunkFetched(bytes int)
	FetchFailed()
}

// Option configures a Reader.
type Option func(*Reader)

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(n int64) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithObserver sets an observer for cache events.
func WithObserver(o Observer) Option {
	return func(r *Reader) {
		r.observer = o
	}
}

// WithoutPrefetch disables the background fetch of the next chunk.
func WithoutPrefetch() Option {
	return func(r *Reader) {
		r.prefetch = false
	}
}

// Reader serves byte ranges of one remote resource.
type Reader struct {
	fetcher   Fetcher
	path      string
	chunkSize int64
	prefetch  bool
	logger    log.Logger
	observer  Observer

	mu     sync.RWMutex
	chunks map[int64][]byte
	closed bool
	// end is the index of the first chunk past the resource, or -1
	// until a short or empty chunk reveals it.
	end int64

	inflight singleflight.Group
	init     Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReader creates a Reader for path on fetcher.
func NewReader(fetcher Fetcher, path string, opts ...Option) *Reader {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reader{
		fetcher:   fetcher,
		path:      path,
		chunkSize: DefaultChunkSize,
		prefetch:  true,
		logger:    log.NoopLogger{},
		chunks:    make(map[int64][]byte),
		end:       -1,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.With(r.logger, log.String("path", path))
	return r
}

// Path returns the resource path.
func (r *Reader) Path() string { return r.path }

// ChunkSize returns the chunk size in bytes.
func (r *Reader) ChunkSize() int64 { return r.chunkSize }

// Initialize makes sure the first chunk can be fetched. It runs once;
// concurrent callers share the run and its result.
func (r *Reader) Initialize(ctx context.Context) error {
	return r.init.Do(ctx, func(ctx context.Context) error {
		_, err := r.Chunk(ctx, 0)
		return err
	})
}

// GetRange returns bytes [start, end). The result is shorter than
// requested when the resource ends inside the range. Any failed chunk
// makes the whole call fail with an error matching domain.ErrUnavailable;
// chunks past the end of the resource only shorten the result.
func (r *Reader) GetRange(ctx context.Context, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: invalid range [%d, %d)", domain.ErrUnavailable, start, end)
	}
	if start == end {
		return []byte{}, nil
	}

	first := start / r.chunkSize
	last := (end - 1) / r.chunkSize
	pieces := make([][]byte, last-first+1)

	var g errgroup.Group
	for i := first; i <= last; i++ {
		i := i
		g.Go(func() error {
			c, err := r.Chunk(ctx, i)
			if i > first && errors.Is(err, errEmptyChunk) {
				return nil
			}
			if err != nil {
				return err
			}
			pieces[i-first] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, end-start)
	for k, c := range pieces {
		i := first + int64(k)
		lo, hi := int64(0), int64(len(c))
		if i == first {
			lo = start - i*r.chunkSize
		}
		if i == last && end-i*r.chunkSize < hi {
			hi = end - i*r.chunkSize
		}
		if lo >= hi {
			break
		}
		out = append(out, c[lo:hi]...)
		if int64(len(c)) < r.chunkSize {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: range [%d, %d) beyond end of %s", domain.ErrUnavailable, start, end, r.path)
	}

	r.prefetchChunk(last + 1)
	return out, nil
}

// Chunk returns chunk i, fetching it if needed. The returned slice is
// shared with the cache and must not be modified. A canceled ctx stops
// the wait but not the fetch, which still fills the cache.
func (r *Reader) Chunk(ctx context.Context, i int64) ([]byte, error) {
	if i < 0 {
		return nil, fmt.Errorf("%w: negative chunk index %d", domain.ErrUnavailable, i)
	}
	r.mu.RLock()
	c, ok := r.chunks[i]
	closed := r.closed
	past := r.end >= 0 && i >= r.end
	r.mu.RUnlock()
	if closed {
		return nil, domain.ErrClosed
	}
	if past {
		return nil, &domain.ChunkFetchError{Path: r.path, Index: i, Err: errEmptyChunk}
	}
	if ok {
		if r.observer != nil {
			r.observer.CacheHit()
		}
		return c, nil
	}

	ch := r.inflight.DoChan(strconv.FormatInt(i, 10), func() (interface{}, error) {
		return r.fetchChunk(i)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cached reports whether chunk i is in the cache.
func (r *Reader) Cached(i int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chunks[i]
	return ok
}

// Close cancels background fetches and waits for them to return.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Reader) fetchChunk(i int64) ([]byte, error) {
	r.mu.RLock()
	c, ok := r.chunks[i]
	past := r.end >= 0 && i >= r.end
	r.mu.RUnlock()
	if ok {
		return c, nil
	}
	if past {
		return nil, &domain.ChunkFetchError{Path: r.path, Index: i, Err: errEmptyChunk}
	}

	start := i * r.chunkSize
	data, err := r.fetcher.Fetch(r.ctx, r.path, start, start+r.chunkSize)
	if err == nil && len(data) == 0 {
		r.markEnd(i)
		err = errEmptyChunk
	}
	if err != nil {
		if r.observer != nil {
			r.observer.FetchFailed()
		}
		r.logger.Debug("chunk fetch failed", log.Int64("chunk", i), log.Err(err))
		return nil, &domain.ChunkFetchError{Path: r.path, Index: i, Err: err}
	}
	if int64(len(data)) > r.chunkSize {
		data = data[:r.chunkSize]
	}
	if int64(len(data)) < r.chunkSize {
		r.markEnd(i + 1)
	}

	r.mu.Lock()
	r.chunks[i] = data
	r.mu.Unlock()
	if r.observer != nil {
		r.observer.ChunkFetched(len(data))
	}
	return data, nil
}

// markEnd records that the resource has no chunk at or after end.
func (r *Reader) markEnd(end int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.end < 0 || end < r.end {
		r.end = end
	}
}

func (r *Reader) prefetchChunk(i int64) {
	if !r.prefetch {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || (r.end >= 0 && i >= r.end) {
		return
	}
	if _, ok := r.chunks[i]; ok {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.Chunk(r.ctx, i)
	}()
}
