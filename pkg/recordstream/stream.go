package recordstream

import (
	"context"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/chunked"
	"github.com/bft-labs/rtcshare/pkg/log"
)

// Option configures a record stream client.
type Option func(*options)

type options struct {
	chunkSize  int64
	logger     log.Logger
	readerOpts []chunked.Option
}

// WithChunkSize overrides the variant's default chunk size.
func WithChunkSize(n int64) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReaderOptions passes options to the underlying chunked.Reader.
func WithReaderOptions(opts ...chunked.Option) Option {
	return func(o *options) {
		o.readerOpts = append(o.readerOpts, opts...)
	}
}

// stream holds what every variant shares: the reader, the one-time
// header parse and the resulting layout.
type stream struct {
	reader *chunked.Reader
	logger log.Logger
	once   chunked.Once
	layout Layout
}

func newStream(fetcher chunked.Fetcher, path string, defaultChunkSize int64, kind string, opts []Option) *stream {
	o := options{chunkSize: defaultChunkSize, logger: log.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.With(o.logger, log.String("component", "recordstream"), log.String("kind", kind))
	readerOpts := append([]chunked.Option{chunked.WithChunkSize(o.chunkSize), chunked.WithLogger(logger)}, o.readerOpts...)
	return &stream{
		reader: chunked.NewReader(fetcher, path, readerOpts...),
		logger: logger,
	}
}

// initialize runs parse once. A failure is logged and kept.
func (s *stream) initialize(ctx context.Context, parse func(context.Context) (Layout, error)) error {
	return s.once.Do(ctx, func(ctx context.Context) error {
		layout, err := parse(ctx)
		if err != nil {
			s.logger.Error("record stream initialization failed", log.String("path", s.reader.Path()), log.Err(err))
			return fmt.Errorf("%w: %w", domain.ErrNotInitialized, err)
		}
		s.layout = layout
		return nil
	})
}

func (s *stream) frameBytes(ctx context.Context, i int) ([]byte, error) {
	start, end, ok := s.layout.Range(i)
	if !ok {
		return nil, fmt.Errorf("%w: record %d out of range [0, %d)", domain.ErrUnavailable, i, s.layout.NumRecords())
	}
	return s.reader.GetRange(ctx, start, end)
}

func (s *stream) close() error {
	return s.reader.Close()
}
