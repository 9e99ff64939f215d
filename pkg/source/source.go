package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bft-labs/rtcshare/pkg/chunked"
)

// Config configures fetchers created by Resolve.
type Config struct {
	// BytesPerSecond limits download throughput; <= 0 disables.
	BytesPerSecond int64
	// HTTPTimeout bounds a single HTTP range request.
	HTTPTimeout time.Duration
	// S3 configures s3:// URIs.
	S3 S3Config
}

var (
	_ chunked.Fetcher = (*File)(nil)
	_ chunked.Fetcher = (*HTTP)(nil)
	_ chunked.Fetcher = (*S3)(nil)
	_ chunked.Fetcher = (*RPC)(nil)
)

// Resolve picks a fetcher for uri and returns it with the path to pass
// to it. Supported forms are http(s)://, s3://bucket/key, file:// and
// plain filesystem paths.
func Resolve(ctx context.Context, uri string, cfg Config) (chunked.Fetcher, string, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return NewFile("", cfg.BytesPerSecond), uri, nil
	}

	switch strings.ToLower(scheme) {
	case "http", "https":
		return NewHTTP(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.BytesPerSecond), uri, nil
	case "s3":
		fetcher, err := NewS3(ctx, cfg.S3, cfg.BytesPerSecond)
		if err != nil {
			return nil, "", err
		}
		return fetcher, rest, nil
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", uri, err)
		}
		return NewFile("", cfg.BytesPerSecond), u.Path, nil
	default:
		return nil, "", fmt.Errorf("unsupported source scheme %q", scheme)
	}
}
