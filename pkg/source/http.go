package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bft-labs/rtcshare/internal/ports"
)

// HTTP reads ranges of HTTP(S) resources. The path passed to Fetch is
// the full URL.
type HTTP struct {
	client ports.HTTPClient
	limit  limiter
}

// NewHTTP creates an HTTP fetcher. A nil client uses http.DefaultClient.
func NewHTTP(client ports.HTTPClient, bytesPerSecond int64) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, limit: newLimiter(bytesPerSecond)}
}

// Fetch returns bytes [start, end) of url. A server that ignores the
// Range header is handled by skipping to start.
func (h *HTTP) Fetch(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if start == end {
		return []byte{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			if err == io.EOF {
				return []byte{}, nil
			}
			return nil, fmt.Errorf("skip to %d: %w", start, err)
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return []byte{}, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	buf, err := h.limit.readRange(resp.Body, end-start)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return buf, nil
}
