package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// Client issues requests to a service's /api endpoint. It implements
// ports.Requester.
type Client struct {
	baseURL string
	client  ports.HTTPClient
}

// NewClient creates a Client for the service at baseURL. A nil client
// uses http.DefaultClient.
func NewClient(baseURL string, client ports.HTTPClient) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Request posts req and decodes the response frame.
func (c *Client) Request(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	if err := req.Validate(); err != nil {
		return domain.Response{}, nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api", bytes.NewReader(body))
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Response{}, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return domain.Response{}, nil, &domain.RemoteError{Message: strings.TrimSpace(string(data))}
	}

	m, err := wire.DecodeLoose(data)
	if err != nil {
		return domain.Response{}, nil, err
	}
	var out domain.Response
	if err := m.Unmarshal(&out); err != nil {
		return domain.Response{}, nil, err
	}
	return out, m.Payload, nil
}

var _ ports.Requester = (*Client)(nil)
