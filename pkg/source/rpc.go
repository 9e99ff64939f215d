package source

import (
	"context"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
)

// RPC reads ranges of files shared by a remote rtcshare service using
// readFile requests.
type RPC struct {
	requester ports.Requester
}

// NewRPC creates a fetcher issuing requests through requester.
func NewRPC(requester ports.Requester) *RPC {
	return &RPC{requester: requester}
}

// Fetch returns bytes [start, end) of path on the remote service.
func (r *RPC) Fetch(ctx context.Context, path string, start, end int64) ([]byte, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	resp, payload, err := r.requester.Request(ctx, domain.NewReadFileRequest(path, start, end))
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	if resp.Type != domain.TypeReadFileResponse {
		return nil, fmt.Errorf("read file %s: %w: response type %q", path, domain.ErrUnexpectedMessage, resp.Type)
	}
	if payload == nil {
		payload = []byte{}
	}
	return payload, nil
}
