package ports

import (
	"context"
	"encoding/json"

	"github.com/bft-labs/rtcshare/internal/domain"
)

// RequestHandler answers application requests. The returned payload, if
// any, travels as the binary part of the response frame.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req domain.Request) (domain.Response, []byte, error)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, req domain.Request) (domain.Response, []byte, error)

// HandleRequest calls f.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	return f(ctx, req)
}

// Requester issues application requests to a remote service.
type Requester interface {
	Request(ctx context.Context, req domain.Request) (domain.Response, []byte, error)
}

// ServiceQuerier forwards a query to a named local service. The result is
// the service's JSON reply; the payload holds any binary data after it.
type ServiceQuerier interface {
	QueryService(ctx context.Context, serviceName string, query json.RawMessage) (json.RawMessage, []byte, error)
}
