package rtcshare

import (
	"context"
	"fmt"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/ports"
)

// Signaler answers webrtcSignalingRequest messages.
type Signaler interface {
	HandleSignaling(ctx context.Context, req domain.Request) (domain.Response, error)
}

// router sends signaling requests to the hub, service queries to the
// local service program and everything else to the shared directory.
type router struct {
	files     ports.RequestHandler
	signaling Signaler
	services  ports.ServiceQuerier
}

func (r router) HandleRequest(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	switch req.Type {
	case domain.TypeWebrtcSignalingRequest:
		if r.signaling == nil {
			return domain.Response{}, nil, fmt.Errorf("%w: signaling is not available here", domain.ErrInvalidRequest)
		}
		resp, err := r.signaling.HandleSignaling(ctx, req)
		return resp, nil, err

	case domain.TypeServiceQueryRequest:
		if r.services == nil {
			return domain.Response{}, nil, fmt.Errorf("%w: no services configured", domain.ErrInvalidRequest)
		}
		result, payload, err := r.services.QueryService(ctx, req.ServiceName, req.Query)
		if err != nil {
			return domain.Response{}, nil, err
		}
		return domain.Response{Type: domain.TypeServiceQueryResponse, Result: result}, payload, nil

	default:
		return r.files.HandleRequest(ctx, req)
	}
}

// NewHandler returns a request handler serving files, routing signaling
// requests to signaling and service queries to services. Either may be
// nil, which rejects the matching requests.
func NewHandler(files ports.RequestHandler, signaling Signaler, services ports.ServiceQuerier) ports.RequestHandler {
	return router{files: files, signaling: signaling, services: services}
}
