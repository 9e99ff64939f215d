package domain

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is reported by probe responses.
const ProtocolVersion = "0.1.0"

// Application request and response types.
const (
	TypeProbeRequest            = "probeRequest"
	TypeProbeResponse           = "probeResponse"
	TypeReadDirRequest          = "readDirRequest"
	TypeReadDirResponse         = "readDirResponse"
	TypeReadFileRequest         = "readFileRequest"
	TypeReadFileResponse        = "readFileResponse"
	TypeWebrtcSignalingRequest  = "webrtcSignalingRequest"
	TypeWebrtcSignalingResponse = "webrtcSignalingResponse"
	TypeServiceQueryRequest     = "serviceQueryRequest"
	TypeServiceQueryResponse    = "serviceQueryResponse"
)

// Request is an application request. Fields other than Type are set
// according to the type.
type Request struct {
	Type string `json:"type"`

	// readDirRequest, readFileRequest; Start and End bound the byte
	// range [Start, End) of a file.
	Path  string `json:"path,omitempty"`
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`

	// webrtcSignalingRequest
	ClientID string `json:"clientId,omitempty"`
	Signal   string `json:"signal,omitempty"`

	// serviceQueryRequest; Query is passed to the named service as is.
	ServiceName string          `json:"serviceName,omitempty"`
	Query       json.RawMessage `json:"query,omitempty"`
}

// Response is an application response. Binary content, such as file
// bytes, travels as the frame payload.
type Response struct {
	Type string `json:"type"`

	// probeResponse
	ProtocolVersion string `json:"protocolVersion,omitempty"`
	Proxy           bool   `json:"proxy,omitempty"`

	// readDirResponse
	Files []FileEntry `json:"files,omitempty"`
	Dirs  []DirEntry  `json:"dirs,omitempty"`

	// webrtcSignalingResponse
	Signals []string `json:"signals,omitempty"`

	// serviceQueryResponse
	Result json.RawMessage `json:"result,omitempty"`
}

// FileEntry describes a shared file. Mtime is in milliseconds since the
// Unix epoch.
type FileEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
}

// DirEntry describes a shared subdirectory.
type DirEntry struct {
	Name string `json:"name"`
}

// NewProbeRequest returns a probe request.
func NewProbeRequest() Request {
	return Request{Type: TypeProbeRequest}
}

// NewReadDirRequest returns a request listing path ("" for the root).
func NewReadDirRequest(path string) Request {
	return Request{Type: TypeReadDirRequest, Path: path}
}

// NewReadFileRequest returns a request for bytes [start, end) of path.
// Negative bounds are omitted, which selects the whole file.
func NewReadFileRequest(path string, start, end int64) Request {
	r := Request{Type: TypeReadFileRequest, Path: path}
	if start >= 0 {
		r.Start = &start
	}
	if end >= 0 {
		r.End = &end
	}
	return r
}

// NewSignalingRequest returns a signaling request. An empty signal polls
// for pending signals.
func NewSignalingRequest(clientID, signal string) Request {
	return Request{Type: TypeWebrtcSignalingRequest, ClientID: clientID, Signal: signal}
}

// NewServiceQueryRequest returns a request forwarding query to the local
// service named name.
func NewServiceQueryRequest(name string, query json.RawMessage) Request {
	return Request{Type: TypeServiceQueryRequest, ServiceName: name, Query: query}
}

// Validate checks that the request has a known type and its required fields.
func (r Request) Validate() error {
	switch r.Type {
	case TypeProbeRequest, TypeReadDirRequest:
		return nil
	case TypeReadFileRequest:
		if r.Path == "" {
			return fmt.Errorf("%w: readFileRequest without path", ErrInvalidRequest)
		}
		if r.Start != nil && r.End != nil && *r.End < *r.Start {
			return fmt.Errorf("%w: end %d before start %d", ErrInvalidRequest, *r.End, *r.Start)
		}
		return nil
	case TypeWebrtcSignalingRequest:
		if r.ClientID == "" {
			return fmt.Errorf("%w: signaling request without clientId", ErrInvalidRequest)
		}
		return nil
	case TypeServiceQueryRequest:
		if r.ServiceName == "" {
			return fmt.Errorf("%w: serviceQueryRequest without serviceName", ErrInvalidRequest)
		}
		return nil
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidRequest, r.Type)
	}
}

// ParseRequest decodes and validates a raw application request.
func ParseRequest(raw json.RawMessage) (Request, error) {
	var r Request
	if len(raw) == 0 {
		return r, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return r, r.Validate()
}
