package domain

import "encoding/json"

// Message type discriminators.
const (
	TypeInitialize           = "initialize"
	TypeAcknowledge          = "acknowledge"
	TypePing                 = "ping"
	TypeRequestFromClient    = "requestFromClient"
	TypeResponseToClient     = "responseToClient"
	TypeResponseToClientPart = "responseToClientPart"
	TypePeerRequest          = "rtcsharePeerRequest"
	TypePeerResponse         = "rtcsharePeerResponse"
)

// Envelope is the part common to every message; used to dispatch on Type.
type Envelope struct {
	Type string `json:"type"`
}

// InitializeMessage opens a relay session.
type InitializeMessage struct {
	Type             string `json:"type"`
	ServiceID        string `json:"serviceId"`
	ServicePrivateID string `json:"servicePrivateId"`
	ProxySecret      string `json:"proxySecret"`
}

// NewInitializeMessage builds an initialize message for the identity.
func NewInitializeMessage(id ServiceIdentity, secret string) InitializeMessage {
	return InitializeMessage{
		Type:             TypeInitialize,
		ServiceID:        id.PublicID,
		ServicePrivateID: id.PrivateID,
		ProxySecret:      secret,
	}
}

// AcknowledgeMessage is sent by the relay once the session is accepted.
type AcknowledgeMessage struct {
	Type string `json:"type"`
}

// PingMessage keeps an acknowledged relay session alive.
type PingMessage struct {
	Type string `json:"type"`
}

// RequestFromClient is a client request forwarded by the relay.
type RequestFromClient struct {
	Type      string          `json:"type"`
	Request   json.RawMessage `json:"request"`
	RequestID string          `json:"requestId"`
}

// ResponseToClient answers a RequestFromClient. Any binary payload
// follows the header line of the frame.
type ResponseToClient struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Response  json.RawMessage `json:"response"`
	Error     string          `json:"error,omitempty"`
}

// ResponseToClientPart carries one fragment of a ResponseToClient frame
// that exceeded the relay's maximum message size. The payload holds the
// part; Response is left empty since the reassembled frame carries it.
type ResponseToClientPart struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	PartIndex int             `json:"partIndex"`
	NumParts  int             `json:"numParts"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PeerRequest is a request sent over a peer data channel.
type PeerRequest struct {
	Type      string          `json:"type"`
	Request   json.RawMessage `json:"request"`
	RequestID string          `json:"requestId"`
}

// PeerResponse answers a PeerRequest.
type PeerResponse struct {
	Type      string          `json:"type"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"requestId"`
}
