// Package domain contains the message envelopes, error taxonomy and
// service identity shared by every rtcshare layer.
//
// This package has no dependencies on transports, storage or logging.
//
// # Messages
//
//   - Relay control: [InitializeMessage], [AcknowledgeMessage], [PingMessage]
//   - Relay application envelopes: [RequestFromClient], [ResponseToClient],
//     [ResponseToClientPart]
//   - Peer envelopes: [PeerRequest], [PeerResponse]
//   - Application requests and responses: [Request], [Response]
//
// # Errors
//
// Access-layer failures match [ErrUnavailable]; callers treat "no data" as
// an expected outcome. Transport-layer failures ([ErrMalformedFrame],
// [ErrUnexpectedMessage]) are fatal to the frame or the session.
package domain
