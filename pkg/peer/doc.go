// Package peer implements the request/response protocol spoken over a
// WebRTC data channel between an rtcshare client and a service.
//
// The client sends rtcsharePeerRequest messages tagged with a request
// id. The service's Responder answers each with an rtcsharePeerResponse
// frame whose binary payload follows the header line. Frames larger
// than the channel's maximum message size are split with the multipart
// format and every outbound frame is paced by a throttle.Throttler. A
// message that is not a valid peer request closes the peer.
//
// SignalHub relays signaling between HTTP or relay clients, identified
// by a client id, and the peers created for them.
package peer
