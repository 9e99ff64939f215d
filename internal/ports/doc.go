// Package ports defines the interfaces that connect rtcshare's protocol
// code to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Channel]: a message-oriented outbound channel (peer data channel)
//   - [Socket], [Dialer]: a relay websocket and how to open one
//   - [RequestHandler]: answers application requests
//   - [ServiceQuerier]: forwards service queries to a local program
//   - [IdentityRepository]: persists the service identity
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// Protocol packages (pkg/relay, pkg/peer) depend only on these
// interfaces. Adapters in internal/adapters implement them with
// gorilla/websocket, pion/webrtc, the local file system, net/http and
// a loopback TCP socket.
package ports
