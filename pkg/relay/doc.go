// Package relay maintains a reconnecting session to an rtcshare relay
// (proxy) over a websocket.
//
// A Connection dials the relay, sends an initialize message carrying the
// service identity and waits for the relay's acknowledge. While
// acknowledged it pings the relay at a fixed interval, answers
// requestFromClient messages with its RequestHandler and correlates
// responses to its own outgoing requests by request id. Responses larger
// than the relay's maximum message size are fragmented into
// responseToClientPart envelopes.
//
// Any malformed message, or any message other than acknowledge before
// the session is acknowledged, closes the socket. The connection then
// reconnects with exponential backoff until Close is called or the run
// context ends.
//
// # Usage
//
//	conn := relay.New(relay.DefaultConfig(identity), dialer, handler,
//	    relay.WithLogger(logger),
//	)
//	go conn.Run(ctx)
//	fmt.Println("shared at", conn.PublicURL())
package relay
