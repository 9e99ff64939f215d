package ports

import "context"

// MessageKind distinguishes text and binary websocket messages.
type MessageKind int

const (
	TextMessage MessageKind = iota + 1
	BinaryMessage
)

// Socket is a connected, message-oriented duplex connection.
// ReadMessage is called from one goroutine only; WriteMessage and Close
// may be called concurrently with it and with each other.
type Socket interface {
	ReadMessage() (MessageKind, []byte, error)
	WriteMessage(kind MessageKind, msg []byte) error
	Close() error
}

// Dialer opens Sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}
