package ports

// Channel sends whole messages. Implementations must be safe for
// concurrent use.
type Channel interface {
	Send(msg []byte) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(msg []byte) error

// Send calls f.
func (f ChannelFunc) Send(msg []byte) error { return f(msg) }
