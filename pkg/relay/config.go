package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/rtcshare/internal/app"
	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/throttle"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// Defaults.
const (
	DefaultProxyURL          = "https://rtcshare-proxy.herokuapp.com"
	DefaultSecret            = "rtcshare-no-secret"
	DefaultMaxMessageBytes   = 32000
	DefaultKeepaliveInterval = 20 * time.Second
)

// Config configures a Connection.
type Config struct {
	ProxyURL          string
	Secret            string
	Identity          domain.ServiceIdentity
	MaxMessageBytes   int
	KeepaliveInterval time.Duration
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
}

// DefaultConfig returns the default configuration for identity.
func DefaultConfig(identity domain.ServiceIdentity) Config {
	return Config{
		ProxyURL:          DefaultProxyURL,
		Secret:            DefaultSecret,
		Identity:          identity,
		MaxMessageBytes:   DefaultMaxMessageBytes,
		KeepaliveInterval: DefaultKeepaliveInterval,
		ReconnectInitial:  app.DefaultBackoffInitial,
		ReconnectMax:      app.DefaultBackoffMax,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ProxyURL == "" {
		return fmt.Errorf("%w: proxy url is required", domain.ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.ProxyURL, "http://") && !strings.HasPrefix(c.ProxyURL, "https://") {
		return fmt.Errorf("%w: proxy url must be http(s): %s", domain.ErrInvalidConfig, c.ProxyURL)
	}
	if c.MaxMessageBytes < minMessageBytes {
		return fmt.Errorf("%w: max message bytes must be at least %d", domain.ErrInvalidConfig, minMessageBytes)
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("%w: keepalive interval must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

// WebSocketURL returns the relay URL with its scheme switched to ws(s).
func (c Config) WebSocketURL() string {
	u := strings.Replace(c.ProxyURL, "http:", "ws:", 1)
	return strings.Replace(u, "https:", "wss:", 1)
}

// PublicURL returns the URL clients use to reach the service through the
// relay.
func (c Config) PublicURL() string {
	return strings.TrimRight(c.ProxyURL, "/") + "/s/" + c.Identity.PublicID
}

// Observer receives connection events, typically for metrics.
type Observer interface {
	StateChanged(s State)
	Reconnecting()
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithObserver sets an observer for connection events.
func WithObserver(o Observer) Option {
	return func(c *Connection) {
		c.observer = o
	}
}

// WithThrottle paces binary response frames of each session through a
// throttle.Throttler configured with cfg.
func WithThrottle(cfg throttle.Config) Option {
	return func(c *Connection) {
		c.throttle = &cfg
	}
}

// WithReassemblerOptions configures the reassembler of each session.
func WithReassemblerOptions(opts ...wire.ReassemblerOption) Option {
	return func(c *Connection) {
		c.reasmOpt = append(c.reasmOpt, opts...)
	}
}
