package rtcshare

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/bft-labs/rtcshare/internal/app"
	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/peer"
	"github.com/bft-labs/rtcshare/pkg/relay"
	"github.com/bft-labs/rtcshare/pkg/throttle"
)

// DefaultListenAddr is the address of the direct HTTP API.
const DefaultListenAddr = "127.0.0.1:61752"

// Config configures a Service.
type Config struct {
	// Dir is the shared directory. Required.
	Dir string

	// ListenAddr is the address of the direct HTTP API. Empty disables it.
	ListenAddr string

	// AllowedOrigins lists the CORS origins of the HTTP API.
	// Default: httpapi.DefaultAllowedOrigins
	AllowedOrigins []string

	// EnableRelay connects the service to the relay proxy so that
	// clients can reach it through its public URL.
	EnableRelay bool

	// ProxyURL is the relay proxy base URL.
	// Default: https://rtcshare-proxy.herokuapp.com
	ProxyURL string

	// ProxySecret is sent in the relay initialize message.
	// Default: rtcshare-no-secret
	ProxySecret string

	// MaxMessageBytes is the largest message sent on a relay socket or a
	// peer data channel before fragmenting.
	// Default: 32000
	MaxMessageBytes int

	// MaxBytesPerPeriod and Period pace peer data channels.
	// Default: 1,000,000 bytes per 125ms
	MaxBytesPerPeriod int
	Period            time.Duration

	// KeepaliveInterval is the relay ping interval.
	// Default: 20 seconds
	KeepaliveInterval time.Duration

	// ReconnectInitial and ReconnectMax bound the relay reconnect backoff.
	// Default: 1 second, 30 seconds
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// ICEServers are the STUN/TURN URLs for peer connections. Nil uses
	// a public STUN server; empty uses none.
	ICEServers []string

	// MaxPendingGroups bounds incomplete multipart groups held for the
	// relay; the oldest is dropped when exceeded. Zero keeps all.
	MaxPendingGroups int

	// ServiceAddr is the loopback host:port of a program answering
	// serviceQueryRequest messages. Empty rejects service queries.
	ServiceAddr string

	// PeerIdleTimeout removes peers of clients that stopped signaling.
	// Default: 5 minutes
	PeerIdleTimeout time.Duration
}

// DefaultConfig returns a Config sharing dir with all defaults set.
func DefaultConfig(dir string) Config {
	cfg := Config{Dir: dir, ListenAddr: DefaultListenAddr}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero fields with their defaults.
func (c *Config) SetDefaults() {
	if c.ProxyURL == "" {
		c.ProxyURL = relay.DefaultProxyURL
	}
	if c.ProxySecret == "" {
		c.ProxySecret = relay.DefaultSecret
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = relay.DefaultMaxMessageBytes
	}
	if c.MaxBytesPerPeriod <= 0 {
		c.MaxBytesPerPeriod = throttle.DefaultMaxBytesPerPeriod
	}
	if c.Period <= 0 {
		c.Period = throttle.DefaultPeriod
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = relay.DefaultKeepaliveInterval
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = app.DefaultBackoffInitial
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = app.DefaultBackoffMax
	}
	if c.PeerIdleTimeout <= 0 {
		c.PeerIdleTimeout = peer.DefaultIdleTimeout
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: shared directory is required", domain.ErrInvalidConfig)
	}
	info, err := os.Stat(c.Dir)
	if err != nil {
		return fmt.Errorf("%w: shared directory: %v", domain.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidConfig, c.Dir)
	}
	if c.ListenAddr == "" && !c.EnableRelay {
		return fmt.Errorf("%w: neither the HTTP API nor the relay is enabled", domain.ErrInvalidConfig)
	}
	if c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("%w: reconnect max %s is below initial %s", domain.ErrInvalidConfig, c.ReconnectMax, c.ReconnectInitial)
	}
	if c.ServiceAddr != "" {
		if _, _, err := net.SplitHostPort(c.ServiceAddr); err != nil {
			return fmt.Errorf("%w: service address: %v", domain.ErrInvalidConfig, err)
		}
	}
	if c.MaxPendingGroups < 0 {
		return fmt.Errorf("%w: max pending groups must not be negative", domain.ErrInvalidConfig)
	}
	if c.EnableRelay {
		if err := c.relayConfig(domain.ServiceIdentity{}).Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) throttleConfig() throttle.Config {
	tc := throttle.DefaultConfig()
	tc.MaxBytesPerPeriod = c.MaxBytesPerPeriod
	tc.Period = c.Period
	return tc
}

func (c Config) relayConfig(id domain.ServiceIdentity) relay.Config {
	rc := relay.DefaultConfig(id)
	rc.ProxyURL = c.ProxyURL
	rc.Secret = c.ProxySecret
	rc.MaxMessageBytes = c.MaxMessageBytes
	rc.KeepaliveInterval = c.KeepaliveInterval
	rc.ReconnectInitial = c.ReconnectInitial
	rc.ReconnectMax = c.ReconnectMax
	return rc
}
