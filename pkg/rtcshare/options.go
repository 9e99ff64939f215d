package rtcshare

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/rtcshare/internal/ports"
	"github.com/bft-labs/rtcshare/pkg/log"
)

// Re-exported types so embedders need not import internal packages.
type (
	// Logger is the structured logger interface from pkg/log.
	Logger = log.Logger

	// LogField is a structured log field.
	LogField = log.Field

	// RequestHandler answers application requests.
	RequestHandler = ports.RequestHandler

	// Dialer opens relay sockets.
	Dialer = ports.Dialer

	// ServiceQuerier answers serviceQueryRequest messages.
	ServiceQuerier = ports.ServiceQuerier
)

// Option configures optional behavior of a Service.
type Option func(*options)

type options struct {
	logger       Logger
	eventHandler EventHandler
	plugins      []Plugin
	registry     *prometheus.Registry
	dialer       Dialer
	services     ServiceQuerier
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for service events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithMetrics registers the service's collectors with reg and serves
// them at /metrics on the HTTP API.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithDialer replaces the websocket dialer used for the relay.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithServiceQuerier answers service queries with q instead of the
// program at Config.ServiceAddr.
func WithServiceQuerier(q ServiceQuerier) Option {
	return func(o *options) {
		o.services = q
	}
}
