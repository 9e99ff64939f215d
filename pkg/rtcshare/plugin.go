package rtcshare

import (
	"context"
	"time"
)

// Pacer changes the pacing of peer data channels at runtime.
type Pacer interface {
	SetLimit(maxBytesPerPeriod int, period time.Duration)
}

// PluginConfig is passed to plugins when the service starts.
type PluginConfig struct {
	// Dir is the shared directory.
	Dir string

	// PublicURL is the relay URL of the service, empty when the relay is
	// disabled.
	PublicURL string

	// Pacer applies new throttle limits to live and future peers.
	Pacer Pacer

	Logger Logger
}

// Plugin extends a Service. Plugins are initialized in registration
// order on Start and shut down in reverse order on Stop.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize starts the plugin. ctx is canceled when the service
	// stops. A returned error aborts Start.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown releases the plugin's resources.
	Shutdown(ctx context.Context) error
}
