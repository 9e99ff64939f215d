package configwatcher

import "github.com/bft-labs/rtcshare/pkg/rtcshare"

// WithConfigWatcher returns an rtcshare Option that reloads peer pacing
// when the config file changes.
//
// Usage:
//
//	svc, err := rtcshare.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/rtcshare/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) rtcshare.Option {
	return rtcshare.WithPlugin(New(cfg))
}

// WithDefaultConfigWatcher watches ~/.rtcshare/config.toml.
//
// Usage:
//
//	svc, err := rtcshare.New(cfg, configwatcher.WithDefaultConfigWatcher())
func WithDefaultConfigWatcher() rtcshare.Option {
	return WithConfigWatcher(DefaultConfig())
}
