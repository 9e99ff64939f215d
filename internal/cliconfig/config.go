package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/rtcshare/pkg/relay"
	"github.com/bft-labs/rtcshare/pkg/rtcshare"
	"github.com/bft-labs/rtcshare/pkg/source"
	"github.com/bft-labs/rtcshare/pkg/throttle"
)

// Config holds CLI configuration for rtcshare.
type Config struct {
	Dir            string
	ListenAddr     string
	AllowedOrigins []string

	EnableRelay bool
	ProxyURL    string
	ProxySecret string
	ServiceAddr string

	MaxMessageBytes   int
	MaxBytesPerPeriod int
	Period            time.Duration
	KeepaliveInterval time.Duration
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	ICEServers        []string
	MaxPendingGroups  int

	HTTPTimeout time.Duration
	// ChunkSize of remote container reads; zero uses the container's
	// default (1,000,000 for JSONL, 4,000,000 for QJB1).
	ChunkSize   int
	DownloadBPS int
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	Verbose bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Dir:               ".",
		ListenAddr:        rtcshare.DefaultListenAddr,
		ProxyURL:          relay.DefaultProxyURL,
		ProxySecret:       relay.DefaultSecret,
		MaxMessageBytes:   relay.DefaultMaxMessageBytes,
		MaxBytesPerPeriod: throttle.DefaultMaxBytesPerPeriod,
		Period:            throttle.DefaultPeriod,
		KeepaliveInterval: relay.DefaultKeepaliveInterval,
		ReconnectInitial:  time.Second,
		ReconnectMax:      30 * time.Second,
		HTTPTimeout:       30 * time.Second,
	}
}

// Validate checks the configuration for errors and normalizes the proxy URL.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.ListenAddr == "" && !c.EnableRelay {
		return fmt.Errorf("listen address is required unless the relay is enabled")
	}

	c.ProxyURL = strings.TrimRight(c.ProxyURL, "/")
	if c.EnableRelay && c.ProxyURL == "" {
		return fmt.Errorf("proxy url is required when the relay is enabled")
	}

	if c.MaxBytesPerPeriod <= 0 {
		return fmt.Errorf("max bytes per period must be positive")
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	if c.KeepaliveInterval <= 0 {
		return fmt.Errorf("keepalive interval must be positive")
	}
	if c.MaxPendingGroups < 0 {
		return fmt.Errorf("max pending groups must not be negative")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative")
	}
	return nil
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if c.ProxySecret != "" && c.ProxySecret != relay.DefaultSecret {
		c.ProxySecret = "*****"
	}
	return c
}

// ServiceConfig converts to the library configuration.
func (c Config) ServiceConfig() rtcshare.Config {
	return rtcshare.Config{
		Dir:               c.Dir,
		ListenAddr:        c.ListenAddr,
		AllowedOrigins:    c.AllowedOrigins,
		EnableRelay:       c.EnableRelay,
		ProxyURL:          c.ProxyURL,
		ProxySecret:       c.ProxySecret,
		MaxMessageBytes:   c.MaxMessageBytes,
		MaxBytesPerPeriod: c.MaxBytesPerPeriod,
		Period:            c.Period,
		KeepaliveInterval: c.KeepaliveInterval,
		ReconnectInitial:  c.ReconnectInitial,
		ReconnectMax:      c.ReconnectMax,
		ICEServers:        c.ICEServers,
		MaxPendingGroups:  c.MaxPendingGroups,
		ServiceAddr:       c.ServiceAddr,
	}
}

// SourceConfig returns the configuration for reading remote containers.
func (c Config) SourceConfig() source.Config {
	return source.Config{
		BytesPerSecond: int64(c.DownloadBPS),
		HTTPTimeout:    c.HTTPTimeout,
		S3: source.S3Config{
			Region:       c.S3Region,
			Endpoint:     c.S3Endpoint,
			UsePathStyle: c.S3PathStyle,
		},
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// setListFromString splits a comma separated list.
func (s *configSetter) setListFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	*dst = out
}
