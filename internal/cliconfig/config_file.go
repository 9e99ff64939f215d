package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Dir            string   `toml:"dir"`
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`

	Relay       *bool  `toml:"relay"`
	Proxy       string `toml:"proxy"`
	ProxySecret string `toml:"proxy_secret"`
	ServiceAddr string `toml:"service_addr"`

	MaxMessageBytes   int      `toml:"max_message_bytes"`
	MaxBytesPerPeriod int      `toml:"max_bytes_per_period"`
	Period            string   `toml:"period"`
	Keepalive         string   `toml:"keepalive"`
	ReconnectInitial  string   `toml:"reconnect_initial"`
	ReconnectMax      string   `toml:"reconnect_max"`
	ICEServers        []string `toml:"ice_servers"`
	MaxPendingGroups  int      `toml:"max_pending_groups"`

	HTTPTimeout string `toml:"http_timeout"`
	ChunkSize   int    `toml:"chunk_size"`
	DownloadBPS int    `toml:"download_bps"`

	S3 struct {
		Region    string `toml:"region"`
		Endpoint  string `toml:"endpoint"`
		PathStyle *bool  `toml:"path_style"`
	} `toml:"s3"`

	Verbose *bool `toml:"verbose"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.rtcshare/config.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".rtcshare", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("dir", fc.Dir, &cfg.Dir)
	s.setString("listen", fc.Listen, &cfg.ListenAddr)
	s.setStrings("allowed-origin", fc.AllowedOrigins, &cfg.AllowedOrigins)
	s.setBool("relay", fc.Relay, &cfg.EnableRelay)
	s.setString("proxy", fc.Proxy, &cfg.ProxyURL)
	s.setString("proxy-secret", fc.ProxySecret, &cfg.ProxySecret)
	s.setString("service-addr", fc.ServiceAddr, &cfg.ServiceAddr)
	s.setStrings("ice-server", fc.ICEServers, &cfg.ICEServers)
	s.setString("s3-region", fc.S3.Region, &cfg.S3Region)
	s.setString("s3-endpoint", fc.S3.Endpoint, &cfg.S3Endpoint)
	s.setBool("s3-path-style", fc.S3.PathStyle, &cfg.S3PathStyle)
	s.setBool("verbose", fc.Verbose, &cfg.Verbose)

	if err := applyFileDurations(s, cfg, fc); err != nil {
		return err
	}

	s.setInt("max-message-bytes", fc.MaxMessageBytes, &cfg.MaxMessageBytes)
	s.setInt("max-bytes-per-period", fc.MaxBytesPerPeriod, &cfg.MaxBytesPerPeriod)
	s.setInt("max-pending-groups", fc.MaxPendingGroups, &cfg.MaxPendingGroups)
	s.setInt("chunk-size", fc.ChunkSize, &cfg.ChunkSize)
	s.setInt("download-bps", fc.DownloadBPS, &cfg.DownloadBPS)

	return nil
}

func applyFileDurations(s *configSetter, cfg *Config, fc FileConfig) error {
	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"period", fc.Period, &cfg.Period},
		{"keepalive", fc.Keepalive, &cfg.KeepaliveInterval},
		{"reconnect-initial", fc.ReconnectInitial, &cfg.ReconnectInitial},
		{"reconnect-max", fc.ReconnectMax, &cfg.ReconnectMax},
		{"timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
