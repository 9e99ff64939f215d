package cliconfig

import (
	"net"
	"os"
)

// ApplyEnvConfig applies configuration from environment variables (RTCSHARE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("dir", os.Getenv("RTCSHARE_DIR"), &cfg.Dir)
	s.setString("listen", os.Getenv("RTCSHARE_LISTEN"), &cfg.ListenAddr)
	s.setListFromString("allowed-origin", os.Getenv("RTCSHARE_ALLOWED_ORIGINS"), &cfg.AllowedOrigins)
	s.setBoolFromString("relay", os.Getenv("RTCSHARE_RELAY"), &cfg.EnableRelay)
	s.setString("proxy", os.Getenv("RTCSHARE_PROXY"), &cfg.ProxyURL)
	s.setString("proxy-secret", os.Getenv("RTCSHARE_PROXY_SECRET"), &cfg.ProxySecret)
	if port := os.Getenv("RTCSHARE_SOCKET_PORT"); port != "" {
		s.setString("service-addr", net.JoinHostPort("localhost", port), &cfg.ServiceAddr)
	}
	s.setString("service-addr", os.Getenv("RTCSHARE_SERVICE_ADDR"), &cfg.ServiceAddr)
	s.setListFromString("ice-server", os.Getenv("RTCSHARE_ICE_SERVERS"), &cfg.ICEServers)
	s.setString("s3-region", os.Getenv("RTCSHARE_S3_REGION"), &cfg.S3Region)
	s.setString("s3-endpoint", os.Getenv("RTCSHARE_S3_ENDPOINT"), &cfg.S3Endpoint)
	s.setBoolFromString("s3-path-style", os.Getenv("RTCSHARE_S3_PATH_STYLE"), &cfg.S3PathStyle)
	s.setBoolFromString("verbose", os.Getenv("RTCSHARE_VERBOSE"), &cfg.Verbose)

	if err := s.setDuration("period", os.Getenv("RTCSHARE_PERIOD"), &cfg.Period); err != nil {
		return err
	}
	if err := s.setDuration("keepalive", os.Getenv("RTCSHARE_KEEPALIVE"), &cfg.KeepaliveInterval); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-initial", os.Getenv("RTCSHARE_RECONNECT_INITIAL"), &cfg.ReconnectInitial); err != nil {
		return err
	}
	if err := s.setDuration("reconnect-max", os.Getenv("RTCSHARE_RECONNECT_MAX"), &cfg.ReconnectMax); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("RTCSHARE_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-message-bytes", os.Getenv("RTCSHARE_MAX_MESSAGE_BYTES"), &cfg.MaxMessageBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-bytes-per-period", os.Getenv("RTCSHARE_MAX_BYTES_PER_PERIOD"), &cfg.MaxBytesPerPeriod); err != nil {
		return err
	}
	if err := s.setIntFromString("max-pending-groups", os.Getenv("RTCSHARE_MAX_PENDING_GROUPS"), &cfg.MaxPendingGroups); err != nil {
		return err
	}
	if err := s.setIntFromString("chunk-size", os.Getenv("RTCSHARE_CHUNK_SIZE"), &cfg.ChunkSize); err != nil {
		return err
	}
	if err := s.setIntFromString("download-bps", os.Getenv("RTCSHARE_DOWNLOAD_BPS"), &cfg.DownloadBPS); err != nil {
		return err
	}

	return nil
}
