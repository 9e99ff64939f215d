package cliconfig

import (
	"testing"
	"time"

	"github.com/bft-labs/rtcshare/pkg/relay"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != "127.0.0.1:61752" {
		t.Errorf("ListenAddr = %v, want 127.0.0.1:61752", cfg.ListenAddr)
	}
	if cfg.ProxyURL != relay.DefaultProxyURL {
		t.Errorf("ProxyURL = %v, want %v", cfg.ProxyURL, relay.DefaultProxyURL)
	}
	if cfg.MaxBytesPerPeriod != 1000000 || cfg.Period != 125*time.Millisecond {
		t.Errorf("pacing = %d per %v, want 1000000 per 125ms", cfg.MaxBytesPerPeriod, cfg.Period)
	}
	if cfg.MaxMessageBytes != 32000 {
		t.Errorf("MaxMessageBytes = %v, want 32000", cfg.MaxMessageBytes)
	}
	if cfg.ChunkSize != 0 {
		t.Errorf("ChunkSize = %v, want 0 (container default)", cfg.ChunkSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		wantErr      bool
		wantProxyURL string
	}{
		{
			name:         "defaults",
			mutate:       func(*Config) {},
			wantProxyURL: relay.DefaultProxyURL,
		},
		{
			name:    "missing dir",
			mutate:  func(c *Config) { c.Dir = "" },
			wantErr: true,
		},
		{
			name:    "nothing to serve",
			mutate:  func(c *Config) { c.ListenAddr = "" },
			wantErr: true,
		},
		{
			name: "relay only",
			mutate: func(c *Config) {
				c.ListenAddr = ""
				c.EnableRelay = true
			},
			wantProxyURL: relay.DefaultProxyURL,
		},
		{
			name: "relay without proxy",
			mutate: func(c *Config) {
				c.EnableRelay = true
				c.ProxyURL = ""
			},
			wantErr: true,
		},
		{
			name:         "trailing slash removed",
			mutate:       func(c *Config) { c.ProxyURL = "https://proxy.example.com/" },
			wantProxyURL: "https://proxy.example.com",
		},
		{
			name:    "zero period",
			mutate:  func(c *Config) { c.Period = 0 },
			wantErr: true,
		},
		{
			name:    "zero budget",
			mutate:  func(c *Config) { c.MaxBytesPerPeriod = 0 },
			wantErr: true,
		},
		{
			name:    "zero keepalive",
			mutate:  func(c *Config) { c.KeepaliveInterval = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && cfg.ProxyURL != tt.wantProxyURL {
				t.Errorf("ProxyURL = %v, want %v", cfg.ProxyURL, tt.wantProxyURL)
			}
		})
	}
}

func TestConfig_Masked(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Masked().ProxySecret; got != relay.DefaultSecret {
		t.Errorf("default secret should stay visible, got %v", got)
	}

	cfg.ProxySecret = "hunter2"
	if got := cfg.Masked().ProxySecret; got != "*****" {
		t.Errorf("Masked().ProxySecret = %v, want *****", got)
	}
	if cfg.ProxySecret != "hunter2" {
		t.Error("Masked() must not modify the receiver")
	}
}

func TestConfig_ServiceConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = "/srv/share"
	cfg.EnableRelay = true
	cfg.DownloadBPS = 4096
	cfg.S3Endpoint = "http://minio:9000"

	svc := cfg.ServiceConfig()
	if svc.Dir != "/srv/share" || !svc.EnableRelay || svc.Period != cfg.Period {
		t.Errorf("ServiceConfig() = %+v", svc)
	}

	src := cfg.SourceConfig()
	if src.BytesPerSecond != 4096 || src.S3.Endpoint != "http://minio:9000" || src.HTTPTimeout != cfg.HTTPTimeout {
		t.Errorf("SourceConfig() = %+v", src)
	}
}
