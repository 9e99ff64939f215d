package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bft-labs/rtcshare/internal/cliconfig"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/rtcshare"
	"github.com/bft-labs/rtcshare/plugins/configwatcher"
)

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Share a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			c.log.Info().Interface("config", c.cfg.Masked()).Msg("configuration")
			return c.serve()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&c.cfg.Dir, "dir", "d", c.cfg.Dir, "directory to share")
	f.StringVar(&c.cfg.ListenAddr, "listen", c.cfg.ListenAddr, "address of the local HTTP API (empty disables it)")
	f.StringSliceVar(&c.cfg.AllowedOrigins, "allowed-origin", c.cfg.AllowedOrigins, "CORS origin allowed to call the HTTP API (repeatable)")
	f.BoolVar(&c.cfg.EnableRelay, "relay", c.cfg.EnableRelay, "make the directory reachable through the relay proxy")
	f.StringVar(&c.cfg.ProxyURL, "proxy", c.cfg.ProxyURL, "relay proxy URL")
	f.StringVar(&c.cfg.ProxySecret, "proxy-secret", c.cfg.ProxySecret, "relay proxy secret")
	f.StringVar(&c.cfg.ServiceAddr, "service-addr", c.cfg.ServiceAddr, "host:port of the program answering service queries (env RTCSHARE_SOCKET_PORT sets a localhost port)")
	f.IntVar(&c.cfg.MaxMessageBytes, "max-message-bytes", c.cfg.MaxMessageBytes, "largest relay or data channel message before fragmenting")
	f.IntVar(&c.cfg.MaxBytesPerPeriod, "max-bytes-per-period", c.cfg.MaxBytesPerPeriod, "peer send budget per period")
	f.DurationVar(&c.cfg.Period, "period", c.cfg.Period, "peer send budget period")
	f.DurationVar(&c.cfg.KeepaliveInterval, "keepalive", c.cfg.KeepaliveInterval, "relay ping interval")
	f.DurationVar(&c.cfg.ReconnectInitial, "reconnect-initial", c.cfg.ReconnectInitial, "first relay reconnect delay")
	f.DurationVar(&c.cfg.ReconnectMax, "reconnect-max", c.cfg.ReconnectMax, "longest relay reconnect delay")
	f.IntVar(&c.cfg.MaxPendingGroups, "max-pending-groups", c.cfg.MaxPendingGroups, "incomplete multipart groups kept per relay session (0 keeps all)")
	f.StringSliceVar(&c.cfg.ICEServers, "ice-server", c.cfg.ICEServers, "STUN/TURN server URL for peer connections (repeatable)")
	return cmd
}

func (c *cli) serve() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []rtcshare.Option{
		rtcshare.WithLogger(log.NewZerologAdapterWithLogger(c.log)),
		rtcshare.WithMetrics(reg),
		rtcshare.WithEventHandler(&serveEvents{log: c.log}),
	}
	if cfgFile := c.configFile(); cfgFile != "" && cliconfig.FileExists(cfgFile) {
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{
			Path:              cfgFile,
			MaxBytesPerPeriod: c.cfg.MaxBytesPerPeriod,
			Period:            c.cfg.Period,
		}))
	}

	svc, err := rtcshare.New(c.cfg.ServiceConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if addr := svc.Addr(); addr != nil {
		c.log.Info().Str("addr", "http://"+addr.String()).Msg("http api ready")
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			c.log.Info().Msg("received signal, stopping...")
			return svc.Stop()
		case <-ticker.C:
			if svc.Status() == rtcshare.StateCrashed {
				return fmt.Errorf("service crashed")
			}
		}
	}
}

type serveEvents struct {
	rtcshare.BaseEventHandler
	log zerolog.Logger
}

func (e *serveEvents) OnRelayStateChange(ev rtcshare.RelayStateEvent) {
	if ev.PublicURL != "" {
		e.log.Info().Str("url", ev.PublicURL).Msg("sharing through relay")
	}
}

func (e *serveEvents) OnLimitChange(ev rtcshare.LimitChangeEvent) {
	e.log.Info().Int("max_bytes_per_period", ev.MaxBytesPerPeriod).Dur("period", ev.Period).Msg("pacing updated")
}
