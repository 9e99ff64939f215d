package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/rtcshare/internal/cliconfig"
)

const helpDescription = `
Share a local directory with browser clients.

Clients connect directly over the local HTTP API, through the relay proxy
by the service's public URL, or peer-to-peer over WebRTC data channels
negotiated through either of the two.

Configuration comes from flags, RTCSHARE_* environment variables and
$HOME/.rtcshare/config.toml, in that order of precedence.
`

var exampleUsage = strings.TrimSpace(`
  rtcshare serve --dir ~/datasets --relay
  rtcshare header https://example.com/data/recording.qjb1
  rtcshare frame s3://bucket/runs/positions.jsonl 12 --format position-decode-field
  rtcshare identity --dir ~/datasets
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli holds state shared by the subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

// load applies the config file and environment to c.cfg, leaving values
// of flags set on the command line untouched.
func (c *cli) load(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := c.configFile()
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	c.log = cliconfig.Logger(c.cfg.Verbose)
	return nil
}

func (c *cli) configFile() string {
	if c.cfgPath != "" {
		return c.cfgPath
	}
	return cliconfig.DefaultConfigPath()
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "rtcshare",
		Short:         "Share a local directory with browser clients over HTTP, a relay and WebRTC",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.rtcshare/config.toml)")
	root.PersistentFlags().BoolVarP(&c.cfg.Verbose, "verbose", "v", c.cfg.Verbose, "enable debug logging")

	root.AddCommand(
		newServeCommand(c),
		newHeaderCommand(c),
		newFrameCommand(c),
		newIdentityCommand(c),
	)
	return root
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig(), log: cliconfig.Logger(false)}
	if err := newRootCommand(c).Execute(); err != nil {
		c.log.Error().Err(err).Msg("rtcshare")
		os.Exit(1)
	}
}
