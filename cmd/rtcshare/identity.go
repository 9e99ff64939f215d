package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/rtcshare/internal/adapters/fs"
	"github.com/bft-labs/rtcshare/pkg/relay"
)

func newIdentityCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Print the relay identity of a directory, creating it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			repo := fs.NewIdentityFile(c.cfg.Dir)
			id, err := repo.LoadOrCreate(cmd.Context())
			if err != nil {
				return fmt.Errorf("load identity: %w", err)
			}

			rc := relay.DefaultConfig(id)
			rc.ProxyURL = c.cfg.ProxyURL
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "publicId: %s\n", id.PublicID)
			fmt.Fprintf(out, "file:     %s\n", repo.Path())
			fmt.Fprintf(out, "url:      %s\n", rc.PublicURL())
			return nil
		},
	}
	cmd.Flags().StringVarP(&c.cfg.Dir, "dir", "d", c.cfg.Dir, "shared directory")
	cmd.Flags().StringVar(&c.cfg.ProxyURL, "proxy", c.cfg.ProxyURL, "relay proxy URL")
	return cmd
}
