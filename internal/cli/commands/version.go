package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokligence/streamledger/internal/cli/ui"
	"github.com/tokligence/streamledger/internal/version"
)

func newVersionCommand(opts *globalOptions) *cobra.Command {
	var clientOnly bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print client and server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.Get().Text())
			if clientOnly {
				return nil
			}

			p := ui.NewPrinter(out)
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), min(opts.timeout, 5*time.Second))
			defer cancel()
			h, err := c.Health(ctx)
			if err != nil {
				p.Warning("server %s unreachable: %v", opts.server, err)
				return nil
			}
			fmt.Fprintln(out)
			p.Bold("server %s", opts.server)
			fmt.Fprintf(out, "version: %s\nprovider: %s\ndatabase: %s\n", h.Version, h.Provider, h.Database)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clientOnly, "client", false, "skip querying the server")
	return cmd
}
