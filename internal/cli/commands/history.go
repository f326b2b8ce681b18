package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tokligence/streamledger/internal/cli/ui"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "browse stored conversations",
	}
	cmd.AddCommand(newHistoryListCommand(opts), newHistoryGetCommand(opts))
	return cmd
}

func newHistoryListCommand(opts *globalOptions) *cobra.Command {
	var (
		limit, offset, width int
		asJSON               bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			page, err := c.ListHistory(ctx, limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			if len(page.Records) == 0 {
				ui.NewPrinter(out).Info("no conversations (total %d)", page.Total)
				return nil
			}
			fmt.Fprintln(out, ui.HistoryTable(page, width))
			fmt.Fprintf(out, "\nshowing %d-%d of %d\n", page.Offset+1, page.Offset+len(page.Records), page.Total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "page size (server default when 0)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of conversations to skip")
	cmd.Flags().IntVar(&width, "width", 40, "maximum characters shown per prompt and response")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON page")
	return cmd
}

func newHistoryGetCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "show one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid conversation id %q: %w", args[0], err)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			rec, err := c.GetHistory(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			fmt.Fprintln(out, ui.RecordDetail(rec))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON record")
	return cmd
}
