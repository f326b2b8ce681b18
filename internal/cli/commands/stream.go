package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tokligence/streamledger/internal/adapter"
	"github.com/tokligence/streamledger/internal/openai"
)

func newStreamCommand(opts *globalOptions) *cobra.Command {
	var (
		format string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "stream <prompt...>",
		Short: "stream a response to a prompt",
		Long: `Send a prompt and print the response as it arrives. Use "-" to read the
prompt from stdin. With --format openai each delta line is decoded and only its
text is printed, unless --raw is given.`,
		Example: `  $ streamctl stream "hello there"
  $ echo "summarise this" | streamctl stream -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := adapter.ParseFormat(format); err != nil {
				return err
			}
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			decode := adapter.Format(strings.ToLower(strings.TrimSpace(format))) == adapter.FormatOpenAI && !raw
			err = c.Stream(ctx, prompt, format, func(fragment string) error {
				if decode {
					var env openai.DeltaEnvelope
					if err := json.Unmarshal([]byte(fragment), &env); err != nil {
						return fmt.Errorf("decode delta line: %w", err)
					}
					fragment = env.Text()
				}
				_, err := io.WriteString(out, fragment)
				return err
			})
			fmt.Fprintln(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "response format: text or openai (server default when empty)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print openai delta lines without decoding")
	return cmd
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}
