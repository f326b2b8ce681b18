package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tokligence/streamledger/internal/bench"
	"github.com/tokligence/streamledger/internal/cli/ui"
)

func newBenchCommand(opts *globalOptions) *cobra.Command {
	var cfg bench.Config
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "load test the stream endpoint",
		Long: `Run concurrent POST /stream requests and report time to first fragment
and full stream latency. Every request is persisted by the server.`,
		Example: `  $ streamctl bench -c 20 --duration 30s
  $ streamctl bench -n 100 --rps 10 --prompt "ping"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ui.NewPrinter(out).Info("benchmarking %s with %d workers", opts.server, cfg.Concurrency)
			report, err := bench.Run(cmd.Context(), c, cfg)
			if err != nil {
				return err
			}
			report.Write(out)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "number of concurrent workers")
	f.DurationVar(&cfg.Duration, "duration", 10*time.Second, "test duration (0 to rely on --requests)")
	f.IntVarP(&cfg.Requests, "requests", "n", 0, "stop after this many requests (0 = unlimited)")
	f.IntVar(&cfg.RPS, "rps", 0, "target requests per second (0 = unlimited)")
	f.StringVar(&cfg.Prompt, "prompt", "Hello", "prompt sent with every request")
	f.StringVar(&cfg.Format, "format", "", "response format: text or openai")
	return cmd
}
