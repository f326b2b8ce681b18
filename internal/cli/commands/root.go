package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokligence/streamledger/internal/client"
)

const defaultServer = "http://localhost:8000"

type globalOptions struct {
	server  string
	apiKey  string
	timeout time.Duration
}

func (o *globalOptions) client() (*client.Client, error) {
	return client.New(o.server, o.apiKey, nil)
}

// NewRootCommand builds the streamctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "streamctl",
		Short: "streamledger command line client",
		Long: `Stream prompts through a streamledgerd server and browse the stored
conversation history.`,
		Example: `  # Stream a response as it is generated
  $ streamctl stream "tell me a joke"

  # Same, as openai-style delta lines
  $ streamctl stream --format openai --raw "tell me a joke"

  # Show the five most recent conversations
  $ streamctl history list --limit 5`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	server := os.Getenv("STREAMLEDGER_SERVER")
	if server == "" {
		server = defaultServer
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.server, "server", "s", server, "streamledgerd base URL (env STREAMLEDGER_SERVER)")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("STREAMLEDGER_API_KEY"), "value for the X-API-Key header (env STREAMLEDGER_API_KEY)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for non-streaming requests")

	root.AddCommand(newStreamCommand(opts))
	root.AddCommand(newHistoryCommand(opts))
	root.AddCommand(newVersionCommand(opts))
	root.AddCommand(newInitCommand())
	root.AddCommand(newBenchCommand(opts))
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}
