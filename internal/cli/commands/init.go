package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tokligence/streamledger/internal/bootstrap"
	"github.com/tokligence/streamledger/internal/cli/ui"
)

func newInitCommand() *cobra.Command {
	var opts bootstrap.InitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "scaffold streamledgerd configuration files",
		Long: `Write config/setting.yaml and config/<env>/streamledger.yaml under --root.
Credentials such as OPENAI_API_KEY and API_KEY are not written; put them in
the environment or a .env file next to the config directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bootstrap.Init(opts); err != nil {
				return err
			}
			p := ui.NewPrinter(cmd.OutOrStdout())
			for _, f := range bootstrap.Files(opts.Environment) {
				p.Success("wrote %s", filepath.Join(opts.Root, f))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Root, "root", ".", "directory to create config/ in")
	f.StringVar(&opts.Environment, "env", "dev", "environment name")
	f.StringVar(&opts.HTTPAddress, "http-address", ":8000", "listen address")
	f.StringVar(&opts.DatabaseURL, "database-url", "", "postgres URL (default: local SQLite file)")
	f.StringVar(&opts.SQLitePath, "sqlite-path", "", "SQLite database file")
	f.StringVar(&opts.Model, "model", "gpt-3.5-turbo", "upstream model")
	f.StringVar(&opts.ResponseFormat, "format", "text", "default response format: text or openai")
	f.StringVar(&opts.LogFile, "log-file", "", "rotating log file path")
	f.BoolVar(&opts.Force, "force", false, "overwrite existing files")
	return cmd
}
