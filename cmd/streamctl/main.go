package main

import (
	"os"

	"github.com/tokligence/streamledger/internal/cli/commands"
	"github.com/tokligence/streamledger/internal/cli/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}
