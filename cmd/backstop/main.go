package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "backstop",
		Short:         "Backstop: quota-aware AI request orchestrator with local fallback",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "backstop.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newRequestCmd(&configPath),
		newQuotaCmd(&configPath),
		newModeCmd(&configPath),
		newKeysCmd(&configPath),
		newMCPCmd(&configPath),
	)

	return root
}
