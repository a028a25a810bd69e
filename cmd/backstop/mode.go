package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Print the current availability mode (mock, free, custom or offline)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.orch.CurrentMode(cmd.Context()))
			return nil
		},
	}
}
