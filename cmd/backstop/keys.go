package main

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newKeysCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored provider API keys",
	}

	var key string
	setCmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Validate and store an API key (read from stdin when --key is omitted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := key
			if raw == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				raw = strings.TrimSpace(line)
			}

			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orch.SetCredential(cmd.Context(), args[0], raw); err != nil {
				return err
			}
			masked, _ := a.orch.MaskedCredential(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Stored key for %s: %s\n", args[0], masked)
			return nil
		},
	}
	setCmd.Flags().StringVar(&key, "key", "", "API key value")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "List providers with their masked keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tVENDOR\tKEY")
			for _, p := range a.orch.Providers() {
				masked, ok := a.orch.MaskedCredential(cmd.Context(), p.ID)
				switch {
				case !p.NeedsCredential():
					masked = "(not required)"
				case !ok:
					masked = "(none)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Vendor, masked)
			}
			return w.Flush()
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orch.ClearCredentials(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All stored keys removed.")
			return nil
		},
	}

	cmd.AddCommand(setCmd, showCmd, clearCmd)
	return cmd
}
