package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newQuotaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "quota [provider]",
		Short: "Show provider quota usage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tPRIORITY\tTIER\tDATE\tDAILY\tDAILY LEFT\tMONTHLY\tMONTHLY LEFT")
			for _, p := range a.orch.Providers() {
				if len(args) == 1 && p.ID != args[0] {
					continue
				}
				usage, err := a.orch.Usage(ctx, p.ID)
				if err != nil {
					return err
				}
				rem, err := a.orch.RemainingQuota(ctx, p.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
					p.ID, p.Priority, p.EffectiveTier(), usage.Date,
					usage.DailyCount, left(rem.Daily), usage.MonthlyCount, left(rem.Monthly))
			}
			return w.Flush()
		},
	}
}

func left(n int) string {
	if n < 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
