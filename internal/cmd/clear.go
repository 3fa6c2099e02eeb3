package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// ClearCmd flushes kernel rule tables.
var ClearCmd = &cobra.Command{
	Use:   "clear [table]",
	Short: "Remove every rule from a table, or from all loaded tables",
	Long: `Clear removes every rule from every chain of the named table and commits the
result. Chains and built-in policies are kept. Without a table name every table
listed by the kernel is cleared.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		return runClear(cmd.Context(), a, cmd, firstArg(args))
	},
}

func runClear(ctx context.Context, a *app, cmd *cobra.Command, table string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.clearer.Clear(ctx, table); err != nil {
		a.logger.Error("clear failed", slog.String("table", table), slog.Any("error", err))
		return err
	}
	if table == "" {
		table = "all tables"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", table)
	return nil
}
