package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// RestoreCmd loads a saved file back into the kernel.
var RestoreCmd = &cobra.Command{
	Use:   "restore [path]",
	Short: "Replace the kernel rule tables named in a saved file",
	Long: `Restore parses path, or <storage-root>/iptables/rules.v4 when no path is given,
and for every table in it clears the kernel table, then recreates its chains,
policies and rules with iptables. Tables not named in the file are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		return runRestore(cmd.Context(), a, cmd, firstArg(args))
	},
}

func runRestore(ctx context.Context, a *app, cmd *cobra.Command, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	src, err := a.restorer.Restore(ctx, path)
	if err != nil {
		a.logger.Error("restore failed", slog.String("path", src), slog.Any("error", err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", src)
	return nil
}
