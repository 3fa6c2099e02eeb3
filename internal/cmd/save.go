package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// SaveCmd writes every loaded rule table to a file.
var SaveCmd = &cobra.Command{
	Use:   "save [path]",
	Short: "Save all kernel rule tables in iptables-save format",
	Long: `Save reads every table listed by the kernel and writes it to path, or to
<storage-root>/iptables/rules.v4 when no path is given. A table that cannot be
read or rendered is skipped; the others are still written and the command fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		return runSave(cmd.Context(), a, cmd, firstArg(args))
	},
}

func runSave(ctx context.Context, a *app, cmd *cobra.Command, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dest, err := a.saver.Save(ctx, path)
	if err != nil {
		a.logger.Error("save failed", slog.String("path", dest), slog.Any("error", err))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
