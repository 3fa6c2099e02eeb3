package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denniswebb/fwkeeper/internal/persist"
)

// DefaultPathCmd prints the save file used when none is given.
var DefaultPathCmd = &cobra.Command{
	Use:   "default-path",
	Short: "Print the default save file for an IP version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := cmd.Flags().GetInt("ip-version")
		if err != nil {
			return err
		}
		path, err := persist.DefaultSavePath(viper.GetString("storage-root"), version)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	DefaultPathCmd.Flags().Int("ip-version", 4, "IP version of the rule tables")
}
