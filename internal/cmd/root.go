package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denniswebb/fwkeeper/internal/config"
	"github.com/denniswebb/fwkeeper/internal/logging"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "fwkeeper",
	Short: "Save, clear and restore the kernel iptables rule tables",
	Long: `fwkeeper reads every loaded ip_tables table straight from the kernel and writes it
in iptables-save format below a storage root. Saved files can be restored later, and
tables can be cleared in place. Run "serve" to save periodically and expose metrics.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("FWK")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()

		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		logging.InitLogger(viper.GetString("log-level"), "fwkeeper", cmd.ErrOrStderr())
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func bindFlags(cmd *cobra.Command, persistent bool, keys ...string) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for _, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "failed to bind %s flag: %v\n", key, err)
			os.Exit(1)
		}
	}
}

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.String("storage-root", config.DefaultStorageRoot, "Directory below which rule files are written and read")
	flags.String("tool-name", config.DefaultToolName, "Program name written in the save file header")
	flags.String("tables-file", config.DefaultTablesFile, "Kernel listing of loaded rule tables")
	flags.Int("capture-limit", config.DefaultCaptureLimit, "Bytes of output read per extension serializer call")
	flags.String("modprobe", config.DefaultModprobe, "Module loader used before retrying a table; empty disables the retry")

	bindFlags(rootCmd, true, "log-level", "storage-root", "tool-name", "tables-file", "capture-limit", "modprobe")

	rootCmd.AddCommand(SaveCmd)
	rootCmd.AddCommand(RestoreCmd)
	rootCmd.AddCommand(ClearCmd)
	rootCmd.AddCommand(DefaultPathCmd)
	rootCmd.AddCommand(ServeCmd)
}
