// Package cli provides the command-line interface for the archive rule
// engine: a root command carrying global configuration flags, and three
// subcommands — collect, manage, delete — matching the Collector CLI,
// Manager CLI, and Deletion CLI named in the archive specification.
// Adapted from the teacher module's cli/root.go: the same cobra root
// command plus persistent-flag-to-Viper-key binding and config-file search
// order, generalized from one flat HTTP-server config to the nested
// archive/object-store/catalog configuration this domain needs.
package cli

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfgFile holds the path to the configuration file specified via
// --config. When empty, initConfig searches the working directory and the
// user's home directory for "sdsrules.yaml".
var cfgFile string

// RootCmd is the entry point command. It carries no Run of its own;
// operators must pick one of the collect/manage/delete subcommands.
var RootCmd = &cobra.Command{
	Use:   "sdsrules",
	Short: "rule-driven file-processing engine for an SDS waveform archive",
	Long: `sdsrules walks a local SDS-organized waveform archive and drives each
file through a configurable ordered pipeline of rules: ingest to long-term
object storage, replicate, assign persistent identifiers, compute quality
metadata, compute PPSD summaries, mark for deletion, purge, quarantine.

Configuration can be provided via --config, environment variables prefixed
SDSRULES_, or a sdsrules.yaml file in the working directory or home
directory.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (default: ./sdsrules.yaml)")
	RootCmd.PersistentFlags().String("dir", "", "archive root directory")
	RootCmd.PersistentFlags().StringSlice("collect_wildcards", nil, "wildcard pattern(s) to filter collected files")
	RootCmd.PersistentFlags().Int("collect_finished", 0, "only collect files last modified before today's UTC midnight plus N minutes (0: no filter)")
	RootCmd.PersistentFlags().String("sort", "none", "collector sort order: none, asc, desc")

	viper.BindPFlag("data_dir", RootCmd.PersistentFlags().Lookup("dir"))
}

// initConfig loads the configuration document, following the same
// search-path-then-environment-override precedence as the teacher module.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("sdsrules")
	}

	viper.SetEnvPrefix("SDSRULES")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
