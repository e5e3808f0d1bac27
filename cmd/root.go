// Package cmd defines and implements the CLI commands for the trendcrawler executable.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// newRootCmd creates the root command. v receives flag bindings from
// subcommands so that flags override file and environment values.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "trendcrawler",
		Short: "Collects trending video statistics from Bilibili search results.",
		Long: `trendcrawler searches Bilibili for a set of keywords, enriches every
video it finds with metadata and engagement statistics, and appends one
normalized record per video to the configured sinks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(v, &cfgFile))
	return cmd
}

// Execute is the main entry point. Cobra prints the error; the global zap
// logger, installed once configuration is loaded, records it and exits.
func Execute() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
