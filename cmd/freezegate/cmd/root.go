// Package cmd implements the freezegate CLI: serve, migrate, and
// template validate subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "freezegate",
	Short: "freezegate is a cluster-wide freeze window admission gatekeeper",
	Long: "freezegate blocks workload mutations during declared freeze windows,\n" +
		"evaluating cron-based schedules, bypass annotations, and temporary\n" +
		"exemptions before a deny is ever returned to the API server.",
}

// Execute runs the CLI, returning any error from the selected subcommand.
func Execute(v string) error {
	version = v
	rootCmd.Version = v
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML boot configuration file")
}
