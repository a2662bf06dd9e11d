// Package cli implements the asynctask command line tool.
package cli

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "asynctask",
		Short: "Drive AsyncTask workloads from the command line",
		Long: `asynctask runs synthetic AsyncTask workloads against a configured
thread pool and home dispatcher, printing progress as it is delivered and
optionally exposing Prometheus metrics.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file (default is ./asynctask.yaml when present)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
