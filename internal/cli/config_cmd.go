package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Swind/go-async-task/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration after defaults, file and environment are merged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(opts.configFile)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			printConfig(cmd, loader.ConfigFile(), cfg)
			return nil
		},
	})
	return cmd
}

func printConfig(cmd *cobra.Command, file string, cfg *config.Config) {
	out := cmd.OutOrStdout()
	if file == "" {
		file = "(none)"
	}
	fmt.Fprintf(out, "file: %s\n", file)
	fmt.Fprintf(out, "mode: %s\n", cfg.Mode)
	fmt.Fprintf(out, "history_capacity: %d\n", cfg.HistoryCapacity)
	fmt.Fprintf(out, "pool: name=%s core=%d max=%d keep_alive=%s queue=%d core_timeout=%t\n",
		cfg.Pool.Name, cfg.Pool.CorePoolSize, cfg.Pool.MaxPoolSize, cfg.Pool.KeepAlive,
		cfg.Pool.QueueCapacity, cfg.Pool.AllowCoreThreadTimeOut)
	fmt.Fprintf(out, "dispatcher: name=%s on_failure=%s\n", cfg.Dispatcher.Name, cfg.Dispatcher.OnFailure)
	fmt.Fprintf(out, "log: level=%s format=%s\n", cfg.Log.Level, cfg.Log.Format)
	fmt.Fprintf(out, "metrics: enabled=%t address=%s namespace=%s poll=%s\n",
		cfg.Metrics.Enabled, cfg.Metrics.Address, cfg.Metrics.Namespace, cfg.Metrics.PollInterval)
}
