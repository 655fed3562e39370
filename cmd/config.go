package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"patchtriage/internal/bootstrap/config"
	"patchtriage/internal/bootstrap/logging"
	"patchtriage/internal/errs"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		cfg, err := config.Load(ctx, cfgFile)
		if err != nil {
			return errs.Wrap(err, "load config")
		}
		if cfg.GitHub.APIToken != "" {
			cfg.GitHub.APIToken = "********"
		}
		if cfg.Cache.RedisPassword != "" {
			cfg.Cache.RedisPassword = "********"
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return errs.Wrap(err, "encode config")
		}
		return errs.Wrap(enc.Close(), "flush config")
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
