package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"castbot/internal/config"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	env        *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "castbot",
		Short:         "Telegram broadcast bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFiles...); err != nil {
				return err
			}
			opts.env = config.NewEnv()
			if err := opts.env.BindPFlag("log_level", cmd.Flags().Lookup("log-level")); err != nil {
				return fmt.Errorf("bind log-level: %w", err)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "./castbot.yaml", "config file (JSON or YAML; optional)")
	pf.StringSliceVar(&opts.envFiles, "env-file", config.DefaultEnvFiles, "dotenv files to load, later files win")
	pf.String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newWebhookCmd(opts),
		newSubscribersCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the config file with the environment (and bound flags)
// overlaid.
func (o *rootOptions) load() (*config.Config, error) {
	return config.NewConfigManager(o.configPath, o.env).Load()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "castbot %s (%s)\n", version, commit)
			return err
		},
	}
}
