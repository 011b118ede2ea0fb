package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"castbot/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (webhook server or long polling)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for flag, key := range map[string]string{"port": "port", "mode": "mode"} {
				if err := opts.env.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().String("port", "", "listen port for the webhook server (overrides PORT)")
	cmd.Flags().String("mode", "", "webhook or polling (overrides MODE)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := app.New(ctx, app.Options{ConfigPath: opts.configPath, Env: opts.env})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx, "start failed")
		return err
	}

	reason := "signal"
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = "fatal error"
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 40*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	return a.Err()
}
