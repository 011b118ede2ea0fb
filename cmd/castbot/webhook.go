package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"castbot/internal/app"
	"castbot/internal/config"
	"castbot/internal/transport/telegram"
	logx "castbot/pkg/logx"
)

func newWebhookCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register, remove or inspect the Telegram webhook",
	}

	var drop bool
	set := &cobra.Command{
		Use:   "set [url]",
		Short: "Register the webhook (defaults to webhook.public_url / WEBHOOK_URL)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, tg, err := opts.adapter()
			if err != nil {
				return err
			}
			ws := app.MapWebhookSettings(cfg)
			if len(args) == 1 {
				ws.URL = strings.TrimSpace(args[0])
			}
			if ws.URL == "" {
				return errors.New("no webhook url: pass one or set WEBHOOK_URL")
			}
			ws.DropPending = ws.DropPending || drop
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := tg.SetWebhook(ctx, ws); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "webhook set: %s\n", ws.URL)
			return err
		},
	}
	set.Flags().BoolVar(&drop, "drop-pending", false, "drop updates queued while no webhook was set")

	var dropOnDelete bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, tg, err := opts.adapter()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := tg.DeleteWebhook(ctx, dropOnDelete); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return err
		},
	}
	del.Flags().BoolVar(&dropOnDelete, "drop-pending", false, "also drop pending updates")

	info := &cobra.Command{
		Use:   "info",
		Short: "Show the registered webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, tg, err := opts.adapter()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			wi, err := tg.WebhookInfo(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			url := wi.URL
			if url == "" {
				url = "(none)"
			}
			fmt.Fprintf(out, "url:     %s\n", url)
			fmt.Fprintf(out, "pending: %d\n", wi.PendingUpdates)
			if wi.LastError != "" {
				fmt.Fprintf(out, "error:   %s (%s)\n", wi.LastError, wi.LastErrorAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(set, del, info)
	return cmd
}

func (o *rootOptions) adapter() (*config.Config, *telegram.Adapter, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, nil, config.ErrMissingToken
	}
	tcfg, err := app.MapTelegramConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	tcfg.Offline = true
	tg, err := telegram.New(tcfg, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, nil, err
	}
	return cfg, tg, nil
}
