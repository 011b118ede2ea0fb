package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"castbot/internal/app"
	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

func newSubscribersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "Manage the subscriber store offline",
	}

	withStore := func(fn func(ctx context.Context, cmd *cobra.Command, st storage.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			sc, err := app.MapStorageConfig(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := storage.Open(ctx, sc, logx.NewConsole(cfg.Logging.Level))
			if err != nil {
				return err
			}
			defer st.Close()
			return fn(ctx, cmd, st, args)
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print subscriber ids in subscription order",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st storage.Store, _ []string) error {
			ids, err := st.ListSubscribers(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}),
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Print the number of subscribers",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st storage.Store, _ []string) error {
			n, err := st.CountSubscribers(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		}),
	}

	add := &cobra.Command{
		Use:   "add <id>...",
		Short: "Subscribe chat ids or @channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st storage.Store, args []string) error {
			for _, id := range args {
				added, err := st.AddSubscriber(ctx, id)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				state := "added"
				if !added {
					state = "already subscribed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, state)
			}
			return nil
		}),
	}

	remove := &cobra.Command{
		Use:     "remove <id>...",
		Aliases: []string{"rm"},
		Short:   "Unsubscribe chat ids or @channels",
		Args:    cobra.MinimumNArgs(1),
		RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st storage.Store, args []string) error {
			for _, id := range args {
				removed, err := st.RemoveSubscriber(ctx, id)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				state := "removed"
				if !removed {
					state = "not subscribed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, state)
			}
			return nil
		}),
	}

	cmd.AddCommand(list, count, add, remove)
	return cmd
}
