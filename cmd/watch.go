package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/deckstream/pkg/api"
	"github.com/taskdeck/deckstream/pkg/logs"
)

func newWatchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <process-id>",
		Short: "Follow a process's log feed live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			feed := logs.NewFeed(args[0], logs.Config{
				History:  app.history,
				Stream:   app.stream,
				Cache:    app.cache,
				PageSize: app.cfg.PageSize,
				Running:  true,
				OnEntry: func(e api.LogEntry) {
					fmt.Fprintln(cmd.OutOrStdout(), formatEntry(e))
				},
			})

			if err := feed.Start(ctx); err != nil {
				return err
			}
			defer feed.Stop()

			for _, e := range feed.Entries() {
				if e.Source == "loading" {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatEntry(e))
			}

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := feed.Err(); err != nil {
						return err
					}
					if !feed.Running() {
						return nil
					}
				}
			}
		},
	}
}

func formatEntry(e api.LogEntry) string {
	ts := time.Unix(e.Timestamp, 0).Format(time.TimeOnly)
	return fmt.Sprintf("%s [%s] %s", ts, e.Level, e.Content)
}
