package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskdeck/deckstream/pkg/logs"
)

func newLogsCmd(app *app) *cobra.Command {
	var pages int

	cmd := &cobra.Command{
		Use:   "logs <process-id>",
		Short: "Print a process's log history, newest pages first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed := logs.NewFeed(args[0], logs.Config{
				History:  app.history,
				Cache:    app.cache,
				PageSize: app.cfg.PageSize,
			})

			if err := feed.Start(cmd.Context()); err != nil {
				return err
			}
			defer feed.Stop()

			for i := 1; i < pages && feed.HasMore(); i++ {
				if err := feed.LoadMore(cmd.Context()); err != nil {
					return err
				}
			}

			for _, e := range feed.Entries() {
				fmt.Fprintln(cmd.OutOrStdout(), formatEntry(e))
			}
			if feed.HasMore() {
				fmt.Fprintln(cmd.ErrOrStderr(), "older entries remain, rerun with --pages")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pages, "pages", 1, "number of history pages to fetch")
	return cmd
}
