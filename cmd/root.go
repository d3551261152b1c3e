package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deckwatch",
		Short:         "deckwatch: follow taskdeck execution processes from the terminal",
		Long:          "deckwatch tails the live state stream of taskdeck execution processes and pages through their log history, using the same sync client the dashboard uses.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newWatchCmd(app),
		newLogsCmd(app),
	)

	return rootCmd
}
