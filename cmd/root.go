package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configFile string
	app := &app{}

	rootCmd := &cobra.Command{
		Use:           "intake",
		Short:         "Order intake bot: record completed quantities against the production ledger",
		Long:          "intake runs a Telegram bot that asks workers for their name, order, form/size and completed quantity, and writes the result to the shared ledger. It also inspects and seeds the ledger from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			wired, err := wireApp(configFile, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			*app = *wired
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.toml (default $INTAKE_CONFIG or ~/.config/intake/config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newSimulateCmd(app),
		newLedgerCmd(app),
	)

	return rootCmd
}
