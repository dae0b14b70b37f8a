package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/bnema/order-intake-bot/internal/adapters/chat/console"
	"github.com/bnema/order-intake-bot/internal/domain"
	"github.com/spf13/cobra"
)

func newSimulateCmd(app *app) *cobra.Command {
	var chatID int64

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Talk to the bot from the terminal against the configured ledger",
		Long:  "simulate reads lines from stdin and prints the bot's replies. Choices are numbered; type the number or the value. Start with /start.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			ledger, closeLedger, err := app.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedgerQuietly(app, closeLedger)

			gateway := console.NewGateway(cmd.OutOrStdout())
			service := app.newIntakeService(ledger, gateway)
			defer service.Close()

			if err := gateway.Run(ctx, cmd.InOrStdin(), domain.ChatID(chatID), service); err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat", 1, "Chat id used for the simulated conversation")

	return cmd
}
