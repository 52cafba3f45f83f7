package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/templui/goalstake/cmd/stakectl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "stakectl",
		Short:        "Operator tools for the stake and settlement engine",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.SettleCmd())
	rootCmd.AddCommand(cmd.SweepCmd())
	rootCmd.AddCommand(cmd.StatsCmd())
	rootCmd.AddCommand(cmd.PayoutsCmd())
	rootCmd.AddCommand(cmd.EscrowCmd())
	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.TokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
