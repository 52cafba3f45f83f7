package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/goalstake/internal/app"
	"github.com/templui/goalstake/internal/model"
)

// SettleCmd settles one cohort, or every due cohort when no date is given.
func SettleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle [YYYY-MM-DD]",
		Short: "Settle a deadline cohort and pay out winners",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withApp(cmd.Context(), func(a *app.App) error {
					reports, err := a.Scheduler.SettleDue(cmd.Context())
					if printErr := printJSON(cmd.OutOrStdout(), reports); printErr != nil {
						return printErr
					}
					return err
				})
			}

			cohort, err := cohortArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.SettlementService.SettleCohort(cmd.Context(), cohort)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.Complete() {
					return fmt.Errorf("%d payouts failed; rerun to retry them", len(report.Failures))
				}
				return nil
			})
		},
	}
}

func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail active goals past their deadline grace period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.LifecycleService.SweepExpired(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func StatsCmd() *cobra.Command {
	return cohortCmd("stats", "Show prize pool and payout estimates for a cohort", func(cmd *cobra.Command, a *app.App, cohort model.CohortDate) error {
		stats, err := a.SettlementService.GetCohortStatistics(cmd.Context(), cohort)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	})
}

func PayoutsCmd() *cobra.Command {
	return cohortCmd("payouts", "List recorded payouts of a cohort", func(cmd *cobra.Command, a *app.App, cohort model.CohortDate) error {
		payouts, err := a.SettlementService.ListCohortPayouts(cmd.Context(), cohort)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), payouts)
	})
}

func EscrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "escrow",
		Short: "Show the escrow address and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				status, err := a.SettlementService.EscrowStatus(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}
