package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/templui/goalstake/internal/app"
	"github.com/templui/goalstake/internal/config"
	"github.com/templui/goalstake/internal/logger"
	"github.com/templui/goalstake/internal/model"
)

// withApp loads config, wires the app and runs fn against it.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	logger.Init(true, cfg.LogLevel, cfg.SentryDSN)
	defer logger.Flush()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cohortArg(args []string) (model.CohortDate, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected one cohort date (YYYY-MM-DD)")
	}
	return model.ParseCohortDate(args[0])
}

func cohortCmd(use, short string, run func(cmd *cobra.Command, a *app.App, cohort model.CohortDate) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <YYYY-MM-DD>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cohort, err := cohortArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				return run(cmd, a, cohort)
			})
		},
	}
}
