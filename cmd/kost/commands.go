package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	billingdomain "github.com/smallbiznis/kost/internal/billing/domain"
	obsmetrics "github.com/smallbiznis/kost/internal/observability/metrics"
	"github.com/smallbiznis/kost/internal/scheduler"
	"github.com/smallbiznis/kost/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API and the billing scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(
				infra(),
				domains(),
				scheduler.Run,
				server.Module,
			).Run()
			return nil
		},
	}
}

func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run only the monthly bill generation scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(
				infra(),
				domains(),
				scheduler.Run,
			).Run()
			return nil
		},
	}
}

func generateBillsCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "generate-bills",
		Short: "Generate this month's bills for all active tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			app := fx.New(
				fx.NopLogger,
				infra(),
				domains(),
				fx.Populate(&sched),
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer stopCancel()
				_ = app.Stop(stopCtx)
			}()

			summary, err := sched.RunNow(ctx)
			// A timed out run still reports the tenants it got through.
			if err != nil && !errors.Is(err, obsmetrics.ErrPartialFailure) && len(summary.Results) == 0 {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "overall deadline for the run")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(fx.NopLogger, infra())
			if err := app.Err(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func printSummary(w io.Writer, summary billingdomain.GenerateSummary) {
	for _, result := range summary.Results {
		switch result.Outcome {
		case billingdomain.OutcomeGenerated:
			fmt.Fprintf(w, "generated  %-24s %s\n", result.TenantName, result.BillNumber)
		case billingdomain.OutcomeSkipped:
			fmt.Fprintf(w, "skipped    %-24s %s\n", result.TenantName, result.Error)
		default:
			fmt.Fprintf(w, "failed     %-24s %s\n", result.TenantName, result.Error)
		}
	}
	fmt.Fprintf(w, "period %s: %d tenants, %d generated, %d skipped, %d failed\n",
		summary.PeriodKey,
		summary.TenantsConsidered,
		summary.Generated,
		summary.Skipped,
		summary.Failed,
	)
}
