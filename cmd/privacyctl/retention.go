package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"hrmprivacy/internal/app/server"
)

func newRetentionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Manage retention policies and jobs",
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Schedule and execute a job for every active auto-delete policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				n, err := app.Privacy.RunAutomaticRetention(ctx)
				if perr := printJSON(cmd.OutOrStdout(), map[string]int{"executed": n}); perr != nil {
					return perr
				}
				return err
			})
		},
	}

	policies := &cobra.Command{
		Use:   "policies",
		Short: "List retention policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				list, err := app.Privacy.ListPolicies(ctx, all)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			})
		},
	}
	policies.Flags().Bool("all", false, "include superseded policies")

	schedule := &cobra.Command{
		Use:   "schedule <policy-id>",
		Short: "Schedule a retention job for a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("date")
			var at time.Time
			if raw != "" {
				parsed, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return err
				}
				at = parsed
			}
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				job, err := app.Privacy.ScheduleRetentionJob(ctx, args[0], at)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), job)
			})
		},
	}
	schedule.Flags().String("date", "", "scheduled date (RFC3339, default now)")

	execute := &cobra.Command{
		Use:   "execute <job-id>",
		Short: "Execute a pending retention job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				runErr := app.Privacy.ExecuteRetentionJob(ctx, args[0])
				job, err := app.Privacy.GetRetentionJob(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), job); err != nil {
					return err
				}
				return runErr
			})
		},
	}

	cmd.AddCommand(sweep, policies, schedule, execute)
	return cmd
}
