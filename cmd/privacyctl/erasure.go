package main

import (
	"context"

	"github.com/spf13/cobra"

	"hrmprivacy/internal/app/server"
)

func newErasureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erasure",
		Short: "Run and inspect erasure requests",
	}

	run := func(resume bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				var runErr error
				if resume {
					runErr = app.Privacy.ResumeErasureRequest(ctx, args[0])
				} else {
					runErr = app.Privacy.ExecuteErasureRequest(ctx, args[0])
				}
				req, err := app.Privacy.GetErasureRequest(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), req); err != nil {
					return err
				}
				return runErr
			})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "execute <request-id>",
			Short: "Execute a pending erasure request",
			Args:  cobra.ExactArgs(1),
			RunE:  run(false),
		},
		&cobra.Command{
			Use:   "resume <request-id>",
			Short: "Resume a failed or interrupted erasure request",
			Args:  cobra.ExactArgs(1),
			RunE:  run(true),
		},
		&cobra.Command{
			Use:   "verify <request-id>",
			Short: "Check that a completed erasure left nothing behind",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(ctx context.Context, app *server.App) error {
					v, err := app.Privacy.VerifyErasure(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), v)
				})
			},
		},
	)
	return cmd
}
