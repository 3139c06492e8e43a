package main

import (
	"context"

	"github.com/spf13/cobra"

	"hrmprivacy/internal/app/server"
)

func newExportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Maintain data export files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired export files and mark their requests expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				n, err := app.Privacy.CleanupExpiredExports(ctx)
				if perr := printJSON(cmd.OutOrStdout(), map[string]int{"expired": n}); perr != nil {
					return perr
				}
				return err
			})
		},
	})
	return cmd
}
