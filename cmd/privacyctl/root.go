package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hrmprivacy/internal/app/server"
	"hrmprivacy/internal/platform/config"
	"hrmprivacy/internal/requestctx"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "privacyctl",
		Short: "Operate the HR data lifecycle compliance engine",
		Long: `privacyctl runs retention sweeps, erasure requests, export cleanup and
token minting directly against the storage configured through the
environment (STORAGE_DRIVER, DATABASE_URL, SQLITE_PATH, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("actor", "privacyctl", "actor id recorded in audit events")
	root.AddCommand(newRetentionCmd(), newErasureCmd(), newExportsCmd(), newTokenCmd())
	return root
}

// withApp opens the engine for one command and closes it afterwards.
func withApp(cmd *cobra.Command, run func(ctx context.Context, app *server.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	actor, _ := cmd.Flags().GetString("actor")
	ctx = requestctx.WithActorID(ctx, actor)

	app, err := server.New(ctx, config.Load())
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer app.Close()
	return run(ctx, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
