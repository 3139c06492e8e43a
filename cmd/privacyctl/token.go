package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"hrmprivacy/internal/domain/auth"
	"hrmprivacy/internal/platform/config"
)

var knownRoles = []string{auth.RoleEmployee, auth.RoleManager, auth.RoleHR, auth.RoleSystemAdmin}

func newTokenCmd() *cobra.Command {
	var (
		user   string
		tenant string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			if !slices.Contains(knownRoles, role) {
				return fmt.Errorf("--role must be one of %v", knownRoles)
			}
			token, err := auth.GenerateToken(config.Load().JWTSecret, auth.Claims{
				UserID:   user,
				TenantID: tenant,
				RoleID:   role,
				RoleName: role,
			}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id placed in the token")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id placed in the token")
	cmd.Flags().StringVar(&role, "role", auth.RoleHR, "role name")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	return cmd
}
