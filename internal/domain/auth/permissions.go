package auth

import (
	"context"
	"slices"
)

const (
	PermErasureRead    = "privacy.erasure.read"
	PermErasureWrite   = "privacy.erasure.write"
	PermExportRead     = "privacy.export.read"
	PermExportWrite    = "privacy.export.write"
	PermExportDownload = "privacy.export.download"
	PermRetentionRead  = "privacy.retention.read"
	PermRetentionWrite = "privacy.retention.write"
	PermAuditRead      = "audit.read"
)

var DefaultPermissions = []string{
	PermErasureRead,
	PermErasureWrite,
	PermExportRead,
	PermExportWrite,
	PermExportDownload,
	PermRetentionRead,
	PermRetentionWrite,
	PermAuditRead,
}

// RolePermissions grants every privacy mutation to hr and system_admin only.
var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermExportRead,
	},
	RoleManager: {
		PermErasureRead,
		PermExportRead,
		PermRetentionRead,
	},
	RoleHR:          DefaultPermissions,
	RoleSystemAdmin: DefaultPermissions,
}

// RolePermissionStore answers permission checks from RolePermissions.
type RolePermissionStore struct{}

func (RolePermissionStore) HasPermission(_ context.Context, role, permission string) (bool, error) {
	return HasPermission(role, permission), nil
}

func HasPermission(role, permission string) bool {
	return slices.Contains(RolePermissions[role], permission)
}
