// Package storage is the tabular gateway the privacy engine reads and mutates
// through. Every backend exposes the same per-table operations over a fixed
// set of tables so the engine never builds SQL itself.
package storage

import (
	"context"
	"fmt"
)

const (
	TableEmployees         = "employees"
	TablePayrollResults    = "payroll_results"
	TableTimesheetEntries  = "timesheet_entries"
	TableSicknessRecords   = "employee_sickness_records"
	TableWorkPatterns      = "work_patterns"
	TableDocuments         = "documents"
	TableAccessAuditLog    = "data_access_audit_log"
	TableLegalHolds        = "legal_holds"
	TableErasureRequests   = "erasure_requests"
	TableRetentionPolicies = "data_retention_policies"
	TableRetentionJobs     = "data_retention_jobs"
	TableExportRequests    = "data_export_requests"
	TableIdempotencyKeys   = "idempotency_keys"
)

var knownTables = map[string]struct{}{
	TableEmployees:         {},
	TablePayrollResults:    {},
	TableTimesheetEntries:  {},
	TableSicknessRecords:   {},
	TableWorkPatterns:      {},
	TableDocuments:         {},
	TableAccessAuditLog:    {},
	TableLegalHolds:        {},
	TableErasureRequests:   {},
	TableRetentionPolicies: {},
	TableRetentionJobs:     {},
	TableExportRequests:    {},
	TableIdempotencyKeys:   {},
}

// Gateway is the per-table contract shared by the memory, SQLite and
// PostgreSQL backends. Rows are keyed by their "id" column.
type Gateway interface {
	Select(ctx context.Context, table string, preds ...Predicate) ([]Row, error)
	// Insert stores row and returns its id, generating one when row has none.
	Insert(ctx context.Context, table string, row Row) (string, error)
	// Update merges fields into the row with the given id. A nil value clears
	// the column. Missing rows yield ErrNotFound.
	Update(ctx context.Context, table, id string, fields Row) error
	UpdateBatch(ctx context.Context, table string, ids []string, fields Row) (int64, error)
	Delete(ctx context.Context, table string, ids ...string) (int64, error)
}

// KnownTable reports whether table belongs to the gateway's table set.
func KnownTable(table string) bool {
	_, ok := knownTables[table]
	return ok
}

func checkTable(backend, op, table string) error {
	if KnownTable(table) {
		return nil
	}
	return &Error{Backend: backend, Operation: op, Table: table, Cause: fmt.Errorf("%w: %q", ErrUnknownTable, table)}
}
