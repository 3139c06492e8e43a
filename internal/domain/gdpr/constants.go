package gdpr

const (
	ErasureStatusPending    = "pending"
	ErasureStatusInProgress = "in_progress"
	ErasureStatusCompleted  = "completed"
	ErasureStatusRejected   = "rejected"
	ErasureStatusCancelled  = "cancelled"
	ErasureStatusFailed     = "failed"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

const (
	ExportStatusPending    = "pending"
	ExportStatusInProgress = "in_progress"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
	ExportStatusCancelled  = "cancelled"
	ExportStatusExpired    = "expired"
)

const (
	PolicyStatusActive     = "active"
	PolicyStatusSuperseded = "superseded"
)

const (
	MethodHardDelete       = "hard_delete"
	MethodAnonymization    = "anonymization"
	MethodPseudonymization = "pseudonymization"
	MethodArchival         = "archival"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

const (
	ScopePersonalData    = "personal_data"
	ScopeEmploymentData  = "employment_data"
	ScopePayrollData     = "payroll_data"
	ScopeCompleteProfile = "complete_profile"
)

const (
	PolicyEmployeeRecords = "employee_records"
	PolicyPayrollData     = "payroll_data"
	PolicyTimesheetData   = "timesheet_data"
	PolicySicknessRecords = "sickness_records"
	PolicyWorkPatterns    = "work_patterns"
	PolicyDocuments       = "documents"
	PolicyAuditLogs       = "audit_logs"
)

const (
	CategoryEmployeeInfo    = "employee_info"
	CategoryPayrollResults  = "payroll_results"
	CategoryTimesheets      = "timesheets"
	CategorySicknessRecords = "sickness_records"
	CategoryWorkPatterns    = "work_patterns"
	CategoryDocuments       = "documents"
	CategoryAccessHistory   = "access_history"
)

// Audit event types emitted by the lifecycle controller.
const (
	EventErasureCreated      = "erasure_request_created"
	EventErasureStarted      = "erasure_request_started"
	EventErasureTable        = "erasure_table_processed"
	EventErasureCompleted    = "erasure_request_completed"
	EventErasureRejected     = "erasure_request_rejected"
	EventErasureFailed       = "erasure_request_failed"
	EventErasureCancelled    = "erasure_request_cancelled"
	EventErasureVerified     = "erasure_request_verified"
	EventExportCreated       = "export_request_created"
	EventExportCompleted     = "export_request_completed"
	EventExportFailed        = "export_request_failed"
	EventExportCancelled     = "export_request_cancelled"
	EventExportDownloaded    = "export_downloaded"
	EventExportsExpired      = "exports_expired"
	EventPolicyCreated       = "retention_policy_created"
	EventPolicySuperseded    = "retention_policy_superseded"
	EventRetentionScheduled  = "retention_job_scheduled"
	EventRetentionCompleted  = "retention_job_completed"
	EventRetentionFailed     = "retention_job_failed"
	EventRetentionCancelled  = "retention_job_cancelled"
	EventRetentionHoldIgnore = "retention_hold_override_ignored"
)

const (
	DefaultBatchSize        = 100
	DefaultExportExpiryDays = 30
	HistoricalWindowMonths  = 12
	ArchivedReasonErasure   = "right_to_erasure"
	ArchivedStatus          = "archived"
)

var (
	erasureMethods = []string{MethodHardDelete, MethodAnonymization, MethodPseudonymization, MethodArchival}
	exportFormats  = []string{FormatJSON, FormatCSV, FormatPDF}
	exportScopes   = []string{ScopePersonalData, ScopeEmploymentData, ScopePayrollData, ScopeCompleteProfile}
)

func ErasureMethods() []string { return append([]string(nil), erasureMethods...) }
func ExportFormats() []string  { return append([]string(nil), exportFormats...) }
func ExportScopes() []string   { return append([]string(nil), exportScopes...) }

func PolicyTypes() []string {
	return []string{
		PolicyEmployeeRecords,
		PolicyPayrollData,
		PolicyTimesheetData,
		PolicySicknessRecords,
		PolicyWorkPatterns,
		PolicyDocuments,
		PolicyAuditLogs,
	}
}
