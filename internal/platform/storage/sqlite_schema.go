package storage

// Schema creates the privacy engine tables on SQLite. Instants are stored as
// fixed-width UTC text, booleans as 0/1 and lists as JSON text.
const Schema = `
CREATE TABLE IF NOT EXISTS employees (
    id TEXT PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    email TEXT,
    phone TEXT,
    address TEXT,
    date_of_birth TEXT,
    national_insurance_number TEXT,
    bank_account_number TEXT,
    bank_sort_code TEXT,
    job_title TEXT,
    department TEXT,
    salary REAL,
    status TEXT,
    leave_date TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT,
    updated_at TEXT
);

CREATE TABLE IF NOT EXISTS payroll_results (
    id TEXT PRIMARY KEY,
    employee_id TEXT,
    period_start TEXT,
    period_end TEXT,
    gross_pay REAL,
    tax_deducted REAL,
    ni_deducted REAL,
    net_pay REAL,
    tax_code TEXT,
    status TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_payroll_results_employee ON payroll_results(employee_id);

CREATE TABLE IF NOT EXISTS timesheet_entries (
    id TEXT PRIMARY KEY,
    employee_id TEXT,
    entry_date TEXT,
    hours_worked REAL,
    notes TEXT,
    location TEXT,
    status TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_timesheet_entries_employee ON timesheet_entries(employee_id);

CREATE TABLE IF NOT EXISTS employee_sickness_records (
    id TEXT PRIMARY KEY,
    employee_id TEXT,
    start_date TEXT,
    end_date TEXT,
    reason TEXT,
    medical_notes TEXT,
    certificate_reference TEXT,
    status TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_sickness_records_employee ON employee_sickness_records(employee_id);

CREATE TABLE IF NOT EXISTS work_patterns (
    id TEXT PRIMARY KEY,
    employee_id TEXT,
    pattern_name TEXT,
    hours_per_week REAL,
    notes TEXT,
    status TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_work_patterns_employee ON work_patterns(employee_id);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    employee_id TEXT,
    title TEXT,
    file_name TEXT,
    file_path TEXT,
    description TEXT,
    status TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_employee ON documents(employee_id);

CREATE TABLE IF NOT EXISTS data_access_audit_log (
    id TEXT PRIMARY KEY,
    employee_id TEXT,
    event_type TEXT,
    table_name TEXT,
    record_id TEXT,
    accessed_by TEXT,
    ip_address TEXT,
    user_agent TEXT,
    details TEXT,
    status TEXT,
    archived_at TEXT,
    archived_reason TEXT,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_access_audit_employee ON data_access_audit_log(employee_id);
CREATE INDEX IF NOT EXISTS idx_access_audit_record ON data_access_audit_log(record_id);

CREATE TABLE IF NOT EXISTS legal_holds (
    id TEXT PRIMARY KEY,
    subject_id TEXT,
    table_name TEXT NOT NULL,
    record_id TEXT NOT NULL,
    reason TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_legal_holds_record ON legal_holds(table_name, record_id);

CREATE TABLE IF NOT EXISTS erasure_requests (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    requester_id TEXT NOT NULL,
    request_date TEXT NOT NULL,
    completion_date TEXT,
    status TEXT NOT NULL,
    erasure_method TEXT NOT NULL,
    reason TEXT,
    legal_basis TEXT,
    retention_override INTEGER NOT NULL DEFAULT 0,
    affected_tables TEXT,
    completed_tables TEXT,
    records_processed INTEGER NOT NULL DEFAULT 0,
    total_records INTEGER NOT NULL DEFAULT 0,
    verification_hash TEXT,
    notes TEXT
);

CREATE TABLE IF NOT EXISTS data_retention_policies (
    id TEXT PRIMARY KEY,
    policy_type TEXT NOT NULL,
    retention_period_months INTEGER NOT NULL,
    auto_delete INTEGER NOT NULL DEFAULT 0,
    legal_hold_override INTEGER NOT NULL DEFAULT 0,
    scope_id TEXT,
    description TEXT,
    status TEXT NOT NULL,
    superseded_by TEXT,
    created_at TEXT
);

CREATE TABLE IF NOT EXISTS data_retention_jobs (
    id TEXT PRIMARY KEY,
    policy_id TEXT NOT NULL,
    scheduled_date TEXT NOT NULL,
    execution_date TEXT,
    status TEXT NOT NULL,
    records_identified INTEGER NOT NULL DEFAULT 0,
    records_processed INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TEXT
);

CREATE TABLE IF NOT EXISTS data_export_requests (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    requester_id TEXT NOT NULL,
    request_date TEXT NOT NULL,
    completion_date TEXT,
    status TEXT NOT NULL,
    export_format TEXT NOT NULL,
    export_scope TEXT NOT NULL,
    include_historical INTEGER NOT NULL DEFAULT 0,
    file_path TEXT,
    file_size INTEGER,
    encrypted INTEGER NOT NULL DEFAULT 0,
    download_count INTEGER NOT NULL DEFAULT 0,
    expires_at TEXT NOT NULL,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    id TEXT PRIMARY KEY,
    actor_id TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    idempotency_key TEXT NOT NULL,
    request_hash TEXT NOT NULL,
    response_json TEXT NOT NULL,
    created_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_idempotency_keys_scope ON idempotency_keys(actor_id, endpoint, idempotency_key);
`
