package gdpr

import "time"

type RetentionPolicy struct {
	ID                    string    `json:"id"`
	PolicyType            string    `json:"policyType"`
	RetentionPeriodMonths int       `json:"retentionPeriodMonths"`
	AutoDelete            bool      `json:"autoDelete"`
	LegalHoldOverride     bool      `json:"legalHoldOverride"`
	ScopeID               *string   `json:"scopeId,omitempty"`
	Description           string    `json:"description"`
	Status                string    `json:"status"`
	SupersededBy          *string   `json:"supersededBy,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
}

type RetentionJob struct {
	ID                string     `json:"id"`
	PolicyID          string     `json:"policyId"`
	ScheduledDate     time.Time  `json:"scheduledDate"`
	ExecutionDate     *time.Time `json:"executionDate,omitempty"`
	Status            string     `json:"status"`
	RecordsIdentified int        `json:"recordsIdentified"`
	RecordsProcessed  int        `json:"recordsProcessed"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type ErasureRequest struct {
	ID                string     `json:"id"`
	SubjectID         string     `json:"subjectId"`
	RequesterID       string     `json:"requesterId"`
	RequestDate       time.Time  `json:"requestDate"`
	CompletionDate    *time.Time `json:"completionDate,omitempty"`
	Status            string     `json:"status"`
	ErasureMethod     string     `json:"erasureMethod"`
	Reason            string     `json:"reason"`
	LegalBasis        *string    `json:"legalBasis,omitempty"`
	RetentionOverride bool       `json:"retentionOverride"`
	AffectedTables    []string   `json:"affectedTables"`
	CompletedTables   []string   `json:"completedTables"`
	RecordsProcessed  int        `json:"recordsProcessed"`
	TotalRecords      int        `json:"totalRecords"`
	VerificationHash  *string    `json:"verificationHash,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
}

// ErasureScope is the set of records one table holds for a subject. It is
// recomputed on every execution and never stored.
type ErasureScope struct {
	Table           string   `json:"table"`
	RecordIDs       []string `json:"recordIds"`
	SensitiveFields []string `json:"sensitiveFields"`
	Dependencies    []string `json:"dependencies"`
}

type LegalHold struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	TableName string `json:"tableName"`
	RecordID  string `json:"recordId"`
	Reason    string `json:"reason"`
	IsActive  bool   `json:"isActive"`
}

type DataExportRequest struct {
	ID                string     `json:"id"`
	SubjectID         string     `json:"subjectId"`
	RequesterID       string     `json:"requesterId"`
	RequestDate       time.Time  `json:"requestDate"`
	CompletionDate    *time.Time `json:"completionDate,omitempty"`
	Status            string     `json:"status"`
	ExportFormat      string     `json:"exportFormat"`
	ExportScope       string     `json:"exportScope"`
	IncludeHistorical bool       `json:"includeHistorical"`
	FilePath          *string    `json:"filePath,omitempty"`
	FileSize          *int64     `json:"fileSize,omitempty"`
	Encrypted         bool       `json:"encrypted"`
	DownloadCount     int        `json:"downloadCount"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	ErrorMessage      *string    `json:"errorMessage,omitempty"`
}

type ExportMetadata struct {
	RequestID    string    `json:"requestId"`
	ExportDate   time.Time `json:"exportDate"`
	Format       string    `json:"format"`
	Scope        string    `json:"scope"`
	TotalRecords int       `json:"totalRecords"`
	DataSources  []string  `json:"dataSources"`
}

// PersonalDataPackage holds the collected records per category, in
// collection order.
type PersonalDataPackage struct {
	Metadata   ExportMetadata
	Categories []CategoryData
}

type CategoryData struct {
	Name    string
	Table   string
	Records []map[string]any
}

// Records returns the records of the named category, or nil.
func (p PersonalDataPackage) Records(name string) []map[string]any {
	for _, c := range p.Categories {
		if c.Name == name {
			return c.Records
		}
	}
	return nil
}

type ExpiredRecords struct {
	PolicyType string    `json:"policyType"`
	Table      string    `json:"table"`
	Cutoff     time.Time `json:"cutoff"`
	RecordIDs  []string  `json:"recordIds"`
	TotalCount int       `json:"totalCount"`
}

type Verification struct {
	RequestID        string    `json:"requestId"`
	Method           string    `json:"method"`
	Verified         bool      `json:"verified"`
	RemainingRecords int       `json:"remainingRecords"`
	VerificationHash string    `json:"verificationHash,omitempty"`
	CheckedAt        time.Time `json:"checkedAt"`
}

type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type CreateErasureInput struct {
	SubjectID         string `json:"subjectId"`
	RequesterID       string `json:"requesterId"`
	Reason            string `json:"reason"`
	ErasureMethod     string `json:"erasureMethod"`
	LegalBasis        string `json:"legalBasis"`
	RetentionOverride bool   `json:"retentionOverride"`
}

type CreateExportInput struct {
	SubjectID         string `json:"subjectId"`
	RequesterID       string `json:"requesterId"`
	ExportFormat      string `json:"exportFormat"`
	ExportScope       string `json:"exportScope"`
	IncludeHistorical bool   `json:"includeHistorical"`
	ExpiryDays        int    `json:"expiryDays"`
}

type PolicyInput struct {
	PolicyType            string `json:"policyType"`
	RetentionPeriodMonths int    `json:"retentionPeriodMonths"`
	AutoDelete            bool   `json:"autoDelete"`
	LegalHoldOverride     bool   `json:"legalHoldOverride"`
	ScopeID               string `json:"scopeId"`
	Description           string `json:"description"`
}
