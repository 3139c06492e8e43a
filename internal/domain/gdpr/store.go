package gdpr

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"hrmprivacy/internal/platform/storage"
)

// Store maps the engine's request, job, policy and hold tables onto typed
// models through the storage gateway.
type Store struct {
	gateway storage.Gateway
}

func NewStore(gateway storage.Gateway) *Store {
	return &Store{gateway: gateway}
}

func (s *Store) getOne(ctx context.Context, table, id string, notFound error) (storage.Row, error) {
	if id == "" {
		return nil, notFound
	}
	rows, err := s.gateway.Select(ctx, table, storage.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound
	}
	return rows[0], nil
}

func (s *Store) update(ctx context.Context, table, id string, fields storage.Row, notFound error) error {
	err := s.gateway.Update(ctx, table, id, fields)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return err
}

// Erasure requests.

func (s *Store) CreateErasureRequest(ctx context.Context, req ErasureRequest) (string, error) {
	return s.gateway.Insert(ctx, storage.TableErasureRequests, storage.Row{
		"id":                 req.ID,
		"subject_id":         req.SubjectID,
		"requester_id":       req.RequesterID,
		"request_date":       req.RequestDate,
		"status":             req.Status,
		"erasure_method":     req.ErasureMethod,
		"reason":             req.Reason,
		"legal_basis":        req.LegalBasis,
		"retention_override": req.RetentionOverride,
		"affected_tables":    normalizeTables(req.AffectedTables),
		"completed_tables":   normalizeTables(req.CompletedTables),
		"records_processed":  req.RecordsProcessed,
		"total_records":      req.TotalRecords,
	})
}

func (s *Store) GetErasureRequest(ctx context.Context, id string) (ErasureRequest, error) {
	row, err := s.getOne(ctx, storage.TableErasureRequests, id, ErrRequestNotFound)
	if err != nil {
		return ErasureRequest{}, err
	}
	return erasureFromRow(row), nil
}

func (s *Store) ListErasureRequests(ctx context.Context, subjectID, status string) ([]ErasureRequest, error) {
	var preds []storage.Predicate
	if subjectID != "" {
		preds = append(preds, storage.Eq("subject_id", subjectID))
	}
	if status != "" {
		preds = append(preds, storage.Eq("status", status))
	}
	rows, err := s.gateway.Select(ctx, storage.TableErasureRequests, preds...)
	if err != nil {
		return nil, err
	}
	out := make([]ErasureRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, erasureFromRow(row))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out, nil
}

func (s *Store) UpdateErasureRequest(ctx context.Context, id string, fields storage.Row) error {
	return s.update(ctx, storage.TableErasureRequests, id, fields, ErrRequestNotFound)
}

func erasureFromRow(row storage.Row) ErasureRequest {
	return ErasureRequest{
		ID:                row.Str("id"),
		SubjectID:         row.Str("subject_id"),
		RequesterID:       row.Str("requester_id"),
		RequestDate:       row.Time("request_date"),
		CompletionDate:    row.TimePtr("completion_date"),
		Status:            row.Str("status"),
		ErasureMethod:     row.Str("erasure_method"),
		Reason:            row.Str("reason"),
		LegalBasis:        row.StrPtr("legal_basis"),
		RetentionOverride: row.Bool("retention_override"),
		AffectedTables:    normalizeTables(row.Strings("affected_tables")),
		CompletedTables:   normalizeTables(row.Strings("completed_tables")),
		RecordsProcessed:  row.Int("records_processed"),
		TotalRecords:      row.Int("total_records"),
		VerificationHash:  row.StrPtr("verification_hash"),
		Notes:             row.StrPtr("notes"),
	}
}

// Export requests.

func (s *Store) CreateExportRequest(ctx context.Context, req DataExportRequest) (string, error) {
	return s.gateway.Insert(ctx, storage.TableExportRequests, storage.Row{
		"id":                 req.ID,
		"subject_id":         req.SubjectID,
		"requester_id":       req.RequesterID,
		"request_date":       req.RequestDate,
		"status":             req.Status,
		"export_format":      req.ExportFormat,
		"export_scope":       req.ExportScope,
		"include_historical": req.IncludeHistorical,
		"encrypted":          false,
		"download_count":     0,
		"expires_at":         req.ExpiresAt,
	})
}

func (s *Store) GetExportRequest(ctx context.Context, id string) (DataExportRequest, error) {
	row, err := s.getOne(ctx, storage.TableExportRequests, id, ErrExportNotFound)
	if err != nil {
		return DataExportRequest{}, err
	}
	return exportFromRow(row), nil
}

func (s *Store) ListExportRequests(ctx context.Context, preds ...storage.Predicate) ([]DataExportRequest, error) {
	rows, err := s.gateway.Select(ctx, storage.TableExportRequests, preds...)
	if err != nil {
		return nil, err
	}
	out := make([]DataExportRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, exportFromRow(row))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out, nil
}

func (s *Store) UpdateExportRequest(ctx context.Context, id string, fields storage.Row) error {
	return s.update(ctx, storage.TableExportRequests, id, fields, ErrExportNotFound)
}

func exportFromRow(row storage.Row) DataExportRequest {
	req := DataExportRequest{
		ID:                row.Str("id"),
		SubjectID:         row.Str("subject_id"),
		RequesterID:       row.Str("requester_id"),
		RequestDate:       row.Time("request_date"),
		CompletionDate:    row.TimePtr("completion_date"),
		Status:            row.Str("status"),
		ExportFormat:      row.Str("export_format"),
		ExportScope:       row.Str("export_scope"),
		IncludeHistorical: row.Bool("include_historical"),
		FilePath:          row.StrPtr("file_path"),
		Encrypted:         row.Bool("encrypted"),
		DownloadCount:     row.Int("download_count"),
		ExpiresAt:         row.Time("expires_at"),
		ErrorMessage:      row.StrPtr("error_message"),
	}
	if row["file_size"] != nil {
		size := row.Int64("file_size")
		req.FileSize = &size
	}
	return req
}

// Retention policies.

func (s *Store) CreatePolicy(ctx context.Context, p RetentionPolicy) (string, error) {
	return s.gateway.Insert(ctx, storage.TableRetentionPolicies, storage.Row{
		"id":                      p.ID,
		"policy_type":             p.PolicyType,
		"retention_period_months": p.RetentionPeriodMonths,
		"auto_delete":             p.AutoDelete,
		"legal_hold_override":     p.LegalHoldOverride,
		"scope_id":                p.ScopeID,
		"description":             p.Description,
		"status":                  p.Status,
		"created_at":              p.CreatedAt,
	})
}

func (s *Store) GetPolicy(ctx context.Context, id string) (RetentionPolicy, error) {
	row, err := s.getOne(ctx, storage.TableRetentionPolicies, id, ErrPolicyNotFound)
	if err != nil {
		return RetentionPolicy{}, err
	}
	return policyFromRow(row), nil
}

func (s *Store) ListPolicies(ctx context.Context, preds ...storage.Predicate) ([]RetentionPolicy, error) {
	rows, err := s.gateway.Select(ctx, storage.TableRetentionPolicies, preds...)
	if err != nil {
		return nil, err
	}
	out := make([]RetentionPolicy, 0, len(rows))
	for _, row := range rows {
		out = append(out, policyFromRow(row))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PolicyType == out[j].PolicyType {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PolicyType < out[j].PolicyType
	})
	return out, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, id string, fields storage.Row) error {
	return s.update(ctx, storage.TableRetentionPolicies, id, fields, ErrPolicyNotFound)
}

func policyFromRow(row storage.Row) RetentionPolicy {
	return RetentionPolicy{
		ID:                    row.Str("id"),
		PolicyType:            row.Str("policy_type"),
		RetentionPeriodMonths: row.Int("retention_period_months"),
		AutoDelete:            row.Bool("auto_delete"),
		LegalHoldOverride:     row.Bool("legal_hold_override"),
		ScopeID:               row.StrPtr("scope_id"),
		Description:           row.Str("description"),
		Status:                row.Str("status"),
		SupersededBy:          row.StrPtr("superseded_by"),
		CreatedAt:             row.Time("created_at"),
	}
}

// Retention jobs.

func (s *Store) CreateJob(ctx context.Context, job RetentionJob) (string, error) {
	return s.gateway.Insert(ctx, storage.TableRetentionJobs, storage.Row{
		"id":                 job.ID,
		"policy_id":          job.PolicyID,
		"scheduled_date":     job.ScheduledDate,
		"status":             job.Status,
		"records_identified": job.RecordsIdentified,
		"records_processed":  job.RecordsProcessed,
		"created_at":         job.CreatedAt,
	})
}

func (s *Store) GetJob(ctx context.Context, id string) (RetentionJob, error) {
	row, err := s.getOne(ctx, storage.TableRetentionJobs, id, ErrJobNotFound)
	if err != nil {
		return RetentionJob{}, err
	}
	return jobFromRow(row), nil
}

func (s *Store) ListJobs(ctx context.Context, policyID string) ([]RetentionJob, error) {
	var preds []storage.Predicate
	if policyID != "" {
		preds = append(preds, storage.Eq("policy_id", policyID))
	}
	rows, err := s.gateway.Select(ctx, storage.TableRetentionJobs, preds...)
	if err != nil {
		return nil, err
	}
	out := make([]RetentionJob, 0, len(rows))
	for _, row := range rows {
		out = append(out, jobFromRow(row))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledDate.After(out[j].ScheduledDate) })
	return out, nil
}

func (s *Store) UpdateJob(ctx context.Context, id string, fields storage.Row) error {
	return s.update(ctx, storage.TableRetentionJobs, id, fields, ErrJobNotFound)
}

func jobFromRow(row storage.Row) RetentionJob {
	return RetentionJob{
		ID:                row.Str("id"),
		PolicyID:          row.Str("policy_id"),
		ScheduledDate:     row.Time("scheduled_date"),
		ExecutionDate:     row.TimePtr("execution_date"),
		Status:            row.Str("status"),
		RecordsIdentified: row.Int("records_identified"),
		RecordsProcessed:  row.Int("records_processed"),
		ErrorMessage:      row.StrPtr("error_message"),
		CreatedAt:         row.Time("created_at"),
	}
}

// Legal holds.

func (s *Store) ActiveHolds(ctx context.Context, subjectID string) ([]LegalHold, error) {
	rows, err := s.gateway.Select(ctx, storage.TableLegalHolds,
		storage.Eq("subject_id", subjectID),
		storage.Eq("is_active", true),
	)
	if err != nil {
		return nil, err
	}
	out := make([]LegalHold, 0, len(rows))
	for _, row := range rows {
		out = append(out, holdFromRow(row))
	}
	return out, nil
}

// HeldRecordIDs returns the subset of ids in table under an active hold.
func (s *Store) HeldRecordIDs(ctx context.Context, table string, ids []string) (map[string]bool, error) {
	held := make(map[string]bool)
	if len(ids) == 0 {
		return held, nil
	}
	rows, err := s.gateway.Select(ctx, storage.TableLegalHolds,
		storage.Eq("table_name", table),
		storage.Eq("is_active", true),
		storage.In("record_id", ids),
	)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		held[row.Str("record_id")] = true
	}
	return held, nil
}

func holdFromRow(row storage.Row) LegalHold {
	return LegalHold{
		ID:        row.Str("id"),
		SubjectID: row.Str("subject_id"),
		TableName: row.Str("table_name"),
		RecordID:  row.Str("record_id"),
		Reason:    row.Str("reason"),
		IsActive:  row.Bool("is_active"),
	}
}
