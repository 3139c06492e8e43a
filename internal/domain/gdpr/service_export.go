package gdpr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"hrmprivacy/internal/platform/storage"
)

func (s *Service) CreateExportRequest(ctx context.Context, in CreateExportInput) (DataExportRequest, error) {
	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.RequesterID = strings.TrimSpace(in.RequesterID)
	format := strings.ToLower(strings.TrimSpace(in.ExportFormat))
	scope := strings.TrimSpace(in.ExportScope)
	if in.SubjectID == "" || in.RequesterID == "" {
		return DataExportRequest{}, fmt.Errorf("%w: subjectId and requesterId are required", ErrInvalidInput)
	}
	if format == "" {
		format = FormatJSON
	}
	if scope == "" {
		scope = ScopeCompleteProfile
	}
	if !supportedFormat(format) {
		return DataExportRequest{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if !slices.Contains(exportScopes, scope) {
		return DataExportRequest{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if in.ExpiryDays < 0 {
		return DataExportRequest{}, fmt.Errorf("%w: expiryDays must not be negative", ErrInvalidInput)
	}
	expiry := in.ExpiryDays
	if expiry == 0 {
		expiry = s.expiryDays
	}

	now := s.utcNow()
	req := DataExportRequest{
		ID:                uuid.NewString(),
		SubjectID:         in.SubjectID,
		RequesterID:       in.RequesterID,
		RequestDate:       now,
		Status:            ExportStatusPending,
		ExportFormat:      format,
		ExportScope:       scope,
		IncludeHistorical: in.IncludeHistorical,
		ExpiresAt:         now.AddDate(0, 0, expiry),
	}
	if _, err := s.store.CreateExportRequest(ctx, req); err != nil {
		return DataExportRequest{}, err
	}
	s.metrics.Transition("export", ExportStatusPending)
	s.logEvent(ctx, EventExportCreated, storage.TableExportRequests, req.ID, map[string]any{
		"subjectId": req.SubjectID,
		"format":    req.ExportFormat,
		"scope":     req.ExportScope,
		"expiresAt": req.ExpiresAt,
	})
	return req, nil
}

func (s *Service) GetExportRequest(ctx context.Context, id string) (DataExportRequest, error) {
	return s.store.GetExportRequest(ctx, id)
}

func (s *Service) ListExportRequests(ctx context.Context, subjectID, status string) ([]DataExportRequest, error) {
	var preds []storage.Predicate
	if subjectID = strings.TrimSpace(subjectID); subjectID != "" {
		preds = append(preds, storage.Eq("subject_id", subjectID))
	}
	if status = strings.TrimSpace(status); status != "" {
		preds = append(preds, storage.Eq("status", status))
	}
	return s.store.ListExportRequests(ctx, preds...)
}

// ProcessExportRequest collects, renders and stores the export file for a
// pending request.
func (s *Service) ProcessExportRequest(ctx context.Context, id string) error {
	req, err := s.store.GetExportRequest(ctx, id)
	if err != nil {
		return err
	}
	if IsTerminalExport(req.Status) {
		return nil
	}
	if req.Status != ExportStatusPending {
		return fmt.Errorf("%w: export request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	if !supportedFormat(req.ExportFormat) {
		return s.failExport(ctx, &req, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.ExportFormat))
	}

	if err := s.store.UpdateExportRequest(ctx, req.ID, storage.Row{"status": ExportStatusInProgress}); err != nil {
		return err
	}
	req.Status = ExportStatusInProgress
	s.metrics.Transition("export", ExportStatusInProgress)

	pkg, err := s.collector.Collect(ctx, req)
	if err != nil {
		return s.failExport(ctx, &req, err)
	}
	file, err := s.packager.Generate(pkg, req.ExportFormat)
	if err != nil {
		return s.failExport(ctx, &req, err)
	}
	path, size, encrypted, err := s.writeExport(req.ID, file)
	if err != nil {
		return s.failExport(ctx, &req, err)
	}

	completedAt := s.utcNow()
	if err := s.store.UpdateExportRequest(ctx, req.ID, storage.Row{
		"status":          ExportStatusCompleted,
		"completion_date": completedAt,
		"file_path":       path,
		"file_size":       size,
		"encrypted":       encrypted,
	}); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("export file removal failed", "exportId", req.ID, "err", rmErr)
		}
		return s.failExport(ctx, &req, fmt.Errorf("save completion: %w", err))
	}
	s.metrics.Transition("export", ExportStatusCompleted)
	s.logEvent(ctx, EventExportCompleted, storage.TableExportRequests, req.ID, map[string]any{
		"subjectId":    req.SubjectID,
		"format":       req.ExportFormat,
		"totalRecords": pkg.Metadata.TotalRecords,
		"dataSources":  pkg.Metadata.DataSources,
		"fileSize":     size,
		"encrypted":    encrypted,
	})
	return nil
}

// writeExport stores the file under the export dir, encrypted when a key is
// configured. The returned size is the number of bytes on disk.
func (s *Service) writeExport(id string, file ExportFile) (string, int64, bool, error) {
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return "", 0, false, err
	}
	data := file.Data
	path := filepath.Join(s.exportDir, file.Name)
	encrypted := false
	if s.crypto.Configured() {
		enc, err := s.crypto.Encrypt(data)
		if err != nil {
			return "", 0, false, fmt.Errorf("encrypt export %s: %w", id, err)
		}
		data = enc
		path += ".enc"
		encrypted = true
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", 0, false, err
	}
	return path, int64(len(data)), encrypted, nil
}

func (s *Service) failExport(ctx context.Context, req *DataExportRequest, cause error) error {
	msg := cause.Error()
	req.Status = ExportStatusFailed
	req.ErrorMessage = &msg
	if err := s.store.UpdateExportRequest(context.WithoutCancel(ctx), req.ID, storage.Row{
		"status":        ExportStatusFailed,
		"error_message": msg,
	}); err != nil {
		s.logger.Warn("export failure not recorded", "exportId", req.ID, "err", err)
	}
	s.metrics.Transition("export", ExportStatusFailed)
	s.logEvent(context.WithoutCancel(ctx), EventExportFailed, storage.TableExportRequests, req.ID, map[string]any{
		"subjectId": req.SubjectID,
		"error":     msg,
	})
	return fmt.Errorf("export request %s: %w", req.ID, cause)
}

func (s *Service) CancelExportRequest(ctx context.Context, id string) (DataExportRequest, error) {
	req, err := s.store.GetExportRequest(ctx, id)
	if err != nil {
		return DataExportRequest{}, err
	}
	if !CanTransitionExport(req.Status, ExportStatusCancelled) {
		return DataExportRequest{}, fmt.Errorf("%w: export request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	if err := s.store.UpdateExportRequest(ctx, req.ID, storage.Row{"status": ExportStatusCancelled}); err != nil {
		return DataExportRequest{}, err
	}
	req.Status = ExportStatusCancelled
	s.metrics.Transition("export", ExportStatusCancelled)
	s.logEvent(ctx, EventExportCancelled, storage.TableExportRequests, req.ID, map[string]any{"subjectId": req.SubjectID})
	return req, nil
}

// OpenExport returns the decrypted export file and counts the download.
func (s *Service) OpenExport(ctx context.Context, id string) (ExportFile, DataExportRequest, error) {
	req, err := s.store.GetExportRequest(ctx, id)
	if err != nil {
		return ExportFile{}, DataExportRequest{}, err
	}
	if req.Status == ExportStatusExpired || (req.Status == ExportStatusCompleted && !s.utcNow().Before(req.ExpiresAt)) {
		return ExportFile{}, req, ErrExportExpired
	}
	if req.Status != ExportStatusCompleted || req.FilePath == nil {
		return ExportFile{}, req, fmt.Errorf("%w: export request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	data, err := os.ReadFile(*req.FilePath)
	if err != nil {
		return ExportFile{}, req, fmt.Errorf("read export %s: %w", req.ID, err)
	}
	if req.Encrypted {
		if !s.crypto.Configured() {
			return ExportFile{}, req, fmt.Errorf("export %s is encrypted but no key is configured", req.ID)
		}
		if data, err = s.crypto.Decrypt(data); err != nil {
			return ExportFile{}, req, fmt.Errorf("decrypt export %s: %w", req.ID, err)
		}
	}

	req.DownloadCount++
	if err := s.store.UpdateExportRequest(ctx, req.ID, storage.Row{"download_count": req.DownloadCount}); err != nil {
		return ExportFile{}, req, err
	}
	s.logEvent(ctx, EventExportDownloaded, storage.TableExportRequests, req.ID, map[string]any{
		"subjectId":     req.SubjectID,
		"downloadCount": req.DownloadCount,
	})
	return ExportFile{
		Name:        req.ID + "." + req.ExportFormat,
		ContentType: ContentType(req.ExportFormat),
		Data:        data,
	}, req, nil
}

// CleanupExpiredExports removes files of exports past their expiry and marks
// them expired. Missing files are not an error.
func (s *Service) CleanupExpiredExports(ctx context.Context) (int, error) {
	now := s.utcNow()
	reqs, err := s.store.ListExportRequests(ctx, storage.Lt("expires_at", now))
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, req := range reqs {
		if !CanTransitionExport(req.Status, ExportStatusExpired) {
			continue
		}
		if req.FilePath != nil {
			if err := os.Remove(*req.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("export file removal failed", "exportId", req.ID, "err", err)
			}
		}
		if err := s.store.UpdateExportRequest(ctx, req.ID, storage.Row{
			"status":    ExportStatusExpired,
			"file_path": nil,
		}); err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", req.ID, err))
			continue
		}
		expired++
	}
	s.metrics.ExportsExpired(expired)
	if expired > 0 {
		s.logEvent(ctx, EventExportsExpired, storage.TableExportRequests, "", map[string]any{
			"expired": expired,
			"cutoff":  now,
		})
	}
	return expired, errors.Join(errs...)
}
