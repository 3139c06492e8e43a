package gdpr

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"hrmprivacy/internal/platform/storage"
)

func (s *Service) CreateErasureRequest(ctx context.Context, in CreateErasureInput) (ErasureRequest, error) {
	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.RequesterID = strings.TrimSpace(in.RequesterID)
	in.ErasureMethod = strings.TrimSpace(in.ErasureMethod)
	if in.SubjectID == "" || in.RequesterID == "" {
		return ErasureRequest{}, fmt.Errorf("%w: subjectId and requesterId are required", ErrInvalidInput)
	}
	if !slices.Contains(erasureMethods, in.ErasureMethod) {
		return ErasureRequest{}, fmt.Errorf("%w: %q", ErrInvalidMethod, in.ErasureMethod)
	}

	scopes, err := s.scope.Analyze(ctx, in.SubjectID)
	if err != nil {
		return ErasureRequest{}, err
	}
	req := ErasureRequest{
		ID:                uuid.NewString(),
		SubjectID:         in.SubjectID,
		RequesterID:       in.RequesterID,
		RequestDate:       s.utcNow(),
		Status:            ErasureStatusPending,
		ErasureMethod:     in.ErasureMethod,
		Reason:            strings.TrimSpace(in.Reason),
		RetentionOverride: in.RetentionOverride,
		AffectedTables:    scopeTables(scopes),
		CompletedTables:   []string{},
		TotalRecords:      CountRecords(scopes),
	}
	if basis := strings.TrimSpace(in.LegalBasis); basis != "" {
		req.LegalBasis = &basis
	}
	if _, err := s.store.CreateErasureRequest(ctx, req); err != nil {
		return ErasureRequest{}, err
	}
	s.metrics.Transition("erasure", ErasureStatusPending)
	s.logEvent(ctx, EventErasureCreated, storage.TableErasureRequests, req.ID, map[string]any{
		"subjectId":         req.SubjectID,
		"method":            req.ErasureMethod,
		"retentionOverride": req.RetentionOverride,
		"affectedTables":    req.AffectedTables,
		"totalRecords":      req.TotalRecords,
	})
	return req, nil
}

func (s *Service) GetErasureRequest(ctx context.Context, id string) (ErasureRequest, error) {
	return s.store.GetErasureRequest(ctx, id)
}

func (s *Service) ListErasureRequests(ctx context.Context, subjectID, status string) ([]ErasureRequest, error) {
	return s.store.ListErasureRequests(ctx, strings.TrimSpace(subjectID), strings.TrimSpace(status))
}

// ExecuteErasureRequest runs a pending request. Requests already in a
// terminal state are left alone.
func (s *Service) ExecuteErasureRequest(ctx context.Context, id string) error {
	return s.runErasure(ctx, id, false)
}

// ResumeErasureRequest continues a failed or interrupted request from the
// first table it has not finished.
func (s *Service) ResumeErasureRequest(ctx context.Context, id string) error {
	return s.runErasure(ctx, id, true)
}

func (s *Service) runErasure(ctx context.Context, id string, resume bool) error {
	req, err := s.store.GetErasureRequest(ctx, id)
	if err != nil {
		return err
	}
	if !resume && IsTerminalErasure(req.Status) {
		return nil
	}
	if err := checkRunnable(req, resume); err != nil {
		return err
	}

	release, err := s.locker.Lock(ctx, "subject:"+req.SubjectID)
	if err != nil {
		return fmt.Errorf("lock subject %s: %w", req.SubjectID, err)
	}
	defer release()

	// state may have moved while waiting on the lock
	req, err = s.store.GetErasureRequest(ctx, id)
	if err != nil {
		return err
	}
	if !resume && IsTerminalErasure(req.Status) {
		return nil
	}
	if err := checkRunnable(req, resume); err != nil {
		return err
	}

	scopes, err := s.scope.Analyze(ctx, req.SubjectID)
	if err != nil {
		return s.failErasure(ctx, &req, err)
	}

	if !resume && MethodBlockedByHolds(req.ErasureMethod) && !req.RetentionOverride {
		holds, err := s.store.ActiveHolds(ctx, req.SubjectID)
		if err != nil {
			return s.failErasure(ctx, &req, fmt.Errorf("load legal holds: %w", err))
		}
		if len(holds) > 0 {
			return s.rejectErasure(ctx, req, holds)
		}
	}

	remaining := 0
	for _, scope := range scopes {
		if !slices.Contains(req.CompletedTables, scope.Table) {
			remaining += len(scope.RecordIDs)
		}
	}
	req.Status = ErasureStatusInProgress
	req.TotalRecords = req.RecordsProcessed + remaining
	fields := storage.Row{
		"status":        ErasureStatusInProgress,
		"total_records": req.TotalRecords,
	}
	if !resume {
		req.AffectedTables = scopeTables(scopes)
		fields["affected_tables"] = req.AffectedTables
	}
	if err := s.store.UpdateErasureRequest(ctx, req.ID, fields); err != nil {
		return err
	}
	s.metrics.Transition("erasure", ErasureStatusInProgress)
	s.logEvent(ctx, EventErasureStarted, storage.TableErasureRequests, req.ID, map[string]any{
		"subjectId":    req.SubjectID,
		"method":       req.ErasureMethod,
		"resumed":      resume,
		"totalRecords": req.TotalRecords,
	})

	for _, scope := range scopes {
		if slices.Contains(req.CompletedTables, scope.Table) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return s.failErasure(ctx, &req, err)
		}
		n, err := s.executor.Execute(ctx, scope, req.ErasureMethod, req.RetentionOverride)
		req.RecordsProcessed += n
		if err != nil {
			return s.failErasure(ctx, &req, fmt.Errorf("%s: %w", scope.Table, err))
		}
		req.CompletedTables = append(req.CompletedTables, scope.Table)
		if err := s.store.UpdateErasureRequest(ctx, req.ID, storage.Row{
			"completed_tables":  req.CompletedTables,
			"records_processed": req.RecordsProcessed,
		}); err != nil {
			return s.failErasure(ctx, &req, fmt.Errorf("save progress: %w", err))
		}
		s.metrics.RecordsMutated(req.ErasureMethod, scope.Table, n)
		s.logEvent(ctx, EventErasureTable, scope.Table, req.ID, map[string]any{
			"subjectId": req.SubjectID,
			"method":    req.ErasureMethod,
			"records":   n,
			"scoped":    len(scope.RecordIDs),
		})
	}

	completedAt := s.utcNow()
	fields = storage.Row{
		"status":            ErasureStatusCompleted,
		"completion_date":   completedAt,
		"records_processed": req.RecordsProcessed,
	}
	if req.VerificationHash == nil {
		hash := VerificationHash(req.ID, req.SubjectID, req.ErasureMethod, req.RecordsProcessed, completedAt)
		req.VerificationHash = &hash
		fields["verification_hash"] = hash
	}
	if skipped := req.TotalRecords - req.RecordsProcessed; skipped > 0 {
		note := fmt.Sprintf("%d record(s) skipped under active legal hold", skipped)
		req.Notes = &note
		fields["notes"] = note
	}
	if err := s.store.UpdateErasureRequest(ctx, req.ID, fields); err != nil {
		return s.failErasure(ctx, &req, fmt.Errorf("save completion: %w", err))
	}
	s.metrics.Transition("erasure", ErasureStatusCompleted)
	s.logEvent(ctx, EventErasureCompleted, storage.TableErasureRequests, req.ID, map[string]any{
		"subjectId":        req.SubjectID,
		"method":           req.ErasureMethod,
		"recordsProcessed": req.RecordsProcessed,
		"totalRecords":     req.TotalRecords,
		"verificationHash": *req.VerificationHash,
	})
	return nil
}

func checkRunnable(req ErasureRequest, resume bool) error {
	if resume {
		if req.Status != ErasureStatusFailed && req.Status != ErasureStatusInProgress {
			return fmt.Errorf("%w: erasure request %s is %s", ErrInvalidState, req.ID, req.Status)
		}
		return nil
	}
	if req.Status != ErasureStatusPending {
		return fmt.Errorf("%w: erasure request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	return nil
}

func (s *Service) rejectErasure(ctx context.Context, req ErasureRequest, holds []LegalHold) error {
	reasons := make([]string, 0, len(holds))
	for _, h := range holds {
		if h.Reason != "" && !slices.Contains(reasons, h.Reason) {
			reasons = append(reasons, h.Reason)
		}
	}
	note := fmt.Sprintf("rejected: %d active legal hold(s)", len(holds))
	if len(reasons) > 0 {
		note += " (" + strings.Join(reasons, "; ") + ")"
	}
	if err := s.store.UpdateErasureRequest(ctx, req.ID, storage.Row{
		"status":          ErasureStatusRejected,
		"notes":           note,
		"completion_date": s.utcNow(),
	}); err != nil {
		return err
	}
	s.metrics.Transition("erasure", ErasureStatusRejected)
	s.logEvent(ctx, EventErasureRejected, storage.TableErasureRequests, req.ID, map[string]any{
		"subjectId":   req.SubjectID,
		"method":      req.ErasureMethod,
		"activeHolds": len(holds),
	})
	return nil
}

func (s *Service) failErasure(ctx context.Context, req *ErasureRequest, cause error) error {
	note := cause.Error()
	req.Status = ErasureStatusFailed
	req.Notes = &note
	if err := s.store.UpdateErasureRequest(context.WithoutCancel(ctx), req.ID, storage.Row{
		"status":            ErasureStatusFailed,
		"notes":             note,
		"records_processed": req.RecordsProcessed,
		"completed_tables":  normalizeTables(req.CompletedTables),
	}); err != nil {
		s.logger.Warn("erasure failure not recorded", "requestId", req.ID, "err", err)
	}
	s.metrics.Transition("erasure", ErasureStatusFailed)
	s.logEvent(context.WithoutCancel(ctx), EventErasureFailed, storage.TableErasureRequests, req.ID, map[string]any{
		"subjectId":        req.SubjectID,
		"error":            note,
		"recordsProcessed": req.RecordsProcessed,
		"completedTables":  normalizeTables(req.CompletedTables),
	})
	return fmt.Errorf("erasure request %s: %w", req.ID, cause)
}

func (s *Service) CancelErasureRequest(ctx context.Context, id string) (ErasureRequest, error) {
	req, err := s.store.GetErasureRequest(ctx, id)
	if err != nil {
		return ErasureRequest{}, err
	}
	if !CanTransitionErasure(req.Status, ErasureStatusCancelled) {
		return ErasureRequest{}, fmt.Errorf("%w: erasure request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	now := s.utcNow()
	if err := s.store.UpdateErasureRequest(ctx, req.ID, storage.Row{
		"status":          ErasureStatusCancelled,
		"completion_date": now,
	}); err != nil {
		return ErasureRequest{}, err
	}
	req.Status = ErasureStatusCancelled
	req.CompletionDate = &now
	s.metrics.Transition("erasure", ErasureStatusCancelled)
	s.logEvent(ctx, EventErasureCancelled, storage.TableErasureRequests, req.ID, map[string]any{"subjectId": req.SubjectID})
	return req, nil
}

// VerifyErasure re-scans the subject's scope. Only hard deletes require the
// scope to be empty; the other methods leave the rows in place.
func (s *Service) VerifyErasure(ctx context.Context, id string) (Verification, error) {
	req, err := s.store.GetErasureRequest(ctx, id)
	if err != nil {
		return Verification{}, err
	}
	if req.Status != ErasureStatusCompleted {
		return Verification{}, fmt.Errorf("%w: erasure request %s is %s", ErrInvalidState, req.ID, req.Status)
	}
	scopes, err := s.scope.Analyze(ctx, req.SubjectID)
	if err != nil {
		return Verification{}, err
	}
	remaining := CountRecords(scopes)
	v := Verification{
		RequestID:        req.ID,
		Method:           req.ErasureMethod,
		Verified:         req.ErasureMethod != MethodHardDelete || remaining == 0,
		RemainingRecords: remaining,
		CheckedAt:        s.utcNow(),
	}
	if req.VerificationHash != nil {
		v.VerificationHash = *req.VerificationHash
	}
	s.logEvent(ctx, EventErasureVerified, storage.TableErasureRequests, req.ID, map[string]any{
		"verified":         v.Verified,
		"remainingRecords": remaining,
	})
	return v, nil
}
