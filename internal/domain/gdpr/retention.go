package gdpr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"hrmprivacy/internal/domain/audit"
	"hrmprivacy/internal/platform/metrics"
	"hrmprivacy/internal/platform/storage"
)

type retentionTarget struct {
	Table      string
	DateColumn string
	Filters    []storage.Predicate
}

var retentionTargets = map[string]retentionTarget{
	PolicyEmployeeRecords: {
		Table:      storage.TableEmployees,
		DateColumn: "leave_date",
		Filters:    []storage.Predicate{storage.Eq("status", "inactive")},
	},
	PolicyPayrollData:     {Table: storage.TablePayrollResults, DateColumn: "created_at"},
	PolicyTimesheetData:   {Table: storage.TableTimesheetEntries, DateColumn: "created_at"},
	PolicySicknessRecords: {Table: storage.TableSicknessRecords, DateColumn: "created_at"},
	PolicyWorkPatterns:    {Table: storage.TableWorkPatterns, DateColumn: "created_at"},
	PolicyDocuments:       {Table: storage.TableDocuments, DateColumn: "created_at"},
	PolicyAuditLogs:       {Table: storage.TableAccessAuditLog, DateColumn: "created_at"},
}

// RetentionTable returns the table a policy type governs.
func RetentionTable(policyType string) (string, bool) {
	target, ok := retentionTargets[policyType]
	return target.Table, ok
}

// RetentionEngine finds records past their retention period and deletes
// them in fixed-size batches.
type RetentionEngine struct {
	gateway   storage.Gateway
	store     *Store
	audit     audit.Sink
	metrics   *metrics.Collector
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

func NewRetentionEngine(gateway storage.Gateway, store *Store, sink audit.Sink, m *metrics.Collector, batchSize int, now func() time.Time) *RetentionEngine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &RetentionEngine{
		gateway:   gateway,
		store:     store,
		audit:     audit.NewGuarded(sink, m.AuditFailure),
		metrics:   m,
		batchSize: batchSize,
		now:       now,
		logger:    slog.Default().With("component", "privacy.retention"),
	}
}

func (e *RetentionEngine) IdentifyExpired(ctx context.Context, policyType string, retentionMonths int) (ExpiredRecords, error) {
	target, ok := retentionTargets[policyType]
	if !ok {
		return ExpiredRecords{}, fmt.Errorf("%w: %q", ErrInvalidPolicyType, policyType)
	}
	if retentionMonths <= 0 {
		return ExpiredRecords{}, fmt.Errorf("%w: retention period must be positive", ErrInvalidInput)
	}
	cutoff := RetentionCutoff(e.now(), retentionMonths)
	preds := append([]storage.Predicate{storage.Lt(target.DateColumn, cutoff)}, target.Filters...)
	rows, err := e.gateway.Select(ctx, target.Table, preds...)
	if err != nil {
		return ExpiredRecords{}, fmt.Errorf("identify expired %s: %w", target.Table, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Str("id"))
	}
	sort.Strings(ids)
	return ExpiredRecords{
		PolicyType: policyType,
		Table:      target.Table,
		Cutoff:     cutoff,
		RecordIDs:  ids,
		TotalCount: len(ids),
	}, nil
}

// ScheduleJob records a pending job with a snapshot of the expired count.
func (e *RetentionEngine) ScheduleJob(ctx context.Context, policyID string, scheduledDate time.Time) (RetentionJob, error) {
	policy, err := e.store.GetPolicy(ctx, policyID)
	if err != nil {
		return RetentionJob{}, err
	}
	if policy.Status != PolicyStatusActive {
		return RetentionJob{}, fmt.Errorf("%w: policy %s is %s", ErrInvalidState, policy.ID, policy.Status)
	}
	expired, err := e.IdentifyExpired(ctx, policy.PolicyType, policy.RetentionPeriodMonths)
	if err != nil {
		return RetentionJob{}, err
	}
	now := e.now().UTC()
	if scheduledDate.IsZero() {
		scheduledDate = now
	}
	job := RetentionJob{
		ID:                uuid.NewString(),
		PolicyID:          policy.ID,
		ScheduledDate:     scheduledDate.UTC(),
		Status:            JobStatusPending,
		RecordsIdentified: expired.TotalCount,
		CreatedAt:         now,
	}
	if _, err := e.store.CreateJob(ctx, job); err != nil {
		return RetentionJob{}, err
	}
	e.metrics.Transition("retention", JobStatusPending)
	e.audit.LogEvent(ctx, audit.Event{
		EventType: EventRetentionScheduled,
		TableName: storage.TableRetentionJobs,
		RecordID:  job.ID,
		AdditionalContext: map[string]any{
			"policyId":          policy.ID,
			"policyType":        policy.PolicyType,
			"recordsIdentified": job.RecordsIdentified,
			"cutoff":            expired.Cutoff,
		},
	})
	return job, nil
}

// ExecuteJob deletes the re-resolved expired set minus held records.
// Progress is saved after every batch; a failed batch stops the job with
// earlier batches left deleted.
func (e *RetentionEngine) ExecuteJob(ctx context.Context, jobID string) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if IsTerminalJob(job.Status) {
		return nil
	}
	if job.Status != JobStatusPending {
		return fmt.Errorf("%w: retention job %s is %s", ErrInvalidState, job.ID, job.Status)
	}

	policy, err := e.store.GetPolicy(ctx, job.PolicyID)
	if err != nil {
		return e.failJob(ctx, &job, fmt.Errorf("load policy: %w", err))
	}
	if policy.LegalHoldOverride {
		e.logger.Warn("legal hold override ignored for retention", "policyId", policy.ID, "jobId", job.ID)
		e.audit.LogEvent(ctx, audit.Event{
			EventType:         EventRetentionHoldIgnore,
			TableName:         storage.TableRetentionJobs,
			RecordID:          job.ID,
			AdditionalContext: map[string]any{"policyId": policy.ID},
		})
	}

	executedAt := e.now().UTC()
	job.Status = JobStatusRunning
	job.ExecutionDate = &executedAt
	if err := e.store.UpdateJob(ctx, job.ID, storage.Row{
		"status":         JobStatusRunning,
		"execution_date": executedAt,
	}); err != nil {
		return err
	}
	e.metrics.Transition("retention", JobStatusRunning)

	expired, err := e.IdentifyExpired(ctx, policy.PolicyType, policy.RetentionPeriodMonths)
	if err != nil {
		return e.failJob(ctx, &job, err)
	}
	held, err := e.store.HeldRecordIDs(ctx, expired.Table, expired.RecordIDs)
	if err != nil {
		return e.failJob(ctx, &job, fmt.Errorf("load legal holds: %w", err))
	}
	survivors := make([]string, 0, len(expired.RecordIDs))
	for _, id := range expired.RecordIDs {
		if !held[id] {
			survivors = append(survivors, id)
		}
	}

	job.RecordsIdentified = len(survivors)
	job.RecordsProcessed = 0
	if err := e.store.UpdateJob(ctx, job.ID, storage.Row{
		"records_identified": job.RecordsIdentified,
		"records_processed":  job.RecordsProcessed,
	}); err != nil {
		return e.failJob(ctx, &job, err)
	}

	batches := 0
	for start := 0; start < len(survivors); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return e.failJob(ctx, &job, fmt.Errorf("cancelled after %d records: %w", job.RecordsProcessed, err))
		}
		end := min(start+e.batchSize, len(survivors))
		batch := survivors[start:end]
		n, err := e.gateway.Delete(ctx, expired.Table, batch...)
		if err != nil {
			e.metrics.RetentionBatch("failed")
			return e.failJob(ctx, &job, fmt.Errorf("batch %d (%d records): %w", batches+1, len(batch), err))
		}
		// rows removed since resolution are not counted
		job.RecordsProcessed += int(n)
		batches++
		if err := e.store.UpdateJob(ctx, job.ID, storage.Row{"records_processed": job.RecordsProcessed}); err != nil {
			return e.failJob(ctx, &job, fmt.Errorf("save progress: %w", err))
		}
		e.metrics.RetentionBatch("ok")
		e.metrics.RecordsMutated(MethodHardDelete, expired.Table, int(n))
	}

	job.Status = JobStatusCompleted
	if err := e.store.UpdateJob(ctx, job.ID, storage.Row{"status": JobStatusCompleted}); err != nil {
		return e.failJob(ctx, &job, fmt.Errorf("save completion: %w", err))
	}
	e.metrics.Transition("retention", JobStatusCompleted)
	e.logger.Info("retention job completed",
		"jobId", job.ID,
		"policyType", policy.PolicyType,
		"processed", job.RecordsProcessed,
		"held", len(held),
	)
	e.audit.LogEvent(ctx, audit.Event{
		EventType: EventRetentionCompleted,
		TableName: storage.TableRetentionJobs,
		RecordID:  job.ID,
		AdditionalContext: map[string]any{
			"policyId":         policy.ID,
			"policyType":       policy.PolicyType,
			"table":            expired.Table,
			"cutoff":           expired.Cutoff,
			"recordsProcessed": job.RecordsProcessed,
			"recordsHeld":      len(held),
			"batches":          batches,
		},
	})
	return nil
}

// CancelJob cancels a pending job.
func (e *RetentionEngine) CancelJob(ctx context.Context, jobID string) (RetentionJob, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return RetentionJob{}, err
	}
	if !CanTransitionJob(job.Status, JobStatusCancelled) {
		return RetentionJob{}, fmt.Errorf("%w: retention job %s is %s", ErrInvalidState, job.ID, job.Status)
	}
	if err := e.store.UpdateJob(ctx, job.ID, storage.Row{"status": JobStatusCancelled}); err != nil {
		return RetentionJob{}, err
	}
	job.Status = JobStatusCancelled
	e.metrics.Transition("retention", JobStatusCancelled)
	e.audit.LogEvent(ctx, audit.Event{EventType: EventRetentionCancelled, TableName: storage.TableRetentionJobs, RecordID: job.ID})
	return job, nil
}

// failJob records err on the job and returns it.
func (e *RetentionEngine) failJob(ctx context.Context, job *RetentionJob, cause error) error {
	msg := cause.Error()
	job.Status = JobStatusFailed
	job.ErrorMessage = &msg
	if err := e.store.UpdateJob(context.WithoutCancel(ctx), job.ID, storage.Row{
		"status":        JobStatusFailed,
		"error_message": msg,
	}); err != nil {
		e.logger.Warn("retention job failure not recorded", "jobId", job.ID, "err", err)
	}
	e.metrics.Transition("retention", JobStatusFailed)
	e.audit.LogEvent(context.WithoutCancel(ctx), audit.Event{
		EventType: EventRetentionFailed,
		TableName: storage.TableRetentionJobs,
		RecordID:  job.ID,
		AdditionalContext: map[string]any{
			"error":            msg,
			"recordsProcessed": job.RecordsProcessed,
		},
	})
	return fmt.Errorf("retention job %s: %w", job.ID, cause)
}
