package gdpr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"hrmprivacy/internal/platform/storage"
)

func seedPayroll(t *testing.T, gw storage.Gateway, n int, created time.Time) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, mustInsert(t, gw, storage.TablePayrollResults, storage.Row{
			"id":          fmt.Sprintf("pay-%04d", i),
			"employee_id": fmt.Sprintf("emp-%d", i%5),
			"net_pay":     1000.0,
			"created_at":  created,
		}))
	}
	return ids
}

func createPolicy(t *testing.T, svc *Service, policyType string, months int, autoDelete bool) RetentionPolicy {
	t.Helper()
	p, err := svc.CreatePolicy(context.Background(), PolicyInput{
		PolicyType:            policyType,
		RetentionPeriodMonths: months,
		AutoDelete:            autoDelete,
		Description:           "statutory retention",
	})
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	return p
}

func progressValues(gw *hookGateway, jobID string) []int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	var out []int
	for _, u := range gw.updates {
		if u.Table != storage.TableRetentionJobs || u.ID != jobID {
			continue
		}
		if _, ok := u.Fields["records_processed"]; ok {
			out = append(out, u.Fields.Int("records_processed"))
		}
	}
	return out
}

func TestIdentifyExpired(t *testing.T) {
	gw := storage.NewMemoryGateway()
	old := testNow.AddDate(-8, 0, 0)
	recent := testNow.AddDate(0, -2, 0)
	mustInsert(t, gw, storage.TableEmployees, storage.Row{"id": "e-left-old", "status": "inactive", "leave_date": old})
	mustInsert(t, gw, storage.TableEmployees, storage.Row{"id": "e-left-recent", "status": "inactive", "leave_date": recent})
	mustInsert(t, gw, storage.TableEmployees, storage.Row{"id": "e-active", "status": "active", "leave_date": old})
	mustInsert(t, gw, storage.TableEmployees, storage.Row{"id": "e-no-leave", "status": "inactive"})
	seedPayroll(t, gw, 3, old)
	mustInsert(t, gw, storage.TablePayrollResults, storage.Row{"id": "pay-new", "created_at": recent})

	engine := NewRetentionEngine(gw, NewStore(gw), nil, nil, 0, fixedClock)
	ctx := context.Background()

	employees, err := engine.IdentifyExpired(ctx, PolicyEmployeeRecords, 72)
	if err != nil {
		t.Fatalf("identify employees: %v", err)
	}
	if employees.TotalCount != 1 || employees.RecordIDs[0] != "e-left-old" || employees.Table != storage.TableEmployees {
		t.Fatalf("unexpected employee expiry: %+v", employees)
	}
	if !employees.Cutoff.Equal(testNow.AddDate(0, -72, 0)) {
		t.Fatalf("unexpected cutoff %v", employees.Cutoff)
	}

	payroll, err := engine.IdentifyExpired(ctx, PolicyPayrollData, 72)
	if err != nil || payroll.TotalCount != 3 {
		t.Fatalf("identify payroll: %+v %v", payroll, err)
	}
	if _, err := engine.IdentifyExpired(ctx, "emails", 12); !errors.Is(err, ErrInvalidPolicyType) {
		t.Fatalf("expected ErrInvalidPolicyType, got %v", err)
	}
	if _, err := engine.IdentifyExpired(ctx, PolicyPayrollData, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExecuteJobSavesProgressPerBatch(t *testing.T) {
	gw := newHookGateway()
	seedPayroll(t, gw, 250, testNow.AddDate(-7, 0, 0))
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	policy := createPolicy(t, svc, PolicyPayrollData, 72, false)
	job, err := svc.ScheduleRetentionJob(ctx, policy.ID, time.Time{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if job.Status != JobStatusPending || job.RecordsIdentified != 250 || !job.ScheduledDate.Equal(testNow) {
		t.Fatalf("unexpected job: %+v", job)
	}
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := progressValues(gw, job.ID)
	if !slices.Equal(got, []int{0, 100, 200, 250}) {
		t.Fatalf("unexpected progress sequence %v", got)
	}
	done, _ := svc.GetRetentionJob(ctx, job.ID)
	if done.Status != JobStatusCompleted || done.RecordsProcessed != 250 || done.ExecutionDate == nil {
		t.Fatalf("unexpected final job: %+v", done)
	}
	if countRows(t, gw, storage.TablePayrollResults) != 0 {
		t.Fatalf("expired payroll rows survived")
	}
	if gw.deleteCalls[storage.TablePayrollResults] != 3 {
		t.Fatalf("expected 3 batches, got %d", gw.deleteCalls[storage.TablePayrollResults])
	}
}

func TestExecuteJobExcludesHeldRecords(t *testing.T) {
	gw := storage.NewMemoryGateway()
	ids := seedPayroll(t, gw, 10, testNow.AddDate(-7, 0, 0))
	addHold(t, gw, "emp-0", storage.TablePayrollResults, ids[0])
	addHold(t, gw, "emp-1", storage.TablePayrollResults, ids[1])
	sink := &recordingSink{}
	svc := newTestService(t, gw, sink)
	ctx := context.Background()

	p, err := svc.CreatePolicy(ctx, PolicyInput{PolicyType: PolicyPayrollData, RetentionPeriodMonths: 72, LegalHoldOverride: true})
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	job, err := svc.ScheduleRetentionJob(ctx, p.ID, testNow)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	done, _ := svc.GetRetentionJob(ctx, job.ID)
	if done.RecordsIdentified != 8 || done.RecordsProcessed != 8 {
		t.Fatalf("held records must be excluded even with override: %+v", done)
	}
	if countRows(t, gw, storage.TablePayrollResults) != 2 {
		t.Fatalf("held rows were deleted")
	}
	if !slices.Contains(sink.types(), EventRetentionHoldIgnore) {
		t.Fatalf("expected override-ignored event, got %v", sink.types())
	}
}

func TestExecuteJobBatchFailureHalts(t *testing.T) {
	gw := newHookGateway()
	seedPayroll(t, gw, 250, testNow.AddDate(-7, 0, 0))
	gw.failDelete = func(table string, call int) error {
		if call == 2 {
			return errInjected(table)
		}
		return nil
	}
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	policy := createPolicy(t, svc, PolicyPayrollData, 72, false)
	job, err := svc.ScheduleRetentionJob(ctx, policy.ID, time.Time{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err == nil {
		t.Fatalf("expected batch failure")
	}
	failed, _ := svc.GetRetentionJob(ctx, job.ID)
	if failed.Status != JobStatusFailed || failed.RecordsProcessed != 100 || failed.ErrorMessage == nil {
		t.Fatalf("unexpected failed job: %+v", failed)
	}
	if countRows(t, gw, storage.TablePayrollResults) != 150 {
		t.Fatalf("first batch must stay deleted without rollback")
	}
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err != nil {
		t.Fatalf("failed job is terminal, got %v", err)
	}
}

func TestExecuteJobCountsOnlyRowsActuallyDeleted(t *testing.T) {
	gw := newHookGateway()
	seedPayroll(t, gw, 250, testNow.AddDate(-7, 0, 0))
	// a concurrent writer removes the first row of every batch just before it is deleted
	gw.beforeDelete = func(table string, ids []string) {
		if _, err := gw.MemoryGateway.Delete(context.Background(), table, ids[0]); err != nil {
			t.Errorf("concurrent delete: %v", err)
		}
	}
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	policy := createPolicy(t, svc, PolicyPayrollData, 72, false)
	job, err := svc.ScheduleRetentionJob(ctx, policy.ID, time.Time{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	done, _ := svc.GetRetentionJob(ctx, job.ID)
	if done.Status != JobStatusCompleted || done.RecordsIdentified != 250 || done.RecordsProcessed != 247 {
		t.Fatalf("expected 247 rows counted across 3 batches: %+v", done)
	}
	if got := progressValues(gw, job.ID); !slices.Equal(got, []int{0, 99, 198, 247}) {
		t.Fatalf("unexpected progress sequence %v", got)
	}
	if countRows(t, gw, storage.TablePayrollResults) != 0 {
		t.Fatalf("expired payroll rows survived")
	}
}

func TestExecuteJobCompletionWriteFailureFailsJob(t *testing.T) {
	gw := newHookGateway()
	seedPayroll(t, gw, 30, testNow.AddDate(-7, 0, 0))
	sink := &recordingSink{}
	svc := newTestService(t, gw, sink)
	ctx := context.Background()

	policy := createPolicy(t, svc, PolicyPayrollData, 72, false)
	job, err := svc.ScheduleRetentionJob(ctx, policy.ID, time.Time{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	gw.failUpdate = failOnCompletion
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err == nil {
		t.Fatalf("expected completion write failure")
	}
	failed, _ := svc.GetRetentionJob(ctx, job.ID)
	if failed.Status != JobStatusFailed || failed.ErrorMessage == nil || failed.RecordsProcessed != 30 {
		t.Fatalf("job must end failed rather than running: %+v", failed)
	}
	if !strings.Contains(*failed.ErrorMessage, "save completion") {
		t.Fatalf("unexpected error message %q", *failed.ErrorMessage)
	}
	if !slices.Contains(sink.types(), EventRetentionFailed) {
		t.Fatalf("expected failure event, got %v", sink.types())
	}
}

func TestScheduleJobRequiresActivePolicy(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryGateway(), nil)
	ctx := context.Background()

	if _, err := svc.ScheduleRetentionJob(ctx, "missing", time.Time{}); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("expected ErrPolicyNotFound, got %v", err)
	}
	old := createPolicy(t, svc, PolicyDocuments, 24, false)
	next, err := svc.UpdatePolicy(ctx, old.ID, PolicyInput{RetentionPeriodMonths: 36})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if next.PolicyType != PolicyDocuments || next.RetentionPeriodMonths != 36 {
		t.Fatalf("unexpected successor: %+v", next)
	}
	if _, err := svc.ScheduleRetentionJob(ctx, old.ID, time.Time{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("superseded policy: expected ErrInvalidState, got %v", err)
	}
	superseded, _ := svc.GetPolicy(ctx, old.ID)
	if superseded.Status != PolicyStatusSuperseded || superseded.SupersededBy == nil || *superseded.SupersededBy != next.ID {
		t.Fatalf("unexpected superseded policy: %+v", superseded)
	}
	active, err := svc.ListPolicies(ctx, false)
	if err != nil || len(active) != 1 || active[0].ID != next.ID {
		t.Fatalf("unexpected active policies: %+v %v", active, err)
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryGateway(), nil)
	ctx := context.Background()

	if _, err := svc.CreatePolicy(ctx, PolicyInput{PolicyType: "emails", RetentionPeriodMonths: 12}); !errors.Is(err, ErrInvalidPolicyType) {
		t.Fatalf("expected ErrInvalidPolicyType, got %v", err)
	}
	if _, err := svc.CreatePolicy(ctx, PolicyInput{PolicyType: PolicyAuditLogs}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	createPolicy(t, svc, PolicyAuditLogs, 24, false)
	if _, err := svc.CreatePolicy(ctx, PolicyInput{PolicyType: PolicyAuditLogs, RetentionPeriodMonths: 12}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for duplicate, got %v", err)
	}
	seeded, err := svc.SeedPolicies(ctx, []PolicyInput{
		{PolicyType: PolicyAuditLogs, RetentionPeriodMonths: 12},
		{PolicyType: PolicyTimesheetData, RetentionPeriodMonths: 36},
	})
	if err != nil || seeded != 1 {
		t.Fatalf("seed: %d %v", seeded, err)
	}
}

func TestCancelRetentionJob(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedPayroll(t, gw, 3, testNow.AddDate(-7, 0, 0))
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	policy := createPolicy(t, svc, PolicyPayrollData, 72, false)
	job, _ := svc.ScheduleRetentionJob(ctx, policy.ID, time.Time{})
	cancelled, err := svc.CancelRetentionJob(ctx, job.ID)
	if err != nil || cancelled.Status != JobStatusCancelled {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}
	if err := svc.ExecuteRetentionJob(ctx, job.ID); err != nil {
		t.Fatalf("execute cancelled: %v", err)
	}
	if countRows(t, gw, storage.TablePayrollResults) != 3 {
		t.Fatalf("cancelled job must not delete")
	}
	if _, err := svc.CancelRetentionJob(ctx, job.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRunAutomaticRetention(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedPayroll(t, gw, 4, testNow.AddDate(-7, 0, 0))
	mustInsert(t, gw, storage.TableDocuments, storage.Row{"id": "doc-old", "created_at": testNow.AddDate(-7, 0, 0)})
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	createPolicy(t, svc, PolicyPayrollData, 72, true)
	createPolicy(t, svc, PolicyDocuments, 72, false)

	ran, err := svc.RunAutomaticRetention(ctx)
	if err != nil || ran != 1 {
		t.Fatalf("run: %d %v", ran, err)
	}
	if countRows(t, gw, storage.TablePayrollResults) != 0 {
		t.Fatalf("auto-delete policy did not run")
	}
	if countRows(t, gw, storage.TableDocuments) != 1 {
		t.Fatalf("manual policy must not run automatically")
	}
	jobs, err := svc.ListRetentionJobs(ctx, "")
	if err != nil || len(jobs) != 1 || jobs[0].Status != JobStatusCompleted {
		t.Fatalf("unexpected jobs: %+v %v", jobs, err)
	}
}
