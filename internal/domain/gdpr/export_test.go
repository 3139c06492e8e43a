package gdpr

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	cryptoutil "hrmprivacy/internal/platform/crypto"
	"hrmprivacy/internal/platform/storage"
)

func TestCollectHonoursScopeAndWithholding(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedEmployee(t, gw, "emp-1")
	collector := NewCollector(gw, fixedClock)
	ctx := context.Background()

	personal, err := collector.Collect(ctx, DataExportRequest{ID: "x1", SubjectID: "emp-1", ExportScope: ScopePersonalData, ExportFormat: FormatJSON})
	if err != nil {
		t.Fatalf("collect personal: %v", err)
	}
	if len(personal.Categories) != 2 || personal.Records(CategoryDocuments) == nil {
		t.Fatalf("unexpected personal categories: %+v", personal.Categories)
	}
	info := personal.Records(CategoryEmployeeInfo)[0]
	for _, field := range withheldFields {
		if _, ok := info[field]; ok {
			t.Fatalf("%s must be withheld outside complete_profile", field)
		}
	}
	if personal.Metadata.TotalRecords != 2 {
		t.Fatalf("expected 2 records, got %d", personal.Metadata.TotalRecords)
	}

	full, err := collector.Collect(ctx, DataExportRequest{ID: "x2", SubjectID: "emp-1", ExportScope: ScopeCompleteProfile})
	if err != nil {
		t.Fatalf("collect full: %v", err)
	}
	if len(full.Categories) != 7 || full.Metadata.TotalRecords != 7 || len(full.Metadata.DataSources) != 7 {
		t.Fatalf("unexpected complete profile: %+v", full.Metadata)
	}
	if full.Records(CategoryEmployeeInfo)[0]["national_insurance_number"] != "QQ123456C" {
		t.Fatalf("complete_profile must include withheld fields")
	}

	payroll, err := collector.Collect(ctx, DataExportRequest{SubjectID: "emp-1", ExportScope: ScopePayrollData})
	if err != nil {
		t.Fatalf("collect payroll: %v", err)
	}
	if payroll.Records(CategoryTimesheets) != nil || payroll.Records(CategoryPayrollResults) == nil {
		t.Fatalf("payroll scope must only include payroll categories")
	}

	if _, err := collector.Collect(ctx, DataExportRequest{SubjectID: "emp-1", ExportScope: "everything"}); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestCollectHistoricalWindow(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedEmployee(t, gw, "emp-1")
	mustInsert(t, gw, storage.TableTimesheetEntries, storage.Row{"employee_id": "emp-1", "notes": "2019", "created_at": testNow.AddDate(-3, 0, 0)})
	collector := NewCollector(gw, fixedClock)

	recent, err := collector.Collect(context.Background(), DataExportRequest{SubjectID: "emp-1", ExportScope: ScopeEmploymentData})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if n := len(recent.Records(CategoryTimesheets)); n != 1 {
		t.Fatalf("expected only recent timesheets, got %d", n)
	}
	all, err := collector.Collect(context.Background(), DataExportRequest{SubjectID: "emp-1", ExportScope: ScopeEmploymentData, IncludeHistorical: true})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if n := len(all.Records(CategoryTimesheets)); n != 2 {
		t.Fatalf("expected historical timesheets, got %d", n)
	}
}

func TestCollectOmitsEmptyCategories(t *testing.T) {
	gw := storage.NewMemoryGateway()
	mustInsert(t, gw, storage.TableEmployees, storage.Row{"id": "emp-1", "first_name": "Ada"})
	pkg, err := NewCollector(gw, fixedClock).Collect(context.Background(), DataExportRequest{SubjectID: "emp-1", ExportScope: ScopeCompleteProfile})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(pkg.Categories) != 1 || pkg.Metadata.DataSources[0] != storage.TableEmployees {
		t.Fatalf("expected employee_info only: %+v", pkg.Categories)
	}
}

func TestPackagerCSVSections(t *testing.T) {
	pkg := PersonalDataPackage{
		Metadata: ExportMetadata{RequestID: "x1", ExportDate: testNow, Format: FormatCSV, Scope: ScopePersonalData, TotalRecords: 2, DataSources: []string{"employees", "documents"}},
		Categories: []CategoryData{
			{Name: CategoryEmployeeInfo, Table: "employees", Records: []map[string]any{{"id": "emp-1", "first_name": "Ada", "tags": []string{"a", "b"}}}},
			{Name: CategoryDocuments, Table: "documents", Records: []map[string]any{{"id": "d1", "file_name": "cv, final.pdf"}}},
		},
	}
	file, err := (Packager{}).Generate(pkg, FormatCSV)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if file.ContentType != "text/csv" || file.Name != "x1.csv" {
		t.Fatalf("unexpected file: %s %s", file.Name, file.ContentType)
	}
	reader := csv.NewReader(bytes.NewReader(file.Data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if records[0][0] != "export_metadata" {
		t.Fatalf("expected metadata section first, got %v", records[0])
	}
	var sections []string
	for i, rec := range records {
		if len(rec) == 1 && (rec[0] == CategoryEmployeeInfo || rec[0] == CategoryDocuments) {
			sections = append(sections, rec[0])
			if i+1 >= len(records) || records[i+1][0] != "file_name" && records[i+1][0] != "first_name" {
				t.Fatalf("expected header row after %s, got %v", rec[0], records[i+1])
			}
		}
	}
	if strings.Join(sections, ",") != "employee_info,documents" {
		t.Fatalf("unexpected sections %v", sections)
	}
	if !bytes.Contains(file.Data, []byte(`"[""a"",""b""]"`)) {
		t.Fatalf("nested values must be JSON encoded in one cell:\n%s", file.Data)
	}
	if !bytes.Contains(file.Data, []byte("\n\n"+CategoryEmployeeInfo)) {
		t.Fatalf("sections must be separated by a blank line:\n%s", file.Data)
	}
}

func TestPackagerPDFAndUnsupported(t *testing.T) {
	pkg := PersonalDataPackage{Metadata: ExportMetadata{RequestID: "x1", ExportDate: testNow, Scope: ScopePersonalData}}
	file, err := (Packager{}).Generate(pkg, FormatPDF)
	if err != nil {
		t.Fatalf("generate pdf: %v", err)
	}
	if !bytes.HasPrefix(file.Data, []byte("%PDF")) {
		t.Fatalf("expected a PDF document")
	}
	if _, err := (Packager{}).Generate(pkg, "xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestProcessExportWritesJSON(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedEmployee(t, gw, "emp-1")
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	req, err := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExportFormat: FormatJSON, ExportScope: ScopeCompleteProfile})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !req.ExpiresAt.Equal(testNow.AddDate(0, 0, DefaultExportExpiryDays)) {
		t.Fatalf("unexpected expiry %v", req.ExpiresAt)
	}
	if err := svc.ProcessExportRequest(ctx, req.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	done, _ := svc.GetExportRequest(ctx, req.ID)
	if done.Status != ExportStatusCompleted || done.FilePath == nil || done.FileSize == nil || done.Encrypted {
		t.Fatalf("unexpected export: %+v", done)
	}
	info, err := os.Stat(*done.FilePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != *done.FileSize {
		t.Fatalf("file size %d does not match recorded %d", info.Size(), *done.FileSize)
	}

	file, opened, err := svc.OpenExport(ctx, req.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.DownloadCount != 1 || file.ContentType != "application/json" {
		t.Fatalf("unexpected download: %+v", opened)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(file.Data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc["export_metadata"]; !ok || len(doc) != 8 {
		t.Fatalf("unexpected export keys: %d", len(doc))
	}
}

func TestProcessExportCompletionWriteFailureFailsExport(t *testing.T) {
	gw := newHookGateway()
	seedEmployee(t, gw, "emp-1")
	sink := &recordingSink{}
	svc := newTestService(t, gw, sink)
	ctx := context.Background()

	req, err := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExportFormat: FormatJSON, ExportScope: ScopePersonalData})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gw.failUpdate = failOnCompletion
	if err := svc.ProcessExportRequest(ctx, req.ID); err == nil {
		t.Fatalf("expected completion write failure")
	}
	failed, _ := svc.GetExportRequest(ctx, req.ID)
	if failed.Status != ExportStatusFailed || failed.ErrorMessage == nil || failed.FilePath != nil {
		t.Fatalf("export must end failed rather than in progress: %+v", failed)
	}
	entries, err := os.ReadDir(svc.exportDir)
	if err != nil {
		t.Fatalf("read export dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("orphaned export file left behind: %s", entries[0].Name())
	}
	if !slices.Contains(sink.types(), EventExportFailed) {
		t.Fatalf("expected failure event, got %v", sink.types())
	}
}

func TestProcessExportEncrypted(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedEmployee(t, gw, "emp-1")
	key, err := cryptoutil.New(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	svc := newTestServiceWithCrypto(t, gw, nil, key)
	ctx := context.Background()

	req, err := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExportFormat: FormatCSV, ExportScope: ScopePersonalData})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.ProcessExportRequest(ctx, req.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	done, _ := svc.GetExportRequest(ctx, req.ID)
	if !done.Encrypted || !strings.HasSuffix(*done.FilePath, ".csv.enc") {
		t.Fatalf("expected encrypted file: %+v", done)
	}
	raw, err := os.ReadFile(*done.FilePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if int64(len(raw)) != *done.FileSize || bytes.Contains(raw, []byte("export_metadata")) {
		t.Fatalf("stored file must be the ciphertext")
	}
	file, _, err := svc.OpenExport(ctx, req.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.HasPrefix(file.Data, []byte("export_metadata")) {
		t.Fatalf("expected decrypted csv, got %q", file.Data[:20])
	}
}

func TestProcessExportUnsupportedFormatFailsBeforeReading(t *testing.T) {
	gw := newHookGateway()
	seedEmployee(t, gw, "emp-1")
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	if _, err := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExportFormat: "xml"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected create to reject format, got %v", err)
	}
	id := mustInsert(t, gw, storage.TableExportRequests, storage.Row{
		"subject_id":    "emp-1",
		"requester_id":  "hr-1",
		"request_date":  testNow,
		"status":        ExportStatusPending,
		"export_format": "xml",
		"export_scope":  ScopeCompleteProfile,
		"expires_at":    testNow.AddDate(0, 0, 30),
	})
	err := svc.ProcessExportRequest(ctx, id)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if gw.selected(storage.TableEmployees) != 0 {
		t.Fatalf("subject data was read for an unsupported format")
	}
	failed, _ := svc.GetExportRequest(ctx, id)
	if failed.Status != ExportStatusFailed || failed.ErrorMessage == nil {
		t.Fatalf("unexpected request: %+v", failed)
	}
}

func TestOpenExportRejectsExpired(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedEmployee(t, gw, "emp-1")
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	req, err := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExportFormat: FormatPDF, ExportScope: ScopePersonalData})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.OpenExport(ctx, req.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pending export: expected ErrInvalidState, got %v", err)
	}
	if err := svc.ProcessExportRequest(ctx, req.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := gw.Update(ctx, storage.TableExportRequests, req.ID, storage.Row{"expires_at": testNow.Add(-1)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, _, err := svc.OpenExport(ctx, req.ID); !errors.Is(err, ErrExportExpired) {
		t.Fatalf("expected ErrExportExpired, got %v", err)
	}
}

func TestCleanupExpiredExports(t *testing.T) {
	gw := storage.NewMemoryGateway()
	seedEmployee(t, gw, "emp-1")
	svc := newTestService(t, gw, nil)
	ctx := context.Background()

	stale, _ := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExportScope: ScopePersonalData})
	if err := svc.ProcessExportRequest(ctx, stale.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	fresh, _ := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1", ExpiryDays: 5})
	cancelled, _ := svc.CreateExportRequest(ctx, CreateExportInput{SubjectID: "emp-1", RequesterID: "hr-1"})
	if _, err := svc.CancelExportRequest(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, id := range []string{stale.ID, cancelled.ID} {
		if err := gw.Update(ctx, storage.TableExportRequests, id, storage.Row{"expires_at": testNow.AddDate(0, 0, -1)}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	path := *mustExport(t, svc, stale.ID).FilePath

	n, err := svc.CleanupExpiredExports(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleanup: %d %v", n, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expired file still on disk: %v", err)
	}
	expired := mustExport(t, svc, stale.ID)
	if expired.Status != ExportStatusExpired || expired.FilePath != nil {
		t.Fatalf("unexpected expired export: %+v", expired)
	}
	if mustExport(t, svc, fresh.ID).Status != ExportStatusPending || mustExport(t, svc, cancelled.ID).Status != ExportStatusCancelled {
		t.Fatalf("cleanup touched exports it should not")
	}

	n, err = svc.CleanupExpiredExports(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second cleanup: %d %v", n, err)
	}
}

func mustExport(t *testing.T, svc *Service, id string) DataExportRequest {
	t.Helper()
	req, err := svc.GetExportRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("get export %s: %v", id, err)
	}
	return req
}
