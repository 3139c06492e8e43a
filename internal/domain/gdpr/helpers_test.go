package gdpr

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hrmprivacy/internal/domain/audit"
	cryptoutil "hrmprivacy/internal/platform/crypto"
	"hrmprivacy/internal/platform/storage"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
	panics bool
}

func (s *recordingSink) LogEvent(_ context.Context, evt audit.Event) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.EventType)
	}
	return out
}

// hookGateway wraps the memory gateway with fault injection and a log of
// writes.
type hookGateway struct {
	*storage.MemoryGateway

	mu           sync.Mutex
	deleteCalls  map[string]int
	failDelete   func(table string, call int) error
	beforeDelete func(table string, ids []string)
	failUpdate   func(table string, fields storage.Row) error
	selectTables []string
	updates      []recordedUpdate
}

type recordedUpdate struct {
	Table  string
	ID     string
	Fields storage.Row
}

func newHookGateway() *hookGateway {
	return &hookGateway{MemoryGateway: storage.NewMemoryGateway(), deleteCalls: map[string]int{}}
}

func (g *hookGateway) Select(ctx context.Context, table string, preds ...storage.Predicate) ([]storage.Row, error) {
	g.mu.Lock()
	g.selectTables = append(g.selectTables, table)
	g.mu.Unlock()
	return g.MemoryGateway.Select(ctx, table, preds...)
}

func (g *hookGateway) Update(ctx context.Context, table, id string, fields storage.Row) error {
	g.mu.Lock()
	g.updates = append(g.updates, recordedUpdate{Table: table, ID: id, Fields: fields.Clone()})
	fail := g.failUpdate
	g.mu.Unlock()
	if fail != nil {
		if err := fail(table, fields); err != nil {
			return err
		}
	}
	return g.MemoryGateway.Update(ctx, table, id, fields)
}

func (g *hookGateway) Delete(ctx context.Context, table string, ids ...string) (int64, error) {
	g.mu.Lock()
	g.deleteCalls[table]++
	call := g.deleteCalls[table]
	fail := g.failDelete
	before := g.beforeDelete
	g.mu.Unlock()
	if fail != nil {
		if err := fail(table, call); err != nil {
			return 0, err
		}
	}
	if before != nil {
		before(table, ids)
	}
	return g.MemoryGateway.Delete(ctx, table, ids...)
}

func (g *hookGateway) selected(table string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range g.selectTables {
		if t == table {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, gw storage.Gateway, sink audit.Sink) *Service {
	t.Helper()
	return newTestServiceWithCrypto(t, gw, sink, nil)
}

func newTestServiceWithCrypto(t *testing.T, gw storage.Gateway, sink audit.Sink, crypto *cryptoutil.Service) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Gateway:   gw,
		Audit:     sink,
		Crypto:    crypto,
		ExportDir: t.TempDir(),
		BatchSize: 100,
		Now:       fixedClock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func mustInsert(t *testing.T, gw storage.Gateway, table string, row storage.Row) string {
	t.Helper()
	id, err := gw.Insert(context.Background(), table, row)
	if err != nil {
		t.Fatalf("insert %s: %v", table, err)
	}
	return id
}

// seedEmployee stores a subject with one record in every dependent table.
func seedEmployee(t *testing.T, gw storage.Gateway, id string) {
	t.Helper()
	created := testNow.AddDate(0, -1, 0)
	mustInsert(t, gw, storage.TableEmployees, storage.Row{
		"id":                        id,
		"first_name":                "Ada",
		"last_name":                 "Lovelace",
		"email":                     "ada@example.com",
		"phone":                     "+44 7700 900000",
		"address":                   "12 Analytical Row",
		"date_of_birth":             time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		"national_insurance_number": "QQ123456C",
		"bank_account_number":       "12345678",
		"bank_sort_code":            "12-34-56",
		"job_title":                 "Engineer",
		"salary":                    52000.0,
		"status":                    "active",
		"created_at":                created,
	})
	mustInsert(t, gw, storage.TablePayrollResults, storage.Row{
		"id": id + "-pay-1", "employee_id": id, "gross_pay": 4300.0, "tax_deducted": 800.0,
		"ni_deducted": 300.0, "net_pay": 3200.0, "tax_code": "1257L", "created_at": created,
	})
	mustInsert(t, gw, storage.TableTimesheetEntries, storage.Row{
		"id": id + "-ts-1", "employee_id": id, "notes": "client visit", "location": "Leeds", "created_at": created,
	})
	mustInsert(t, gw, storage.TableSicknessRecords, storage.Row{
		"id": id + "-sick-1", "employee_id": id, "reason": "flu", "medical_notes": "rest",
		"certificate_reference": "CERT-1", "start_date": created, "end_date": created.AddDate(0, 0, 3),
		"created_at": created,
	})
	mustInsert(t, gw, storage.TableWorkPatterns, storage.Row{
		"id": id + "-wp-1", "employee_id": id, "notes": "compressed hours", "created_at": created,
	})
	mustInsert(t, gw, storage.TableDocuments, storage.Row{
		"id": id + "-doc-1", "employee_id": id, "file_name": "contract.pdf", "file_path": "/docs/contract.pdf",
		"description": "employment contract", "created_at": created,
	})
	mustInsert(t, gw, storage.TableAccessAuditLog, storage.Row{
		"id": id + "-log-1", "employee_id": id, "accessed_by": "hr-1", "ip_address": "10.0.0.1",
		"user_agent": "browser", "created_at": created,
	})
}

func addHold(t *testing.T, gw storage.Gateway, subjectID, table, recordID string) {
	t.Helper()
	mustInsert(t, gw, storage.TableLegalHolds, storage.Row{
		"subject_id": subjectID,
		"table_name": table,
		"record_id":  recordID,
		"reason":     "tribunal claim",
		"is_active":  true,
	})
}

func getRow(t *testing.T, gw storage.Gateway, table, id string) storage.Row {
	t.Helper()
	rows, err := gw.Select(context.Background(), table, storage.Eq("id", id))
	if err != nil {
		t.Fatalf("select %s: %v", table, err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one %s row for %s, got %d", table, id, len(rows))
	}
	return rows[0]
}

func countRows(t *testing.T, gw storage.Gateway, table string, preds ...storage.Predicate) int {
	t.Helper()
	rows, err := gw.Select(context.Background(), table, preds...)
	if err != nil {
		t.Fatalf("select %s: %v", table, err)
	}
	return len(rows)
}

// failOnCompletion rejects any write that moves an entity to completed.
func failOnCompletion(table string, fields storage.Row) error {
	if fields.Str("status") == "completed" {
		return errInjected(table)
	}
	return nil
}

func errInjected(table string) error {
	return fmt.Errorf("injected failure on %s", table)
}
