package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGatewayInsertSelectCopies(t *testing.T) {
	ctx := context.Background()
	gw := NewMemoryGateway()

	tags := []string{"a", "b"}
	id, err := gw.Insert(ctx, TableErasureRequests, Row{"subject_id": "e1", "affected_tables": tags})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	tags[0] = "mutated"

	rows, err := gw.Select(ctx, TableErasureRequests, Eq("id", id))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0].Strings("affected_tables"); got[0] != "a" {
		t.Fatalf("stored row aliased caller slice: %v", got)
	}
	rows[0]["subject_id"] = "changed"
	again, _ := gw.Select(ctx, TableErasureRequests, Eq("id", id))
	if again[0].Str("subject_id") != "e1" {
		t.Fatal("select returned a live reference")
	}
}

func TestMemoryGatewayUnknownTable(t *testing.T) {
	gw := NewMemoryGateway()
	_, err := gw.Select(context.Background(), "users")
	if !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Backend != "memory" {
		t.Fatalf("expected storage error, got %#v", err)
	}
}

func TestMemoryGatewayPredicates(t *testing.T) {
	ctx := context.Background()
	gw := NewMemoryGateway()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	seed := []Row{
		{"id": "t1", "employee_id": "e1", "created_at": now.AddDate(-2, 0, 0), "hours_worked": 7.5},
		{"id": "t2", "employee_id": "e1", "created_at": now.AddDate(0, -1, 0), "hours_worked": 8.0},
		{"id": "t3", "employee_id": "e2", "created_at": now, "notes": nil},
	}
	for _, row := range seed {
		if _, err := gw.Insert(ctx, TableTimesheetEntries, row); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	cases := []struct {
		name  string
		preds []Predicate
		want  []string
	}{
		{"eq", []Predicate{Eq("employee_id", "e1")}, []string{"t1", "t2"}},
		{"neq", []Predicate{Neq("employee_id", "e1")}, []string{"t3"}},
		{"in", []Predicate{In("id", []string{"t3", "t1"})}, []string{"t1", "t3"}},
		{"empty in", []Predicate{In("id", nil)}, nil},
		{"lt time", []Predicate{Lt("created_at", now.AddDate(-1, 0, 0))}, []string{"t1"}},
		{"gte time", []Predicate{Gte("created_at", now.AddDate(0, -1, 0))}, []string{"t2", "t3"}},
		{"gt number", []Predicate{Gt("hours_worked", 7.5)}, []string{"t2"}},
		{"is null", []Predicate{IsNull("hours_worked")}, []string{"t3"}},
		{"not null and eq", []Predicate{NotNull("hours_worked"), Eq("employee_id", "e1")}, []string{"t1", "t2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := gw.Select(ctx, TableTimesheetEntries, tc.preds...)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if len(rows) != len(tc.want) {
				t.Fatalf("expected %v, got %d rows", tc.want, len(rows))
			}
			for i, row := range rows {
				if row.Str("id") != tc.want[i] {
					t.Fatalf("expected %v, got row %d = %s", tc.want, i, row.Str("id"))
				}
			}
		})
	}
}

func TestMemoryGatewayUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	gw := NewMemoryGateway()
	for _, id := range []string{"d1", "d2", "d3"} {
		if _, err := gw.Insert(ctx, TableDocuments, Row{"id": id, "title": "contract"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := gw.Update(ctx, TableDocuments, "d1", Row{"title": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := gw.Update(ctx, TableDocuments, "missing", Row{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	n, err := gw.UpdateBatch(ctx, TableDocuments, []string{"d2", "d3", "missing"}, Row{"status": "archived"})
	if err != nil || n != 2 {
		t.Fatalf("update batch: n=%d err=%v", n, err)
	}
	rows, _ := gw.Select(ctx, TableDocuments, IsNull("title"))
	if len(rows) != 1 || rows[0].Str("id") != "d1" {
		t.Fatalf("expected cleared title on d1, got %v", rows)
	}

	deleted, err := gw.Delete(ctx, TableDocuments, "d1", "d3", "missing")
	if err != nil || deleted != 2 {
		t.Fatalf("delete: n=%d err=%v", deleted, err)
	}
	if gw.Count(TableDocuments) != 1 {
		t.Fatalf("expected 1 remaining row, got %d", gw.Count(TableDocuments))
	}
}

func TestRowAccessors(t *testing.T) {
	row := Row{
		"count":   int32(4),
		"flag":    int64(1),
		"when":    "2026-03-01T10:00:00.000000000Z",
		"list":    `["a","b"]`,
		"details": `{"k":"v"}`,
		"nothing": nil,
	}
	if row.Int("count") != 4 {
		t.Fatalf("unexpected int: %d", row.Int("count"))
	}
	if !row.Bool("flag") {
		t.Fatal("expected true flag")
	}
	if row.Time("when").Month() != time.March {
		t.Fatalf("unexpected time: %v", row.Time("when"))
	}
	if got := row.Strings("list"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected list: %v", got)
	}
	if row.Map("details")["k"] != "v" {
		t.Fatal("expected decoded map")
	}
	if row.StrPtr("nothing") != nil || row.TimePtr("nothing") != nil {
		t.Fatal("expected nil pointers for NULL")
	}
}
