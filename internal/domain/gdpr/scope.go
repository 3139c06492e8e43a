package gdpr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hrmprivacy/internal/platform/storage"
)

// FieldKind selects the placeholder a strategy writes into a field.
type FieldKind string

const (
	KindName       FieldKind = "name"
	KindEmail      FieldKind = "email"
	KindIdentifier FieldKind = "identifier"
	KindDate       FieldKind = "date"
	KindNumeric    FieldKind = "numeric"
	KindText       FieldKind = "text"
)

type SensitiveField struct {
	Name string
	Kind FieldKind
}

// subjectTable links one table to the subject through Key.
type subjectTable struct {
	Table     string
	Key       string
	Fields    []SensitiveField
	DependsOn []string
}

// subjectTables is the fixed dependency graph rooted at employees. Children
// come first so hard deletes never orphan them mid-run.
var subjectTables = []subjectTable{
	{
		Table: storage.TablePayrollResults,
		Key:   "employee_id",
		Fields: []SensitiveField{
			{"gross_pay", KindNumeric},
			{"tax_deducted", KindNumeric},
			{"ni_deducted", KindNumeric},
			{"net_pay", KindNumeric},
			{"tax_code", KindIdentifier},
		},
		DependsOn: []string{storage.TableEmployees},
	},
	{
		Table: storage.TableTimesheetEntries,
		Key:   "employee_id",
		Fields: []SensitiveField{
			{"notes", KindText},
			{"location", KindText},
		},
		DependsOn: []string{storage.TableEmployees},
	},
	{
		Table: storage.TableSicknessRecords,
		Key:   "employee_id",
		Fields: []SensitiveField{
			{"reason", KindText},
			{"medical_notes", KindText},
			{"certificate_reference", KindIdentifier},
			{"start_date", KindDate},
			{"end_date", KindDate},
		},
		DependsOn: []string{storage.TableEmployees},
	},
	{
		Table: storage.TableWorkPatterns,
		Key:   "employee_id",
		Fields: []SensitiveField{
			{"notes", KindText},
		},
		DependsOn: []string{storage.TableEmployees},
	},
	{
		Table: storage.TableDocuments,
		Key:   "employee_id",
		Fields: []SensitiveField{
			{"file_name", KindIdentifier},
			{"file_path", KindIdentifier},
			{"description", KindText},
		},
		DependsOn: []string{storage.TableEmployees},
	},
	{
		Table: storage.TableAccessAuditLog,
		Key:   "employee_id",
		Fields: []SensitiveField{
			{"accessed_by", KindIdentifier},
			{"ip_address", KindIdentifier},
			{"user_agent", KindText},
		},
		DependsOn: []string{storage.TableEmployees},
	},
	{
		Table: storage.TableEmployees,
		Key:   "id",
		Fields: []SensitiveField{
			{"first_name", KindName},
			{"last_name", KindName},
			{"email", KindEmail},
			{"phone", KindIdentifier},
			{"address", KindText},
			{"date_of_birth", KindDate},
			{"national_insurance_number", KindIdentifier},
			{"bank_account_number", KindIdentifier},
			{"bank_sort_code", KindIdentifier},
			{"salary", KindNumeric},
		},
	},
}

func lookupSubjectTable(table string) (subjectTable, bool) {
	for _, st := range subjectTables {
		if st.Table == table {
			return st, true
		}
	}
	return subjectTable{}, false
}

// fieldKind falls back to text for fields outside the allowlist.
func fieldKind(table, field string) FieldKind {
	st, ok := lookupSubjectTable(table)
	if !ok {
		return KindText
	}
	for _, f := range st.Fields {
		if f.Name == field {
			return f.Kind
		}
	}
	return KindText
}

// ScopeAnalyzer resolves every record a subject owns across the dependency
// graph. It only reads.
type ScopeAnalyzer struct {
	gateway storage.Gateway
}

func NewScopeAnalyzer(gateway storage.Gateway) *ScopeAnalyzer {
	return &ScopeAnalyzer{gateway: gateway}
}

// Analyze returns one scope per table holding at least one record for the
// subject. An unknown subject yields an empty list.
func (a *ScopeAnalyzer) Analyze(ctx context.Context, subjectID string) ([]ErasureScope, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return []ErasureScope{}, nil
	}
	scopes := make([]ErasureScope, 0, len(subjectTables))
	for _, st := range subjectTables {
		rows, err := a.gateway.Select(ctx, st.Table, storage.Eq(st.Key, subjectID))
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", st.Table, err)
		}
		if len(rows) == 0 {
			continue
		}
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.Str("id"))
		}
		sort.Strings(ids)
		fields := make([]string, len(st.Fields))
		for i, f := range st.Fields {
			fields[i] = f.Name
		}
		scopes = append(scopes, ErasureScope{
			Table:           st.Table,
			RecordIDs:       ids,
			SensitiveFields: fields,
			Dependencies:    append([]string{}, st.DependsOn...),
		})
	}
	return scopes, nil
}

// CountRecords sums record ids across scopes.
func CountRecords(scopes []ErasureScope) int {
	total := 0
	for _, s := range scopes {
		total += len(s.RecordIDs)
	}
	return total
}

func scopeTables(scopes []ErasureScope) []string {
	tables := make([]string, 0, len(scopes))
	for _, s := range scopes {
		tables = append(tables, s.Table)
	}
	return tables
}
