package gdpr

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"hrmprivacy/internal/platform/storage"
)

type exportCategory struct {
	Name  string
	Table string
	Key   string
}

// exportCategories is the fixed collection order.
var exportCategories = []exportCategory{
	{CategoryEmployeeInfo, storage.TableEmployees, "id"},
	{CategoryPayrollResults, storage.TablePayrollResults, "employee_id"},
	{CategoryTimesheets, storage.TableTimesheetEntries, "employee_id"},
	{CategorySicknessRecords, storage.TableSicknessRecords, "employee_id"},
	{CategoryWorkPatterns, storage.TableWorkPatterns, "employee_id"},
	{CategoryDocuments, storage.TableDocuments, "employee_id"},
	{CategoryAccessHistory, storage.TableAccessAuditLog, "employee_id"},
}

var scopeCategories = map[string][]string{
	ScopePersonalData:   {CategoryEmployeeInfo, CategoryDocuments},
	ScopeEmploymentData: {CategoryEmployeeInfo, CategoryTimesheets, CategorySicknessRecords, CategoryWorkPatterns},
	ScopePayrollData:    {CategoryEmployeeInfo, CategoryPayrollResults},
	ScopeCompleteProfile: {
		CategoryEmployeeInfo,
		CategoryPayrollResults,
		CategoryTimesheets,
		CategorySicknessRecords,
		CategoryWorkPatterns,
		CategoryDocuments,
		CategoryAccessHistory,
	},
}

// withheldFields are only exported with the complete_profile scope.
var withheldFields = []string{"national_insurance_number", "bank_account_number", "bank_sort_code"}

// ScopeCategories returns the categories an export scope covers.
func ScopeCategories(scope string) ([]string, error) {
	cats, ok := scopeCategories[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return append([]string(nil), cats...), nil
}

// Collector gathers a subject's records into a PersonalDataPackage.
type Collector struct {
	gateway storage.Gateway
	now     func() time.Time
}

func NewCollector(gateway storage.Gateway, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{gateway: gateway, now: now}
}

// Collect reads every category the request's scope covers. Categories with
// no records are left out of the package.
func (c *Collector) Collect(ctx context.Context, req DataExportRequest) (PersonalDataPackage, error) {
	wanted, err := ScopeCategories(req.ExportScope)
	if err != nil {
		return PersonalDataPackage{}, err
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	now := c.now().UTC()
	windowStart := now.AddDate(0, -HistoricalWindowMonths, 0)

	pkg := PersonalDataPackage{
		Metadata: ExportMetadata{
			RequestID:   req.ID,
			ExportDate:  now,
			Format:      req.ExportFormat,
			Scope:       req.ExportScope,
			DataSources: []string{},
		},
	}
	if subjectID == "" {
		return pkg, nil
	}

	for _, cat := range exportCategories {
		if !slices.Contains(wanted, cat.Name) {
			continue
		}
		preds := []storage.Predicate{storage.Eq(cat.Key, subjectID)}
		if cat.Name != CategoryEmployeeInfo && !req.IncludeHistorical {
			preds = append(preds, storage.Gte("created_at", windowStart))
		}
		rows, err := c.gateway.Select(ctx, cat.Table, preds...)
		if err != nil {
			return PersonalDataPackage{}, fmt.Errorf("collect %s: %w", cat.Name, err)
		}
		if len(rows) == 0 {
			continue
		}
		records := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			record := map[string]any(row.Clone())
			if cat.Name == CategoryEmployeeInfo && req.ExportScope != ScopeCompleteProfile {
				for _, field := range withheldFields {
					delete(record, field)
				}
			}
			records = append(records, record)
		}
		pkg.Categories = append(pkg.Categories, CategoryData{Name: cat.Name, Table: cat.Table, Records: records})
		pkg.Metadata.DataSources = append(pkg.Metadata.DataSources, cat.Table)
		if cat.Name == CategoryEmployeeInfo {
			pkg.Metadata.TotalRecords++
		} else {
			pkg.Metadata.TotalRecords += len(records)
		}
	}
	return pkg, nil
}
