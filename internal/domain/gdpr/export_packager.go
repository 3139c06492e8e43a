package gdpr

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

var contentTypes = map[string]string{
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
	FormatPDF:  "application/pdf",
}

// ContentType returns the MIME type served for an export format.
func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

func supportedFormat(format string) bool {
	_, ok := contentTypes[format]
	return ok
}

// Packager renders a PersonalDataPackage into a downloadable file.
type Packager struct{}

func (Packager) Generate(pkg PersonalDataPackage, format string) (ExportFile, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = renderJSON(pkg)
	case FormatCSV:
		data, err = renderCSV(pkg)
	case FormatPDF:
		data, err = renderPDF(pkg)
	default:
		return ExportFile{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return ExportFile{}, fmt.Errorf("render %s export: %w", format, err)
	}
	return ExportFile{
		Name:        pkg.Metadata.RequestID + "." + format,
		ContentType: ContentType(format),
		Data:        data,
	}, nil
}

func renderJSON(pkg PersonalDataPackage) ([]byte, error) {
	doc := make(map[string]any, len(pkg.Categories)+1)
	doc["export_metadata"] = pkg.Metadata
	for _, cat := range pkg.Categories {
		doc[cat.Name] = cat.Records
	}
	return json.MarshalIndent(doc, "", "  ")
}

func renderCSV(pkg PersonalDataPackage) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	meta := pkg.Metadata
	rows := [][]string{
		{"export_metadata"},
		{"field", "value"},
		{"request_id", meta.RequestID},
		{"export_date", meta.ExportDate.UTC().Format(time.RFC3339)},
		{"format", meta.Format},
		{"scope", meta.Scope},
		{"total_records", strconv.Itoa(meta.TotalRecords)},
		{"data_sources", strings.Join(meta.DataSources, ";")},
	}
	for _, cat := range pkg.Categories {
		columns := recordColumns(cat.Records)
		rows = append(rows, []string{}, []string{cat.Name}, columns)
		for _, record := range cat.Records {
			line := make([]string, len(columns))
			for i, col := range columns {
				line[i] = csvCell(record[col])
			}
			rows = append(rows, line)
		}
	}
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// recordColumns is the sorted union of keys across records.
func recordColumns(records []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			seen[key] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

func csvCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(v)
	case int, int32, int64, float32, float64, json.Number:
		return fmt.Sprint(v)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

// renderPDF writes a summary only; the JSON format carries the full data.
func renderPDF(pkg PersonalDataPackage) ([]byte, error) {
	meta := pkg.Metadata
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Personal Data Export")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Request: %s", meta.RequestID))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Export date: %s", meta.ExportDate.UTC().Format("2006-01-02 15:04 MST")))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Scope: %s", meta.Scope))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Total records: %d", meta.TotalRecords))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Categories")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	if len(pkg.Categories) == 0 {
		pdf.Cell(0, 8, "No personal data was found for this subject.")
		pdf.Ln(7)
	}
	for _, cat := range pkg.Categories {
		pdf.Cell(0, 8, fmt.Sprintf("%s: %d record(s)", cat.Name, len(cat.Records)))
		pdf.Ln(7)
	}
	pdf.Ln(5)
	pdf.MultiCell(0, 6, "This document summarises your export. Request the JSON format for the complete data set.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
