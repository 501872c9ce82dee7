package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

const (
	documentsSheet = "Documents"
	itemsSheet     = "Items"
)

// Row is one processed document. Err is set when the pipeline failed and
// Record is nil.
type Row struct {
	Filename     string
	DocumentType string
	Outcome      constants.Outcome
	Record       map[string]any
	Err          error
}

// Service renders extraction results as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// WorkbookXLSX returns a workbook with a Documents sheet (one row per document,
// one column per top-level scalar field seen in any record) and an Items sheet
// (one row per line item).
func (s *Service) WorkbookXLSX(ctx context.Context, rows []Row) ([]byte, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", documentsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}

	fields := fieldColumns(rows)
	headers := append([]string{"Filename", "Document Type", "Status", "Error"}, fields...)
	if err := writeRow(f, documentsSheet, 1, headers); err != nil {
		return nil, fmt.Errorf("write %s header: %w", documentsSheet, err)
	}

	itemCols := itemColumns(rows)
	if err := writeRow(f, itemsSheet, 1, append([]string{"Filename", "Line"}, itemCols...)); err != nil {
		return nil, fmt.Errorf("write %s header: %w", itemsSheet, err)
	}

	itemRow := 2
	for i, r := range rows {
		values := []any{r.Filename, r.DocumentType, statusOf(r), errorOf(r)}
		for _, k := range fields {
			values = append(values, cellValue(r.Record[k]))
		}
		if err := writeRow(f, documentsSheet, i+2, values); err != nil {
			return nil, fmt.Errorf("write %s row %d: %w", documentsSheet, i+2, err)
		}

		for n, item := range lineItems(r.Record) {
			values := []any{r.Filename, n + 1}
			for _, k := range itemCols {
				values = append(values, cellValue(item[k]))
			}
			if err := writeRow(f, itemsSheet, itemRow, values); err != nil {
				return nil, fmt.Errorf("write %s row %d: %w", itemsSheet, itemRow, err)
			}
			itemRow++
		}
	}

	_ = f.SetColWidth(documentsSheet, "A", "A", 32) // filename
	_ = f.SetColWidth(documentsSheet, "B", "C", 14)
	_ = f.SetColWidth(documentsSheet, "D", "D", 40) // error
	_ = f.SetColWidth(itemsSheet, "A", "A", 32)
	_ = f.SetColWidth(itemsSheet, "C", "C", 40) // description

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"documents", len(rows),
		"items", itemRow-2,
		"columns", len(headers),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// writeRow stops at the first cell that cannot be written.
func writeRow[T any](f *excelize.File, sheet string, row int, values []T) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// fieldColumns lists top-level keys in first-seen order, skipping line items
// and metadata. Fallback diagnostics go in the Error column instead.
func fieldColumns(rows []Row) []string {
	skip := map[string]bool{"items": true, llm.MetadataKey: true, "error": true, "raw": true, "parse_error": true}
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		for _, k := range sortedKeys(r.Record) {
			if skip[k] || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func itemColumns(rows []Row) []string {
	cols := []string{"description", "quantity", "unit_price", "total"}
	seen := map[string]bool{}
	for _, c := range cols {
		seen[c] = true
	}
	for _, r := range rows {
		for _, item := range lineItems(r.Record) {
			for _, k := range sortedKeys(item) {
				if !seen[k] {
					seen[k] = true
					cols = append(cols, k)
				}
			}
		}
	}
	return cols
}

// sortedKeys gives map keys a stable order. Records come out of a JSON decode,
// so their original key order is already lost.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lineItems(record map[string]any) []map[string]any {
	raw, _ := record["items"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func statusOf(r Row) string {
	if r.Err != nil {
		return string(constants.OutcomeFailed)
	}
	return string(r.Outcome)
}

func errorOf(r Row) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if msg, ok := r.Record["parse_error"].(string); ok {
		return msg
	}
	return ""
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string, bool, float64, int, int64:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
