// Package report persists an extraction run as an Excel workbook: the
// chart-side dataset, the reference rows, and the field-by-field comparison
// with mismatches highlighted.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"chartaudit/internal/reconcile"
	"chartaudit/internal/series"
	"chartaudit/internal/tooltip"
)

const (
	sheetComparison = "Comparison"
	sheetChart      = "Chart Data"
	sheetReference  = "Reference Data"
)

// WriteComparison writes the complete run artifact to path. It must only be
// called for a run where both extraction and reference fetch succeeded; a
// partial report is worse than none.
func WriteComparison(path string, chart series.Dataset, ref reconcile.Reference, rep reconcile.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetComparison); err != nil {
		return fmt.Errorf("report: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetChart); err != nil {
		return fmt.Errorf("report: add chart sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetReference); err != nil {
		return fmt.Errorf("report: add reference sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: header style: %w", err)
	}
	mismatchStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("report: mismatch style: %w", err)
	}

	if err := writeComparisonSheet(f, rep, headerStyle, mismatchStyle); err != nil {
		return err
	}
	if err := writeChartSheet(f, chart, headerStyle); err != nil {
		return err
	}
	if err := writeReferenceSheet(f, ref, headerStyle); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

func writeComparisonSheet(f *excelize.File, rep reconcile.Report, headerStyle, mismatchStyle int) error {
	row := 1
	put := func(vals ...any) error {
		if err := setRow(f, sheetComparison, row, vals); err != nil {
			return err
		}
		row++
		return nil
	}

	if err := put("Category", string(rep.Category)); err != nil {
		return err
	}
	if err := put("Mismatches", rep.Mismatches); err != nil {
		return err
	}
	if err := put("Missing in chart", rep.MissingInChart); err != nil {
		return err
	}
	if err := put("Missing in reference", rep.MissingInReference); err != nil {
		return err
	}
	for _, m := range rep.Mappings {
		note := ""
		if m.Tier == reconcile.TierPositional {
			note = "positional (low confidence)"
		}
		if err := put("Field mapping", m.ChartField, m.RefField, fmt.Sprintf("tier %d", m.Tier), note); err != nil {
			return err
		}
	}
	for _, name := range rep.UnmappedChartFields {
		if err := put("Unmapped chart field", name); err != nil {
			return err
		}
	}
	row++

	headerRow := row
	if err := put("Key", "Parameter", "Chart Value", "Reference Value", "Difference", "Match"); err != nil {
		return err
	}
	if err := styleRow(f, sheetComparison, headerRow, 6, headerStyle); err != nil {
		return err
	}

	for _, r := range rep.Rows {
		dataRow := row
		var vals []any
		switch r.Missing {
		case "chart":
			vals = []any{r.Key, "-", "-", "-", "-", "MISSING IN CHART"}
		case "reference":
			vals = []any{r.Key, "-", "-", "-", "-", "MISSING IN REFERENCE"}
		default:
			verdict := "MATCH"
			if !r.Match {
				verdict = "MISMATCH"
			}
			if r.Tier == reconcile.TierPositional {
				verdict += " (positional)"
			}
			vals = []any{r.Key, r.Parameter, cell(r.ChartValue), cell(r.RefValue), cell(r.Difference), verdict}
		}
		if err := put(vals...); err != nil {
			return err
		}
		if r.Missing == "" && !r.Match {
			if err := styleRow(f, sheetComparison, dataRow, 6, mismatchStyle); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeChartSheet(f *excelize.File, chart series.Dataset, headerStyle int) error {
	header := []any{"Key"}
	var params []string
	for _, p := range chart.Parameters {
		if tooltip.IsKeyName(p) {
			continue
		}
		params = append(params, p)
		header = append(header, p)
	}
	if err := setRow(f, sheetChart, 1, header); err != nil {
		return err
	}
	if err := styleRow(f, sheetChart, 1, len(header), headerStyle); err != nil {
		return err
	}
	for i, rec := range chart.Records {
		vals := []any{rec.Key}
		for _, p := range params {
			vals = append(vals, cell(rec.Values[p]))
		}
		if err := setRow(f, sheetChart, i+2, vals); err != nil {
			return err
		}
	}
	return nil
}

func writeReferenceSheet(f *excelize.File, ref reconcile.Reference, headerStyle int) error {
	header := []any{ref.KeyColumn}
	for _, c := range ref.Columns {
		header = append(header, c)
	}
	if err := setRow(f, sheetReference, 1, header); err != nil {
		return err
	}
	if err := styleRow(f, sheetReference, 1, len(header), headerStyle); err != nil {
		return err
	}
	for i, key := range ref.Keys {
		vals := []any{key}
		for _, c := range ref.Columns {
			vals = append(vals, cell(ref.Rows[key][c]))
		}
		if err := setRow(f, sheetReference, i+2, vals); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	for i, v := range vals {
		name, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("report: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, name, v); err != nil {
			return fmt.Errorf("report: set %s!%s: %w", sheet, name, err)
		}
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, width, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(width, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}

// cell maps a dataset value to something excelize can store; nil becomes an
// empty cell.
func cell(v any) any {
	if v == nil {
		return ""
	}
	return v
}
