package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"chartaudit/internal/reconcile"
	"chartaudit/internal/series"
)

func sampleRun() (series.Dataset, reconcile.Reference, reconcile.Report) {
	chart := series.Dataset{
		Category:   series.Energy,
		Parameters: []string{"Date", "Active"},
		Records: []series.Record{
			{Key: "1", Values: map[string]any{"Active": 10.5}},
			{Key: "2", Values: map[string]any{"Active": 11.0}},
		},
	}
	ref := reconcile.Reference{
		KeyColumn: "SurveyDate",
		Columns:   []string{"ActiveEnergy"},
		Keys:      []string{"1", "3"},
		Rows: map[string]map[string]any{
			"1": {"ActiveEnergy": 10.5},
			"3": {"ActiveEnergy": 9.0},
		},
	}
	rep := reconcile.Report{
		Category: series.Energy,
		Mappings: []reconcile.Mapping{{ChartField: "Active", RefField: "ActiveEnergy", Tier: reconcile.TierSubstring}},
		Rows: []reconcile.Row{
			{Key: "1", Parameter: "Active", ChartValue: 10.5, RefValue: 10.5, Difference: 0.0, Match: true, Tier: reconcile.TierSubstring},
			{Key: "2", Missing: "reference"},
			{Key: "3", Missing: "chart"},
		},
		MissingInChart:     1,
		MissingInReference: 1,
	}
	return chart, ref, rep
}

func TestWriteComparison_RoundTrip(t *testing.T) {
	chart, ref, rep := sampleRun()
	path := filepath.Join(t.TempDir(), "energy_comparison.xlsx")
	require.NoError(t, WriteComparison(path, chart, ref, rep))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Comparison", "Chart Data", "Reference Data"}, f.GetSheetList())

	rows, err := f.GetRows("Comparison")
	require.NoError(t, err)

	var header, match, missRef, missChart []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		switch row[0] {
		case "Key":
			header = row
		case "1":
			match = row
		case "2":
			missRef = row
		case "3":
			missChart = row
		}
	}
	assert.Equal(t, []string{"Key", "Parameter", "Chart Value", "Reference Value", "Difference", "Match"}, header)
	require.NotNil(t, match)
	assert.Equal(t, "MATCH", match[5])
	require.NotNil(t, missRef)
	assert.Equal(t, "MISSING IN REFERENCE", missRef[5])
	require.NotNil(t, missChart)
	assert.Equal(t, "MISSING IN CHART", missChart[5])

	chartRows, err := f.GetRows("Chart Data")
	require.NoError(t, err)
	require.NotEmpty(t, chartRows)
	assert.Equal(t, []string{"Key", "Active"}, chartRows[0])
	require.Len(t, chartRows, 3)

	refRows, err := f.GetRows("Reference Data")
	require.NoError(t, err)
	require.NotEmpty(t, refRows)
	assert.Equal(t, []string{"SurveyDate", "ActiveEnergy"}, refRows[0])
}

func TestWriteComparison_MismatchVerdictAndPositionalNote(t *testing.T) {
	chart, ref, _ := sampleRun()
	rep := reconcile.Report{
		Category: series.Energy,
		Mappings: []reconcile.Mapping{{ChartField: "Active", RefField: "ColX", Tier: reconcile.TierPositional}},
		Rows: []reconcile.Row{
			{Key: "1", Parameter: "Active", ChartValue: 10.5, RefValue: 9.0, Difference: 1.5, Match: false, Tier: reconcile.TierPositional},
		},
		Mismatches:          1,
		UnmappedChartFields: []string{"Reactive"},
	}

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteComparison(path, chart, ref, rep))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Comparison")
	require.NoError(t, err)

	var sawVerdict, sawUnmapped, sawMappingNote bool
	for _, row := range rows {
		for _, cell := range row {
			if cell == "MISMATCH (positional)" {
				sawVerdict = true
			}
			if cell == "positional (low confidence)" {
				sawMappingNote = true
			}
		}
		if len(row) >= 2 && row[0] == "Unmapped chart field" && row[1] == "Reactive" {
			sawUnmapped = true
		}
	}
	assert.True(t, sawVerdict, "positional mismatch verdict must be visible")
	assert.True(t, sawMappingNote, "positional mapping must be annotated")
	assert.True(t, sawUnmapped, "unmapped chart fields must be listed")
}
