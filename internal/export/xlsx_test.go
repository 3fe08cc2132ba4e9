package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tenk-cli/internal/aggregate"
	"github.com/sells-group/tenk-cli/internal/model"
)

func ptr(v float64) *float64 { return &v }

func readSheet(t *testing.T, f *xlsx.File, name string) [][]string {
	t.Helper()
	sheet, ok := f.Sheet[name]
	require.True(t, ok, "sheet %s", name)
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "AAPL.xlsx")
	result := aggregate.Result{
		Company: "AAPL",
		Metrics: []model.SummaryMetric{
			{
				Period: "2023", Year: 2023,
				Revenue: ptr(394.3), RevenueUnit: model.UnitBillion,
				NetIncome: ptr(97), NetIncomeUnit: model.UnitBillion,
				EffectiveTaxRate: ptr(14.7),
			},
		},
		Diagnostics: []model.Diagnostic{
			{Period: "2023", Status: model.DiagnosticOK},
			{Period: "2022", Status: model.DiagnosticDropped, Reason: "missing net income", Warnings: []string{"a", "b"}},
		},
	}

	require.NoError(t, WriteXLSX(path, "AAPL", result))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	metrics := readSheet(t, f, MetricsSheet)
	require.Len(t, metrics, 2)
	assert.Equal(t, MetricsHeader, metrics[0])
	assert.Equal(t, "2023", metrics[1][0])
	assert.Equal(t, "2023", metrics[1][1])
	assert.Equal(t, "394.3", metrics[1][2])
	assert.Equal(t, "billion", metrics[1][3])
	assert.Equal(t, "97", metrics[1][4])
	assert.Equal(t, "14.7", metrics[1][6])

	diags := readSheet(t, f, DiagnosticsSheet)
	require.Len(t, diags, 3)
	assert.Equal(t, DiagnosticsHeader, diags[0])
	assert.Equal(t, []string{"2022", "dropped", "missing net income", "a\nb"}, diags[2])
}

func TestWriteXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, "MSFT", aggregate.Result{Company: "MSFT"}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, readSheet(t, f, MetricsSheet), 1)
	assert.Len(t, readSheet(t, f, DiagnosticsSheet), 1)
}
