// Package export writes summary results to spreadsheet workbooks.
package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/aggregate"
)

// Sheet names written by WriteXLSX.
const (
	MetricsSheet     = "Metrics"
	DiagnosticsSheet = "Diagnostics"
)

// MetricsHeader is the first row of the Metrics sheet.
var MetricsHeader = []string{
	"Period", "Year", "Revenue", "Revenue Unit", "Net Income", "Net Income Unit",
	"Effective Tax Rate", "Foreign Income Percentage",
}

// DiagnosticsHeader is the first row of the Diagnostics sheet.
var DiagnosticsHeader = []string{"Period", "Status", "Reason", "Warnings"}

// WriteXLSX writes a workbook with one row per metric and one row per
// period diagnostic. Missing values are left as empty cells.
func WriteXLSX(path, company string, result aggregate.Result) error {
	f := xlsx.NewFile()

	metrics, err := f.AddSheet(MetricsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add metrics sheet")
	}
	addHeader(metrics, MetricsHeader)
	for _, m := range result.Metrics {
		row := metrics.AddRow()
		row.AddCell().SetString(m.Period)
		if m.Year != 0 {
			row.AddCell().SetInt(m.Year)
		} else {
			row.AddCell()
		}
		addFloat(row, m.Revenue)
		row.AddCell().SetString(string(m.RevenueUnit))
		addFloat(row, m.NetIncome)
		row.AddCell().SetString(string(m.NetIncomeUnit))
		addFloat(row, m.EffectiveTaxRate)
		addFloat(row, m.ForeignIncomePercentage)
	}

	diags, err := f.AddSheet(DiagnosticsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add diagnostics sheet")
	}
	addHeader(diags, DiagnosticsHeader)
	for _, d := range result.Diagnostics {
		row := diags.AddRow()
		row.AddCell().SetString(d.Period)
		row.AddCell().SetString(string(d.Status))
		row.AddCell().SetString(d.Reason)
		row.AddCell().SetString(strings.Join(d.Warnings, "\n"))
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create %s", dir)
		}
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("exported workbook",
		zap.String("company", company),
		zap.String("path", path),
		zap.Int("metrics", len(result.Metrics)),
		zap.Int("diagnostics", len(result.Diagnostics)),
	)
	return nil
}

func addHeader(sheet *xlsx.Sheet, names []string) {
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().SetString(n)
	}
}

func addFloat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
