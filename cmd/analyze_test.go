package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/pipeline"
)

func ptr(v float64) *float64 { return &v }

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "-", formatValue(nil, model.UnitBillion))
	assert.Equal(t, "394.3 billion", formatValue(ptr(394.3), model.UnitBillion))
	assert.Equal(t, "14.7%", formatValue(ptr(14.7), model.UnitPercent))
	assert.Equal(t, "12", formatValue(ptr(12), model.UnitNone))
}

func TestFormatMetrics(t *testing.T) {
	var buf bytes.Buffer
	formatMetrics(&buf, nil)
	assert.Equal(t, "No metrics to plot.\n", buf.String())

	buf.Reset()
	formatMetrics(&buf, []model.SummaryMetric{{
		Period: "2023", Year: 2023,
		Revenue: ptr(394.3), RevenueUnit: model.UnitBillion,
		NetIncome: ptr(97), NetIncomeUnit: model.UnitBillion,
	}})
	out := buf.String()
	assert.Contains(t, out, "PERIOD")
	assert.Contains(t, out, "394.3 billion")
	assert.Contains(t, out, "97 billion")
}

func TestFormatDiagnostics_OnlyDropped(t *testing.T) {
	var buf bytes.Buffer
	formatDiagnostics(&buf, []model.Diagnostic{
		{Period: "2023", Status: model.DiagnosticOK},
		{Period: "2022", Status: model.DiagnosticMalformed, Reason: "unreadable record"},
	})
	out := buf.String()
	assert.NotContains(t, out, "2023")
	assert.Contains(t, out, "malformed")
	assert.Contains(t, out, "unreadable record")

	buf.Reset()
	formatDiagnostics(&buf, []model.Diagnostic{{Period: "2023", Status: model.DiagnosticOK}})
	assert.Empty(t, buf.String())
}

func TestFormatExtractResult(t *testing.T) {
	var buf bytes.Buffer
	formatExtractResult(&buf, &pipeline.ExtractResult{Ticker: "MSFT"})
	assert.Equal(t, "No filings found for MSFT.\n", buf.String())

	buf.Reset()
	formatExtractResult(&buf, &pipeline.ExtractResult{
		Ticker: "AAPL",
		Periods: []pipeline.PeriodOutcome{
			{Period: "2023", Status: model.DiagnosticOK, Path: "insights/AAPL/2023_insights.json"},
			{Period: "2021", Status: model.DiagnosticNotFound},
		},
		Usage: model.TokenUsage{InputTokens: 1200, OutputTokens: 300, Cost: 0.0123},
	})
	out := buf.String()
	assert.Contains(t, out, "insights/AAPL/2023_insights.json")
	assert.Contains(t, out, "not_found")
	assert.Contains(t, out, "tokens: 1200 in / 300 out, est. cost $0.0123")
}
