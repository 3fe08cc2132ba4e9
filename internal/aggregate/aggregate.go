// Package aggregate collects per-period summaries for one company into an
// ordered metric series with a diagnostic for every period.
package aggregate

import (
	"errors"
	"sort"

	"github.com/sells-group/tenk-cli/internal/completion"
	"github.com/sells-group/tenk-cli/internal/filing"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/parse"
)

// Item is the parsed outcome for one period. Err is set when the period
// produced no completion text.
type Item struct {
	Period  string
	Summary parse.Summary
	Err     error
}

// Result is the aggregated series for one company.
type Result struct {
	Company     string                `json:"company"`
	Metrics     []model.SummaryMetric `json:"metrics"`
	Diagnostics []model.Diagnostic    `json:"diagnostics"`
}

// Dropped returns how many periods did not produce a metric.
func (r Result) Dropped() int {
	return len(r.Diagnostics) - len(r.Metrics)
}

// Aggregate keeps a metric only when both revenue and net income parsed.
// Periods are keyed by their directory name and sorted newest first.
func Aggregate(company string, items []Item) Result {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return model.PeriodBefore(sorted[j].Period, sorted[i].Period)
	})

	res := Result{
		Company:     company,
		Metrics:     []model.SummaryMetric{},
		Diagnostics: make([]model.Diagnostic, 0, len(sorted)),
	}
	for _, it := range sorted {
		d := model.Diagnostic{Period: it.Period, Warnings: it.Summary.WarningStrings()}

		switch {
		case it.Err != nil:
			d.Status = statusForError(it.Err)
			d.Reason = it.Err.Error()
		case it.Summary.Complete():
			d.Status = model.DiagnosticOK
			res.Metrics = append(res.Metrics, it.Summary.Metric(it.Period))
		default:
			d.Status = model.DiagnosticDropped
			d.Reason = missingReason(it.Summary)
		}
		res.Diagnostics = append(res.Diagnostics, d)
	}
	return res
}

func statusForError(err error) model.DiagnosticStatus {
	var ue *completion.UpstreamError
	var pe *parse.ParseError
	switch {
	case errors.As(err, &ue):
		return model.DiagnosticUpstreamError
	case errors.As(err, &pe):
		return model.DiagnosticMalformed
	case errors.Is(err, filing.ErrNotFound):
		return model.DiagnosticNotFound
	default:
		return model.DiagnosticUpstreamError
	}
}

func missingReason(s parse.Summary) string {
	switch {
	case s.Revenue == nil && s.NetIncome == nil:
		return "missing revenue and net income"
	case s.Revenue == nil:
		return "missing revenue"
	default:
		return "missing net income"
	}
}
