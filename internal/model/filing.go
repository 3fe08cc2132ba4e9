package model

import (
	"regexp"
	"strconv"
)

// FormTenK is the EDGAR form type of an annual report.
const FormTenK = "10-K"

// AllPeriods is the period identifier of a corpus spanning every filing period.
const AllPeriods = "all"

// NoInsights is the narrative substituted when the completion is empty.
const NoInsights = "No insights found."

// FilingCorpus is the concatenated raw text of every submission found under
// one company/period directory. It is built per invocation and never persisted.
type FilingCorpus struct {
	Company     string   `json:"company"`
	Period      string   `json:"period"`
	Text        string   `json:"-"`
	Submissions []string `json:"submissions"`
}

// Empty reports whether no submission text was found.
func (c FilingCorpus) Empty() bool { return c.Text == "" }

// ExtractionRecord is one structured, unvalidated extraction result for a
// company/period. Top-level keys are whatever the completion emitted.
type ExtractionRecord map[string]any

// Unit is the magnitude or kind suffix attached to a parsed value.
type Unit string

const (
	UnitNone    Unit = ""
	UnitBillion Unit = "billion"
	UnitMillion Unit = "million"
	UnitPercent Unit = "percent"
)

// SummaryMetric is one flattened, chart-ready record per company/period.
type SummaryMetric struct {
	Period                  string   `json:"period"`
	Year                    int      `json:"year"`
	Revenue                 *float64 `json:"revenue"`
	RevenueUnit             Unit     `json:"revenue_unit,omitempty"`
	NetIncome               *float64 `json:"net_income"`
	NetIncomeUnit           Unit     `json:"net_income_unit,omitempty"`
	EffectiveTaxRate        *float64 `json:"effective_tax_rate"`
	ForeignIncomePercentage *float64 `json:"foreign_income_percentage"`
}

// InsightNarrative is one free-text analyst narrative per company.
type InsightNarrative struct {
	Company  string `json:"company"`
	Insights string `json:"insights"`
}

// DiagnosticStatus classifies what happened to one period's record.
type DiagnosticStatus string

const (
	DiagnosticOK            DiagnosticStatus = "ok"
	DiagnosticDropped       DiagnosticStatus = "dropped"
	DiagnosticUpstreamError DiagnosticStatus = "upstream_error"
	DiagnosticMalformed     DiagnosticStatus = "malformed"
	DiagnosticNotFound      DiagnosticStatus = "not_found"
)

// Diagnostic records the outcome of one period so that "no data" can be told
// apart from "data present but unparseable".
type Diagnostic struct {
	Period   string           `json:"period"`
	Status   DiagnosticStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

var yearPattern = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)

// YearOf returns the first standalone 19xx/20xx year in a period identifier.
// Compact dates such as "20230930" fall back to their leading four digits.
// Returns 0 when no year is found.
func YearOf(period string) int {
	if m := yearPattern.FindStringSubmatch(period); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	if len(period) >= 4 {
		if y, err := strconv.Atoi(period[:4]); err == nil && y >= 1900 && y < 2100 {
			return y
		}
	}
	return 0
}

// PeriodBefore orders periods by embedded year, then lexically.
func PeriodBefore(a, b string) bool {
	ya, yb := YearOf(a), YearOf(b)
	if ya != yb {
		return ya < yb
	}
	return a < b
}
