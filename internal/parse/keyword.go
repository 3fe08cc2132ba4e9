package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/tenk-cli/internal/model"
)

// Label is one of the metric labels the summary prompt asks for.
type Label string

const (
	LabelRevenue                 Label = "Revenue"
	LabelNetIncome               Label = "Net Income"
	LabelEffectiveTaxRate        Label = "Effective Tax Rate"
	LabelForeignIncomePercentage Label = "Foreign Income Percentage"
)

// Labels lists every recognized label in scan order.
var Labels = []Label{
	LabelRevenue,
	LabelNetIncome,
	LabelEffectiveTaxRate,
	LabelForeignIncomePercentage,
}

// Confidence levels assigned to a parsed field.
const (
	ConfidenceExact    = 1.0 // label opens the line
	ConfidenceEmbedded = 0.5 // label appears later in the line
)

// Field is a typed value parsed from one labeled line.
type Field struct {
	Label      Label      `json:"label"`
	Value      float64    `json:"value"`
	Unit       model.Unit `json:"unit,omitempty"`
	Confidence float64    `json:"confidence"`
	Raw        string     `json:"raw"`
	Line       int        `json:"line"`
}

// Warning describes a line that did not yield a value.
type Warning struct {
	Line   int    `json:"line"`
	Label  Label  `json:"label,omitempty"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (w Warning) String() string {
	if w.Label != "" {
		return fmt.Sprintf("line %d (%s): %s: %q", w.Line, w.Label, w.Reason, w.Raw)
	}
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Reason, w.Raw)
}

// Summary is the result of a keyword-line scan. Fields that did not parse
// are nil.
type Summary struct {
	Revenue                 *Field    `json:"revenue,omitempty"`
	NetIncome               *Field    `json:"net_income,omitempty"`
	EffectiveTaxRate        *Field    `json:"effective_tax_rate,omitempty"`
	ForeignIncomePercentage *Field    `json:"foreign_income_percentage,omitempty"`
	Warnings                []Warning `json:"warnings,omitempty"`
}

// Complete reports whether both revenue and net income parsed.
func (s Summary) Complete() bool {
	return s.Revenue != nil && s.NetIncome != nil
}

// WarningStrings renders the warnings for diagnostics.
func (s Summary) WarningStrings() []string {
	if len(s.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(s.Warnings))
	for i, w := range s.Warnings {
		out[i] = w.String()
	}
	return out
}

// Metric flattens the summary into a chart-ready record.
func (s Summary) Metric(period string) model.SummaryMetric {
	m := model.SummaryMetric{Period: period, Year: model.YearOf(period)}
	if s.Revenue != nil {
		m.Revenue = &s.Revenue.Value
		m.RevenueUnit = s.Revenue.Unit
	}
	if s.NetIncome != nil {
		m.NetIncome = &s.NetIncome.Value
		m.NetIncomeUnit = s.NetIncome.Unit
	}
	if s.EffectiveTaxRate != nil {
		m.EffectiveTaxRate = &s.EffectiveTaxRate.Value
	}
	if s.ForeignIncomePercentage != nil {
		m.ForeignIncomePercentage = &s.ForeignIncomePercentage.Value
	}
	return m
}

func (s *Summary) slot(l Label) **Field {
	switch l {
	case LabelRevenue:
		return &s.Revenue
	case LabelNetIncome:
		return &s.NetIncome
	case LabelEffectiveTaxRate:
		return &s.EffectiveTaxRate
	default:
		return &s.ForeignIncomePercentage
	}
}

// KeywordLines scans completion text line by line. Each label is checked
// independently by substring; the value is the text after the first colon
// with currency, percent and magnitude suffixes stripped. A value that fails
// to parse leaves its field unset and records a warning; the scan always
// continues. Non-blank lines matching no label are also reported.
func KeywordLines(text string) Summary {
	var s Summary
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		matched := false
		for _, label := range Labels {
			if !strings.Contains(line, string(label)) {
				continue
			}
			matched = true

			f, w := parseLine(label, trimmed, lineNo)
			if w != nil {
				s.Warnings = append(s.Warnings, *w)
				continue
			}
			slot := s.slot(label)
			if *slot != nil {
				s.Warnings = append(s.Warnings, Warning{
					Line:   lineNo,
					Label:  label,
					Raw:    trimmed,
					Reason: fmt.Sprintf("duplicate label, replaces line %d", (*slot).Line),
				})
			}
			*slot = f
		}

		if !matched {
			s.Warnings = append(s.Warnings, Warning{Line: lineNo, Raw: trimmed, Reason: "unrecognized line"})
		}
	}
	return s
}

// parseLine tokenizes "[bullet] label : value [unit]".
func parseLine(label Label, line string, lineNo int) (*Field, *Warning) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return nil, &Warning{Line: lineNo, Label: label, Raw: line, Reason: "missing ':' separator"}
	}
	raw := strings.TrimSpace(line[idx+1:])

	value, err := strconv.ParseFloat(StripUnits(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &Warning{Line: lineNo, Label: label, Raw: line, Reason: "value is not a number"}
	}

	confidence := ConfidenceEmbedded
	if strings.HasPrefix(trimBullet(line), string(label)) {
		confidence = ConfidenceExact
	}

	return &Field{
		Label:      label,
		Value:      value,
		Unit:       unitOf(raw),
		Confidence: confidence,
		Raw:        raw,
		Line:       lineNo,
	}, nil
}

var stripTokens = []string{"$", "%", " million", " billion", ","}

// StripUnits removes "$", "%", " million", " billion" and thousands
// separators, then trims whitespace. It repeats until nothing changes, so
// applying it to its own output is a no-op.
func StripUnits(s string) string {
	for {
		out := s
		for _, tok := range stripTokens {
			out = strings.ReplaceAll(out, tok, "")
		}
		out = strings.TrimSpace(out)
		if out == s {
			return out
		}
		s = out
	}
}

func unitOf(raw string) model.Unit {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, " billion"):
		return model.UnitBillion
	case strings.Contains(lower, " million"):
		return model.UnitMillion
	case strings.Contains(raw, "%"):
		return model.UnitPercent
	default:
		return model.UnitNone
	}
}

func trimBullet(line string) string {
	return strings.TrimLeft(line, "-*•0123456789. \t")
}
