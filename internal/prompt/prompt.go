// Package prompt builds the completion prompts for the extraction, summary
// and narrative pipelines.
package prompt

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tenk-cli/internal/model"
)

// Metric field names requested by the structured template.
const (
	FieldRevenue                 = "Revenue"
	FieldNetIncome               = "Net Income"
	FieldEffectiveTaxRate        = "Effective Tax Rate"
	FieldDeferredTaxAssets       = "Deferred Tax Assets"
	FieldDeferredTaxLiabilities  = "Deferred Tax Liabilities"
	FieldForeignIncomePercentage = "Foreign Income Percentage"
)

// Schema describes the JSON object the structured template asks for.
type Schema struct {
	// Fields are the required top-level metric names for every year.
	Fields []string
	// Example is a sample object keyed by year.
	Example string
}

// DefaultSchema is the six-metric 10-K extraction schema.
var DefaultSchema = Schema{
	Fields: []string{
		FieldRevenue,
		FieldNetIncome,
		FieldEffectiveTaxRate,
		FieldDeferredTaxAssets,
		FieldDeferredTaxLiabilities,
		FieldForeignIncomePercentage,
	},
	Example: `{
  "2022": {
    "Revenue": {"Compute & Networking": "$26.938 billion", "Graphics": "$11.718 billion"},
    "Net Income": {"Compute & Networking": "$7.634 billion", "Graphics": "$2.462 billion"},
    "Effective Tax Rate": "9.9%",
    "Deferred Tax Assets": "$5.05 billion",
    "Deferred Tax Liabilities": "$339 million",
    "Foreign Income Percentage": "85%"
  },
  "2021": {
    ...
  }
}`,
}

// Templates holds the raw template sources. Empty fields fall back to the
// built-in templates.
type Templates struct {
	Structured string `yaml:"structured"`
	Narrative  string `yaml:"narrative"`
	Summary    string `yaml:"summary"`
}

// data is the value every template executes against.
type data struct {
	Company string
	Text    string
	Fields  string
	Example string
}

// Builder renders prompts from parsed templates.
type Builder struct {
	structured *template.Template
	narrative  *template.Template
	summary    *template.Template
}

// NewBuilder parses the given templates, filling gaps with the defaults.
func NewBuilder(t Templates) (*Builder, error) {
	if t.Structured == "" {
		t.Structured = structuredTemplate
	}
	if t.Narrative == "" {
		t.Narrative = narrativeTemplate
	}
	if t.Summary == "" {
		t.Summary = summaryTemplate
	}

	b := &Builder{}
	var err error
	if b.structured, err = template.New("structured").Parse(t.Structured); err != nil {
		return nil, eris.Wrap(err, "prompt: parse structured template")
	}
	if b.narrative, err = template.New("narrative").Parse(t.Narrative); err != nil {
		return nil, eris.Wrap(err, "prompt: parse narrative template")
	}
	if b.summary, err = template.New("summary").Parse(t.Summary); err != nil {
		return nil, eris.Wrap(err, "prompt: parse summary template")
	}
	return b, nil
}

// Default returns a Builder using only the built-in templates.
func Default() *Builder {
	b, err := NewBuilder(Templates{})
	if err != nil {
		panic(err)
	}
	return b
}

// Structured renders the per-period JSON extraction prompt.
func (b *Builder) Structured(corpus model.FilingCorpus, schema Schema) (string, error) {
	fields := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = `"` + f + `"`
	}
	return render(b.structured, data{
		Company: corpus.Company,
		Text:    corpus.Text,
		Fields:  strings.Join(fields, ", "),
		Example: schema.Example,
	})
}

// Narrative renders the company-wide analyst insight prompt.
func (b *Builder) Narrative(corpus model.FilingCorpus) (string, error) {
	return render(b.narrative, data{Company: corpus.Company, Text: corpus.Text})
}

// Summary renders the metric summary prompt over an indented record JSON.
func (b *Builder) Summary(company, recordJSON string) (string, error) {
	return render(b.summary, data{Company: company, Text: recordJSON})
}

func render(t *template.Template, d data) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", eris.Wrapf(err, "prompt: render %s", t.Name())
	}
	return buf.String(), nil
}
