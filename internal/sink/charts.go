package sink

import (
	"bytes"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/tenk-cli/internal/model"
)

// ChartSet names the three chart images rendered for a company.
type ChartSet struct {
	RevenueNetIncome        string `json:"revenue_net_income"`
	EffectiveTaxRate        string `json:"effective_tax_rate"`
	ForeignIncomePercentage string `json:"foreign_income_percentage"`
}

// Names returns the file names in render order.
func (c ChartSet) Names() []string {
	return []string{c.RevenueNetIncome, c.EffectiveTaxRate, c.ForeignIncomePercentage}
}

// ChartNames returns the chart file names for a company.
func ChartNames(company string) ChartSet {
	return ChartSet{
		RevenueNetIncome:        company + "_revenue_net_income_over_years.png",
		EffectiveTaxRate:        company + "_effective_tax_rate_over_years.png",
		ForeignIncomePercentage: company + "_foreign_income_percentage_over_years.png",
	}
}

const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 5 * vg.Inch
)

type series struct {
	label  string
	points plotter.XYs
}

// WriteCharts renders the revenue/net income, effective tax rate and
// foreign income percentage charts, replacing prior images. Points are
// plotted oldest period first; revenue and net income are shown in billions.
func (s *Sink) WriteCharts(company string, metrics []model.SummaryMetric) (ChartSet, error) {
	names := ChartNames(company)

	ordered := make([]model.SummaryMetric, len(metrics))
	copy(ordered, metrics)
	sort.SliceStable(ordered, func(i, j int) bool {
		return model.PeriodBefore(ordered[i].Period, ordered[j].Period)
	})

	ticks := make(plot.ConstantTicks, len(ordered))
	var revenue, netIncome, taxRate, foreign plotter.XYs
	for i, m := range ordered {
		x := float64(i)
		label := m.Period
		if m.Year != 0 {
			label = strconv.Itoa(m.Year)
		}
		ticks[i] = plot.Tick{Value: x, Label: label}

		if m.Revenue != nil {
			revenue = append(revenue, plotter.XY{X: x, Y: ToBillions(*m.Revenue, m.RevenueUnit)})
		}
		if m.NetIncome != nil {
			netIncome = append(netIncome, plotter.XY{X: x, Y: ToBillions(*m.NetIncome, m.NetIncomeUnit)})
		}
		if m.EffectiveTaxRate != nil {
			taxRate = append(taxRate, plotter.XY{X: x, Y: *m.EffectiveTaxRate})
		}
		if m.ForeignIncomePercentage != nil {
			foreign = append(foreign, plotter.XY{X: x, Y: *m.ForeignIncomePercentage})
		}
	}

	charts := []struct {
		name   string
		title  string
		yLabel string
		series []series
	}{
		{names.RevenueNetIncome, "Revenue and Net Income for " + company, "USD (billions)",
			[]series{{"Revenue", revenue}, {"Net Income", netIncome}}},
		{names.EffectiveTaxRate, "Effective Tax Rate for " + company, "Percent",
			[]series{{"Effective Tax Rate", taxRate}}},
		{names.ForeignIncomePercentage, "Foreign Income Percentage for " + company, "Percent",
			[]series{{"Foreign Income Percentage", foreign}}},
	}

	for _, c := range charts {
		if err := s.renderChart(c.name, c.title, c.yLabel, ticks, c.series); err != nil {
			return names, err
		}
	}
	s.log.Info("rendered charts",
		zap.String("company", company),
		zap.Int("points", len(ordered)),
		zap.String("dir", s.imagesRoot),
	)
	return names, nil
}

func (s *Sink) renderChart(name, title, yLabel string, ticks plot.ConstantTicks, lines []series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Year"
	p.Y.Label.Text = yLabel
	p.X.Tick.Marker = ticks
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	drawn := 0
	for i, ln := range lines {
		if len(ln.points) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(ln.points)
		if err != nil {
			return eris.Wrapf(err, "sink: build %s series for %s", ln.label, name)
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(ln.label, line, points)
		drawn++
	}
	if drawn == 0 {
		p.X.Min, p.X.Max = 0, float64(max(len(ticks)-1, 1))
		p.Y.Min, p.Y.Max = 0, 1
	}

	w, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return eris.Wrapf(err, "sink: encode %s", name)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return eris.Wrapf(err, "sink: render %s", name)
	}
	return writeFileAtomic(filepath.Join(s.imagesRoot, name), buf.Bytes())
}

// ToBillions converts a value in the given magnitude unit to billions.
// Values without a unit are assumed to be billions already, as requested by
// the extraction prompt.
func ToBillions(v float64, unit model.Unit) float64 {
	if unit == model.UnitMillion {
		return v / 1000
	}
	return v
}
