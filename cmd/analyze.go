package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/tenk-cli/internal/aggregate"
	"github.com/sells-group/tenk-cli/internal/config"
	"github.com/sells-group/tenk-cli/internal/export"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a structured JSON record for every filing period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeCompletion)
		if err != nil {
			return err
		}
		defer env.Close()

		ticker, _ := cmd.Flags().GetString("ticker")
		res, err := env.Pipeline.Extract(ctx, ticker)
		if err != nil {
			return err
		}
		formatExtractResult(os.Stdout, res)
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize extracted records into metrics and charts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeCompletion)
		if err != nil {
			return err
		}
		defer env.Close()

		ticker, _ := cmd.Flags().GetString("ticker")
		res, err := env.Pipeline.Summarize(ctx, ticker)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatMetrics(os.Stdout, res.Metrics)
		formatDiagnostics(os.Stdout, res.Diagnostics)
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Print a narrative over every filing period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeCompletion)
		if err != nil {
			return err
		}
		defer env.Close()

		ticker, _ := cmd.Flags().GetString("ticker")
		res, err := env.Pipeline.Narrate(ctx, ticker)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, res.Insights)
		return err
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Summarize and write metrics and diagnostics to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeCompletion)
		if err != nil {
			return err
		}
		defer env.Close()

		ticker, _ := cmd.Flags().GetString("ticker")
		res, err := env.Pipeline.Summarize(ctx, ticker)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = res.Ticker + ".xlsx"
		}
		if err := export.WriteXLSX(out, res.Ticker, aggregate.Result{
			Company:     res.Ticker,
			Metrics:     res.Metrics,
			Diagnostics: res.Diagnostics,
		}); err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "wrote %s\n", out)
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{extractCmd, summarizeCmd, insightsCmd, exportCmd} {
		c.Flags().String("ticker", "", "company ticker (required)")
		_ = c.MarkFlagRequired("ticker")
		rootCmd.AddCommand(c)
	}
	summarizeCmd.Flags().Bool("json", false, "print the full result as JSON")
	exportCmd.Flags().String("out", "", "output workbook path (default <TICKER>.xlsx)")
}

func formatExtractResult(out io.Writer, res *pipeline.ExtractResult) {
	if len(res.Periods) == 0 {
		_, _ = fmt.Fprintf(out, "No filings found for %s.\n", res.Ticker)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tSTATUS\tRECORD")
	for _, p := range res.Periods {
		path := p.Path
		if path == "" {
			path = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.Period, p.Status, path)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "tokens: %d in / %d out, est. cost $%.4f\n",
		res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.Cost)
}

func formatMetrics(out io.Writer, metrics []model.SummaryMetric) {
	if len(metrics) == 0 {
		_, _ = fmt.Fprintln(out, "No metrics to plot.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tREVENUE\tNET INCOME\tTAX RATE\tFOREIGN %")
	for _, m := range metrics {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.Period,
			formatValue(m.Revenue, m.RevenueUnit),
			formatValue(m.NetIncome, m.NetIncomeUnit),
			formatValue(m.EffectiveTaxRate, model.UnitPercent),
			formatValue(m.ForeignIncomePercentage, model.UnitPercent),
		)
	}
	_ = w.Flush()
}

func formatDiagnostics(out io.Writer, diags []model.Diagnostic) {
	var dropped []model.Diagnostic
	for _, d := range diags {
		if d.Status != model.DiagnosticOK {
			dropped = append(dropped, d)
		}
	}
	if len(dropped) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tSTATUS\tREASON")
	for _, d := range dropped {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", d.Period, d.Status, d.Reason)
	}
	_ = w.Flush()
}

func formatValue(v *float64, unit model.Unit) string {
	if v == nil {
		return "-"
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	switch unit {
	case model.UnitPercent:
		return s + "%"
	case model.UnitNone:
		return s
	default:
		return s + " " + string(unit)
	}
}
