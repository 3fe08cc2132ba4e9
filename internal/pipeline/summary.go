package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/aggregate"
	"github.com/sells-group/tenk-cli/internal/completion"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/parse"
	"github.com/sells-group/tenk-cli/internal/sink"
)

// SummaryResult is the outcome of one summary run.
type SummaryResult struct {
	RunID       string                `json:"run_id,omitempty"`
	Ticker      string                `json:"ticker"`
	Metrics     []model.SummaryMetric `json:"metrics"`
	Diagnostics []model.Diagnostic    `json:"diagnostics"`
	Charts      *sink.ChartSet        `json:"charts,omitempty"`
	Usage       model.TokenUsage      `json:"usage"`
}

// Summarize reduces each persisted record to four labeled metrics, aggregates
// the series and renders charts when at least one period survives.
func (p *Pipeline) Summarize(ctx context.Context, ticker string) (*SummaryResult, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	return dedupe(ctx, p, "summary", ticker, func(ctx context.Context) (*SummaryResult, error) {
		return p.summarize(ctx, ticker)
	})
}

func (p *Pipeline) summarize(ctx context.Context, ticker string) (*SummaryResult, error) {
	r, err := p.startRun(ctx, ticker, model.RunKindSummary)
	if err != nil {
		return nil, err
	}
	r.log.Info("pipeline: starting summary")

	r.setStatus(model.RunStatusReading)
	records, err := p.sink.ReadRecords(ticker)
	if err != nil {
		r.finish(nil, err)
		return nil, err
	}
	if len(records) == 0 {
		r.log.Warn("pipeline: no insight records for company")
	}

	r.setStatus(model.RunStatusSummarizing)
	items := make([]aggregate.Item, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			r.finish(nil, err)
			return nil, eris.Wrap(err, "pipeline: summary cancelled")
		}

		var item aggregate.Item
		_, err := r.trackPhase("summarize_"+rec.Period, func() (*model.PhaseResult, error) {
			pr := &model.PhaseResult{}
			var serr error
			item, serr = p.summarizeRecord(ctx, r, ticker, rec, pr)
			if serr != nil {
				return pr, serr
			}
			if item.Err != nil {
				pr.Metadata = map[string]any{"error": item.Err.Error()}
			} else if len(item.Summary.Warnings) > 0 {
				pr.Metadata = map[string]any{"warnings": item.Summary.WarningStrings()}
			}
			return pr, nil
		})
		if err != nil {
			r.finish(nil, err)
			return nil, err
		}
		items = append(items, item)
	}

	agg := aggregate.Aggregate(ticker, items)
	result := &SummaryResult{
		RunID:       r.id,
		Ticker:      ticker,
		Metrics:     agg.Metrics,
		Diagnostics: agg.Diagnostics,
	}
	for _, d := range agg.Diagnostics {
		if d.Status != model.DiagnosticOK {
			r.log.Warn("pipeline: period dropped from summary",
				zap.String("period", d.Period),
				zap.String("status", string(d.Status)),
				zap.String("reason", d.Reason),
			)
		}
	}

	if len(agg.Metrics) == 0 {
		r.log.Info("pipeline: no metrics to plot")
	} else {
		_, err := r.trackPhase("charts", func() (*model.PhaseResult, error) {
			set, err := p.sink.WriteCharts(ticker, agg.Metrics)
			if err != nil {
				return nil, err
			}
			result.Charts = &set
			return &model.PhaseResult{Metadata: map[string]any{"points": len(agg.Metrics)}}, nil
		})
		if err != nil {
			r.finish(result, err)
			return nil, err
		}
	}

	result.Usage = r.totalUsage()
	r.finish(result, nil)
	r.log.Info("pipeline: summary complete",
		zap.Int("periods", len(agg.Diagnostics)),
		zap.Int("metrics", len(agg.Metrics)),
		zap.Int("dropped", agg.Dropped()),
	)
	return result, nil
}

// summarizeRecord turns one persisted record into an aggregate item.
// Unreadable records and completion errors become item errors; only
// cancellation is returned.
func (p *Pipeline) summarizeRecord(ctx context.Context, r *run, ticker string, rec sink.StoredRecord, pr *model.PhaseResult) (aggregate.Item, error) {
	log := r.log.With(zap.String("period", rec.Period))
	item := aggregate.Item{Period: rec.Period}

	if rec.Err != nil {
		log.Warn("pipeline: unreadable insight record", zap.String("path", rec.Path), zap.Error(rec.Err))
		item.Err = &parse.ParseError{Kind: parse.MalformedOutput, Err: rec.Err}
		return item, nil
	}

	data, err := json.MarshalIndent(rec.Record, "", "  ")
	if err != nil {
		item.Err = &parse.ParseError{Kind: parse.MalformedOutput, Err: err}
		return item, nil
	}

	text, err := p.builder.Summary(ticker, string(data))
	if err != nil {
		item.Err = err
		return item, nil
	}

	resp, err := p.complete(ctx, completion.StageSummary, p.cfg.SummaryMaxTokens, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return item, eris.Wrap(ctxErr, "pipeline: summary cancelled")
		}
		log.Error("pipeline: summary completion failed", zap.Error(err))
		item.Err = err
		return item, nil
	}
	pr.TokenUsage = resp.Usage

	item.Summary = parse.KeywordLines(resp.Text)
	for _, w := range item.Summary.Warnings {
		log.Debug("pipeline: summary line warning", zap.String("warning", w.String()))
	}
	return item, nil
}
