package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/completion"
	"github.com/sells-group/tenk-cli/internal/filing"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/parse"
)

// PeriodOutcome reports what the extraction flow did for one period.
type PeriodOutcome struct {
	Period string                 `json:"period"`
	Status model.DiagnosticStatus `json:"status"`
	Path   string                 `json:"path,omitempty"`
	Reason string                 `json:"reason,omitempty"`
}

// ExtractResult is the outcome of one extraction run.
type ExtractResult struct {
	RunID   string           `json:"run_id,omitempty"`
	Ticker  string           `json:"ticker"`
	Periods []PeriodOutcome  `json:"periods"`
	Usage   model.TokenUsage `json:"usage"`
}

// Extract runs the structured extraction for every period of a company,
// newest first, writing one record per period. Completion and parse failures
// are logged and an empty record is written in their place.
func (p *Pipeline) Extract(ctx context.Context, ticker string) (*ExtractResult, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	return dedupe(ctx, p, "extract", ticker, func(ctx context.Context) (*ExtractResult, error) {
		return p.extract(ctx, ticker)
	})
}

func (p *Pipeline) extract(ctx context.Context, ticker string) (*ExtractResult, error) {
	r, err := p.startRun(ctx, ticker, model.RunKindExtract)
	if err != nil {
		return nil, err
	}
	result := &ExtractResult{RunID: r.id, Ticker: ticker, Periods: []PeriodOutcome{}}
	r.log.Info("pipeline: starting extraction")

	r.setStatus(model.RunStatusReading)
	periods, err := p.reader.ListPeriods(ctx, ticker)
	if err != nil {
		if errors.Is(err, filing.ErrNotFound) {
			r.log.Warn("pipeline: no filings for company", zap.Error(err))
			r.finish(result, nil)
			return result, nil
		}
		r.finish(result, err)
		return nil, err
	}

	r.setStatus(model.RunStatusExtracting)
	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			r.finish(result, err)
			return nil, eris.Wrap(err, "pipeline: extraction cancelled")
		}

		var outcome PeriodOutcome
		_, err := r.trackPhase("extract_"+period, func() (*model.PhaseResult, error) {
			pr := &model.PhaseResult{}
			o, perr := p.extractPeriod(ctx, r, ticker, period, pr)
			outcome = o
			if perr == nil && o.Status != model.DiagnosticOK {
				pr.Metadata = map[string]any{"status": string(o.Status), "reason": o.Reason}
				if o.Status == model.DiagnosticNotFound {
					pr.Status = model.PhaseStatusSkipped
				}
			}
			return pr, perr
		})
		if err != nil {
			r.finish(result, err)
			return nil, err
		}
		result.Periods = append(result.Periods, outcome)
	}

	result.Usage = r.totalUsage()
	r.finish(result, nil)
	r.log.Info("pipeline: extraction complete",
		zap.Int("periods", len(result.Periods)),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
		zap.Float64("cost_usd", result.Usage.Cost),
	)
	return result, nil
}

// extractPeriod handles one period. The returned error is reserved for
// failures that should abort the run.
func (p *Pipeline) extractPeriod(ctx context.Context, r *run, ticker, period string, pr *model.PhaseResult) (PeriodOutcome, error) {
	log := r.log.With(zap.String("period", period))
	outcome := PeriodOutcome{Period: period, Status: model.DiagnosticOK}

	corpus, err := p.reader.ReadCorpus(ctx, ticker, period)
	if err != nil {
		if errors.Is(err, filing.ErrNotFound) {
			log.Warn("pipeline: period not found", zap.Error(err))
			outcome.Status = model.DiagnosticNotFound
			outcome.Reason = err.Error()
			return outcome, nil
		}
		return outcome, err
	}
	if corpus.Empty() {
		log.Warn("pipeline: period has no submissions")
		outcome.Status = model.DiagnosticNotFound
		outcome.Reason = "period has no submissions"
		return outcome, nil
	}

	text, err := p.builder.Structured(corpus, p.schema)
	if err != nil {
		return outcome, err
	}

	record := model.ExtractionRecord{}
	resp, err := p.complete(ctx, completion.StageExtraction, p.cfg.ExtractionMaxTokens, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, eris.Wrap(ctxErr, "pipeline: extraction cancelled")
		}
		log.Error("pipeline: extraction completion failed", zap.Error(err))
		outcome.Status = model.DiagnosticUpstreamError
		outcome.Reason = err.Error()
	} else {
		pr.TokenUsage = resp.Usage
		record, err = parse.Structured(resp.Text)
		if err != nil {
			var pe *parse.ParseError
			raw := ""
			if errors.As(err, &pe) {
				raw = pe.Raw
			}
			log.Warn("pipeline: extraction output is not valid JSON",
				zap.Error(err),
				zap.Int("raw_len", len(raw)),
			)
			outcome.Status = model.DiagnosticMalformed
			outcome.Reason = err.Error()
		}
	}

	path, err := p.sink.WriteRecord(ticker, period, record)
	if err != nil {
		return outcome, err
	}
	outcome.Path = path
	return outcome, nil
}
