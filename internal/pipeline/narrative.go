package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/completion"
	"github.com/sells-group/tenk-cli/internal/filing"
	"github.com/sells-group/tenk-cli/internal/model"
)

// Narrate produces a free-form narrative over every period of a company.
// A missing corpus or a failed or empty completion yields model.NoInsights.
func (p *Pipeline) Narrate(ctx context.Context, ticker string) (model.InsightNarrative, error) {
	ticker, err := NormalizeTicker(ticker)
	if err != nil {
		return model.InsightNarrative{}, err
	}
	return dedupe(ctx, p, "narrative", ticker, func(ctx context.Context) (model.InsightNarrative, error) {
		return p.narrate(ctx, ticker)
	})
}

func (p *Pipeline) narrate(ctx context.Context, ticker string) (model.InsightNarrative, error) {
	out := model.InsightNarrative{Company: ticker, Insights: model.NoInsights}

	r, err := p.startRun(ctx, ticker, model.RunKindNarrate)
	if err != nil {
		return out, err
	}
	r.log.Info("pipeline: starting narrative")

	r.setStatus(model.RunStatusReading)
	corpus, err := p.reader.ReadCompanyCorpus(ctx, ticker)
	if err != nil && !errors.Is(err, filing.ErrNotFound) {
		r.finish(nil, err)
		return out, err
	}
	if err != nil || corpus.Empty() {
		r.log.Warn("pipeline: no filings to narrate", zap.Error(err))
		r.finish(out, nil)
		return out, nil
	}

	r.setStatus(model.RunStatusNarrating)
	_, err = r.trackPhase("narrate", func() (*model.PhaseResult, error) {
		pr := &model.PhaseResult{Metadata: map[string]any{"submissions": len(corpus.Submissions)}}

		text, err := p.builder.Narrative(corpus)
		if err != nil {
			return pr, err
		}
		resp, err := p.complete(ctx, completion.StageNarrative, p.cfg.NarrativeMaxTokens, text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pr, ctxErr
			}
			r.log.Error("pipeline: narrative completion failed", zap.Error(err))
			pr.Metadata["error"] = err.Error()
			return pr, nil
		}
		pr.TokenUsage = resp.Usage
		if s := strings.TrimSpace(resp.Text); s != "" {
			out.Insights = s
		}
		return pr, nil
	})
	if err != nil {
		r.finish(nil, err)
		return model.InsightNarrative{Company: ticker, Insights: model.NoInsights}, err
	}

	r.finish(out, nil)
	r.log.Info("pipeline: narrative complete", zap.Int("chars", len(out.Insights)))
	return out, nil
}

// AnalyzeResult is the combined output of the interactive flow.
type AnalyzeResult struct {
	Narrative model.InsightNarrative `json:"narrative"`
	Summary   *SummaryResult         `json:"summary"`
}

// Analyze runs the narrative and then the summary for a company.
func (p *Pipeline) Analyze(ctx context.Context, ticker string) (*AnalyzeResult, error) {
	narrative, err := p.Narrate(ctx, ticker)
	if err != nil {
		return nil, err
	}
	summary, err := p.Summarize(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResult{Narrative: narrative, Summary: summary}, nil
}
