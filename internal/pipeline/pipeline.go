// Package pipeline orchestrates the extraction, summary and narrative flows
// over a company's filings and records every run in the ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/tenk-cli/internal/completion"
	"github.com/sells-group/tenk-cli/internal/config"
	"github.com/sells-group/tenk-cli/internal/filing"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/prompt"
	"github.com/sells-group/tenk-cli/internal/sink"
	"github.com/sells-group/tenk-cli/internal/store"
)

// ErrInvalidTicker is returned for tickers outside [A-Z0-9.-]{1,10}.
var ErrInvalidTicker = eris.New("pipeline: invalid ticker")

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)

// NormalizeTicker upper-cases and validates a ticker.
func NormalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(t) {
		return "", eris.Wrapf(ErrInvalidTicker, "pipeline: ticker %q", ticker)
	}
	return t, nil
}

// Pipeline runs the three flows for one company at a time.
type Pipeline struct {
	cfg     config.CompletionConfig
	reader  *filing.Reader
	builder *prompt.Builder
	client  completion.Client
	sink    *sink.Sink
	store   store.Store
	schema  prompt.Schema

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared context of one in-flight (op, ticker) build. It is
// cancelled once every caller waiting on it has returned.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// New creates a Pipeline. A nil store disables run tracking.
func New(
	cfg config.CompletionConfig,
	reader *filing.Reader,
	builder *prompt.Builder,
	client completion.Client,
	sk *sink.Sink,
	st store.Store,
) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		reader:  reader,
		builder: builder,
		client:  client,
		sink:    sk,
		store:   st,
		schema:  prompt.DefaultSchema,
		flights: make(map[string]*flight),
	}
}

// dedupe runs fn once per (op, ticker) among concurrent callers. The shared
// work runs on a context detached from any single caller; each caller stops
// waiting when its own ctx is done, and the work is cancelled only after the
// last caller has left.
func dedupe[T any](ctx context.Context, p *Pipeline, op, ticker string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, eris.Wrapf(err, "pipeline: %s cancelled", op)
	}

	key := op + ":" + ticker
	f, ch := p.join(ctx, key, func(fctx context.Context) (any, error) {
		return fn(fctx)
	})
	defer p.leave(key, f)

	select {
	case res := <-ch:
		if res.Shared {
			zap.L().Debug("pipeline: joined in-flight run", zap.String("op", op), zap.String("ticker", ticker))
		}
		if res.Val == nil {
			return zero, res.Err
		}
		return res.Val.(T), res.Err
	case <-ctx.Done():
		return zero, eris.Wrapf(ctx.Err(), "pipeline: %s cancelled", op)
	}
}

// join registers a caller on the flight for key and subscribes it to the
// shared result. Both happen under p.mu so a counted caller is always
// waiting on the group.
func (p *Pipeline) join(ctx context.Context, key string, fn func(context.Context) (any, error)) (*flight, <-chan singleflight.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		p.flights[key] = f
	}
	f.refs++
	ch := p.group.DoChan(key, func() (any, error) {
		return fn(f.ctx)
	})
	return f, ch
}

func (p *Pipeline) leave(key string, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.refs--
	if f.refs > 0 {
		return
	}
	f.cancel()
	delete(p.flights, key)
	// A later caller must start fresh instead of joining cancelled work.
	p.group.Forget(key)
}

// run tracks one ledger entry. Methods are safe for concurrent use.
type run struct {
	p   *Pipeline
	ctx context.Context
	id  string
	log *zap.Logger

	mu    sync.Mutex
	usage model.TokenUsage
}

func (p *Pipeline) startRun(ctx context.Context, ticker string, kind model.RunKind) (*run, error) {
	r := &run{
		p:   p,
		ctx: ctx,
		log: zap.L().With(zap.String("component", "pipeline"), zap.String("ticker", ticker), zap.String("kind", string(kind))),
	}
	if p.store == nil {
		return r, nil
	}
	rec, err := p.store.CreateRun(ctx, ticker, kind)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	r.id = rec.ID
	r.log = r.log.With(zap.String("run_id", rec.ID))
	return r, nil
}

func (r *run) setStatus(status model.RunStatus) {
	if r.p.store == nil || r.id == "" {
		return
	}
	if err := r.p.store.UpdateRunStatus(r.ctx, r.id, status); err != nil {
		r.log.Warn("pipeline: failed to update status", zap.Error(err))
	}
}

// trackPhase runs fn as a named phase and records its outcome.
func (r *run) trackPhase(name string, fn func() (*model.PhaseResult, error)) (*model.PhaseResult, error) {
	var phase *model.RunPhase
	if r.p.store != nil && r.id != "" {
		var err error
		phase, err = r.p.store.CreatePhase(r.ctx, r.id, name)
		if err != nil {
			r.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
		}
	}

	start := time.Now()
	phaseResult, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	if phaseResult == nil {
		phaseResult = &model.PhaseResult{}
	}
	phaseResult.Name = name
	phaseResult.Duration = duration

	switch {
	case fnErr != nil:
		phaseResult.Status = model.PhaseStatusFailed
		phaseResult.Error = fnErr.Error()
		r.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	case phaseResult.Status == "":
		phaseResult.Status = model.PhaseStatusComplete
		fallthrough
	default:
		r.log.Info("pipeline: phase finished",
			zap.String("phase", name),
			zap.String("status", string(phaseResult.Status)),
			zap.Int64("duration_ms", duration),
		)
	}

	if phase != nil {
		if err := r.p.store.CompletePhase(context.WithoutCancel(r.ctx), phase.ID, phaseResult); err != nil {
			r.log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}

	r.mu.Lock()
	r.usage.Add(phaseResult.TokenUsage)
	r.mu.Unlock()
	return phaseResult, fnErr
}

func (r *run) totalUsage() model.TokenUsage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// finish marks the run complete, or failed when runErr is set.
func (r *run) finish(result any, runErr error) {
	if r.p.store == nil || r.id == "" {
		return
	}
	status := model.RunStatusComplete
	msg := ""
	if runErr != nil {
		status = model.RunStatusFailed
		msg = runErr.Error()
	}

	var raw json.RawMessage
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			r.log.Warn("pipeline: failed to marshal run result", zap.Error(err))
		} else {
			raw = data
		}
	}

	// The caller's context may already be done; the ledger write must still land.
	ctx := context.WithoutCancel(r.ctx)
	if err := r.p.store.CompleteRun(ctx, r.id, status, raw, msg); err != nil {
		r.log.Warn("pipeline: failed to complete run", zap.Error(err))
	}
}

func (p *Pipeline) complete(ctx context.Context, stage completion.Stage, maxTokens int, text string) (*completion.Response, error) {
	return p.client.Complete(ctx, completion.Request{
		Prompt:      text,
		MaxTokens:   maxTokens,
		Temperature: p.cfg.Temperature,
		Stage:       stage,
	})
}
