// Package completion sends single prompts to a hosted text-completion
// provider and returns the trimmed text of the first candidate.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/tenk-cli/internal/model"
)

// Stage names the pipeline stage a completion belongs to.
type Stage string

const (
	StageExtraction Stage = "extraction"
	StageSummary    Stage = "summary"
	StageNarrative  Stage = "narrative"
)

// Request is one single-turn completion.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stage       Stage
}

// Response is the trimmed text of the first candidate.
type Response struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// Client invokes the completion capability exactly once per call.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
}

// UpstreamError wraps any failure raised by the provider call. Callers log it
// and substitute an empty result.
type UpstreamError struct {
	Provider  string
	Stage     Stage
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion: %s %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Settings are the provider-independent call options.
type Settings struct {
	Model string
	// Timeout bounds each call in addition to the caller's context. Zero
	// means no extra bound.
	Timeout time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
