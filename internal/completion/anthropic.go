package completion

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/cost"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/resilience"
	"github.com/sells-group/tenk-cli/pkg/anthropic"
)

// ProviderAnthropic is the Anthropic provider name.
const ProviderAnthropic = "anthropic"

// AnthropicClient completes prompts with the Anthropic Messages API.
type AnthropicClient struct {
	api      anthropic.Client
	settings Settings
	calc     *cost.Calculator
}

// NewAnthropic creates a Client backed by the Anthropic Messages API.
func NewAnthropic(api anthropic.Client, settings Settings, calc *cost.Calculator) *AnthropicClient {
	return &AnthropicClient{api: api, settings: settings, calc: calc}
}

// Provider returns the provider name.
func (c *AnthropicClient) Provider() string { return ProviderAnthropic }

// Complete sends the prompt as a single user message.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, c.settings.Timeout)
	defer cancel()

	temp := req.Temperature
	resp, err := c.api.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.settings.Model,
		MaxTokens:   int64(req.MaxTokens),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, &UpstreamError{
			Provider:  ProviderAnthropic,
			Stage:     req.Stage,
			Transient: anthropicTransient(err),
			Err:       err,
		}
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	modelID := resp.Model
	if modelID == "" {
		modelID = c.settings.Model
	}
	if c.calc != nil {
		usage.Cost = c.calc.Log(ProviderAnthropic, modelID, string(req.Stage), usage.InputTokens, usage.OutputTokens)
	}
	if resp.StopReason == "max_tokens" {
		zap.L().Debug("completion: output truncated at token budget",
			zap.String("stage", string(req.Stage)),
			zap.Int("max_tokens", req.MaxTokens),
		)
	}

	return &Response{
		Text:  strings.TrimSpace(resp.Text()),
		Model: modelID,
		Usage: usage,
	}, nil
}

func anthropicTransient(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}
