package completion

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/sells-group/tenk-cli/internal/cost"
	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/resilience"
	"github.com/sells-group/tenk-cli/pkg/gemini"
)

// ProviderGemini is the Google Gemini provider name.
const ProviderGemini = "gemini"

// GeminiClient completes prompts with the Gemini API.
type GeminiClient struct {
	api      gemini.Client
	settings Settings
	calc     *cost.Calculator
}

// NewGemini creates a Client backed by the Gemini API.
func NewGemini(api gemini.Client, settings Settings, calc *cost.Calculator) *GeminiClient {
	return &GeminiClient{api: api, settings: settings, calc: calc}
}

// Provider returns the provider name.
func (c *GeminiClient) Provider() string { return ProviderGemini }

// Complete sends the prompt as a single text content.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, c.settings.Timeout)
	defer cancel()

	temp := float32(req.Temperature)
	resp, err := c.api.GenerateText(ctx, gemini.TextRequest{
		Model:           c.settings.Model,
		Prompt:          req.Prompt,
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     &temp,
	})
	if err != nil {
		return nil, &UpstreamError{
			Provider:  ProviderGemini,
			Stage:     req.Stage,
			Transient: geminiTransient(err),
			Err:       err,
		}
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.InputTokens),
		OutputTokens: int(resp.OutputTokens),
	}
	modelID := resp.Model
	if modelID == "" {
		modelID = c.settings.Model
	}
	if c.calc != nil {
		usage.Cost = c.calc.Log(ProviderGemini, modelID, string(req.Stage), usage.InputTokens, usage.OutputTokens)
	}

	return &Response{
		Text:  strings.TrimSpace(resp.Text),
		Model: modelID,
		Usage: usage,
	}, nil
}

func geminiTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return resilience.IsTransientHTTPStatus(apiErrPtr.Code)
	}
	return resilience.IsTransient(err)
}
