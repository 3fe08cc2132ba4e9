// Package gemini wraps the Google GenAI SDK for single-turn text generation.
package gemini

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.0-flash"

// Client defines the Gemini operations used by the pipeline.
type Client interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResponse, error)
}

// TextRequest is a single-turn generation request.
type TextRequest struct {
	Model           string
	Prompt          string
	MaxOutputTokens int32
	Temperature     *float32
}

// TextResponse holds the first candidate's text and token counts.
type TextResponse struct {
	Model        string
	Text         string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

// Options configures the SDK client.
type Options struct {
	BaseURL string
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string, opts Options) (Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) GenerateText(ctx context.Context, req TextRequest) (*TextResponse, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: req.MaxOutputTokens,
		CandidateCount:  1,
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(*req.Temperature)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	return fromSDKResponse(model, resp), nil
}

func fromSDKResponse(model string, resp *genai.GenerateContentResponse) *TextResponse {
	out := &TextResponse{Model: model}
	if resp == nil {
		return out
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		out.FinishReason = string(cand.FinishReason)
		if cand.Content != nil {
			var b strings.Builder
			for _, part := range cand.Content.Parts {
				if part != nil && part.Text != "" && !part.Thought {
					b.WriteString(part.Text)
				}
			}
			out.Text = b.String()
		}
	}

	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out
}
