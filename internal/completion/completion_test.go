package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/sells-group/tenk-cli/internal/cost"
	"github.com/sells-group/tenk-cli/internal/resilience"
	"github.com/sells-group/tenk-cli/pkg/anthropic"
	"github.com/sells-group/tenk-cli/pkg/gemini"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGemini struct {
	mock.Mock
}

func (m *mockGemini) GenerateText(ctx context.Context, req gemini.TextRequest) (*gemini.TextResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.TextResponse), args.Error(1)
}

func TestAnthropicClient_Complete(t *testing.T) {
	api := &mockAnthropic{}
	api.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.Model == "claude-haiku-4-5-20251001" &&
			r.MaxTokens == 1500 &&
			r.Temperature != nil && *r.Temperature == 0.7 &&
			len(r.Messages) == 1 && r.Messages[0].Role == "user" && r.Messages[0].Content == "extract"
	})).Return(&anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: "\n  {\"2023\": {}}  \n"}},
		Usage:   anthropic.TokenUsage{InputTokens: 1_000_000, OutputTokens: 0},
	}, nil)

	c := NewAnthropic(api, Settings{Model: "claude-haiku-4-5-20251001"}, cost.NewCalculator(cost.DefaultRates()))
	resp, err := c.Complete(context.Background(), Request{
		Prompt:      "extract",
		MaxTokens:   1500,
		Temperature: 0.7,
		Stage:       StageExtraction,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"2023": {}}`, resp.Text)
	assert.Equal(t, "claude-haiku-4-5-20251001", resp.Model)
	assert.Equal(t, 1_000_000, resp.Usage.InputTokens)
	assert.InDelta(t, 0.80, resp.Usage.Cost, 1e-9)
	assert.Equal(t, ProviderAnthropic, c.Provider())
	api.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAnthropicClient_UpstreamError(t *testing.T) {
	api := &mockAnthropic{}
	api.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid x-api-key"))

	c := NewAnthropic(api, Settings{Model: "m"}, nil)
	resp, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 150, Stage: StageSummary})
	require.Error(t, err)
	assert.Nil(t, resp)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ProviderAnthropic, ue.Provider)
	assert.Equal(t, StageSummary, ue.Stage)
	assert.False(t, ue.Transient)
	assert.Contains(t, err.Error(), "completion: anthropic summary")
	api.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAnthropicClient_TransientClassification(t *testing.T) {
	api := &mockAnthropic{}
	api.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &sdk.Error{StatusCode: 529})

	c := NewAnthropic(api, Settings{Model: "m"}, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Transient)
}

func TestAnthropicClient_Timeout(t *testing.T) {
	api := &mockAnthropic{}
	api.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded)

	c := NewAnthropic(api, Settings{Model: "m", Timeout: 10 * time.Millisecond}, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGeminiClient_Complete(t *testing.T) {
	api := &mockGemini{}
	api.On("GenerateText", mock.Anything, mock.MatchedBy(func(r gemini.TextRequest) bool {
		return r.Model == "gemini-2.0-flash" &&
			r.MaxOutputTokens == 150 &&
			r.Temperature != nil && *r.Temperature == float32(0.7) &&
			r.Prompt == "summarize"
	})).Return(&gemini.TextResponse{
		Model:        "gemini-2.0-flash-001",
		Text:         "  Revenue: 1\n",
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}, nil)

	c := NewGemini(api, Settings{Model: "gemini-2.0-flash"}, cost.NewCalculator(cost.DefaultRates()))
	resp, err := c.Complete(context.Background(), Request{
		Prompt:      "summarize",
		MaxTokens:   150,
		Temperature: 0.7,
		Stage:       StageSummary,
	})
	require.NoError(t, err)
	assert.Equal(t, "Revenue: 1", resp.Text)
	assert.Equal(t, "gemini-2.0-flash-001", resp.Model)
	assert.InDelta(t, 0.50, resp.Usage.Cost, 1e-9)
	assert.Equal(t, ProviderGemini, c.Provider())
}

func TestGeminiClient_ModelFallsBackToSettings(t *testing.T) {
	api := &mockGemini{}
	api.On("GenerateText", mock.Anything, mock.Anything).
		Return(&gemini.TextResponse{Text: "ok", InputTokens: 1_000_000}, nil)

	c := NewGemini(api, Settings{Model: "gemini-2.0-flash"}, cost.NewCalculator(cost.DefaultRates()))
	resp, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 10, Stage: StageSummary})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	assert.InDelta(t, 0.10, resp.Usage.Cost, 1e-9)
}

func TestGeminiClient_UpstreamError(t *testing.T) {
	api := &mockGemini{}
	api.On("GenerateText", mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"})

	c := NewGemini(api, Settings{Model: "gemini-2.0-flash"}, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 1500, Stage: StageNarrative})

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ProviderGemini, ue.Provider)
	assert.Equal(t, StageNarrative, ue.Stage)
	assert.True(t, ue.Transient)
}

func TestGeminiTransient_Fallback(t *testing.T) {
	assert.True(t, geminiTransient(resilience.NewTransientError(errors.New("x"), 503)))
	assert.False(t, geminiTransient(errors.New("bad request")))
}
