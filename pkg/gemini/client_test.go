package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestFromSDKResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.0-flash-001",
		Candidates: []*genai.Candidate{
			{
				FinishReason: genai.FinishReasonStop,
				Content: &genai.Content{
					Role: genai.RoleModel,
					Parts: []*genai.Part{
						{Text: "Revenue: $5.2 billion\n"},
						{Text: "Net Income: $1 billion"},
					},
				},
			},
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "second candidate"}}}},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     120,
			CandidatesTokenCount: 30,
		},
	}

	out := fromSDKResponse("gemini-2.0-flash", resp)
	assert.Equal(t, "gemini-2.0-flash-001", out.Model)
	assert.Equal(t, "Revenue: $5.2 billion\nNet Income: $1 billion", out.Text)
	assert.Equal(t, "STOP", out.FinishReason)
	assert.Equal(t, int64(120), out.InputTokens)
	assert.Equal(t, int64(30), out.OutputTokens)
}

func TestFromSDKResponse_SkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "answer"},
			}},
		}},
	}

	out := fromSDKResponse("gemini-2.0-flash", resp)
	assert.Equal(t, "gemini-2.0-flash", out.Model)
	assert.Equal(t, "answer", out.Text)
}

func TestFromSDKResponse_Empty(t *testing.T) {
	out := fromSDKResponse("m", nil)
	assert.Equal(t, "m", out.Model)
	assert.Empty(t, out.Text)

	out = fromSDKResponse("m", &genai.GenerateContentResponse{})
	assert.Empty(t, out.Text)
	assert.Zero(t, out.InputTokens)
}
