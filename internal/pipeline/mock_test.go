package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/tenk-cli/internal/completion"
)

// --- Completion Mock ---

type mockCompletionClient struct {
	mock.Mock
}

func (m *mockCompletionClient) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*completion.Response), args.Error(1)
}

func (m *mockCompletionClient) Provider() string { return "mock" }

// stage matches requests for one pipeline stage.
func stage(s completion.Stage) any {
	return mock.MatchedBy(func(req completion.Request) bool { return req.Stage == s })
}
