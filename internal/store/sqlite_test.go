package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tenk-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "AAPL", model.RunKindExtract)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, model.RunKindExtract, got.Kind)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Nil(t, got.Result)
	assert.Empty(t, got.Error)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "MSFT", model.RunKindSummary)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusSummarizing))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSummarizing, got.Status)

	err = st.UpdateRunStatus(ctx, "missing", model.RunStatusFailed)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "NVDA", model.RunKindExtract)
	require.NoError(t, err)

	result := json.RawMessage(`{"periods":["2023"]}`)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, result, ""))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.JSONEq(t, string(result), string(got.Result))
}

func TestSQLite_CompleteRun_Failed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "NVDA", model.RunKindNarrate)
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusFailed, nil, "upstream unavailable"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "upstream unavailable", got.Error)
	assert.Nil(t, got.Result)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, "AAPL", model.RunKindExtract)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "AAPL", model.RunKindSummary)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, "MSFT", model.RunKindExtract)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byTicker, err := st.ListRuns(ctx, RunFilter{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, byTicker, 2)

	byKind, err := st.ListRuns(ctx, RunFilter{Kind: model.RunKindExtract})
	require.NoError(t, err)
	assert.Len(t, byKind, 2)

	byStatus, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, a.ID, byStatus[0].ID)

	paged, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestSQLite_ListRuns_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	runs, err := st.ListRuns(context.Background(), RunFilter{Ticker: "NONE"})
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestSQLite_CreatePhase_And_CompletePhase(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "AAPL", model.RunKindExtract)
	require.NoError(t, err)

	read, err := st.CreatePhase(ctx, run.ID, "read_corpus")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseStatusRunning, read.Status)
	extract, err := st.CreatePhase(ctx, run.ID, "extract")
	require.NoError(t, err)

	require.NoError(t, st.CompletePhase(ctx, read.ID, &model.PhaseResult{
		Name:     "read_corpus",
		Status:   model.PhaseStatusComplete,
		Duration: 12,
	}))
	require.NoError(t, st.CompletePhase(ctx, extract.ID, &model.PhaseResult{
		Name:       "extract",
		Status:     model.PhaseStatusFailed,
		Error:      "boom",
		TokenUsage: model.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}))

	phases, err := st.ListPhases(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, "read_corpus", phases[0].Name)
	assert.Equal(t, model.PhaseStatusComplete, phases[0].Status)
	require.NotNil(t, phases[1].Result)
	assert.Equal(t, model.PhaseStatusFailed, phases[1].Status)
	assert.Equal(t, "boom", phases[1].Result.Error)
	assert.Equal(t, 10, phases[1].Result.TokenUsage.InputTokens)
}

func TestSQLite_CompletePhase_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompletePhase(context.Background(), "missing", &model.PhaseResult{Status: model.PhaseStatusComplete})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ImplementsStore(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
