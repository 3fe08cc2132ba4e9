package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/pipeline"
	"github.com/sells-group/tenk-cli/internal/sink"
	"github.com/sells-group/tenk-cli/internal/store"
)

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Analyze(ctx context.Context, ticker string) (*pipeline.AnalyzeResult, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.AnalyzeResult), args.Error(1)
}

func (m *mockPipeline) Extract(ctx context.Context, ticker string) (*pipeline.ExtractResult, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.ExtractResult), args.Error(1)
}

func (m *mockPipeline) Summarize(ctx context.Context, ticker string) (*pipeline.SummaryResult, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.SummaryResult), args.Error(1)
}

func (m *mockPipeline) Narrate(ctx context.Context, ticker string) (model.InsightNarrative, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(model.InsightNarrative), args.Error(1)
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	p       *mockPipeline
	store   *store.SQLiteStore
	images  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "tenk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	images := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(images, 0o755))

	p := &mockPipeline{}
	srv, err := NewServer(context.Background(), p, st, Options{ImagesRoot: images})
	require.NoError(t, err)
	return &testEnv{srv: srv, handler: srv.Routes(), p: p, store: st, images: images}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHome(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="ticker"`)
}

func TestAnalyzePage(t *testing.T) {
	e := newTestEnv(t)
	charts := sink.ChartNames("AAPL")
	e.p.On("Analyze", mock.Anything, "aapl").Return(&pipeline.AnalyzeResult{
		Narrative: model.InsightNarrative{Company: "AAPL", Insights: "Services <grew> strongly."},
		Summary: &pipeline.SummaryResult{
			Ticker: "AAPL",
			Charts: &charts,
			Diagnostics: []model.Diagnostic{
				{Period: "2023", Status: model.DiagnosticOK},
				{Period: "2022", Status: model.DiagnosticDropped, Reason: "missing net income"},
			},
		},
	}, nil)

	form := url.Values{"ticker": {"aapl"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := e.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Insights for AAPL")
	assert.Contains(t, body, "Services &lt;grew&gt; strongly.")
	for _, name := range charts.Names() {
		assert.Contains(t, body, "/static/images/"+name)
	}
	assert.Contains(t, body, "missing net income")
}

func TestAnalyzePage_InvalidTicker(t *testing.T) {
	e := newTestEnv(t)
	e.p.On("Analyze", mock.Anything, "bad ticker").Return(nil, pipeline.ErrInvalidTicker)

	form := url.Values{"ticker": {"bad ticker"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := e.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid ticker")
}

func TestStaticImages(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.images, "AAPL_chart.png"), []byte("png"), 0o644))

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/static/images/AAPL_chart.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}

func TestExtractAPI_Wait(t *testing.T) {
	e := newTestEnv(t)
	e.p.On("Extract", mock.Anything, "AAPL").Return(&pipeline.ExtractResult{
		RunID:  "run-1",
		Ticker: "AAPL",
		Periods: []pipeline.PeriodOutcome{
			{Period: "2023", Status: model.DiagnosticOK, Path: "insights/AAPL/2023_insights.json"},
		},
	}, nil)

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/companies/aapl/extract?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.ExtractResult
	decode(t, rec, &got)
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Periods, 1)
}

func TestExtractAPI_Async(t *testing.T) {
	e := newTestEnv(t)
	e.p.On("Extract", mock.Anything, "AAPL").Return(&pipeline.ExtractResult{Ticker: "AAPL"}, nil).Once()

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/companies/AAPL/extract", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"accepted","ticker":"AAPL"}`, rec.Body.String())

	e.srv.Wait()
	e.p.AssertExpectations(t)
}

func TestExtractAPI_InvalidTicker(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/companies/a..b..c..d..e/extract", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e.p.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestMetricsAPI(t *testing.T) {
	e := newTestEnv(t)
	rev, ni := 394.3, 97.0
	charts := sink.ChartNames("AAPL")
	e.p.On("Summarize", mock.Anything, "AAPL").Return(&pipeline.SummaryResult{
		Ticker:  "AAPL",
		Metrics: []model.SummaryMetric{{Period: "2023", Year: 2023, Revenue: &rev, NetIncome: &ni}},
		Charts:  &charts,
	}, nil)

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/companies/AAPL/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Ticker  string                `json:"ticker"`
		Metrics []model.SummaryMetric `json:"metrics"`
		Charts  struct {
			RevenueNetIncome string   `json:"revenue_net_income"`
			URLs             []string `json:"urls"`
		} `json:"charts"`
	}
	decode(t, rec, &got)
	assert.Equal(t, "AAPL", got.Ticker)
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, charts.RevenueNetIncome, got.Charts.RevenueNetIncome)
	assert.Len(t, got.Charts.URLs, 3)
	assert.Equal(t, "/static/images/"+charts.RevenueNetIncome, got.Charts.URLs[0])
}

func TestNarrativeAPI(t *testing.T) {
	e := newTestEnv(t)
	e.p.On("Narrate", mock.Anything, "MSFT").
		Return(model.InsightNarrative{Company: "MSFT", Insights: model.NoInsights}, nil)

	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/companies/MSFT/narrative", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"company":"MSFT","insights":"No insights found."}`, rec.Body.String())
}

func TestMetricsAPI_GetServesLatestRun(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/companies/AAPL/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	charts := sink.ChartNames("AAPL")
	run, err := e.store.CreateRun(ctx, "AAPL", model.RunKindSummary)
	require.NoError(t, err)
	result := `{"ticker":"AAPL","metrics":[{"period":"2023","year":2023,"revenue":394.3}],"diagnostics":[],` +
		`"charts":{"revenue_net_income":"` + charts.RevenueNetIncome + `"},"usage":{}}`
	require.NoError(t, e.store.CompleteRun(ctx, run.ID, model.RunStatusComplete, json.RawMessage(result), ""))
	failed, err := e.store.CreateRun(ctx, "AAPL", model.RunKindSummary)
	require.NoError(t, err)
	require.NoError(t, e.store.CompleteRun(ctx, failed.ID, model.RunStatusFailed, nil, "boom"))

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/companies/aapl/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Metrics []model.SummaryMetric `json:"metrics"`
		Charts  struct {
			URLs []string `json:"urls"`
		} `json:"charts"`
	}
	decode(t, rec, &got)
	require.Len(t, got.Metrics, 1)
	require.NotNil(t, got.Metrics[0].Revenue)
	assert.InDelta(t, 394.3, *got.Metrics[0].Revenue, 1e-9)
	assert.Contains(t, got.Charts.URLs, "/static/images/"+charts.RevenueNetIncome)
	e.p.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
}

func TestNarrativeAPI_GetServesLatestRun(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	run, err := e.store.CreateRun(ctx, "MSFT", model.RunKindNarrate)
	require.NoError(t, err)
	require.NoError(t, e.store.CompleteRun(ctx, run.ID, model.RunStatusComplete,
		json.RawMessage(`{"company":"MSFT","insights":"Cloud keeps growing."}`), ""))

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/companies/MSFT/narrative", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"company":"MSFT","insights":"Cloud keeps growing."}`, rec.Body.String())
	e.p.AssertNotCalled(t, "Narrate", mock.Anything, mock.Anything)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/companies/not%20a%20ticker/narrative", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestResult_NoStore(t *testing.T) {
	srv, err := NewServer(context.Background(), &mockPipeline{}, nil, Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/companies/AAPL/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunsAPI(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	run, err := e.store.CreateRun(ctx, "AAPL", model.RunKindExtract)
	require.NoError(t, err)
	_, err = e.store.CreateRun(ctx, "MSFT", model.RunKindSummary)
	require.NoError(t, err)
	_, err = e.store.CreatePhase(ctx, run.ID, "extract_2023")
	require.NoError(t, err)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/runs?ticker=aapl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []model.Run `json:"runs"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.ID, list.Runs[0].ID)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Run    model.Run        `json:"run"`
		Phases []model.RunPhase `json:"phases"`
	}
	decode(t, rec, &detail)
	assert.Equal(t, "AAPL", detail.Run.Ticker)
	require.Len(t, detail.Phases, 1)
	assert.Equal(t, "extract_2023", detail.Phases[0].Name)
}

func TestRunsAPI_Errors(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/runs/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsAPI_NoStore(t *testing.T) {
	srv, err := NewServer(context.Background(), &mockPipeline{}, nil, Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := e.do(t, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
