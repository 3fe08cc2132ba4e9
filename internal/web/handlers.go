package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/pipeline"
	"github.com/sells-group/tenk-cli/internal/sink"
	"github.com/sells-group/tenk-cli/internal/store"
)

type homePage struct {
	Ticker string
	Error  string
}

type insightsPage struct {
	Ticker      string
	Insights    string
	Charts      []string
	Diagnostics []model.Diagnostic
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "home.html", homePage{})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ticker := r.FormValue("ticker")
	res, err := s.pipeline.Analyze(r.Context(), ticker)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("web: analyze failed", zap.String("ticker", ticker), zap.Error(err))
		}
		s.render(w, status, "home.html", homePage{Ticker: ticker, Error: err.Error()})
		return
	}

	page := insightsPage{
		Ticker:   res.Narrative.Company,
		Insights: res.Narrative.Insights,
	}
	if res.Summary != nil {
		page.Diagnostics = res.Summary.Diagnostics
		if res.Summary.Charts != nil {
			page.Charts = res.Summary.Charts.Names()
		}
	}
	s.render(w, http.StatusOK, "insights.html", page)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	ticker, err := pipeline.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err := s.pipeline.Extract(r.Context(), ticker)
		if err != nil {
			s.fail(w, ticker, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.pipeline.Extract(s.ctx, ticker)
		if err != nil {
			s.log.Error("web: background extraction failed", zap.String("ticker", ticker), zap.Error(err))
			return
		}
		s.log.Info("web: background extraction complete",
			zap.String("ticker", ticker),
			zap.String("run_id", res.RunID),
			zap.Int("periods", len(res.Periods)),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "ticker": ticker})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	res, err := s.pipeline.Summarize(r.Context(), ticker)
	if err != nil {
		s.fail(w, ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, withChartURLs(res))
}

// handleLatestMetrics serves the newest completed summary run from the
// ledger without calling the model.
func (s *Server) handleLatestMetrics(w http.ResponseWriter, r *http.Request) {
	var res pipeline.SummaryResult
	if !s.latestResult(w, r, model.RunKindSummary, &res) {
		return
	}
	writeJSON(w, http.StatusOK, withChartURLs(&res))
}

type chartURLs struct {
	sink.ChartSet
	URLs []string `json:"urls"`
}

type metricsResponse struct {
	*pipeline.SummaryResult
	Charts *chartURLs `json:"charts,omitempty"`
}

func withChartURLs(res *pipeline.SummaryResult) metricsResponse {
	out := metricsResponse{SummaryResult: res}
	if res.Charts != nil {
		c := &chartURLs{ChartSet: *res.Charts}
		for _, name := range res.Charts.Names() {
			c.URLs = append(c.URLs, "/static/images/"+name)
		}
		out.Charts = c
	}
	return out
}

func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	res, err := s.pipeline.Narrate(r.Context(), ticker)
	if err != nil {
		s.fail(w, ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLatestNarrative(w http.ResponseWriter, r *http.Request) {
	var res model.InsightNarrative
	if !s.latestResult(w, r, model.RunKindNarrate, &res) {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// latestResult decodes the result of the newest complete run of kind for the
// URL ticker into dst. It writes the error response and returns false when
// there is nothing to serve.
func (s *Server) latestResult(w http.ResponseWriter, r *http.Request, kind model.RunKind, dst any) bool {
	ticker, err := pipeline.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run ledger disabled"))
		return false
	}
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Ticker: ticker,
		Kind:   kind,
		Status: model.RunStatusComplete,
		Limit:  1,
	})
	if err != nil {
		s.fail(w, ticker, err)
		return false
	}
	if len(runs) == 0 || len(runs[0].Result) == 0 {
		writeError(w, http.StatusNotFound, eris.Errorf("web: no completed %s run for %s", kind, ticker))
		return false
	}
	if err := json.Unmarshal(runs[0].Result, dst); err != nil {
		s.fail(w, ticker, eris.Wrapf(err, "web: decode %s run %s", kind, runs[0].ID))
		return false
	}
	return true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run ledger disabled"))
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Ticker: q.Get("ticker"),
		Kind:   model.RunKind(q.Get("kind")),
		Status: model.RunStatus(q.Get("status")),
	}
	if filter.Ticker != "" {
		t, err := pipeline.NormalizeTicker(filter.Ticker)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Ticker = t
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid "+key))
			return
		}
		*dst = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.fail(w, filter.Ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("run ledger disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, "", err)
		return
	}
	phases, err := s.store.ListPhases(r.Context(), id)
	if err != nil {
		s.fail(w, run.Ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "phases": phases})
}

func (s *Server) fail(w http.ResponseWriter, ticker string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("web: request failed", zap.String("ticker", ticker), zap.Error(err))
	}
	writeError(w, status, err)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("web: render template", zap.String("template", name), zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidTicker):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
