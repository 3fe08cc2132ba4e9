// Package web serves the interactive insights pages and the JSON API.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/model"
	"github.com/sells-group/tenk-cli/internal/pipeline"
	"github.com/sells-group/tenk-cli/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pipeline is the subset of the pipeline the server drives.
type Pipeline interface {
	Analyze(ctx context.Context, ticker string) (*pipeline.AnalyzeResult, error)
	Extract(ctx context.Context, ticker string) (*pipeline.ExtractResult, error)
	Summarize(ctx context.Context, ticker string) (*pipeline.SummaryResult, error)
	Narrate(ctx context.Context, ticker string) (model.InsightNarrative, error)
}

// Options configures a Server.
type Options struct {
	// ImagesRoot is served under /static/images/.
	ImagesRoot string
	// AllowedOrigins for the JSON API. Empty allows any origin.
	AllowedOrigins []string
}

// Server holds the HTTP handlers. Background extractions started through the
// API run on the server's base context.
type Server struct {
	ctx      context.Context
	pipeline Pipeline
	store    store.Store
	opts     Options
	pages    *template.Template
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewServer parses the embedded page templates. A nil store disables the
// run endpoints.
func NewServer(ctx context.Context, p Pipeline, st store.Store, opts Options) (*Server, error) {
	pages, err := template.New("pages").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "web: parse templates")
	}
	return &Server{
		ctx:      ctx,
		pipeline: p,
		store:    st,
		opts:     opts,
		pages:    pages,
		log:      zap.L().With(zap.String("component", "web")),
	}, nil
}

// Wait blocks until background extractions finish.
func (s *Server) Wait() { s.wg.Wait() }

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleHome)
	r.Post("/", s.handleAnalyze)
	if s.opts.ImagesRoot != "" {
		r.Handle("/static/images/*", http.StripPrefix("/static/images/", http.FileServer(http.Dir(s.opts.ImagesRoot))))
	}

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
		r.Post("/companies/{ticker}/extract", s.handleExtract)
		r.Get("/companies/{ticker}/metrics", s.handleLatestMetrics)
		r.Post("/companies/{ticker}/metrics", s.handleMetrics)
		r.Get("/companies/{ticker}/narrative", s.handleLatestNarrative)
		r.Post("/companies/{ticker}/narrative", s.handleNarrative)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
