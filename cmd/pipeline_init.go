package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tenk-cli/internal/completion"
	"github.com/sells-group/tenk-cli/internal/config"
	"github.com/sells-group/tenk-cli/internal/cost"
	"github.com/sells-group/tenk-cli/internal/filing"
	"github.com/sells-group/tenk-cli/internal/pipeline"
	"github.com/sells-group/tenk-cli/internal/prompt"
	"github.com/sells-group/tenk-cli/internal/sink"
	"github.com/sells-group/tenk-cli/internal/store"
	anthropicpkg "github.com/sells-group/tenk-cli/pkg/anthropic"
	"github.com/sells-group/tenk-cli/pkg/gemini"
)

// pipelineEnv holds the initialized store, completion client and pipeline
// used by the extract/summarize/insights/export/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Sink     *sink.Sink
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config, opens and migrates the store, builds the
// completion client and prompt builder, and wires the Pipeline. Callers
// should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	builder, err := initPrompts(cfg.Prompt)
	if err != nil {
		return nil, err
	}

	client, err := initCompletion(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sk := sink.New(cfg.Paths.InsightsRoot, cfg.Paths.StaticRoot)
	p := pipeline.New(cfg.Completion, filing.NewReader(cfg.Paths.FilingsRoot), builder, client, sk, st)

	zap.L().Info("pipeline initialized",
		zap.String("provider", client.Provider()),
		zap.String("model", cfg.Completion.Model),
		zap.String("store", cfg.Store.Driver),
	)
	return &pipelineEnv{Store: st, Pipeline: p, Sink: sk}, nil
}

// initStore opens the run ledger selected by store.driver.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "tenk.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// openStore opens and migrates the store for commands that only read or
// write the ledger.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(config.ModeStore); err != nil {
		return nil, err
	}
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initPrompts(pc config.PromptConfig) (*prompt.Builder, error) {
	templates, err := prompt.LoadTemplates(pc.TemplatesFile)
	if err != nil {
		return nil, err
	}
	return prompt.NewBuilder(templates)
}

// initCompletion builds the completion client for completion.provider. SDK
// retries are disabled: each completion is invoked exactly once.
func initCompletion(ctx context.Context, c *config.Config) (completion.Client, error) {
	settings := completion.Settings{
		Model:   c.Completion.Model,
		Timeout: c.Completion.Timeout(),
	}
	calc := cost.NewCalculator(cost.DefaultRates())

	switch c.Completion.Provider {
	case completion.ProviderAnthropic:
		api := anthropicpkg.NewClient(c.Anthropic.Key, anthropicpkg.Options{
			BaseURL:    c.Anthropic.BaseURL,
			MaxRetries: 0,
		})
		return completion.NewAnthropic(api, settings, calc), nil
	case completion.ProviderGemini:
		api, err := gemini.NewClient(ctx, c.Gemini.Key, gemini.Options{BaseURL: c.Gemini.BaseURL})
		if err != nil {
			return nil, err
		}
		return completion.NewGemini(api, settings, calc), nil
	default:
		return nil, eris.Errorf("unsupported completion provider: %s", c.Completion.Provider)
	}
}
