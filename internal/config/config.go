package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Prompt     PromptConfig     `yaml:"prompt" mapstructure:"prompt"`
	Edgar      EdgarConfig      `yaml:"edgar" mapstructure:"edgar"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the filing store and pipeline outputs.
type PathsConfig struct {
	FilingsRoot  string `yaml:"filings_root" mapstructure:"filings_root"`
	InsightsRoot string `yaml:"insights_root" mapstructure:"insights_root"`
	StaticRoot   string `yaml:"static_root" mapstructure:"static_root"`
}

// CompletionConfig selects the completion provider and per-stage budgets.
type CompletionConfig struct {
	Provider            string  `yaml:"provider" mapstructure:"provider"`
	Model               string  `yaml:"model" mapstructure:"model"`
	ExtractionMaxTokens int     `yaml:"extraction_max_tokens" mapstructure:"extraction_max_tokens"`
	SummaryMaxTokens    int     `yaml:"summary_max_tokens" mapstructure:"summary_max_tokens"`
	NarrativeMaxTokens  int     `yaml:"narrative_max_tokens" mapstructure:"narrative_max_tokens"`
	Temperature         float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call completion timeout; zero means none.
func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PromptConfig points at optional template overrides.
type PromptConfig struct {
	TemplatesFile string `yaml:"templates_file" mapstructure:"templates_file"`
}

// EdgarConfig configures the EDGAR downloader.
type EdgarConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	After       string `yaml:"after" mapstructure:"after"`
	Before      string `yaml:"before" mapstructure:"before"`
	WWWBaseURL  string `yaml:"www_base_url" mapstructure:"www_base_url"`
	DataBaseURL string `yaml:"data_base_url" mapstructure:"data_base_url"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the web server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. An empty path searches
// the working directory and $HOME/.tenk-cli for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tenk-cli")
	}

	// Environment
	v.SetEnvPrefix("TENK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.filings_root", "sec-edgar-filings")
	v.SetDefault("paths.insights_root", "insights")
	v.SetDefault("paths.static_root", "static/images")
	v.SetDefault("completion.provider", "anthropic")
	v.SetDefault("completion.model", "claude-haiku-4-5-20251001")
	v.SetDefault("completion.extraction_max_tokens", 1500)
	v.SetDefault("completion.summary_max_tokens", 150)
	v.SetDefault("completion.narrative_max_tokens", 1500)
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.timeout_secs", 0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("prompt.templates_file", "")
	v.SetDefault("edgar.user_agent", "")
	v.SetDefault("edgar.concurrency", 4)
	v.SetDefault("edgar.after", "1994-12-31")
	v.SetDefault("edgar.before", "2024-01-01")
	v.SetDefault("edgar.www_base_url", "https://www.sec.gov")
	v.SetDefault("edgar.data_base_url", "https://data.sec.gov")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tenk.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless explicitly named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation modes accepted by Validate.
const (
	ModeDownload   = "download"
	ModeCompletion = "completion"
	ModeServe      = "serve"
	ModeStore      = "store"
)

// Validate checks the fields a command mode depends on.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case ModeDownload:
		if strings.TrimSpace(c.Edgar.UserAgent) == "" {
			missing = append(missing, "edgar.user_agent is required (SEC expects \"<name> <email>\")")
		}
		if c.Paths.FilingsRoot == "" {
			missing = append(missing, "paths.filings_root is required")
		}
	case ModeCompletion, ModeServe:
		switch c.Completion.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				missing = append(missing, "anthropic.key is required")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				missing = append(missing, "gemini.key is required")
			}
		default:
			return eris.Errorf("config: unknown completion.provider %q", c.Completion.Provider)
		}
		if c.Paths.FilingsRoot == "" {
			missing = append(missing, "paths.filings_root is required")
		}
		if c.Paths.InsightsRoot == "" {
			missing = append(missing, "paths.insights_root is required")
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			missing = append(missing, "server.port is required")
		}
	case ModeStore:
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
