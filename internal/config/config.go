package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds Anthropic API settings. Model drives qualification
// and extraction; FastModel is the cheaper degraded-mode model.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	FastModel string `yaml:"fast_model" mapstructure:"fast_model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds the optional Notion lead-sink settings.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// DiscoveryConfig configures the discovery stage.
type DiscoveryConfig struct {
	// SafetyMultiplier caps accumulated discoveries at
	// SafetyMultiplier × targetCompanyCount.
	SafetyMultiplier   int     `yaml:"safety_multiplier" mapstructure:"safety_multiplier"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BreakerThreshold   int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs   int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	MaxHomepageKB      int     `yaml:"max_homepage_kb" mapstructure:"max_homepage_kb"`
	HomepageTimeoutSec int     `yaml:"homepage_timeout_secs" mapstructure:"homepage_timeout_secs"`
}

// AssessmentErrorPolicy decides what happens to a company when its website
// assessment call fails.
type AssessmentErrorPolicy string

const (
	// KeepOnError advances the company anyway: a transient failure should
	// not cost a potentially valid lead.
	KeepOnError AssessmentErrorPolicy = "keep"
	// DropOnError filters the company out on assessment failure.
	DropOnError AssessmentErrorPolicy = "drop"
)

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	OnAssessmentError AssessmentErrorPolicy `yaml:"on_assessment_error" mapstructure:"on_assessment_error"`
	HeartbeatSecs     int                   `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
	LeaseTTLSecs      int                   `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("discovery.safety_multiplier", 2)
	v.SetDefault("discovery.requests_per_second", 1.0)
	v.SetDefault("discovery.breaker_threshold", 5)
	v.SetDefault("discovery.breaker_reset_secs", 60)
	v.SetDefault("discovery.max_homepage_kb", 512)
	v.SetDefault("discovery.homepage_timeout_secs", 10)
	v.SetDefault("pipeline.on_assessment_error", string(KeepOnError))
	v.SetDefault("pipeline.heartbeat_secs", 15)
	v.SetDefault("pipeline.lease_ttl_secs", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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
