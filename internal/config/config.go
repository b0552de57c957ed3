package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix is the prefix for environment variable overrides
// (AUTOFILL_AI_PROVIDER, AUTOFILL_AI_PROVIDERS_OPENAI_KEY, ...).
const EnvPrefix = "AUTOFILL"

// Provider names known to the default configuration.
var providerNames = []string{"anthropic", "openai", "perplexity", "offline"}

// Config holds the full application configuration.
type Config struct {
	AI           AIConfig           `yaml:"ai" mapstructure:"ai"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Session      SessionConfig      `yaml:"session" mapstructure:"session"`
	Profile      ProfileConfig      `yaml:"profile" mapstructure:"profile"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `yaml:"-" mapstructure:"-"`
}

// AIConfig selects the active provider and holds per-provider settings.
type AIConfig struct {
	Provider           string                    `yaml:"provider" mapstructure:"provider"`
	MaxTokens          int                       `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature        float64                   `yaml:"temperature" mapstructure:"temperature"`
	RequestTimeoutSecs int                       `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	Providers          map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig holds one provider's credentials and model selection.
type ProviderConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	DefaultModel      string  `yaml:"default_model" mapstructure:"default_model"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ActiveProvider returns the settings for the configured provider.
func (c AIConfig) ActiveProvider() (ProviderConfig, bool) {
	p, ok := c.Providers[strings.ToLower(c.Provider)]
	return p, ok
}

// OrchestratorConfig bounds concurrency and retries for generation.
type OrchestratorConfig struct {
	MaxParallel      int `yaml:"max_parallel" mapstructure:"max_parallel"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Size    int `yaml:"size" mapstructure:"size"`
	TTLSecs int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// SessionConfig configures session expiry.
type SessionConfig struct {
	InactivityTimeoutHours int `yaml:"inactivity_timeout_hours" mapstructure:"inactivity_timeout_hours"`
	SweepIntervalMins      int `yaml:"sweep_interval_mins" mapstructure:"sweep_interval_mins"`
}

// ProfileConfig locates the user profile.
type ProfileConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// StoreConfig configures the usage database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PricingConfig overrides per-provider, per-model pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing holds per-model token pricing (USD per 1K tokens).
type ModelPricing struct {
	Prompt     float64 `yaml:"prompt" mapstructure:"prompt"`
	Completion float64 `yaml:"completion" mapstructure:"completion"`
	Precision  int     `yaml:"precision" mapstructure:"precision"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Host        string   `yaml:"host" mapstructure:"host"`
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// DataDir returns the per-user directory for profile and usage data.
func DataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".autofill"
	}
	return filepath.Join(dir, "autofill")
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(DataDir())

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.File = v.ConfigFileUsed()

	return &cfg, nil
}

// SetDefaults registers every default value on v. Provider keys are
// registered with empty values so environment overrides are picked up.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.max_tokens", 500)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.request_timeout_secs", 30)
	for _, name := range providerNames {
		v.SetDefault("ai.providers."+name+".key", "")
		v.SetDefault("ai.providers."+name+".base_url", "")
		v.SetDefault("ai.providers."+name+".requests_per_second", 2.0)
	}
	v.SetDefault("ai.providers.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ai.providers.anthropic.default_model", "claude-haiku-4-5-20251001")
	v.SetDefault("ai.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.providers.openai.default_model", "gpt-4o-mini")
	v.SetDefault("ai.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.providers.perplexity.model", "sonar-pro")
	v.SetDefault("ai.providers.perplexity.default_model", "sonar")
	v.SetDefault("ai.providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("ai.providers.offline.model", "offline-template")
	v.SetDefault("ai.providers.offline.default_model", "offline-template")
	v.SetDefault("ai.providers.offline.requests_per_second", 0)

	v.SetDefault("orchestrator.max_parallel", 5)
	v.SetDefault("orchestrator.max_attempts", 3)
	v.SetDefault("orchestrator.initial_backoff_ms", 1000)
	v.SetDefault("orchestrator.max_backoff_ms", 4000)

	v.SetDefault("cache.size", 1000)
	v.SetDefault("cache.ttl_secs", 3600)

	v.SetDefault("session.inactivity_timeout_hours", 24)
	v.SetDefault("session.sweep_interval_mins", 60)

	v.SetDefault("profile.path", filepath.Join(DataDir(), "user_profile.json"))
	v.SetDefault("profile.max_backups", 10)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", filepath.Join(DataDir(), "usage.db"))

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.cors_origins", []string{"chrome-extension://*", "http://localhost:*", "http://127.0.0.1:*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

// InitLogger initializes the global zap logger. When cfg.File is set the
// logger also writes to a size-rotated file.
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

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	return nil
}
