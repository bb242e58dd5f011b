// Package config provides the configuration schema and loader for the Quorum
// server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Quorum server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration with YAML support for values like "90s" or
// "2m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Quorum.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Pricing overrides the built-in per-provider cost-imputation rates.
	Pricing map[string]PricingEntry `yaml:"pricing"`

	// Messages overrides the Korean default user-facing placeholder strings.
	Messages MessagesConfig `yaml:"messages"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// BaseURL is the public URL this deployment is reachable under; the
	// Telegram webhook is registered as <base_url>/tg/<webhook_secret>.
	BaseURL string `yaml:"base_url"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TelegramConfig holds the Bot API credentials.
type TelegramConfig struct {
	// BotToken is the token issued by @BotFather.
	BotToken string `yaml:"bot_token"`

	// WebhookSecret is the unguessable path segment of the webhook URL.
	WebhookSecret string `yaml:"webhook_secret"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// DSN is the pgx connection string.
	DSN string `yaml:"dsn"`
}

// CryptoConfig holds the key-at-rest encryption secret.
type CryptoConfig struct {
	// MasterKey is the base64-encoded 32-byte AES secret used to encrypt
	// stored API keys.
	MasterKey string `yaml:"master_key"`
}

// PipelineConfig carries the deployment-wide execution defaults applied to
// every pipeline invocation.
type PipelineConfig struct {
	// RetriesPerStage is the number of retries after the first attempt.
	RetriesPerStage int `yaml:"retries_per_stage"`

	// StageTimeout caps one attempt of one provider call.
	StageTimeout Duration `yaml:"stage_timeout"`

	// EnableDynamicGraph turns on prose-driven stage dependency inference.
	EnableDynamicGraph bool `yaml:"enable_dynamic_graph"`

	// EnableQualityMatrix enables the quality control loop.
	EnableQualityMatrix bool `yaml:"enable_quality_matrix"`

	// QualityMinThreshold is the per-axis score below which a refine pass is
	// considered, in [0, 5].
	QualityMinThreshold float64 `yaml:"quality_min_threshold"`

	// AutoRefineOnce permits a single refine call per invocation.
	AutoRefineOnce bool `yaml:"auto_refine_once"`

	// UseLLMGate confirms the rule-based gate decision with a model call.
	UseLLMGate bool `yaml:"use_llm_gate"`

	// GateModel is the "<provider>:<model>" identifier for the LLM gate.
	GateModel string `yaml:"gate_model"`

	// ClarifyThreshold asks clarifying questions instead of running the
	// pipeline when the ambiguity score reaches it. Zero disables the check.
	ClarifyThreshold float64 `yaml:"clarify_threshold"`

	Budget BudgetConfig `yaml:"budget"`
}

// BudgetConfig bounds one pipeline invocation.
type BudgetConfig struct {
	// MaxUSD is the cumulative cost ceiling per invocation. Zero disables it.
	MaxUSD float64 `yaml:"max_usd"`

	// MaxTokensPerStage caps each stage call's output.
	MaxTokensPerStage int `yaml:"max_tokens_per_stage"`

	// SynthMaxTokens caps the synthesis and refine calls' output.
	SynthMaxTokens int `yaml:"synth_max_tokens"`
}

// PricingEntry is one provider's token rates in USD per million tokens.
type PricingEntry struct {
	InputPerM  float64 `yaml:"input_per_m"`
	OutputPerM float64 `yaml:"output_per_m"`
}

// MessagesConfig overrides user-facing placeholder strings. Empty fields keep
// the Korean defaults.
type MessagesConfig struct {
	NoStages           string `yaml:"no_stages"`
	MissingAPIKey      string `yaml:"missing_api_key"`
	UnknownProvider    string `yaml:"unknown_provider"`
	DuplicateStageName string `yaml:"duplicate_stage_name"`
	ReservedStageName  string `yaml:"reserved_stage_name"`
	FirstStageFailed   string `yaml:"first_stage_failed"`
	SynthFailed        string `yaml:"synth_failed"`
}

// Defaults applied by [Validate] when the corresponding field is unset.
const (
	DefaultListenAddr        = ":8000"
	DefaultStageTimeout      = 60 * time.Second
	DefaultMaxTokensPerStage = 800
	DefaultSynthMaxTokens    = 1200
)
