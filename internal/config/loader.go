package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Unknown fields are rejected so typos surface at startup.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with the package defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = Duration(DefaultStageTimeout)
	}
	if cfg.Pipeline.Budget.MaxTokensPerStage == 0 {
		cfg.Pipeline.Budget.MaxTokensPerStage = DefaultMaxTokensPerStage
	}
	if cfg.Pipeline.Budget.SynthMaxTokens == 0 {
		cfg.Pipeline.Budget.SynthMaxTokens = DefaultSynthMaxTokens
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.BaseURL != "" && !strings.HasPrefix(cfg.Server.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("server.base_url %q must be an https:// URL; Telegram rejects plain-http webhooks", cfg.Server.BaseURL))
	}
	if cfg.Server.BaseURL == "" {
		slog.Warn("server.base_url is empty; the Telegram webhook must be registered manually")
	}

	// Telegram
	if cfg.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	if cfg.Telegram.WebhookSecret == "" {
		errs = append(errs, errors.New("telegram.webhook_secret is required"))
	}

	// Database
	if cfg.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	// Crypto
	if cfg.Crypto.MasterKey == "" {
		errs = append(errs, errors.New("crypto.master_key is required"))
	} else if raw, err := base64.StdEncoding.DecodeString(cfg.Crypto.MasterKey); err != nil {
		errs = append(errs, fmt.Errorf("crypto.master_key is not valid base64: %w", err))
	} else if len(raw) != 32 {
		errs = append(errs, fmt.Errorf("crypto.master_key decodes to %d bytes; want 32", len(raw)))
	}

	// Pipeline
	if cfg.Pipeline.RetriesPerStage < 0 {
		errs = append(errs, fmt.Errorf("pipeline.retries_per_stage %d is negative", cfg.Pipeline.RetriesPerStage))
	}
	if cfg.Pipeline.StageTimeout < 0 {
		errs = append(errs, errors.New("pipeline.stage_timeout must be positive"))
	}
	if cfg.Pipeline.QualityMinThreshold < 0 || cfg.Pipeline.QualityMinThreshold > 5 {
		errs = append(errs, fmt.Errorf("pipeline.quality_min_threshold %.2f is out of range [0, 5]", cfg.Pipeline.QualityMinThreshold))
	}
	if cfg.Pipeline.ClarifyThreshold < 0 || cfg.Pipeline.ClarifyThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.clarify_threshold %.2f is out of range [0, 1]", cfg.Pipeline.ClarifyThreshold))
	}
	if cfg.Pipeline.UseLLMGate && cfg.Pipeline.GateModel == "" {
		errs = append(errs, errors.New("pipeline.gate_model is required when use_llm_gate is enabled"))
	}

	// Budget
	if cfg.Pipeline.Budget.MaxUSD < 0 {
		errs = append(errs, fmt.Errorf("pipeline.budget.max_usd %.4f is negative", cfg.Pipeline.Budget.MaxUSD))
	}
	if cfg.Pipeline.Budget.MaxUSD == 0 {
		slog.Warn("pipeline.budget.max_usd is zero; per-invocation spend is unbounded")
	}
	if cfg.Pipeline.Budget.MaxTokensPerStage < 0 {
		errs = append(errs, fmt.Errorf("pipeline.budget.max_tokens_per_stage %d is negative", cfg.Pipeline.Budget.MaxTokensPerStage))
	}
	if cfg.Pipeline.Budget.SynthMaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.budget.synth_max_tokens %d is negative", cfg.Pipeline.Budget.SynthMaxTokens))
	}

	// Pricing overrides
	for provider, rate := range cfg.Pricing {
		if rate.InputPerM < 0 || rate.OutputPerM < 0 {
			errs = append(errs, fmt.Errorf("pricing.%s rates must not be negative", provider))
		}
	}

	return errors.Join(errs...)
}
