// Command quorum is the main entry point for the Quorum pipeline server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/daybreakhan/quorum/internal/app"
	"github.com/daybreakhan/quorum/internal/config"
	"github.com/daybreakhan/quorum/internal/crypto"
	"github.com/daybreakhan/quorum/internal/health"
	"github.com/daybreakhan/quorum/internal/observe"
	"github.com/daybreakhan/quorum/internal/orchestrator"
	"github.com/daybreakhan/quorum/internal/store/postgres"
	"github.com/daybreakhan/quorum/internal/telegram"
	"github.com/daybreakhan/quorum/pkg/provider/llm"
	"github.com/daybreakhan/quorum/pkg/provider/llm/anyllm"
	"github.com/daybreakhan/quorum/pkg/provider/llm/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	setWebhook := flag.Bool("set-webhook", false, "register the Telegram webhook from server.base_url and exit")
	deleteWebhook := flag.Bool("delete-webhook", false, "unregister the Telegram webhook and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "quorum: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "quorum: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	tgClient := telegram.NewClient(cfg.Telegram.BotToken)

	// ── One-shot webhook management modes ─────────────────────────────────────
	if *setWebhook || *deleteWebhook {
		return manageWebhook(cfg, tgClient, *setWebhook)
	}

	slog.Info("quorum starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "quorum",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Storage ───────────────────────────────────────────────────────────────
	db, err := postgres.NewStore(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		return 1
	}
	defer db.Close()

	cipher, err := crypto.NewFromBase64(cfg.Crypto.MasterKey)
	if err != nil {
		slog.Error("failed to load master key", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	registry, err := buildRegistry()
	if err != nil {
		slog.Error("failed to build provider registry", "err", err)
		return 1
	}
	slog.Info("providers registered", "names", registry.Names())

	// ── Orchestrator ──────────────────────────────────────────────────────────
	orch := orchestrator.New(registry,
		orchestrator.WithTelemetry(metrics),
		orchestrator.WithPricing(buildPricing(cfg)),
		orchestrator.WithMessages(buildMessages(cfg)),
		orchestrator.WithLogger(logger),
	)

	// ── Webhook handler ───────────────────────────────────────────────────────
	pipeline := telegram.Pipeline{
		Exec: orchestrator.ExecConfig{
			RetriesPerStage:     cfg.Pipeline.RetriesPerStage,
			StageTimeout:        cfg.Pipeline.StageTimeout.Std(),
			EnableDynamicGraph:  cfg.Pipeline.EnableDynamicGraph,
			EnableQualityMatrix: cfg.Pipeline.EnableQualityMatrix,
			QualityMinThreshold: cfg.Pipeline.QualityMinThreshold,
			AutoRefineOnce:      cfg.Pipeline.AutoRefineOnce,
		},
		Budget: orchestrator.Budget{
			MaxUSD:            cfg.Pipeline.Budget.MaxUSD,
			MaxTokensPerStage: cfg.Pipeline.Budget.MaxTokensPerStage,
			SynthMaxTokens:    cfg.Pipeline.Budget.SynthMaxTokens,
		},
		UseLLMGate:       cfg.Pipeline.UseLLMGate,
		GateModel:        cfg.Pipeline.GateModel,
		ClarifyThreshold: cfg.Pipeline.ClarifyThreshold,
	}
	webhook := telegram.NewHandler(cfg.Telegram.WebhookSecret, db, tgClient, orch, cipher, pipeline, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	application := app.New(cfg, metrics,
		app.WithRegistrar(webhook),
		app.WithRegistrar(health.New(health.Database(db))),
	)

	// ── Webhook registration ──────────────────────────────────────────────────
	if cfg.Server.BaseURL != "" {
		url := webhookURL(cfg)
		if err := tgClient.SetWebhook(ctx, url); err != nil {
			slog.Error("failed to register webhook", "err", err)
			return 1
		}
		slog.Info("webhook registered", "url", url)
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the vendors served through the any-llm-go bridge. OpenAI
// goes through the official SDK instead for per-request usage accounting.
var anyllmProviders = []string{"anthropic", "google", "groq", "mistral"}

// buildRegistry wires every supported vendor into a fresh registry.
func buildRegistry() (*llm.Registry, error) {
	registry := llm.NewRegistry()
	registry.Register("openai", openai.New())
	for _, name := range anyllmProviders {
		g, err := anyllm.New(name)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		registry.Register(name, g)
	}
	return registry, nil
}

// buildPricing layers the config overrides over the built-in rates.
func buildPricing(cfg *config.Config) orchestrator.PricingTable {
	table := orchestrator.DefaultPricing()
	for provider, rate := range cfg.Pricing {
		table[provider] = orchestrator.Rate{InputPerM: rate.InputPerM, OutputPerM: rate.OutputPerM}
	}
	return table
}

// buildMessages maps the config overrides onto the orchestrator's message set.
// Empty fields keep the Korean defaults.
func buildMessages(cfg *config.Config) orchestrator.Messages {
	return orchestrator.Messages{
		NoStages:           cfg.Messages.NoStages,
		MissingAPIKey:      cfg.Messages.MissingAPIKey,
		UnknownProvider:    cfg.Messages.UnknownProvider,
		DuplicateStageName: cfg.Messages.DuplicateStageName,
		ReservedStageName:  cfg.Messages.ReservedStageName,
		FirstStageFailed:   cfg.Messages.FirstStageFailed,
		SynthFailed:        cfg.Messages.SynthFailed,
	}
}

// ── Webhook management ────────────────────────────────────────────────────────

// manageWebhook handles the -set-webhook and -delete-webhook one-shot modes.
func manageWebhook(cfg *config.Config, client *telegram.Client, set bool) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if set {
		if cfg.Server.BaseURL == "" {
			fmt.Fprintln(os.Stderr, "quorum: -set-webhook requires server.base_url in the config")
			return 1
		}
		url := webhookURL(cfg)
		if err := client.SetWebhook(ctx, url); err != nil {
			fmt.Fprintf(os.Stderr, "quorum: %v\n", err)
			return 1
		}
		fmt.Println("webhook registered:", url)
		return 0
	}

	if err := client.DeleteWebhook(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "quorum: %v\n", err)
		return 1
	}
	fmt.Println("webhook deleted")
	return 0
}

// webhookURL builds the public webhook endpoint from the configured base URL.
func webhookURL(cfg *config.Config) string {
	return strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/tg/" + cfg.Telegram.WebhookSecret
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
