// Package app wires together the chat runtime's bootstrap sequence: load the
// model, warm the base-prompt session (non-fatally), build the tool
// dispatcher and the per-channel transport adapters, and start the kernel
// that drives every user's lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/internal/effects"
	"github.com/MrWong99/glyphoxa-chat/internal/health"
	"github.com/MrWong99/glyphoxa-chat/internal/kernel"
	"github.com/MrWong99/glyphoxa-chat/internal/lifecycle"
	"github.com/MrWong99/glyphoxa-chat/internal/llmengine"
	"github.com/MrWong99/glyphoxa-chat/internal/mcp/mcphost"
	"github.com/MrWong99/glyphoxa-chat/internal/observe"
	"github.com/MrWong99/glyphoxa-chat/internal/tools"
	"github.com/MrWong99/glyphoxa-chat/internal/transport"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
	"github.com/MrWong99/glyphoxa-chat/pkg/provider/embeddings"
	"github.com/MrWong99/glyphoxa-chat/pkg/provider/embeddings/openai"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// shutdownTimeout bounds how long Shutdown waits for in-flight kernel
// effects to drain before giving up.
const shutdownTimeout = 15 * time.Second

// Kernel is the narrow slice of *kernel.Kernel[lifecycle.Env, ...] that App
// needs, named here so the field below does not have to spell out the
// kernel's generic instantiation at every call site.
type Kernel interface {
	Act(ctx context.Context, id string, action chattypes.Action)
	Wait() error
}

// Channel is a running transport adapter: something that serves inbound
// traffic until ctx is cancelled, and releases its resources on Close.
type Channel interface {
	Run(ctx context.Context) error
	Close() error
}

// App owns every long-lived component the bootstrap sequence constructs and
// knows how to run and tear them down in the right order.
type App struct {
	logger *slog.Logger

	engine   *llmengine.Engine
	toolsDsp *tools.Dispatcher
	mcpHost  *mcphost.Host
	channels []Channel
	knl      Kernel

	metricsServer   *http.Server
	observeShutdown func(context.Context) error
}

// New runs the full bootstrap sequence and returns a ready-to-Run App.
// Warm-session failure is logged and does not fail bootstrap — the fallback
// inline-warm path in Engine.Infer carries the load on every call instead.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	observeShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "glyphoxa-chat"})
	if err != nil {
		return nil, fmt.Errorf("app: init observability provider: %w", err)
	}
	metrics := observe.DefaultMetrics()

	engine, err := buildEngine(cfg.Engine, logger, metrics)
	if err != nil {
		_ = observeShutdown(ctx)
		return nil, fmt.Errorf("app: build engine: %w", err)
	}
	if err := engine.WarmSession(ctx); err != nil {
		logger.Warn("app: warm session failed, falling back to inline warm on every call", "err", err)
	}

	mcpHost := mcphost.New()
	embedder, err := buildEmbedder(cfg.Tools.Lore)
	if err != nil {
		_ = engine.Close()
		_ = observeShutdown(ctx)
		return nil, fmt.Errorf("app: build embeddings provider: %w", err)
	}
	toolsDsp, err := tools.New(ctx, cfg.Tools, mcpHost, embedder, logger, metrics)
	if err != nil {
		_ = engine.Close()
		_ = observeShutdown(ctx)
		return nil, fmt.Errorf("app: build tool dispatcher: %w", err)
	}
	tools.RegisterExternalServers(ctx, cfg.MCP, mcpHost, logger)

	registry := transport.NewRegistry()
	env := effects.New(engine, registry, toolsDsp, metrics, logger)
	knl := kernel.New[lifecycle.Env, chattypes.UserState, chattypes.Action](env, lifecycle.Transition, lifecycle.Schedule, lifecycle.NewState, logger)
	act := transport.ActFunc(knl.Act)

	channels, err := buildChannels(cfg.Transport, registry, act, logger)
	if err != nil {
		_ = toolsDsp.Close()
		_ = mcpHost.Close()
		_ = engine.Close()
		_ = observeShutdown(ctx)
		return nil, fmt.Errorf("app: build transport channels: %w", err)
	}

	metricsServer := buildMetricsServer(cfg.Server.MetricsAddr, metrics)

	return &App{
		logger:          logger,
		engine:          engine,
		toolsDsp:        toolsDsp,
		mcpHost:         mcpHost,
		channels:        channels,
		knl:             knl,
		metricsServer:   metricsServer,
		observeShutdown: observeShutdown,
	}, nil
}

// buildEngine loads the local model. Config.BasePromptPath, when set, is
// read once at startup and becomes the warmed session's fixed system text.
func buildEngine(cfg config.EngineConfig, logger *slog.Logger, metrics *observe.Metrics) (*llmengine.Engine, error) {
	basePrompt := ""
	if cfg.BasePromptPath != "" {
		data, err := os.ReadFile(cfg.BasePromptPath)
		if err != nil {
			return nil, fmt.Errorf("read base prompt %q: %w", cfg.BasePromptPath, err)
		}
		basePrompt = string(data)
	}

	engineCfg := llmengine.DefaultConfig()
	engineCfg.ModelPath = cfg.ModelPath
	engineCfg.BasePrompt = basePrompt
	if cfg.SessionPath != "" {
		engineCfg.SessionPath = cfg.SessionPath
	}
	engineCfg.GrammarPath = cfg.GrammarPath
	if cfg.NCtx != 0 {
		engineCfg.NCtx = cfg.NCtx
	}
	if cfg.NThreads != 0 {
		engineCfg.NThreads = cfg.NThreads
	}
	if cfg.NThreadsBatch != 0 {
		engineCfg.NThreadsBatch = cfg.NThreadsBatch
	}
	engineCfg.NGpuLayers = cfg.NGpuLayers
	if cfg.MaxGenerationTokens != 0 {
		engineCfg.MaxGenerationTokens = cfg.MaxGenerationTokens
	}
	if cfg.TempMax != 0 {
		engineCfg.TempMin = cfg.TempMin
		engineCfg.TempMax = cfg.TempMax
	}

	return llmengine.Load(engineCfg, logger, metrics)
}

// buildEmbedder constructs the OpenAI embeddings provider used only for
// search_lore query vectors, or returns nil when the lore tool's API key
// environment variable is unset — that is not an error, just a smaller tool
// set.
func buildEmbedder(cfg config.LoreToolConfig) (embeddings.Provider, error) {
	if cfg.OpenAIAPIKeyEnv == "" {
		return nil, nil
	}
	apiKey := os.Getenv(cfg.OpenAIAPIKeyEnv)
	if apiKey == "" {
		return nil, nil
	}
	return openai.New(apiKey, cfg.EmbeddingModel)
}

// buildChannels constructs and registers one ChannelSender per enabled
// transport, breaking a construction-order cycle: channels need act at
// construction time, act needs the kernel, the kernel needs env, and env
// needs the registry — but not the channels themselves, so the registry is
// built empty and filled in here, after the kernel exists.
func buildChannels(cfg config.TransportConfig, registry *transport.Registry, act transport.ActFunc, logger *slog.Logger) ([]Channel, error) {
	var channels []Channel

	if cfg.Discord.Enabled {
		discord, err := transport.NewChannelDiscord(cfg.Discord, act, logger)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		registry.Register(chattypes.ChannelDiscord, discord)
		channels = append(channels, discord)
	}

	if cfg.WebSocket.Enabled {
		ws := transport.NewChannelWebSocket(cfg.WebSocket, act, logger)
		registry.Register(chattypes.ChannelWebSocket, ws)
		channels = append(channels, ws)
	}

	return channels, nil
}

// buildMetricsServer wires the Prometheus scrape endpoint (bridged from the
// OpenTelemetry meter provider by observe.InitProvider) and the health
// package's liveness/readiness probes onto one HTTP server, wrapped in
// observe.Middleware so every scrape and probe also produces a trace span. A
// nil result means cfg.Server.MetricsAddr was left empty and observability is
// intentionally unreachable over HTTP (metrics are still recorded, just not
// exposed).
func buildMetricsServer(addr string, metrics *observe.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New().Register(mux)
	return &http.Server{Addr: addr, Handler: observe.Middleware(metrics)(mux)}
}

// Run starts every transport channel and blocks until ctx is cancelled or
// one channel's Run returns a non-nil error.
func (a *App) Run(ctx context.Context) error {
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("app: metrics server failed", "err", err)
			}
		}()
	}

	errCh := make(chan error, len(a.channels))
	for _, ch := range a.channels {
		ch := ch
		go func() {
			errCh <- ch.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown closes every transport channel, waits for in-flight kernel
// effects to drain (bounded by shutdownTimeout), then releases the tool
// dispatcher, MCP host, engine, and observability provider, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, ch := range a.channels {
		note(ch.Close())
	}

	if a.metricsServer != nil {
		note(a.metricsServer.Shutdown(ctx))
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- a.knl.Wait() }()
	select {
	case err := <-waitCh:
		note(err)
	case <-time.After(shutdownTimeout):
		a.logger.Warn("app: timed out waiting for in-flight kernel effects to drain")
	}

	note(a.toolsDsp.Close())
	note(a.mcpHost.Close())
	note(a.engine.Close())
	note(a.observeShutdown(ctx))

	return firstErr
}
