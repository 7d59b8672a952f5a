// Package tools implements the tool dispatcher: a pattern match on
// chattypes.ToolCall that fans out to the three known handlers and
// stringifies every failure instead of propagating a Go error, since
// lifecycle.Env.RunTool must never error the state machine.
//
// The dispatcher is built on top of internal/mcp/mcphost.Host so that the
// same latency-tiered, calibrated registry that handles external MCP
// servers also handles the in-process builtins — get_weather, roll (from
// internal/mcp/tools/diceroller), and search_lore.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/internal/mcp"
	"github.com/MrWong99/glyphoxa-chat/internal/mcp/mcphost"
	"github.com/MrWong99/glyphoxa-chat/internal/mcp/tools/diceroller"
	"github.com/MrWong99/glyphoxa-chat/internal/observe"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
	"github.com/MrWong99/glyphoxa-chat/pkg/provider/embeddings"
)

// toolName maps a chattypes.ToolCallKind to the name the tool is registered
// under in the MCP host. The two happen to agree with the exception of
// roll_dice, which is registered as "roll" because that is the name
// diceroller.Tools exports (it also exports "roll_table", which has no
// corresponding ToolCallKind and is reachable only by an external MCP
// client, never by this runtime's own LLM grammar).
func toolName(kind chattypes.ToolCallKind) string {
	switch kind {
	case chattypes.ToolGetWeather:
		return "get_weather"
	case chattypes.ToolRollDice:
		return "roll"
	case chattypes.ToolSearchLore:
		return "search_lore"
	default:
		return string(kind)
	}
}

// Dispatcher is the concrete lifecycle.Env.RunTool implementation. It only
// ever calls ExecuteTool on host after construction, so the field is typed
// as the narrow mcp.Host interface rather than the concrete *mcphost.Host
// that New requires for builtin registration — this lets tests exercise
// RunTool against internal/mcp/mock.Host instead of a real tool registry.
type Dispatcher struct {
	host    mcp.Host
	logger  *slog.Logger
	metrics *observe.Metrics

	lore *loreTool // nil when search_lore was not configured
}

// New builds a Dispatcher and registers every builtin tool on host:
// get_weather always, roll/roll_table always, and search_lore only when
// cfg.Lore names both a postgres DSN and an OpenAI API key env var that are
// actually set in the process environment — absence of either is not an
// error, just a smaller tool set.
//
// embedder may be nil; it is only consulted when search_lore can be
// registered.
func New(ctx context.Context, cfg config.ToolsConfig, host *mcphost.Host, embedder embeddings.Provider, logger *slog.Logger, metrics *observe.Metrics) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{host: host, logger: logger, metrics: metrics}

	weather := newWeatherTool(cfg.Weather)
	if err := host.RegisterBuiltin(mcphost.BuiltinTool{
		Definition:  weatherDefinition,
		Handler:     weather.Handler,
		DeclaredP50: 400,
		DeclaredMax: 3000,
	}); err != nil {
		return nil, fmt.Errorf("tools: register get_weather: %w", err)
	}

	for _, t := range diceroller.Tools() {
		if err := host.RegisterBuiltin(mcphost.BuiltinTool{
			Definition:  t.Definition,
			Handler:     t.Handler,
			DeclaredP50: t.DeclaredP50,
			DeclaredMax: t.DeclaredMax,
		}); err != nil {
			return nil, fmt.Errorf("tools: register %s: %w", t.Definition.Name, err)
		}
	}

	lore, err := newLoreTool(ctx, cfg.Lore, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("tools: search_lore: %w", err)
	}
	if lore != nil {
		if err := host.RegisterBuiltin(mcphost.BuiltinTool{
			Definition:  searchLoreDefinition,
			Handler:     lore.Handler,
			DeclaredP50: 300,
			DeclaredMax: 4000,
		}); err != nil {
			return nil, fmt.Errorf("tools: register search_lore: %w", err)
		}
		d.lore = lore
	} else {
		logger.Info("tools: search_lore unavailable: no postgres DSN and OpenAI API key both configured")
	}

	return d, nil
}

// RegisterExternalServers connects host to every MCP server configured in
// cfg, importing their tool catalogues alongside the in-process builtins.
func RegisterExternalServers(ctx context.Context, cfg config.MCPConfig, host *mcphost.Host, logger *slog.Logger) {
	for _, srv := range cfg.Servers {
		err := host.RegisterServer(ctx, mcp.ServerConfig{
			Name:      srv.Name,
			Transport: mcp.Transport(srv.Transport),
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		})
		if err != nil {
			logger.Warn("tools: failed to register external MCP server", "server", srv.Name, "err", err)
		}
	}
}

// RunTool implements lifecycle.Env.RunTool: it never returns an error,
// folding every failure mode into the returned text instead.
func (d *Dispatcher) RunTool(ctx context.Context, call chattypes.ToolCall) string {
	name := toolName(call.Kind)

	ctx, span := observe.StartSpan(ctx, "tools.RunTool",
		trace.WithAttributes(attribute.String("tool", name)))
	defer span.End()

	start := time.Now()

	args, err := toolArgs(call)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.record(ctx, name, start, true)
		return fmt.Sprintf("Tool error: %s", err)
	}

	result, err := d.host.ExecuteTool(ctx, name, args)
	if err != nil {
		d.logger.Warn("tools: execute failed", "tool", name, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.record(ctx, name, start, true)
		return fmt.Sprintf("Tool %q is currently unavailable.", name)
	}

	if result.IsError {
		span.SetStatus(codes.Error, "tool reported an error result")
	}
	d.record(ctx, name, start, result.IsError)
	return result.Content
}

// Close releases any resources held by optional tools (currently just the
// lore tool's database pool).
func (d *Dispatcher) Close() error {
	if d.lore != nil {
		return d.lore.Close()
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, name string, start time.Time, isError bool) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	if isError {
		status = "error"
	}
	d.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("tool", name), attribute.String("status", status)))
	d.metrics.RecordToolCall(ctx, name, status)
}

// toolArgs renders call's payload field as the JSON object the matching
// tool's Handler expects.
func toolArgs(call chattypes.ToolCall) (string, error) {
	var payload any
	switch call.Kind {
	case chattypes.ToolGetWeather:
		payload = struct {
			Location string `json:"location"`
		}{call.Location}
	case chattypes.ToolRollDice:
		payload = struct {
			Expression string `json:"expression"`
		}{call.Expression}
	case chattypes.ToolSearchLore:
		payload = struct {
			Query string `json:"query"`
		}{call.Query}
	default:
		return "", fmt.Errorf("unknown tool call kind %q", call.Kind)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(b), nil
}
