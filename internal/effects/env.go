// Package effects provides the concrete lifecycle.Env implementation: the
// boundary that turns the lifecycle's three effect requests (infer, send,
// run a tool) into calls against the real inference engine, transport, and
// tool dispatcher. lifecycle itself never imports this package — Env wires
// the dependency the other way, so the state machine stays transport- and
// engine-agnostic.
package effects

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/glyphoxa-chat/internal/observe"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// Inferer runs one inference call. internal/llmengine.Engine satisfies this.
type Inferer interface {
	Infer(ctx context.Context, input chattypes.LLMInput, history chattypes.History) (chattypes.Outcome, error)
}

// ToolRunner executes a tool call and folds any failure into the returned
// text. internal/tools.Dispatcher satisfies this.
type ToolRunner interface {
	RunTool(ctx context.Context, call chattypes.ToolCall) string
}

// Sender delivers text to a user over whichever transport channel that
// user's entity id names. internal/transport.Registry satisfies this.
type Sender interface {
	Send(ctx context.Context, id string, text string) error
}

// Env is the concrete lifecycle.Env: a thin recording/timing shim around an
// Inferer, a Sender, and a ToolRunner.
type Env struct {
	engine  Inferer
	sender  Sender
	tools   ToolRunner
	metrics *observe.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an Env. metrics and logger may be nil.
func New(engine Inferer, sender Sender, tools ToolRunner, metrics *observe.Metrics, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{
		engine:  engine,
		sender:  sender,
		tools:   tools,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Infer implements lifecycle.Env.
func (e *Env) Infer(ctx context.Context, input chattypes.LLMInput, history chattypes.History) (chattypes.Outcome, error) {
	start := time.Now()
	outcome, err := e.engine.Infer(ctx, input, history)
	if e.metrics != nil {
		e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		e.logger.Warn("effects: inference failed", "err", err)
		return chattypes.Outcome{}, fmt.Errorf("effects: infer: %w", err)
	}
	return outcome, nil
}

// Send implements lifecycle.Env.
func (e *Env) Send(ctx context.Context, id string, text string) error {
	start := time.Now()
	err := e.sender.Send(ctx, id, text)
	if e.metrics != nil {
		e.metrics.SendDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		e.logger.Warn("effects: send failed", "entity", id, "err", err)
		return fmt.Errorf("effects: send: %w", err)
	}
	return nil
}

// RunTool implements lifecycle.Env. It never returns a Go error — the
// dispatcher is already responsible for stringifying failures.
func (e *Env) RunTool(ctx context.Context, call chattypes.ToolCall) string {
	return e.tools.RunTool(ctx, call)
}

// Now implements lifecycle.Env.
func (e *Env) Now() time.Time {
	return e.now()
}
