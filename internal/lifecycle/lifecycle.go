// Package lifecycle implements the concrete per-user chat transition
// function and schedule policy — the one kernel.TransitionFunc instance
// this runtime drives. It depends only on pkg/chattypes and internal/kernel;
// it never imports the inference engine, the tool dispatcher, or any
// transport package, keeping it transport- and engine-agnostic.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/glyphoxa-chat/internal/kernel"
	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// ForceResetDelay is the stuck-state escape hatch: any non-Idle user
// returns to Idle(None) after this much wall-clock time with no other
// action landing first.
const ForceResetDelay = 120 * time.Second

// GoodbyeDelay is the soft inactivity window after which Idle(Some(memory))
// spawns a closing inference.
const GoodbyeDelay = 5 * time.Minute

// Env is everything the transition function needs from the outside world to
// spawn effects. Implementations live in internal/effects; Env keeps the
// lifecycle package itself free of any dependency on the inference engine,
// tool dispatcher, or transport.
type Env interface {
	// Infer runs one inference call and returns the LLM's structured
	// verdict for the turn.
	Infer(ctx context.Context, input chattypes.LLMInput, history chattypes.History) (chattypes.Outcome, error)

	// Send delivers text to the user identified by id (the kernel entity
	// id, i.e. chattypes.UserID.String()) over whichever transport that id
	// was registered against.
	Send(ctx context.Context, id string, text string) error

	// RunTool executes call and returns its textual result. Tool failures
	// are already folded into the returned string; RunTool never returns
	// an error, so a failing tool can never panic the lifecycle.
	RunTool(ctx context.Context, call chattypes.ToolCall) string

	// Now returns the current time. A seam for deterministic tests.
	Now() time.Time
}

// NewState is the factory the kernel calls the first time an action arrives
// for a user id it has never seen: Idle(None).
func NewState() chattypes.UserState {
	return chattypes.Idle{}
}

// Schedule implements the schedule policy from §4.D, deriving every deadline
// from env.Now() rather than time.Now() so ForceReset/GoodbyeDelay timing is
// deterministically testable against a mocked clock.
func Schedule(env Env, state chattypes.UserState) []kernel.Scheduled[chattypes.Action] {
	switch s := state.(type) {
	case chattypes.Idle:
		if s.Memory == nil {
			return nil
		}
		return []kernel.Scheduled[chattypes.Action]{
			{At: s.Memory.LastTouch.Add(GoodbyeDelay), Action: chattypes.Timeout{}},
		}
	case chattypes.AwaitingLLMDecision, chattypes.SendingMessage, chattypes.RunningTool:
		return []kernel.Scheduled[chattypes.Action]{
			{At: env.Now().Add(ForceResetDelay), Action: chattypes.ForceReset{}},
		}
	default:
		return nil
	}
}

// Transition implements the transition table from §4.D. An error return
// means the (state, action) pair is not one of the listed arrows; the
// kernel logs and drops it, leaving state unchanged. A handful of pairs are
// explicitly *legal no-ops* per the table (e.g. NewMessage with
// start_conversation=false) — those return a Result with the state
// unchanged and no error, which is not the same as an invalid transition.
func Transition(env Env, id string, state chattypes.UserState, action chattypes.Action) (kernel.Result[chattypes.UserState, chattypes.Action], error) {
	noop := kernel.Result[chattypes.UserState, chattypes.Action]{State: state}

	// Global rules that apply regardless of current state.
	if nm, ok := action.(chattypes.NewMessage); ok && !nm.StartConversation {
		return noop, nil
	}
	if _, ok := action.(chattypes.ForceReset); ok {
		if _, idle := state.(chattypes.Idle); idle {
			return kernel.Result[chattypes.UserState, chattypes.Action]{}, invalidf(state, action)
		}
		return kernel.Result[chattypes.UserState, chattypes.Action]{State: chattypes.Idle{}}, nil
	}

	switch s := state.(type) {
	case chattypes.Idle:
		return transitionIdle(env, id, s, action)
	case chattypes.AwaitingLLMDecision:
		return transitionAwaitingLLMDecision(env, id, s, action)
	case chattypes.SendingMessage:
		return transitionSendingMessage(env, id, s, action)
	case chattypes.RunningTool:
		return transitionRunningTool(env, id, s, action)
	default:
		return kernel.Result[chattypes.UserState, chattypes.Action]{}, invalidf(state, action)
	}
}

func transitionIdle(env Env, id string, s chattypes.Idle, action chattypes.Action) (kernel.Result[chattypes.UserState, chattypes.Action], error) {
	switch a := action.(type) {
	case chattypes.NewMessage: // a.StartConversation is true — false was handled globally.
		history := chattypes.History{}.WithUserMessage(a.Text)
		next := chattypes.AwaitingLLMDecision{IsTimeoutDriven: false, History: history}
		return withLLMEffect(env, id, next, chattypes.LLMInput{Kind: chattypes.LLMInputUserMessage, Text: a.Text}, history), nil

	case chattypes.Timeout:
		if s.Memory == nil {
			return kernel.Result[chattypes.UserState, chattypes.Action]{State: s}, nil // listed drop
		}
		prompt := goodbyePrompt(s.Memory.Summary)
		history := chattypes.History{}.WithUserMessage(prompt)
		next := chattypes.AwaitingLLMDecision{IsTimeoutDriven: true, History: history}
		return withLLMEffect(env, id, next, chattypes.LLMInput{Kind: chattypes.LLMInputUserMessage, Text: prompt}, history), nil

	default:
		return kernel.Result[chattypes.UserState, chattypes.Action]{}, invalidf(s, action)
	}
}

func transitionAwaitingLLMDecision(env Env, id string, s chattypes.AwaitingLLMDecision, action chattypes.Action) (kernel.Result[chattypes.UserState, chattypes.Action], error) {
	result, ok := action.(chattypes.LLMDecisionResult)
	if !ok {
		return kernel.Result[chattypes.UserState, chattypes.Action]{}, invalidf(s, action)
	}
	if !result.Ok() {
		return kernel.Result[chattypes.UserState, chattypes.Action]{State: chattypes.Idle{}}, nil
	}

	outcome := result.Outcome
	if outcome.IsFinal() {
		next := chattypes.SendingMessage{Outcome: outcome, History: s.History, IsTimeoutDriven: s.IsTimeoutDriven}
		return withSendEffect(env, id, next, outcome.Response), nil
	}

	if text, ok := outcome.IntermediateResponse(); ok {
		next := chattypes.SendingMessage{Outcome: outcome, History: s.History, IsTimeoutDriven: s.IsTimeoutDriven}
		return withSendEffect(env, id, next, text), nil
	}

	// Silent tool call: empty maybe_intermediate_response ties-break to None.
	next := chattypes.RunningTool{Pending: outcome.ToolCall, History: s.History}
	return withToolEffect(env, id, next, outcome.ToolCall), nil
}

func transitionSendingMessage(env Env, id string, s chattypes.SendingMessage, action chattypes.Action) (kernel.Result[chattypes.UserState, chattypes.Action], error) {
	if _, ok := action.(chattypes.MessageSent); !ok {
		return kernel.Result[chattypes.UserState, chattypes.Action]{}, invalidf(s, action)
	}

	if !s.Outcome.IsFinal() {
		history := s.History.WithAssistantOutcome(s.Outcome)
		next := chattypes.RunningTool{Pending: s.Outcome.ToolCall, History: history}
		return withToolEffect(env, id, next, s.Outcome.ToolCall), nil
	}

	if s.IsTimeoutDriven {
		return kernel.Result[chattypes.UserState, chattypes.Action]{State: chattypes.Idle{}}, nil
	}
	memory := &chattypes.Memory{Summary: deriveSummary(s.History, s.Outcome), LastTouch: env.Now()}
	return kernel.Result[chattypes.UserState, chattypes.Action]{State: chattypes.Idle{Memory: memory}}, nil
}

func transitionRunningTool(env Env, id string, s chattypes.RunningTool, action chattypes.Action) (kernel.Result[chattypes.UserState, chattypes.Action], error) {
	r, ok := action.(chattypes.ToolResult)
	if !ok {
		return kernel.Result[chattypes.UserState, chattypes.Action]{}, invalidf(s, action)
	}
	history := s.History.WithToolResult(r.Text)
	next := chattypes.AwaitingLLMDecision{IsTimeoutDriven: false, History: history}
	input := chattypes.LLMInput{Kind: chattypes.LLMInputToolResult, Text: r.Text}
	return withLLMEffect(env, id, next, input, history), nil
}

// withLLMEffect builds a Result carrying a single llm_effect spawn.
func withLLMEffect(env Env, id string, next chattypes.UserState, input chattypes.LLMInput, history chattypes.History) kernel.Result[chattypes.UserState, chattypes.Action] {
	return kernel.Result[chattypes.UserState, chattypes.Action]{
		State: next,
		Effects: []kernel.Effect[chattypes.Action]{
			func(ctx context.Context) chattypes.Action {
				outcome, err := env.Infer(ctx, input, history)
				return chattypes.LLMDecisionResult{Outcome: outcome, Err: err}
			},
		},
	}
}

// withSendEffect builds a Result carrying a single send_message_effect spawn.
func withSendEffect(env Env, id string, next chattypes.UserState, text string) kernel.Result[chattypes.UserState, chattypes.Action] {
	return kernel.Result[chattypes.UserState, chattypes.Action]{
		State: next,
		Effects: []kernel.Effect[chattypes.Action]{
			func(ctx context.Context) chattypes.Action {
				err := env.Send(ctx, id, text)
				return chattypes.MessageSent{Err: err}
			},
		},
	}
}

// withToolEffect builds a Result carrying a single tool_effect spawn.
func withToolEffect(env Env, id string, next chattypes.UserState, call chattypes.ToolCall) kernel.Result[chattypes.UserState, chattypes.Action] {
	return kernel.Result[chattypes.UserState, chattypes.Action]{
		State: next,
		Effects: []kernel.Effect[chattypes.Action]{
			func(ctx context.Context) chattypes.Action {
				text := env.RunTool(ctx, call)
				return chattypes.ToolResult{Text: text}
			},
		},
	}
}

// goodbyePrompt builds the synthetic user-turn fed to the LLM when a
// conversation times out from Idle(Some(memory)) — a prompt instructing the
// model to compose a short closing remark from the carried summary.
func goodbyePrompt(summary string) string {
	if summary == "" {
		return "The conversation has gone quiet. Send a brief, friendly goodbye."
	}
	return fmt.Sprintf("The conversation has gone quiet. Using this summary of what was discussed, send a brief, friendly goodbye: %s", summary)
}

// deriveSummary produces the rolling context string carried into the next
// Idle(Some(...)) period. Its only contract is that it round-trips through
// the LLM verbatim; this runtime derives it mechanically rather than asking
// the model to emit its own compressed summary, to avoid growing the
// Outcome grammar: a compact last-exchange transcript, capped in length so
// it cannot grow unbounded across goodbye cycles.
func deriveSummary(h chattypes.History, final chattypes.Outcome) string {
	var b strings.Builder
	for _, entry := range h {
		switch entry.Kind {
		case chattypes.HistoryUserMessage:
			b.WriteString("user: ")
			b.WriteString(entry.Text)
			b.WriteString("\n")
		case chattypes.HistoryToolResult:
			b.WriteString("tool: ")
			b.WriteString(entry.Text)
			b.WriteString("\n")
		}
	}
	b.WriteString("assistant: ")
	b.WriteString(final.Response)

	const maxLen = 2000
	out := b.String()
	if len(out) > maxLen {
		out = out[len(out)-maxLen:]
	}
	return out
}

func invalidf(state chattypes.UserState, action chattypes.Action) error {
	return fmt.Errorf("lifecycle: invalid transition: state=%T action=%T", state, action)
}
