package llmengine

import (
	"fmt"

	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// The wire* types below are the JSON shape the grammar in grammar.go
// actually constrains and the dynamic prompt actually serializes. They are
// deliberately distinct from pkg/chattypes' domain types: chattypes.Outcome
// tags its Kind with a small int for cheap Go-side switches, but the model
// needs to read and write human-legible string tags ("final",
// "intermediate_tool_call") to stay within a GBNF grammar that a 4-8B local
// model can hit reliably. schema.go is the only place that translates
// between the two.

type wireOutcome struct {
	Outcome wireOutcomeBody `json:"outcome"`
}

type wireOutcomeBody struct {
	Kind                      string        `json:"kind"`
	Response                  string        `json:"response,omitempty"`
	MaybeIntermediateResponse string        `json:"maybe_intermediate_response,omitempty"`
	ToolCall                  *wireToolCall `json:"tool_call,omitempty"`
}

type wireToolCall struct {
	Kind       chattypes.ToolCallKind `json:"kind"`
	Location   string                 `json:"location,omitempty"`
	Expression string                 `json:"expression,omitempty"`
	Query      string                 `json:"query,omitempty"`
}

const (
	wireKindFinal = "final"
	wireKindITC   = "intermediate_tool_call"
)

// toDomain converts the wire representation into the internal
// chattypes.Outcome, the form the lifecycle transition function consumes.
func (w wireOutcomeBody) toDomain() (chattypes.Outcome, error) {
	switch w.Kind {
	case wireKindFinal:
		return chattypes.Outcome{Kind: chattypes.OutcomeFinal, Response: w.Response}, nil
	case wireKindITC:
		if w.ToolCall == nil {
			return chattypes.Outcome{}, fmt.Errorf("llmengine: intermediate_tool_call with no tool_call")
		}
		return chattypes.Outcome{
			Kind:                      chattypes.OutcomeIntermediateToolCall,
			MaybeIntermediateResponse: w.MaybeIntermediateResponse,
			ToolCall: chattypes.ToolCall{
				Kind:       w.ToolCall.Kind,
				Location:   w.ToolCall.Location,
				Expression: w.ToolCall.Expression,
				Query:      w.ToolCall.Query,
			},
		}, nil
	default:
		return chattypes.Outcome{}, fmt.Errorf("llmengine: unknown outcome kind %q", w.Kind)
	}
}

// fromDomain converts a chattypes.Outcome (as carried in History's
// AssistantOutcome entries) back into wire form for inclusion in the
// dynamic prompt's serialized history.
func fromDomain(o chattypes.Outcome) wireOutcomeBody {
	if o.IsFinal() {
		return wireOutcomeBody{Kind: wireKindFinal, Response: o.Response}
	}
	return wireOutcomeBody{
		Kind:                      wireKindITC,
		MaybeIntermediateResponse: o.MaybeIntermediateResponse,
		ToolCall: &wireToolCall{
			Kind:       o.ToolCall.Kind,
			Location:   o.ToolCall.Location,
			Expression: o.ToolCall.Expression,
			Query:      o.ToolCall.Query,
		},
	}
}

// wireHistoryEntry mirrors chattypes.HistoryEntry for prompt serialization.
type wireHistoryEntry struct {
	Kind    string           `json:"kind"`
	Text    string           `json:"text,omitempty"`
	Outcome *wireOutcomeBody `json:"outcome,omitempty"`
}

const (
	wireHistoryUser      = "user_message"
	wireHistoryTool      = "tool_result"
	wireHistoryAssistant = "assistant_outcome"
)

func wireHistory(h chattypes.History) []wireHistoryEntry {
	out := make([]wireHistoryEntry, 0, len(h))
	for _, e := range h {
		switch e.Kind {
		case chattypes.HistoryUserMessage:
			out = append(out, wireHistoryEntry{Kind: wireHistoryUser, Text: e.Text})
		case chattypes.HistoryToolResult:
			out = append(out, wireHistoryEntry{Kind: wireHistoryTool, Text: e.Text})
		case chattypes.HistoryAssistantOutcome:
			body := fromDomain(e.Outcome)
			out = append(out, wireHistoryEntry{Kind: wireHistoryAssistant, Outcome: &body})
		}
	}
	return out
}
