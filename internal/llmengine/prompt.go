package llmengine

import (
	"encoding/json"
	"fmt"

	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

// historyHeader prefixes the serialized history block in the dynamic
// prompt, giving the model a fixed anchor to recognize where replayed
// context starts.
const historyHeader = "<|history|>\n"

// roleUserOpen/roleToolOpen wrap the current turn's input in chat-role sentinel
// markers, the bracketed-role convention a model falls back to when it has
// no chat template of its own.
const (
	roleUserOpen  = "<|user|>\n"
	roleToolOpen  = "<|tool_result|>\n"
	roleAssistant = "<|assistant|>\n"
)

// buildDynamicPrompt assembles the per-call suffix: a JSON history block,
// the current turn's input wrapped in a role sentinel, and the open
// assistant sentinel that invites the grammar-constrained generation to
// begin. The returned string never includes the base prompt — that is only
// ever present via the warmed session's attention state.
func buildDynamicPrompt(input chattypes.LLMInput, history chattypes.History) (string, error) {
	historyJSON, err := json.Marshal(wireHistory(history))
	if err != nil {
		return "", fmt.Errorf("llmengine: marshal history: %w", err)
	}

	var b []byte
	b = append(b, historyHeader...)
	b = append(b, historyJSON...)
	b = append(b, '\n')

	switch input.Kind {
	case chattypes.LLMInputUserMessage:
		b = append(b, roleUserOpen...)
	case chattypes.LLMInputToolResult:
		b = append(b, roleToolOpen...)
	default:
		return "", fmt.Errorf("llmengine: unknown LLMInput kind %d", input.Kind)
	}
	b = append(b, input.Text...)
	b = append(b, '\n')
	b = append(b, roleAssistant...)

	return string(b), nil
}
