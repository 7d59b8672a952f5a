// Package llm carries the tool-definition shape shared between the MCP host
// and the tool dispatcher. It once also defined a full remote chat-completion
// provider surface (Message, ToolCall, Provider); that surface has no role
// here since the chat loop's sole decision-maker is the local inference
// engine in internal/llmengine, so only the tool-description type remains.
package llm

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// EstimatedDurationMs is the declared p50 latency for budget tier assignment.
	EstimatedDurationMs int

	// MaxDurationMs is the declared p99 upper bound; no timeout is enforced
	// from it.
	MaxDurationMs int

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool

	// CacheableSeconds is how long results can be cached (0 = never).
	CacheableSeconds int
}
