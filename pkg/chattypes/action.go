package chattypes

// Action is the sealed set of inputs the lifecycle transition function
// accepts. Concrete variants implement the unexported isAction method so
// no package outside chattypes can introduce a new one — new action kinds
// are added here, deliberately, alongside the transition table they affect.
type Action interface {
	isAction()
}

// ForceReset is the stuck-state escape hatch; it returns any non-Idle user
// to Idle(None) unconditionally.
type ForceReset struct{}

func (ForceReset) isAction() {}

// NewMessage carries an inbound chat message. StartConversation is true when
// the transport shim determined the message was a direct message or an
// explicit mention.
type NewMessage struct {
	Text             string
	StartConversation bool
}

func (NewMessage) isAction() {}

// Timeout fires from a scheduled wake-up: either the goodbye delay (from
// Idle(Some)) or, in the future, other schedule policies.
type Timeout struct{}

func (Timeout) isAction() {}

// LLMDecisionResult carries the outcome of an llm_effect, or an error if
// the inference call failed for any reason (decode invariant violation,
// grammar/JSON parse failure, or a propagated engine error).
type LLMDecisionResult struct {
	Outcome Outcome
	Err     error
}

func (LLMDecisionResult) isAction() {}

// Ok reports whether the inference call succeeded.
func (r LLMDecisionResult) Ok() bool { return r.Err == nil }

// MessageSent carries the result of a send_message_effect. Per spec, Err is
// deliberately treated identically to success by the lifecycle — it exists
// on the struct only so effect adapters and logging can observe it.
type MessageSent struct {
	Err error
}

func (MessageSent) isAction() {}

// ToolResult carries the textual output of a tool_effect. Tool failures are
// already stringified into Text by the adapter; Text is never empty.
type ToolResult struct {
	Text string
}

func (ToolResult) isAction() {}
