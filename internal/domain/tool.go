package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a model's request to invoke a tool. It is the unified
// internal form for both chat-API dialects (tool_calls array and legacy
// function_call object). ID correlates the call with its result across the
// two model calls of a turn.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ResolutionState classifies the outcome of resolving a human-readable
// target (a contact name) to a unique destination.
type ResolutionState string

const (
	// ResolutionSingle means exactly one target matched and the action was
	// completed without a second model call.
	ResolutionSingle ResolutionState = "single"
	// ResolutionMultiple means several targets matched and the caller must
	// disambiguate.
	ResolutionMultiple ResolutionState = "multiple"
	// ResolutionNone means no target matched.
	ResolutionNone ResolutionState = "none"
)

// Resolution is the tri-state outcome of a target-resolving tool. When a
// ToolResult carries a non-nil Resolution, the orchestrator replies with
// Reply directly instead of making a second model call.
type Resolution struct {
	State ResolutionState `json:"state"`
	// Reply is the caller-facing text synthesized by the tool: a sent
	// confirmation, a candidate list, or a not-found message.
	Reply string `json:"reply"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID  string      `json:"tool_call_id"`
	Content     string      `json:"content"`
	IsError     bool        `json:"is_error"`
	IsRetryable bool        `json:"is_retryable,omitempty"`
	Resolution  *Resolution `json:"resolution,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and schema advertisement.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}

// ChatProvider is the chat-completion API boundary.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}
