package domain

import "encoding/json"

// TurnResult is what one completed turn hands back to the gateway boundary.
type TurnResult struct {
	Reply     string `json:"response"`
	SessionID string `json:"session_id"`
	ToolUsed  bool   `json:"tool_used"`
	// ToolName and Output serialize as null on turns that used no tool.
	ToolName *string         `json:"tool_name"`
	Output   json.RawMessage `json:"output"`
	// DirectSend is true when a target-resolving tool completed the action
	// without a second model call.
	DirectSend bool `json:"direct_send,omitempty"`
}

// InboundMessage is a bridge-sourced message entering the gateway.
// The sender identifier doubles as the session key.
type InboundMessage struct {
	Sender    string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}
