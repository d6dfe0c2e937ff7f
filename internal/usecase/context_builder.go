package usecase

import (
	"strings"
	"time"

	"courier-ai/internal/domain"
)

// ContextBuilder assembles the prompt for a turn: system preamble, trimmed
// history, and the new user message. The preamble is synthesized fresh each
// turn and never persisted.
type ContextBuilder struct {
	systemPrompt     string
	maxMessages      int
	greetingPrefixes []string
}

// NewContextBuilder creates a builder. maxMessages bounds how much history
// is included; greetingPrefixes drive the tool-eligibility predicate.
func NewContextBuilder(systemPrompt string, maxMessages int, greetingPrefixes []string) *ContextBuilder {
	prefixes := make([]string, 0, len(greetingPrefixes))
	for _, p := range greetingPrefixes {
		prefixes = append(prefixes, strings.ToLower(p))
	}
	return &ContextBuilder{
		systemPrompt:     systemPrompt,
		maxMessages:      maxMessages,
		greetingPrefixes: prefixes,
	}
}

// Build returns the message sequence for the first model call.
func (b *ContextBuilder) Build(history []domain.Message, userText string) []domain.Message {
	if b.maxMessages > 0 && len(history) > b.maxMessages {
		history = history[len(history)-b.maxMessages:]
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{
		Role:      domain.RoleSystem,
		Content:   b.systemPrompt,
		Timestamp: time.Now().UTC(),
	})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{
		Role:      domain.RoleUser,
		Content:   userText,
		Timestamp: time.Now().UTC(),
	})
	return msgs
}

// ToolsEligible reports whether tool schemas should be advertised for this
// input. Greeting-prefixed text gets a plain conversational turn: with no
// schemas on the wire the model cannot emit a tool call.
func (b *ContextBuilder) ToolsEligible(userText string) bool {
	text := strings.ToLower(strings.TrimSpace(userText))
	for _, prefix := range b.greetingPrefixes {
		if strings.HasPrefix(text, prefix) {
			return false
		}
	}
	return true
}
