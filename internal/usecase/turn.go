package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/tracer"
)

// fallbackReply is surfaced when the model returns empty content.
const fallbackReply = "No puedo responder a eso."

// Orchestrator runs the two-call tool-execution protocol for one turn:
// first model call, optional tool dispatch, optional second model call,
// then history persistence. Turns on the same session are serialized.
type Orchestrator struct {
	provider    domain.ChatProvider
	tools       domain.ToolExecutor
	store       SessionStore
	builder     *ContextBuilder
	locker      *SessionLocker
	maxMessages int
	logger      *slog.Logger
}

// NewOrchestrator wires the orchestration loop.
func NewOrchestrator(
	provider domain.ChatProvider,
	tools domain.ToolExecutor,
	store SessionStore,
	builder *ContextBuilder,
	maxMessages int,
	logger *slog.Logger,
) *Orchestrator {
	if maxMessages <= 0 {
		maxMessages = 10
	}
	return &Orchestrator{
		provider:    provider,
		tools:       tools,
		store:       store,
		builder:     builder,
		locker:      NewSessionLocker(),
		maxMessages: maxMessages,
		logger:      logger,
	}
}

// HandleTurn processes one user input through to a finalized reply.
// History is appended only after the reply is finalized; a failed turn
// leaves the session untouched.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionKey, userText string) (*domain.TurnResult, error) {
	if userText == "" {
		return nil, domain.NewDomainError("Orchestrator.HandleTurn", domain.ErrMissingInput, "empty input")
	}

	ctx, span := tracer.StartSpan(ctx, "orchestrator.turn",
		tracer.StringAttr("session.key", sessionKey))
	defer span.End()

	unlock, err := o.locker.Lock(ctx, sessionKey)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	defer unlock()

	msgs := o.builder.Build(o.store.History(sessionKey), userText)

	eligible := o.builder.ToolsEligible(userText)
	span.SetAttributes(tracer.BoolAttr("turn.tools_eligible", eligible))

	req := domain.ChatRequest{Messages: msgs}
	if eligible {
		req.Tools = o.tools.Schemas()
		req.ToolChoice = "auto"
	}

	first, err := o.provider.Chat(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("first call", err)
	}

	result := &domain.TurnResult{SessionID: sessionKey}
	assistant := first.Message

	if len(assistant.ToolCalls) == 0 {
		result.Reply = assistant.Content
		if result.Reply == "" {
			result.Reply = fallbackReply
		}
		o.persist(sessionKey, userText, result.Reply)
		tracer.SetOK(span)
		return result, nil
	}

	// Only the first tool call is processed; additional calls in the same
	// response are outside the supported cardinality.
	tc := assistant.ToolCalls[0]
	if len(assistant.ToolCalls) > 1 {
		o.logger.Warn("model emitted multiple tool calls, processing first only",
			"count", len(assistant.ToolCalls), "tool", tc.Name)
	}
	span.SetAttributes(tracer.StringAttr("turn.tool", tc.Name))

	toolResult, err := o.dispatch(ctx, tc)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	result.ToolUsed = true
	result.ToolName = &tc.Name
	result.Output = outputJSON(toolResult.Content)

	if res := toolResult.Resolution; res != nil {
		// Resolution outcomes carry their own caller-facing text; the
		// second model call is skipped for all three states.
		result.Reply = res.Reply
		result.DirectSend = res.State == domain.ResolutionSingle
		o.persist(sessionKey, userText, result.Reply)
		tracer.SetOK(span)
		return result, nil
	}

	reply, err := o.secondCall(ctx, msgs, assistant, tc, toolResult)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	result.Reply = reply
	o.persist(sessionKey, userText, result.Reply)
	tracer.SetOK(span)
	return result, nil
}

// dispatch resolves and executes the requested tool. An unknown tool or
// arguments that fail schema validation are terminal for the turn; handler
// failures are absorbed into the ToolResult so the model can explain them.
func (o *Orchestrator) dispatch(ctx context.Context, tc domain.ToolCall) (*domain.ToolResult, error) {
	t, err := o.tools.Get(tc.Name)
	if err != nil {
		return nil, err
	}

	toolResult, err := t.Execute(ctx, tc.Arguments)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArguments) {
			return nil, err
		}
		// Tools absorb their own failures; an error here is a pipeline
		// fault, still packaged as a result for the second call.
		o.logger.Error("tool pipeline fault", "tool", tc.Name, "error", err)
		toolResult = &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("tool %s failed: %v", tc.Name, err),
		}
	}
	toolResult.ToolCallID = tc.ID
	return toolResult, nil
}

// secondCall resubmits the transcript with the assistant's tool request and
// its result, tools disabled, and returns the model's natural-language
// reply. The correlation ID is echoed verbatim in the tool message.
func (o *Orchestrator) secondCall(
	ctx context.Context,
	msgs []domain.Message,
	assistant domain.Message,
	tc domain.ToolCall,
	toolResult *domain.ToolResult,
) (string, error) {
	transcript := append(msgs, assistant, domain.Message{
		Role:      domain.RoleTool,
		Name:      tc.Name,
		Content:   toolResult.Content,
		ToolCalls: []domain.ToolCall{{ID: tc.ID}},
		Timestamp: time.Now().UTC(),
	})

	second, err := o.provider.Chat(ctx, domain.ChatRequest{Messages: transcript})
	if err != nil {
		return "", domain.WrapOp("second call", err)
	}

	reply := second.Message.Content
	if reply == "" {
		reply = fallbackReply
	}
	return reply, nil
}

// persist appends the user input and final reply, then trims to the
// retention bound. Intermediate tool messages are never persisted.
func (o *Orchestrator) persist(sessionKey, userText, reply string) {
	now := time.Now().UTC()
	o.store.Append(sessionKey,
		domain.Message{Role: domain.RoleUser, Content: userText, Timestamp: now},
		domain.Message{Role: domain.RoleAssistant, Content: reply, Timestamp: now},
	)
	o.store.Trim(sessionKey, o.maxMessages)
}

// outputJSON returns the tool output as raw JSON when it already is JSON,
// otherwise as a JSON string.
func outputJSON(content string) json.RawMessage {
	if json.Valid([]byte(content)) {
		return json.RawMessage(content)
	}
	encoded, _ := json.Marshal(content)
	return encoded
}
