// Package llm implements chat-completion providers speaking the
// OpenAI-compatible wire protocol in both the current tool_calls dialect
// and the legacy function_call dialect.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
	"courier-ai/internal/infra/tracer"
)

// Dialects for tool advertisement and tool-call parsing.
const (
	DialectTools     = "tools"     // tools / tool_calls array
	DialectFunctions = "functions" // legacy functions / function_call object
)

// OpenAIProvider calls an OpenAI-compatible chat completion API.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	dialect string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectTools
	}
	return &OpenAIProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dialect: dialect,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Name implements domain.ChatProvider.
func (p *OpenAIProvider) Name() string { return "openai" }

// --- wire types ---

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`

	// tool_calls dialect
	Tools      []oaTool `json:"tools,omitempty"`
	ToolChoice string   `json:"tool_choice,omitempty"`

	// legacy function_call dialect
	Functions    []oaFunctionDef `json:"functions,omitempty"`
	FunctionCall string          `json:"function_call,omitempty"`
}

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// assistant tool requests (current dialect) and tool result correlation
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`

	// legacy dialect
	Name         string          `json:"name,omitempty"`
	FunctionCall *oaFunctionCall `json:"function_call,omitempty"`
}

type oaTool struct {
	Type     string       `json:"type"`
	Function oaFunctionDef `json:"function"`
}

type oaFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat implements domain.ChatProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		tracer.StringAttr("llm.provider", p.Name()),
		tracer.StringAttr("llm.dialect", p.dialect),
	)
	defer span.End()

	model := req.Model
	if model == "" {
		model = p.model
	}

	wireReq := oaRequest{
		Model:       model,
		Messages:    p.encodeMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	p.encodeTools(&wireReq, req.Tools, req.ToolChoice)

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var wireResp oaResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		err = fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(wireResp.Choices) == 0 {
		err = fmt.Errorf("%w: response has no choices", domain.ErrUpstream)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &domain.ChatResponse{
		ID:    wireResp.ID,
		Model: wireResp.Model,
		Message: p.decodeMessage(wireResp.Choices[0].Message),
		Usage: domain.Usage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:      wireResp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(wireResp.Created, 0),
	}

	span.SetAttributes(tracer.IntAttr("llm.total_tokens", result.Usage.TotalTokens))
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.Name(), result)
	return result, nil
}

// encodeTools advertises tool schemas in the configured dialect.
// No schemas means no tools field at all: the model cannot request a call.
func (p *OpenAIProvider) encodeTools(req *oaRequest, schemas []domain.ToolSchema, choice string) {
	if len(schemas) == 0 {
		return
	}
	if choice == "" {
		choice = "auto"
	}

	switch p.dialect {
	case DialectFunctions:
		req.Functions = make([]oaFunctionDef, 0, len(schemas))
		for _, s := range schemas {
			req.Functions = append(req.Functions, oaFunctionDef{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			})
		}
		req.FunctionCall = choice
	default:
		req.Tools = make([]oaTool, 0, len(schemas))
		for _, s := range schemas {
			req.Tools = append(req.Tools, oaTool{
				Type: "function",
				Function: oaFunctionDef{
					Name:        s.Name,
					Description: s.Description,
					Parameters:  s.Parameters,
				},
			})
		}
		req.ToolChoice = choice
	}
}

// encodeMessages translates domain messages to the wire dialect. Assistant
// tool requests and tool results carry the correlation ID between the two
// calls in the current dialect; the legacy dialect correlates by name only.
func (p *OpenAIProvider) encodeMessages(msgs []domain.Message) []oaMessage {
	out := make([]oaMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := oaMessage{Role: m.Role, Content: m.Content}

		switch {
		case m.Role == domain.RoleAssistant && len(m.ToolCalls) > 0:
			if p.dialect == DialectFunctions {
				wm.FunctionCall = &oaFunctionCall{
					Name:      m.ToolCalls[0].Name,
					Arguments: string(m.ToolCalls[0].Arguments),
				}
			} else {
				for _, tc := range m.ToolCalls {
					wm.ToolCalls = append(wm.ToolCalls, oaToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: oaFunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					})
				}
			}
		case m.Role == domain.RoleTool:
			if p.dialect == DialectFunctions {
				wm.Role = "function"
				wm.Name = m.Name
			} else {
				wm.Name = m.Name
				if len(m.ToolCalls) > 0 {
					wm.ToolCallID = m.ToolCalls[0].ID
				}
			}
		}

		out = append(out, wm)
	}
	return out
}

// decodeMessage normalizes both dialects into the internal representation.
// Legacy function_call responses carry no correlation ID, so one is minted.
func (p *OpenAIProvider) decodeMessage(wm oaMessage) domain.Message {
	m := domain.Message{
		Role:      wm.Role,
		Content:   wm.Content,
		Timestamp: time.Now().UTC(),
	}

	for _, tc := range wm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	if wm.FunctionCall != nil {
		m.ToolCalls = append(m.ToolCalls, domain.ToolCall{
			ID:        "call_" + ulid.Make().String(),
			Name:      wm.FunctionCall.Name,
			Arguments: json.RawMessage(wm.FunctionCall.Arguments),
		})
	}

	return m
}

var _ domain.ChatProvider = (*OpenAIProvider)(nil)
