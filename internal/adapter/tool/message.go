package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"courier-ai/internal/adapter/bridge"
	"courier-ai/internal/domain"
	"courier-ai/internal/infra/tracer"
)

// SendMessageTool delivers a WhatsApp message by recipient name or number.
// It resolves the recipient against the bridge address book and reports a
// tri-state Resolution so the turn can complete without a second model call:
// exactly one match sends immediately, several matches ask the user to pick,
// zero matches reports not found.
type SendMessageTool struct {
	client *bridge.Client
	logger *slog.Logger
}

// NewSendMessageTool creates the send_message tool.
func NewSendMessageTool(client *bridge.Client, logger *slog.Logger) *SendMessageTool {
	return &SendMessageTool{client: client, logger: logger}
}

func (t *SendMessageTool) Name() string { return "send_message" }

func (t *SendMessageTool) Description() string {
	return "Envia un mensaje de WhatsApp a un numero (521...) o nombre de contacto."
}

func (t *SendMessageTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"recipient": {"type": "string", "description": "Numero (521...) o nombre del contacto"},
				"message": {"type": "string", "description": "Texto del mensaje"}
			},
			"required": ["recipient", "message"]
		}`),
	}
}

type sendMessageParams struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// disambiguation is the structured output for a multi-match resolution.
type disambiguation struct {
	MultipleContacts bool             `json:"multiple_contacts"`
	Options          []bridge.Contact `json:"options"`
	OriginalMessage  string           `json:"original_message"`
}

func (t *SendMessageTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.send_message", t.logger, params,
		func(ctx context.Context, span trace.Span, p sendMessageParams) (any, error) {
			if p.Recipient == "" || p.Message == "" {
				return ErrResult("recipient and message are required")
			}

			contacts, err := t.client.SearchContacts(ctx, p.Recipient, 0)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("resolve.matches", len(contacts)))

			switch len(contacts) {
			case 1:
				receipt, err := t.client.Send(ctx, contacts[0].JID, p.Message)
				if err != nil {
					return nil, err
				}
				content, _ := json.Marshal(receipt)
				return &domain.ToolResult{
					Content: string(content),
					Resolution: &domain.Resolution{
						State: domain.ResolutionSingle,
						Reply: "Mensaje enviado a " + contacts[0].Name,
					},
				}, nil

			case 0:
				content, _ := json.Marshal(map[string]any{
					"success": false,
					"error":   "No se encontró el contacto",
				})
				return &domain.ToolResult{
					Content: string(content),
					Resolution: &domain.Resolution{
						State: domain.ResolutionNone,
						Reply: "No encontré ese contacto en la lista",
					},
				}, nil

			default:
				content, _ := json.Marshal(disambiguation{
					MultipleContacts: true,
					Options:          contacts,
					OriginalMessage:  p.Message,
				})
				return &domain.ToolResult{
					Content: string(content),
					Resolution: &domain.Resolution{
						State: domain.ResolutionMultiple,
						Reply: disambiguationPrompt(contacts),
					},
				}, nil
			}
		})
}

func disambiguationPrompt(contacts []bridge.Contact) string {
	lines := make([]string, 0, len(contacts))
	for _, c := range contacts {
		lines = append(lines, fmt.Sprintf("%s (%s)", c.Name, c.Phone))
	}
	return "Varios contactos encontrados:\n" + strings.Join(lines, "\n") +
		"\n¿A cuál deseas enviar el mensaje?"
}

var _ domain.Tool = (*SendMessageTool)(nil)
