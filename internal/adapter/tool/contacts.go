package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"courier-ai/internal/adapter/bridge"
	"courier-ai/internal/domain"
	"courier-ai/internal/infra/tracer"
)

// ContactSearchTool looks up contacts in the bridge address book.
type ContactSearchTool struct {
	client *bridge.Client
	logger *slog.Logger
}

// NewContactSearchTool creates the search_contacts tool.
func NewContactSearchTool(client *bridge.Client, logger *slog.Logger) *ContactSearchTool {
	return &ContactSearchTool{client: client, logger: logger}
}

func (t *ContactSearchTool) Name() string { return "search_contacts" }

func (t *ContactSearchTool) Description() string {
	return "Busca contactos de WhatsApp por nombre o numero."
}

func (t *ContactSearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Nombre o numero a buscar"},
				"limit": {"type": "integer", "description": "Maximo de resultados (por defecto 5)"}
			},
			"required": ["query"]
		}`),
	}
}

type contactSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (t *ContactSearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_contacts", t.logger, params,
		func(ctx context.Context, span trace.Span, p contactSearchParams) (any, error) {
			if p.Query == "" {
				return ErrResult("query is required")
			}
			span.SetAttributes(tracer.StringAttr("search.query", p.Query))

			contacts, err := t.client.SearchContacts(ctx, p.Query, p.Limit)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("search.results", len(contacts)))
			return contacts, nil
		})
}

var _ domain.Tool = (*ContactSearchTool)(nil)
