package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"courier-ai/internal/domain"
	"courier-ai/internal/infra/tracer"
)

// SumTool adds two integers. Mainly useful as a deterministic smoke test
// of the whole tool-calling loop.
type SumTool struct {
	logger *slog.Logger
}

// NewSumTool creates the sumar tool.
func NewSumTool(logger *slog.Logger) *SumTool {
	return &SumTool{logger: logger}
}

func (t *SumTool) Name() string { return "sumar" }

func (t *SumTool) Description() string {
	return "Suma dos numeros enteros."
}

func (t *SumTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"a": {"type": "integer", "description": "Primer numero"},
				"b": {"type": "integer", "description": "Segundo numero"}
			},
			"required": ["a", "b"]
		}`),
	}
}

type sumParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func (t *SumTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.sumar", t.logger, params,
		func(ctx context.Context, span trace.Span, p sumParams) (any, error) {
			span.SetAttributes(tracer.IntAttr("sumar.a", p.A), tracer.IntAttr("sumar.b", p.B))
			return map[string]int{"resultado": p.A + p.B}, nil
		})
}

var _ domain.Tool = (*SumTool)(nil)
