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

// BridgeControlTool starts, stops, and checks the WhatsApp bridge process.
type BridgeControlTool struct {
	supervisor *bridge.Supervisor
	logger     *slog.Logger
}

// NewBridgeControlTool creates the bridge_control tool.
func NewBridgeControlTool(supervisor *bridge.Supervisor, logger *slog.Logger) *BridgeControlTool {
	return &BridgeControlTool{supervisor: supervisor, logger: logger}
}

func (t *BridgeControlTool) Name() string { return "bridge_control" }

func (t *BridgeControlTool) Description() string {
	return "Controla el servidor de WhatsApp: iniciar, detener o consultar estado."
}

func (t *BridgeControlTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {
					"type": "string",
					"enum": ["start", "stop", "status"],
					"description": "Accion a ejecutar"
				}
			},
			"required": ["action"]
		}`),
	}
}

type bridgeControlParams struct {
	Action string `json:"action"`
}

func (t *BridgeControlTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.bridge_control", t.logger, params,
		func(ctx context.Context, span trace.Span, p bridgeControlParams) (any, error) {
			span.SetAttributes(tracer.StringAttr("bridge.action", p.Action))

			switch p.Action {
			case "start":
				return t.supervisor.Start(ctx)
			case "stop":
				return t.supervisor.Stop(ctx)
			case "status":
				return t.supervisor.Status(ctx), nil
			default:
				return nil, BadAction(p.Action, "start", "stop", "status")
			}
		})
}

var _ domain.Tool = (*BridgeControlTool)(nil)
