package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"courier-ai/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation. Execute
// validates params against the compiled schema before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps t so that Execute validates params against the
// tool's advertised schema. Returns an error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

// Execute validates params before delegating. A validation failure is a
// caller error, not a tool failure, and is returned as ErrInvalidArguments
// so the dispatch path can terminate the turn.
func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var v interface{}
	if err := json.Unmarshal(params, &v); err != nil {
		return nil, domain.NewDomainError("SchemaValidatingTool.Execute", domain.ErrInvalidArguments,
			fmt.Sprintf("tool %s: invalid JSON: %v", s.inner.Name(), err))
	}

	if err := s.schema.Validate(v); err != nil {
		return nil, domain.NewDomainError("SchemaValidatingTool.Execute", domain.ErrInvalidArguments,
			fmt.Sprintf("tool %s: %v", s.inner.Name(), err))
	}

	return s.inner.Execute(ctx, params)
}
