package tools

import (
	"context"

	"github.com/KamdynS/promptline/llm"
)

// Definition describes t for a model.
func Definition(t Tool) llm.FunctionDefinition {
	return llm.FunctionDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()}
}

// ObjectSchema builds a JSON object schema from property schemas. Every
// listed required name must appear in props.
func ObjectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Parameters      map[string]any
	Fn              func(ctx context.Context, arguments string) (string, error)
}

func (f *FuncTool) Name() string           { return f.ToolName }
func (f *FuncTool) Description() string    { return f.ToolDescription }
func (f *FuncTool) Schema() map[string]any { return f.Parameters }
func (f *FuncTool) Execute(ctx context.Context, arguments string) (string, error) {
	return f.Fn(ctx, arguments)
}
