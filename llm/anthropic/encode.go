package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	base "github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
	anth "github.com/anthropics/anthropic-sdk-go"
)

// blockEncoder collects the degenerate components of one message as
// content blocks.
type blockEncoder struct {
	blocks     []anth.ContentBlockParamUnion
	text       strings.Builder
	images     bool
	call       *prompt.FunctionCall
	invocation *prompt.FunctionInvocation
}

func (e *blockEncoder) Encode(c prompt.Component) error {
	switch p := c.Payload.(type) {
	case prompt.Text:
		e.appendText(string(p))
	case prompt.Variable:
		s, err := prompt.FromVariable(p.Value).StripToText()
		if err != nil {
			return err
		}
		e.appendText(s)
	case prompt.Image:
		e.images = true
		e.blocks = append(e.blocks, anth.NewImageBlock(anth.URLImageSourceParam{URL: p.URL}))
	case prompt.FunctionCall:
		e.call = &p
	case prompt.FunctionInvocation:
		e.invocation = &p
	default:
		return fmt.Errorf("anthropic: cannot encode %s payload", c.Payload.Kind())
	}
	return nil
}

func (e *blockEncoder) appendText(s string) {
	e.text.WriteString(s)
	if s != "" {
		e.blocks = append(e.blocks, anth.NewTextBlock(s))
	}
}

// toAnthMessages converts a resolved chat prompt. System messages are
// lifted into the system parameter; function calls become tool_use blocks
// and invocations become tool_result blocks answering the latest call of
// the same name.
func toAnthMessages(p *base.ChatPrompt) ([]anth.TextBlockParam, []anth.MessageParam, error) {
	var system []anth.TextBlockParam
	msgs := make([]anth.MessageParam, 0, len(p.Messages))
	pending := map[string]string{}
	for i, m := range p.Messages {
		var enc blockEncoder
		if err := m.Content.EncodeTo(&enc); err != nil {
			return nil, nil, fmt.Errorf("encode message %d: %w", i, err)
		}
		switch {
		case enc.call != nil:
			id := fmt.Sprintf("toolu_%d", i)
			pending[enc.call.Name] = id
			args := enc.call.Arguments
			if args == "" {
				args = "{}"
			}
			if !json.Valid([]byte(args)) {
				return nil, nil, fmt.Errorf("message %d: arguments of %q are not valid JSON", i, enc.call.Name)
			}
			msgs = append(msgs, anth.NewAssistantMessage(anth.NewToolUseBlock(id, json.RawMessage(args), enc.call.Name)))
		case enc.invocation != nil:
			id, ok := pending[enc.invocation.Name]
			if !ok {
				return nil, nil, fmt.Errorf("message %d: invocation of %q without a preceding call", i, enc.invocation.Name)
			}
			delete(pending, enc.invocation.Name)
			msgs = append(msgs, anth.NewUserMessage(anth.NewToolResultBlock(id, enc.invocation.Result.RawValue, false)))
		case m.Role == base.RoleSystem:
			if enc.images {
				return nil, nil, fmt.Errorf("message %d: system messages cannot carry images", i)
			}
			system = append(system, anth.TextBlockParam{Text: enc.text.String()})
		case len(enc.blocks) == 0:
			// The API rejects empty content.
			continue
		case m.Role == base.RoleAssistant:
			msgs = append(msgs, anth.NewAssistantMessage(enc.blocks...))
		default:
			msgs = append(msgs, anth.NewUserMessage(enc.blocks...))
		}
	}
	return system, msgs, nil
}

// toAnthTools converts function definitions to tool params. The JSON
// schema's properties and required list carry over.
func toAnthTools(defs []base.FunctionDefinition) []anth.ToolUnionParam {
	out := make([]anth.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tp := &anth.ToolParam{Name: d.Name}
		if d.Description != "" {
			tp.Description = anth.String(d.Description)
		}
		if props, ok := d.Parameters["properties"]; ok {
			tp.InputSchema.Properties = props
		}
		switch req := d.Parameters["required"].(type) {
		case []string:
			tp.InputSchema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					tp.InputSchema.Required = append(tp.InputSchema.Required, s)
				}
			}
		}
		out = append(out, anth.ToolUnionParam{OfTool: tp})
	}
	return out
}

func stopReason(r anth.StopReason) base.StopReason {
	switch r {
	case "":
		return base.StopReasonNone
	case anth.StopReasonEndTurn:
		return base.StopReasonEndTurn
	case anth.StopReasonMaxTokens:
		return base.StopReasonMaxTokens
	case anth.StopReasonStopSequence:
		return base.StopReasonStopSequence
	case anth.StopReasonToolUse:
		return base.StopReasonFunctionCall
	default:
		return base.StopReason(r)
	}
}

// fromAnthMessage maps a response. Text blocks concatenate; the first
// tool_use block, when present, replaces them.
func fromAnthMessage(m *anth.Message) *base.ChatCompletion {
	out := &base.ChatCompletion{}
	if m == nil {
		out.Message = base.ChatMessage{Role: base.RoleAssistant}
		return out
	}
	out.StopReason = stopReason(m.StopReason)
	out.Usage = &base.Usage{
		InputTokens:  int(m.Usage.InputTokens),
		OutputTokens: int(m.Usage.OutputTokens),
		TotalTokens:  int(m.Usage.InputTokens + m.Usage.OutputTokens),
	}
	var text strings.Builder
	for _, b := range m.Content {
		switch b.Type {
		case "tool_use":
			out.Message = base.NewChatMessage(m.ID, base.RoleAssistant, prompt.NewFunctionCall(prompt.FunctionCall{
				Name:      b.Name,
				Arguments: string(b.Input),
			}))
			return out
		case "text":
			text.WriteString(b.Text)
		}
	}
	out.Message = base.NewChatMessage(m.ID, base.RoleAssistant, prompt.New(text.String()))
	return out
}
