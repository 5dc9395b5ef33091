// Package agent runs chat completions in a loop, executing the functions
// the model calls until it answers.
package agent

import (
	"context"
	"errors"

	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/prompt"
	"github.com/KamdynS/promptline/tools"
)

// ErrMaxIterations is returned when the model keeps calling functions past
// the configured number of turns.
var ErrMaxIterations = errors.New("agent: max iterations reached")

// Agent defines the core interface for AI agents.
type Agent interface {
	Run(ctx context.Context, sessionID string, input llm.ChatMessage) (llm.ChatMessage, error)
	RunStream(ctx context.Context, sessionID string, input llm.ChatMessage, output chan<- llm.ChatMessage) error
}

// AgentConfig controls agent execution.
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations" validate:"gte=0"`
	SystemPrompt  string `mapstructure:"system_prompt"`
	// ModelOverride pins a "provider/name" model for every turn.
	ModelOverride string `mapstructure:"model"`
	// HistoryLimit bounds how many stored messages are replayed; 0 replays
	// the whole session.
	HistoryLimit int      `mapstructure:"history_limit" validate:"gte=0"`
	Temperature  *float64 `mapstructure:"temperature"`
	TokenLimit   int      `mapstructure:"token_limit" validate:"gte=0"`
}

const defaultMaxIterations = 5

// Middleware allows hooks around key lifecycle events. A BeforeLLMCall or
// BeforeToolExecute error aborts the run.
type Middleware interface {
	BeforeLLMCall(ctx context.Context, p *llm.ChatPrompt, params *llm.ChatParameters) error
	AfterLLMResponse(ctx context.Context, msg llm.ChatMessage) error
	BeforeToolExecute(ctx context.Context, call prompt.FunctionCall) error
	AfterToolExecute(ctx context.Context, inv prompt.FunctionInvocation, execErr error) error
	AfterRun(ctx context.Context, final llm.ChatMessage) error
}

// MemoryProcessor can transform/prune conversation history before sending to LLM.
type MemoryProcessor interface {
	Process(ctx context.Context, history []llm.ChatMessage) []llm.ChatMessage
}

// ConfigResolver can adjust configuration and tools at runtime based on input.
type ConfigResolver interface {
	Resolve(ctx context.Context, input llm.ChatMessage, base AgentConfig) (AgentConfig, tools.Registry)
}

// LastN keeps the most recent N messages of history. It never starts the
// window on a function result, which would orphan it from its call.
type LastN int

func (n LastN) Process(_ context.Context, history []llm.ChatMessage) []llm.ChatMessage {
	if n <= 0 || len(history) <= int(n) {
		return history
	}
	out := history[len(history)-int(n):]
	for len(out) > 0 && out[0].Role == llm.RoleFunction {
		out = out[1:]
	}
	return out
}
