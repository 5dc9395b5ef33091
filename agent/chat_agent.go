package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/observability"
	"github.com/KamdynS/promptline/prompt"
	"github.com/KamdynS/promptline/state"
	"github.com/KamdynS/promptline/tools"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ChatAgent streams completions and executes function calls until the model
// answers with text.
type ChatAgent struct {
	Services   llm.Services
	Config     AgentConfig
	Tools      tools.Registry
	Store      state.Store
	middleware []Middleware
	processors []MemoryProcessor
	resolver   ConfigResolver
	log        zerolog.Logger
}

// NewChatAgent constructs a ChatAgent. A nil store keeps transcripts in
// memory.
func NewChatAgent(svc llm.Services, cfg AgentConfig, reg tools.Registry, store state.Store) *ChatAgent {
	if store == nil {
		store = state.NewInMemoryStore()
	}
	return &ChatAgent{Services: svc, Config: cfg, Tools: reg, Store: store, log: zerolog.Nop()}
}

// WithLogger sets the agent logger.
func (a *ChatAgent) WithLogger(l zerolog.Logger) *ChatAgent {
	a.log = l.With().Str("component", "agent").Logger()
	return a
}

// UseMiddleware adds middleware hooks.
func (a *ChatAgent) UseMiddleware(m ...Middleware) { a.middleware = append(a.middleware, m...) }

// UseProcessors adds memory processors.
func (a *ChatAgent) UseProcessors(p ...MemoryProcessor) { a.processors = append(a.processors, p...) }

// WithResolver sets a dynamic resolver.
func (a *ChatAgent) WithResolver(r ConfigResolver) { a.resolver = r }

// Run executes the loop and returns the final assistant message.
func (a *ChatAgent) Run(ctx context.Context, sessionID string, input llm.ChatMessage) (llm.ChatMessage, error) {
	return a.run(ctx, sessionID, input, nil)
}

// RunStream forwards every message snapshot as it grows, plus each function
// result, to output. Snapshots of one message share its ID. output is closed
// when the run ends.
func (a *ChatAgent) RunStream(ctx context.Context, sessionID string, input llm.ChatMessage, output chan<- llm.ChatMessage) error {
	defer close(output)
	_, err := a.run(ctx, sessionID, input, func(m llm.ChatMessage) {
		select {
		case output <- m:
		case <-ctx.Done():
		}
	})
	return err
}

func (a *ChatAgent) run(ctx context.Context, sessionID string, input llm.ChatMessage, emit func(llm.ChatMessage)) (llm.ChatMessage, error) {
	cfg, reg := a.Config, a.Tools
	if a.resolver != nil {
		rc, rt := a.resolver.Resolve(ctx, input, a.Config)
		if (rc != AgentConfig{}) {
			cfg = rc
		}
		if rt != nil {
			reg = rt
		}
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	log := a.log.With().Str("session", sessionID).Logger()

	history, err := a.Store.Messages(ctx, sessionID, cfg.HistoryLimit)
	if err != nil {
		return llm.ChatMessage{}, fmt.Errorf("load history: %w", err)
	}
	for _, p := range a.processors {
		history = p.Process(ctx, history)
	}
	msgs := make([]llm.ChatMessage, 0, len(history)+2)
	if cfg.SystemPrompt != "" {
		msgs = append(msgs, llm.SystemText(cfg.SystemPrompt))
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, input)
	p := llm.NewChatPrompt(msgs...)
	if cfg.ModelOverride != "" {
		p.Context = prompt.With(p.Context, prompt.ModelKey, cfg.ModelOverride)
	}
	params := &llm.ChatParameters{Temperature: cfg.Temperature, TokenLimit: cfg.TokenLimit}
	if reg != nil {
		params.Functions = reg.Definitions()
	}

	added := []llm.ChatMessage{input}
	for turn := 0; turn < maxIter; turn++ {
		msg, err := a.turn(ctx, turn, p, params, emit)
		if err != nil {
			return llm.ChatMessage{}, err
		}
		added = append(added, msg)
		p = p.Appending(msg)

		call, isCall := msg.FunctionCall()
		if !isCall || reg == nil {
			if err := a.Store.Append(ctx, sessionID, added...); err != nil {
				return llm.ChatMessage{}, fmt.Errorf("save transcript: %w", err)
			}
			for _, m := range a.middleware {
				_ = m.AfterRun(ctx, msg)
			}
			log.Debug().Int("turns", turn+1).Msg("agent run finished")
			return msg, nil
		}

		result, err := a.invoke(ctx, reg, call, log)
		if err != nil {
			return llm.ChatMessage{}, err
		}
		added = append(added, result)
		p = p.Appending(result)
		if emit != nil {
			emit(result)
		}
	}
	log.Warn().Int("max_iterations", maxIter).Msg("agent stopped before an answer")
	if err := a.Store.Append(ctx, sessionID, added...); err != nil {
		log.Error().Err(err).Msg("failed to save transcript")
	}
	return llm.ChatMessage{}, ErrMaxIterations
}

// turn streams one completion and returns its final message.
func (a *ChatAgent) turn(ctx context.Context, n int, p *llm.ChatPrompt, params *llm.ChatParameters, emit func(llm.ChatMessage)) (llm.ChatMessage, error) {
	ctx, span := observability.Tracer().Start(ctx, observability.SpanAgentTurn)
	span.SetAttributes(attribute.Int("agent.turn", n))
	msg, err := a.streamTurn(ctx, p, params, emit)
	observability.EndSpan(span, err)
	return msg, err
}

func (a *ChatAgent) streamTurn(ctx context.Context, p *llm.ChatPrompt, params *llm.ChatParameters, emit func(llm.ChatMessage)) (llm.ChatMessage, error) {
	for _, m := range a.middleware {
		if err := m.BeforeLLMCall(ctx, p, params); err != nil {
			return llm.ChatMessage{}, err
		}
	}
	s, err := a.Services.StreamChat(ctx, p, params)
	if err != nil {
		return llm.ChatMessage{}, fmt.Errorf("llm call failed: %w", err)
	}
	events, err := s.Events(ctx)
	if err != nil {
		return llm.ChatMessage{}, fmt.Errorf("llm call failed: %w", err)
	}
	for ev := range events {
		if ev.Message != nil && emit != nil {
			emit(*ev.Message)
		}
	}
	msg, err := s.Wait(ctx)
	if err != nil {
		return llm.ChatMessage{}, fmt.Errorf("llm call failed: %w", err)
	}
	for _, m := range a.middleware {
		_ = m.AfterLLMResponse(ctx, msg)
	}
	return msg, nil
}

// invoke runs call. Tool failures and unknown tools are reported back to
// the model as the function result instead of ending the run.
func (a *ChatAgent) invoke(ctx context.Context, reg tools.Registry, call prompt.FunctionCall, log zerolog.Logger) (llm.ChatMessage, error) {
	for _, m := range a.middleware {
		if err := m.BeforeToolExecute(ctx, call); err != nil {
			return llm.ChatMessage{}, err
		}
	}
	inv, err := reg.Invoke(ctx, call)
	if errors.Is(err, tools.ErrToolNotFound) {
		inv = prompt.FunctionInvocation{Name: call.Name, Result: prompt.FunctionResult{RawValue: "error: " + err.Error()}}
	}
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("function call failed")
	}
	for _, m := range a.middleware {
		_ = m.AfterToolExecute(ctx, inv, err)
	}
	return llm.FunctionResultMessage(inv), nil
}
