package anthropic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	base "github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/observability"
	"github.com/KamdynS/promptline/prompt"
	anth "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const provider = "anthropic"

// Client implements llm.Services for the Anthropic Messages API.
type Client struct {
	client anth.Client
	cfg    Config
	log    zerolog.Logger
}

// Config configures the Anthropic client.
type Config struct {
	APIKey    string               `mapstructure:"api_key"`
	Model     string               `mapstructure:"model"`
	BaseURL   string               `mapstructure:"base_url"`
	MaxTokens int                  `mapstructure:"max_tokens"`
	Timeout   time.Duration        `mapstructure:"timeout"`
	Retry     base.RetryConfig     `mapstructure:"retry"`
	Hooks     *observability.Hooks `mapstructure:"-"`
	Logger    *zerolog.Logger      `mapstructure:"-"`
}

// NewClient creates an Anthropic client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = base.DefaultRetryConfig()
	}

	opts := []option.RequestOption{option.WithHTTPClient(&http.Client{})}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Client{
		client: anth.NewClient(opts...),
		cfg:    cfg,
		log:    log.With().Str("component", "llm").Str("provider", provider).Logger(),
	}, nil
}

func (c *Client) Model() string { return provider + "/" + c.cfg.Model }

// Complete handles chat prompts. Text prompts are not supported by the
// Messages API.
func (c *Client) Complete(ctx context.Context, p base.Prompt, params base.Parameters, _ base.Heuristics) (base.Completion, error) {
	cp, ok := p.(*base.ChatPrompt)
	if !ok {
		return nil, fmt.Errorf("%w: %T", base.ErrUnsupportedPrompt, p)
	}
	var chatParams *base.ChatParameters
	if params != nil {
		if chatParams, ok = params.(*base.ChatParameters); !ok {
			return nil, fmt.Errorf("%w: %T", base.ErrUnsupportedParameters, params)
		}
		if err := chatParams.Validate(); err != nil {
			return nil, err
		}
	}
	req, model, err := c.buildRequest(ctx, cp, chatParams)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanLLMComplete, provider, model)
	c.cfg.Hooks.SafeLLMRequest(ctx, provider, model, map[string]any{"operation": "chat"})
	var out *anth.Message
	err = base.NewRetrier(c.cfg.Retry).OnRetry(func(attempt int, err error) {
		c.cfg.Hooks.SafeLLMRetry(ctx, provider, model, attempt, err)
	}).Do(ctx, func() error {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		resp, err := c.client.Messages.New(rctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	c.cfg.Hooks.SafeLLMResponse(ctx, provider, model, time.Since(start), map[string]any{"operation": "chat", "error": err != nil})
	observability.EndSpan(span, err)
	if err != nil {
		c.log.Error().Err(err).Str("model", model).Msg("messages request failed")
		return nil, err
	}
	return fromAnthMessage(out), nil
}

// StreamChat returns a stream that opens the SDK event stream on first
// subscription.
func (c *Client) StreamChat(_ context.Context, p *base.ChatPrompt, params *base.ChatParameters) (*base.ChatCompletionStream, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return base.NewChatCompletionStream(func(ctx context.Context) (base.EventSource, error) {
		req, model, err := c.buildRequest(ctx, p, params)
		if err != nil {
			return nil, err
		}
		c.cfg.Hooks.SafeLLMRequest(ctx, provider, model, map[string]any{"operation": "chat_stream"})
		ctx, span := observability.StartSpan(ctx, observability.SpanLLMStream, provider, model)
		s := c.client.Messages.NewStreaming(ctx, req)
		return &anthStreamWrapper{inner: s, span: span, hooks: c.cfg.Hooks, model: model, start: time.Now(), ctx: ctx}, nil
	}, base.WithStreamLogger(c.log), base.WithStreamHooks(c.cfg.Hooks)), nil
}

func (c *Client) buildRequest(ctx context.Context, p *base.ChatPrompt, params *base.ChatParameters) (anth.MessageNewParams, string, error) {
	opCtx, err := base.OperationContext(p, c.Model())
	if err != nil {
		return anth.MessageNewParams{}, "", err
	}
	model := pickModel(opCtx, c.cfg.Model)
	resolved, err := base.ResolveChatPrompt(ctx, p)
	if err != nil {
		return anth.MessageNewParams{}, "", err
	}
	system, msgs, err := toAnthMessages(resolved)
	if err != nil {
		return anth.MessageNewParams{}, "", err
	}
	req := anth.MessageNewParams{
		Messages:  msgs,
		System:    system,
		MaxTokens: int64(c.cfg.MaxTokens),
		Model:     anth.Model(model),
	}
	if params != nil {
		if params.TokenLimit > 0 {
			req.MaxTokens = int64(params.TokenLimit)
		}
		if params.Temperature != nil {
			req.Temperature = anth.Float(*params.Temperature)
		}
		if params.TopP != nil {
			req.TopP = anth.Float(*params.TopP)
		}
		req.StopSequences = params.Stops
		if len(params.Functions) > 0 {
			req.Tools = toAnthTools(params.Functions)
		}
	}
	return req, model, nil
}

func pickModel(opCtx prompt.Context, fallback string) string {
	id, err := base.ParseModelIdentifier(prompt.Get(opCtx, prompt.ModelKey))
	if err != nil || id.Provider != provider {
		return fallback
	}
	return id.Name
}

// anthStreamCore matches the subset of the SDK event stream we use.
type anthStreamCore interface {
	Next() bool
	Current() anth.MessageStreamEventUnion
	Err() error
	Close() error
}

type anthStreamWrapper struct {
	inner  anthStreamCore
	span   trace.Span
	hooks  *observability.Hooks
	model  string
	start  time.Time
	ctx    context.Context
	closed bool
}

func (w *anthStreamWrapper) Recv(ctx context.Context) (base.Event, error) {
	if w.closed {
		return base.Event{}, base.ErrStreamClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return base.Event{}, err
		}
		if !w.inner.Next() {
			if err := w.inner.Err(); err != nil {
				return base.Event{}, err
			}
			return base.Event{}, io.EOF
		}
		if ev, ok := streamEvent(w.inner.Current()); ok {
			return ev, nil
		}
	}
}

// streamEvent maps one SDK event to a partial completion. Events that
// carry nothing, such as pings and block stops, are skipped.
func streamEvent(ev anth.MessageStreamEventUnion) (base.Event, bool) {
	var delta base.PartialMessage
	var reason base.StopReason
	switch ev.Type {
	case "message_start":
		delta.ID = ev.Message.ID
		delta.Role = base.RoleAssistant
	case "content_block_start":
		switch ev.ContentBlock.Type {
		case "tool_use":
			delta.FunctionCall = &base.FunctionCallDelta{Name: ev.ContentBlock.Name}
		case "text":
			if ev.ContentBlock.Text == "" {
				return base.Event{}, false
			}
			delta.Content = prompt.New(ev.ContentBlock.Text)
		default:
			return base.Event{}, false
		}
	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			delta.Content = prompt.New(ev.Delta.Text)
		case "input_json_delta":
			delta.FunctionCall = &base.FunctionCallDelta{Arguments: ev.Delta.PartialJSON}
		default:
			return base.Event{}, false
		}
	case "message_delta":
		reason = stopReason(ev.Delta.StopReason)
		if reason == base.StopReasonNone {
			return base.Event{}, false
		}
	default:
		return base.Event{}, false
	}
	return base.CompletionEvent(base.PartialCompletion{Message: delta, StopReason: reason}), true
}

func (w *anthStreamWrapper) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.inner.Err()
	w.hooks.SafeLLMResponse(w.ctx, provider, w.model, time.Since(w.start), map[string]any{"operation": "chat_stream", "error": err != nil})
	if w.span != nil {
		observability.EndSpan(w.span, err)
	}
	return w.inner.Close()
}
