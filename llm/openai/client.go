package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	base "github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/observability"
	"github.com/KamdynS/promptline/prompt"
	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

const provider = "openai"

// Client implements llm.Services for the OpenAI official SDK.
type Client struct {
	client oa.Client
	cfg    Config
	log    zerolog.Logger
}

// Config configures the OpenAI client.
type Config struct {
	APIKey         string               `mapstructure:"api_key"`
	Model          string               `mapstructure:"model"`
	EmbeddingModel string               `mapstructure:"embedding_model"`
	BaseURL        string               `mapstructure:"base_url"`
	Organization   string               `mapstructure:"organization"`
	MaxTokens      int                  `mapstructure:"max_tokens"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	Retry          base.RetryConfig     `mapstructure:"retry"`
	Hooks          *observability.Hooks `mapstructure:"-"`
	Logger         *zerolog.Logger      `mapstructure:"-"`
}

// NewClient creates an OpenAI client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = base.DefaultRetryConfig()
	}

	// No client-wide timeout: it would cut long streams short. Complete
	// applies cfg.Timeout per request.
	opts := []option.RequestOption{option.WithHTTPClient(&http.Client{})}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	c := &Client{
		client: oa.NewClient(opts...),
		cfg:    cfg,
		log:    log.With().Str("component", "llm").Str("provider", provider).Logger(),
	}
	return c, nil
}

func (c *Client) Model() string { return provider + "/" + c.cfg.Model }

// Complete handles chat prompts directly and text prompts as a single user
// message.
func (c *Client) Complete(ctx context.Context, p base.Prompt, params base.Parameters, _ base.Heuristics) (base.Completion, error) {
	switch p := p.(type) {
	case *base.ChatPrompt:
		cp, err := chatParameters(params)
		if err != nil {
			return nil, err
		}
		return c.completeChat(ctx, p, cp)
	case *base.TextPrompt:
		tp, ok := params.(*base.TextParameters)
		if params != nil && !ok {
			return nil, fmt.Errorf("%w: %T", base.ErrUnsupportedParameters, params)
		}
		text, err := p.Prefix.StripToText()
		if err != nil {
			return nil, err
		}
		chat := base.NewChatPrompt(base.UserText(text))
		if m, ok := prompt.Lookup(p.Context, prompt.ModelKey); ok {
			chat.Context = prompt.With(chat.Context, prompt.ModelKey, m)
		}
		var cp *base.ChatParameters
		if tp != nil {
			cp = &base.ChatParameters{TokenLimit: tp.TokenLimit, Temperature: tp.Temperature, TopP: tp.TopP, Stops: tp.Stops}
		}
		cc, err := c.completeChat(ctx, chat, cp)
		if err != nil {
			return nil, err
		}
		out, err := cc.StripToText()
		if err != nil {
			return nil, err
		}
		return &base.TextCompletion{Prefix: p.Prefix, Text: out}, nil
	default:
		return nil, fmt.Errorf("%w: %T", base.ErrUnsupportedPrompt, p)
	}
}

func chatParameters(params base.Parameters) (*base.ChatParameters, error) {
	if params == nil {
		return nil, nil
	}
	cp, ok := params.(*base.ChatParameters)
	if !ok {
		return nil, fmt.Errorf("%w: %T", base.ErrUnsupportedParameters, params)
	}
	return cp, cp.Validate()
}

func (c *Client) completeChat(ctx context.Context, p *base.ChatPrompt, params *base.ChatParameters) (*base.ChatCompletion, error) {
	req, model, err := c.buildRequest(ctx, p, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanLLMComplete, provider, model)
	c.cfg.Hooks.SafeLLMRequest(ctx, provider, model, map[string]any{"operation": "chat"})

	var resp *oa.ChatCompletion
	err = base.NewRetrier(c.cfg.Retry).OnRetry(func(attempt int, err error) {
		c.cfg.Hooks.SafeLLMRetry(ctx, provider, model, attempt, err)
	}).Do(ctx, func() error {
		rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		r, err := c.client.Chat.Completions.New(rctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	c.cfg.Hooks.SafeLLMResponse(ctx, provider, model, time.Since(start), map[string]any{"operation": "chat", "error": err != nil})
	observability.EndSpan(span, err)
	if err != nil {
		c.log.Error().Err(err).Str("model", model).Msg("chat completion failed")
		return nil, err
	}
	return fromOAResponse(resp), nil
}

// StreamChat returns a stream that opens the SDK stream on first
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
		s := c.client.Chat.Completions.NewStreaming(ctx, req)
		return &oaStreamWrapper{inner: s, span: span, hooks: c.cfg.Hooks, model: model, start: time.Now(), ctx: ctx}, nil
	}, base.WithStreamLogger(c.log), base.WithStreamHooks(c.cfg.Hooks)), nil
}

// buildRequest resolves the prompt and maps it and params onto the SDK
// request. It returns the model name used.
func (c *Client) buildRequest(ctx context.Context, p *base.ChatPrompt, params *base.ChatParameters) (oa.ChatCompletionNewParams, string, error) {
	opCtx, err := base.OperationContext(p, c.Model())
	if err != nil {
		return oa.ChatCompletionNewParams{}, "", err
	}
	model := pickModel(opCtx, c.cfg.Model)
	resolved, err := base.ResolveChatPrompt(ctx, p)
	if err != nil {
		return oa.ChatCompletionNewParams{}, "", err
	}
	messages, err := toOAMessages(resolved)
	if err != nil {
		return oa.ChatCompletionNewParams{}, "", err
	}
	req := oa.ChatCompletionNewParams{Messages: messages, Model: oa.ChatModel(model)}
	if c.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = oa.Int(int64(c.cfg.MaxTokens))
	}
	if params != nil {
		if params.TokenLimit > 0 {
			req.MaxCompletionTokens = oa.Int(int64(params.TokenLimit))
		}
		if params.Temperature != nil {
			req.Temperature = oa.Float(*params.Temperature)
		}
		if params.TopP != nil {
			req.TopP = oa.Float(*params.TopP)
		}
		if len(params.Stops) > 0 {
			req.Stop = oa.ChatCompletionNewParamsStopUnion{OfStringArray: params.Stops}
		}
		if len(params.Functions) > 0 {
			req.Tools = toOATools(params.Functions)
		}
	}
	return req, model, nil
}

// pickModel returns the model pinned in the operation context when it
// targets this provider, otherwise the configured default.
func pickModel(opCtx prompt.Context, fallback string) string {
	id, err := base.ParseModelIdentifier(prompt.Get(opCtx, prompt.ModelKey))
	if err != nil || id.Provider != provider {
		return fallback
	}
	return id.Name
}

// oaStreamCore matches the subset of the OpenAI stream API we use.
type oaStreamCore interface {
	Next() bool
	Current() oa.ChatCompletionChunk
	Err() error
	Close() error
}

type oaStreamWrapper struct {
	inner  oaStreamCore
	span   trace.Span
	hooks  *observability.Hooks
	model  string
	start  time.Time
	ctx    context.Context
	closed bool
}

// Recv maps SDK chunks to partial completions, skipping chunks that carry
// nothing.
func (w *oaStreamWrapper) Recv(ctx context.Context) (base.Event, error) {
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
		if ev, ok := chunkEvent(w.inner.Current()); ok {
			return ev, nil
		}
	}
}

func chunkEvent(chunk oa.ChatCompletionChunk) (base.Event, bool) {
	if len(chunk.Choices) == 0 {
		return base.Event{}, false
	}
	ch := chunk.Choices[0]
	delta := base.PartialMessage{ID: chunk.ID}
	empty := true
	if ch.Delta.Role != "" {
		delta.Role = base.RoleAssistant
	}
	if ch.Delta.Content != "" {
		delta.Content = prompt.New(ch.Delta.Content)
		empty = false
	}
	if len(ch.Delta.ToolCalls) > 0 {
		tc := ch.Delta.ToolCalls[0]
		delta.FunctionCall = &base.FunctionCallDelta{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		empty = false
	}
	reason := stopReason(ch.FinishReason)
	if empty && reason == base.StopReasonNone {
		return base.Event{}, false
	}
	return base.CompletionEvent(base.PartialCompletion{Message: delta, StopReason: reason}), true
}

func (w *oaStreamWrapper) Close() error {
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
