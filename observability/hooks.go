package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Hooks provides optional callbacks for logging, metrics, and tracing around
// provider calls and stream lifecycles. All functions are optional and a nil
// *Hooks is valid.
type Hooks struct {
	// Logf logs a structured message with a severity level and key-value fields.
	Logf func(ctx context.Context, level string, msg string, fields map[string]any)

	// OnLLMRequest is called before a provider request is sent.
	OnLLMRequest func(ctx context.Context, provider string, model string, meta map[string]any)
	// OnLLMResponse is called after a provider response is received.
	OnLLMResponse func(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any)
	// OnLLMRetry is called when a retry is attempted.
	OnLLMRetry func(ctx context.Context, provider string, model string, attempt int, err error)
	// OnStreamState is called on every completion stream state transition.
	OnStreamState func(ctx context.Context, streamID string, state string, err error)
}

// SafeLog logs if Logf is configured.
func (h *Hooks) SafeLog(ctx context.Context, level string, msg string, fields map[string]any) {
	if h != nil && h.Logf != nil {
		h.Logf(ctx, level, msg, fields)
	}
}

// SafeLLMRequest invokes OnLLMRequest if configured.
func (h *Hooks) SafeLLMRequest(ctx context.Context, provider string, model string, meta map[string]any) {
	if h != nil && h.OnLLMRequest != nil {
		h.OnLLMRequest(ctx, provider, model, meta)
	}
}

// SafeLLMResponse invokes OnLLMResponse if configured.
func (h *Hooks) SafeLLMResponse(ctx context.Context, provider string, model string, latency time.Duration, meta map[string]any) {
	if h != nil && h.OnLLMResponse != nil {
		h.OnLLMResponse(ctx, provider, model, latency, meta)
	}
}

// SafeLLMRetry invokes OnLLMRetry if configured.
func (h *Hooks) SafeLLMRetry(ctx context.Context, provider string, model string, attempt int, err error) {
	if h != nil && h.OnLLMRetry != nil {
		h.OnLLMRetry(ctx, provider, model, attempt, err)
	}
}

// SafeStreamState invokes OnStreamState if configured.
func (h *Hooks) SafeStreamState(ctx context.Context, streamID string, state string, err error) {
	if h != nil && h.OnStreamState != nil {
		h.OnStreamState(ctx, streamID, state, err)
	}
}

// ZerologHooks returns hooks that write every callback to l.
func ZerologHooks(l zerolog.Logger) *Hooks {
	return &Hooks{
		Logf: func(_ context.Context, level string, msg string, fields map[string]any) {
			lvl, err := zerolog.ParseLevel(level)
			if err != nil {
				lvl = zerolog.InfoLevel
			}
			l.WithLevel(lvl).Fields(fields).Msg(msg)
		},
		OnLLMRequest: func(_ context.Context, provider, model string, meta map[string]any) {
			l.Debug().Str("provider", provider).Str("model", model).Fields(meta).Msg("llm request")
		},
		OnLLMResponse: func(_ context.Context, provider, model string, latency time.Duration, meta map[string]any) {
			l.Info().Str("provider", provider).Str("model", model).Dur("latency", latency).Fields(meta).Msg("llm response")
		},
		OnLLMRetry: func(_ context.Context, provider, model string, attempt int, err error) {
			l.Warn().Err(err).Str("provider", provider).Str("model", model).Int("attempt", attempt).Msg("llm retry")
		},
		OnStreamState: func(_ context.Context, streamID, state string, err error) {
			ev := l.Debug()
			if err != nil {
				ev = l.Warn().Err(err)
			}
			ev.Str("stream_id", streamID).Str("state", state).Msg("completion stream state")
		},
	}
}
