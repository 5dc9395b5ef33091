package openai

import (
	"context"
	"fmt"
	"sort"
	"time"

	base "github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/embeddings"
	"github.com/KamdynS/promptline/observability"
	oa "github.com/openai/openai-go/v3"
)

// Embeddings returns an embeddings.Provider backed by this client.
func (c *Client) Embeddings() *EmbeddingsProvider { return &EmbeddingsProvider{c: c} }

// EmbeddingsProvider implements embeddings.Provider over the embeddings
// endpoint.
type EmbeddingsProvider struct {
	c *Client
}

// DefaultModel is the model used for requests that name none.
func (p *EmbeddingsProvider) DefaultModel() base.ModelIdentifier {
	return base.ModelIdentifier{Provider: provider, Name: p.c.cfg.EmbeddingModel}
}

func (p *EmbeddingsProvider) Fulfill(ctx context.Context, req embeddings.Request) (embeddings.Embeddings, error) {
	model := p.c.cfg.EmbeddingModel
	if req.Model != nil {
		if req.Model.Provider != provider {
			return embeddings.Embeddings{}, fmt.Errorf("%w: openai cannot embed with %s", embeddings.ErrModelMismatch, req.Model)
		}
		model = req.Model.Name
	}
	if len(req.Strings) == 0 {
		return embeddings.Embeddings{Model: base.ModelIdentifier{Provider: provider, Name: model}}, nil
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanEmbeddings, provider, model)
	p.c.cfg.Hooks.SafeLLMRequest(ctx, provider, model, map[string]any{"operation": "embeddings", "inputs": len(req.Strings)})
	var resp *oa.CreateEmbeddingResponse
	err := base.NewRetrier(p.c.cfg.Retry).OnRetry(func(attempt int, err error) {
		p.c.cfg.Hooks.SafeLLMRetry(ctx, provider, model, attempt, err)
	}).Do(ctx, func() error {
		rctx, cancel := context.WithTimeout(ctx, p.c.cfg.Timeout)
		defer cancel()
		r, err := p.c.client.Embeddings.New(rctx, oa.EmbeddingNewParams{
			Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Strings},
			Model: oa.EmbeddingModel(model),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	p.c.cfg.Hooks.SafeLLMResponse(ctx, provider, model, time.Since(start), map[string]any{"operation": "embeddings", "error": err != nil})
	observability.EndSpan(span, err)
	if err != nil {
		p.c.log.Error().Err(err).Str("model", model).Msg("embeddings failed")
		return embeddings.Embeddings{}, err
	}
	return fromOAEmbeddings(resp, model, req.Strings)
}

func fromOAEmbeddings(resp *oa.CreateEmbeddingResponse, model string, inputs []string) (embeddings.Embeddings, error) {
	if len(resp.Data) != len(inputs) {
		return embeddings.Embeddings{}, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(inputs))
	}
	data := append([]oa.Embedding(nil), resp.Data...)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := embeddings.Embeddings{
		Model: base.ModelIdentifier{Provider: provider, Name: model},
		Data:  make([]embeddings.Pair, len(data)),
	}
	for i, d := range data {
		out.Data[i] = embeddings.Pair{Text: inputs[i], Vector: d.Embedding}
	}
	return out, nil
}
