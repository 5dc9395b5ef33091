// Package embeddings defines the text embedding provider contract and
// helpers for batching requests and caching vectors.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/KamdynS/promptline/llm"
)

// ErrModelMismatch is returned when combining embeddings from different
// models, or when a provider is asked for a model it does not serve.
var ErrModelMismatch = errors.New("embeddings: model mismatch")

// Request asks for one vector per string. A nil Model lets the provider
// choose.
type Request struct {
	Model   *llm.ModelIdentifier
	Strings []string
}

// Batched splits r into requests of at most size strings each. A
// non-positive size returns r unchanged.
func (r Request) Batched(size int) []Request {
	if size <= 0 || len(r.Strings) <= size {
		return []Request{r}
	}
	out := make([]Request, 0, (len(r.Strings)+size-1)/size)
	for i := 0; i < len(r.Strings); i += size {
		end := min(i+size, len(r.Strings))
		out = append(out, Request{Model: r.Model, Strings: r.Strings[i:end]})
	}
	return out
}

// Pair is a string and its vector.
type Pair struct {
	Text   string    `json:"text"`
	Vector []float64 `json:"vector"`
}

// Embeddings is the ordered result of a Request.
type Embeddings struct {
	Model llm.ModelIdentifier `json:"model"`
	Data  []Pair              `json:"data"`
}

// Append returns e followed by other. A zero model on either side adopts
// the other's.
func (e Embeddings) Append(other Embeddings) (Embeddings, error) {
	model := e.Model
	switch {
	case model.IsZero():
		model = other.Model
	case !other.Model.IsZero() && other.Model != model:
		return Embeddings{}, fmt.Errorf("%w: %s and %s", ErrModelMismatch, model, other.Model)
	}
	data := make([]Pair, 0, len(e.Data)+len(other.Data))
	data = append(data, e.Data...)
	data = append(data, other.Data...)
	return Embeddings{Model: model, Data: data}, nil
}

// Vectors returns the vectors in request order.
func (e Embeddings) Vectors() [][]float64 {
	out := make([][]float64, len(e.Data))
	for i, p := range e.Data {
		out[i] = p.Vector
	}
	return out
}

// Provider turns strings into vectors.
type Provider interface {
	Fulfill(ctx context.Context, req Request) (Embeddings, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Embeddings, error)

func (f ProviderFunc) Fulfill(ctx context.Context, req Request) (Embeddings, error) { return f(ctx, req) }

// Batching wraps p so every request is sent in batches of at most size
// strings.
func Batching(p Provider, size int) Provider {
	if size <= 0 {
		return p
	}
	return ProviderFunc(func(ctx context.Context, req Request) (Embeddings, error) {
		return FulfillBatched(ctx, p, req, size)
	})
}

// TextEmbeddings embeds strings with model.
func TextEmbeddings(ctx context.Context, p Provider, model *llm.ModelIdentifier, strings ...string) (Embeddings, error) {
	return p.Fulfill(ctx, Request{Model: model, Strings: strings})
}

// TextEmbedding embeds a single string.
func TextEmbedding(ctx context.Context, p Provider, model *llm.ModelIdentifier, s string) ([]float64, error) {
	e, err := TextEmbeddings(ctx, p, model, s)
	if err != nil {
		return nil, err
	}
	if len(e.Data) != 1 {
		return nil, fmt.Errorf("embeddings: expected 1 vector, got %d", len(e.Data))
	}
	return e.Data[0].Vector, nil
}

// FulfillBatched sends req in batches of size and concatenates the results
// in order.
func FulfillBatched(ctx context.Context, p Provider, req Request, size int) (Embeddings, error) {
	var out Embeddings
	for _, b := range req.Batched(size) {
		e, err := p.Fulfill(ctx, b)
		if err != nil {
			return Embeddings{}, err
		}
		if out, err = out.Append(e); err != nil {
			return Embeddings{}, err
		}
	}
	return out, nil
}
