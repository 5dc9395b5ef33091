package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/KamdynS/promptline/llm"
	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultModeler is implemented by providers that know which model serves a
// request without one.
type DefaultModeler interface {
	DefaultModel() llm.ModelIdentifier
}

// RedisCache wraps a Provider and keeps vectors in redis, keyed by model and
// a hash of the text. Only misses reach the wrapped provider. Requests
// without a model are keyed on the provider's default model, or bypass the
// cache when the provider does not report one.
type RedisCache struct {
	rdb  redis.Cmdable
	next Provider
	ns   string
	// TTL bounds how long a vector is kept; 0 keeps it forever.
	TTL time.Duration
	log zerolog.Logger
}

// CacheOption configures a RedisCache.
type CacheOption func(*RedisCache)

// WithNamespace prefixes every cache key.
func WithNamespace(ns string) CacheOption { return func(c *RedisCache) { c.ns = ns } }

// WithTTL sets the expiry of cached vectors.
func WithTTL(d time.Duration) CacheOption { return func(c *RedisCache) { c.TTL = d } }

// WithCacheLogger sets the logger used for cache diagnostics.
func WithCacheLogger(l zerolog.Logger) CacheOption { return func(c *RedisCache) { c.log = l } }

func NewRedisCache(rdb redis.Cmdable, next Provider, opts ...CacheOption) *RedisCache {
	c := &RedisCache{rdb: rdb, next: next, ns: "promptline", log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("component", "embeddings_cache").Logger()
	return c
}

func (c *RedisCache) key(model llm.ModelIdentifier, text string) string {
	return fmt.Sprintf("%s:emb:%s:%s", c.ns, model, strconv.FormatUint(xxhash.Sum64String(text), 16))
}

func (c *RedisCache) model(req Request) (llm.ModelIdentifier, bool) {
	if req.Model != nil {
		return *req.Model, true
	}
	if d, ok := c.next.(DefaultModeler); ok {
		if m := d.DefaultModel(); !m.IsZero() {
			return m, true
		}
	}
	return llm.ModelIdentifier{}, false
}

// Fulfill implements Provider.
func (c *RedisCache) Fulfill(ctx context.Context, req Request) (Embeddings, error) {
	model, ok := c.model(req)
	if !ok || len(req.Strings) == 0 {
		return c.next.Fulfill(ctx, req)
	}
	keys := make([]string, len(req.Strings))
	for i, s := range req.Strings {
		keys[i] = c.key(model, s)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("cache read failed, bypassing")
		return c.next.Fulfill(ctx, req)
	}

	out := Embeddings{Model: model, Data: make([]Pair, len(req.Strings))}
	var missIdx []int
	var missing []string
	for i, s := range req.Strings {
		out.Data[i].Text = s
		raw, ok := vals[i].(string)
		if ok && json.Unmarshal([]byte(raw), &out.Data[i].Vector) == nil {
			continue
		}
		missIdx = append(missIdx, i)
		missing = append(missing, s)
	}
	if len(missing) == 0 {
		c.log.Debug().Int("hits", len(keys)).Msg("embeddings served from cache")
		return out, nil
	}

	fetched, err := c.next.Fulfill(ctx, Request{Model: req.Model, Strings: missing})
	if err != nil {
		return Embeddings{}, err
	}
	if len(fetched.Data) != len(missing) {
		return Embeddings{}, fmt.Errorf("embeddings: provider returned %d vectors for %d strings", len(fetched.Data), len(missing))
	}
	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out.Data[i].Vector = fetched.Data[j].Vector
		b, err := json.Marshal(fetched.Data[j].Vector)
		if err != nil {
			return Embeddings{}, err
		}
		pipe.Set(ctx, keys[i], b, c.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}
	c.log.Debug().Int("hits", len(keys)-len(missing)).Int("misses", len(missing)).Msg("embeddings fulfilled")
	return out, nil
}
